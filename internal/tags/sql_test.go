package tags_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/stmtags/internal/db"
	"github.com/tgienger/stmtags/internal/models"
	"github.com/tgienger/stmtags/internal/tags"
)

// setupSQL opens a temporary database and a service bound to it
func setupSQL(t *testing.T, driver string) (*db.DB, *tags.Service) {
	t.Helper()
	d, err := db.Open(context.Background(), db.Options{
		Driver: driver,
		Path:   filepath.Join(t.TempDir(), "stm.db"),
	})
	require.NoError(t, err, "opening database")
	t.Cleanup(func() { d.Close() })
	return d, tags.NewSQLService(d, tags.Config{})
}

func tagTasks(t *testing.T, d *db.DB, tag *models.Tag, titles ...string) {
	t.Helper()
	ctx := context.Background()
	for _, title := range titles {
		task, err := d.CreateTask(ctx, title)
		require.NoError(t, err)
		require.NoError(t, d.AddTagToTask(ctx, task.ID, tag))
	}
}

func assocNames(t *testing.T, d *db.DB, uuid string) []string {
	t.Helper()
	assocs, err := d.ListAssociationsByTag(context.Background(), uuid)
	require.NoError(t, err)
	names := []string{}
	for _, a := range assocs {
		names = append(names, a.TagName)
	}
	return names
}

func TestSQL_Scenario(t *testing.T) {
	for _, driver := range []string{db.DriverCgo, db.DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			d, svc := setupSQL(t, driver)

			home, err := d.PersistTag(ctx, &models.Tag{UUID: "u1", Name: "Home"})
			require.NoError(t, err)
			errands, err := d.PersistTag(ctx, &models.Tag{UUID: "u2", Name: "Errands"})
			require.NoError(t, err)
			tagTasks(t, d, home, "Vacuum")
			tagTasks(t, d, errands, "Post office", "Groceries")

			_, err = svc.Create(ctx, "Home")
			assert.ErrorIs(t, err, tags.ErrDuplicateName)

			_, err = svc.Rename(ctx, "u2", "Home")
			assert.ErrorIs(t, err, tags.ErrDuplicateName)

			res, err := svc.Rename(ctx, "u2", " Shopping ")
			require.NoError(t, err)
			assert.Equal(t, tags.ActionRenamed, res.Action)

			got, err := svc.Get(ctx, "u2")
			require.NoError(t, err)
			assert.Equal(t, "Shopping", got.Name)
			assert.Equal(t, []string{"Shopping", "Shopping"}, assocNames(t, d, "u2"))
			assert.Equal(t, []string{"Home"}, assocNames(t, d, "u1"))
		})
	}
}

func TestSQL_CreateThenDeleteCascades(t *testing.T) {
	ctx := context.Background()
	d, svc := setupSQL(t, db.DriverPureGo)

	res, err := svc.Create(ctx, "Work")
	require.NoError(t, err)
	tagTasks(t, d, &res.Tag, "Report", "Standup")

	del, err := svc.Delete(ctx, res.Tag.UUID)
	require.NoError(t, err)
	assert.Equal(t, tags.ActionDeleted, del.Action)
	assert.Equal(t, "Work", del.Tag.Name)

	assert.Empty(t, assocNames(t, d, res.Tag.UUID))
	_, err = svc.Get(ctx, res.Tag.UUID)
	assert.ErrorIs(t, err, tags.ErrTagNotFound)

	// second delete is still a success
	_, err = svc.Delete(ctx, res.Tag.UUID)
	assert.NoError(t, err)
}

// blindStore hides existing tags from the name check so the write reaches
// the unique constraint, as a concurrent writer would
type blindStore struct {
	*db.DB
}

func (blindStore) FindTagByName(context.Context, string) (*models.Tag, error) {
	return nil, nil
}

type blindTx struct {
	d *db.DB
}

func (b blindTx) InTx(ctx context.Context, fn func(tags.TagStore, tags.AssociationStore) error) error {
	return b.d.InTx(ctx, func(tx *db.DB) error {
		return fn(blindStore{tx}, tx)
	})
}

func TestSQL_ConstraintConflictRollsBackRename(t *testing.T) {
	ctx := context.Background()
	d, _ := setupSQL(t, db.DriverCgo)
	svc := tags.NewService(tags.Config{
		Tags:         blindStore{d},
		Associations: d,
		Tx:           blindTx{d},
	})

	_, err := d.PersistTag(ctx, &models.Tag{UUID: "u1", Name: "Home"})
	require.NoError(t, err)
	errands, err := d.PersistTag(ctx, &models.Tag{UUID: "u2", Name: "Errands"})
	require.NoError(t, err)
	tagTasks(t, d, errands, "Post office")

	_, err = svc.Create(ctx, "home")
	assert.ErrorIs(t, err, tags.ErrDuplicateName)

	_, err = svc.Rename(ctx, "u2", "Home")
	assert.ErrorIs(t, err, tags.ErrDuplicateName)

	got, err := d.GetTagByUUID(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Errands", got.Name)
	assert.Equal(t, []string{"Errands"}, assocNames(t, d, "u2"))
}

func TestSQL_RenameNoOpLeavesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	_, svc := setupSQL(t, db.DriverPureGo)

	created, err := svc.Create(ctx, "Home")
	require.NoError(t, err)

	res, err := svc.Rename(ctx, created.Tag.UUID, "Home")
	require.NoError(t, err)
	assert.Equal(t, tags.ActionUnchanged, res.Action)
	assert.Equal(t, created.Tag.UpdatedAt, res.Tag.UpdatedAt)
}

func TestSQL_ConcurrentRenamesToSameName(t *testing.T) {
	for _, driver := range []string{db.DriverCgo, db.DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			d, svc := setupSQL(t, driver)

			a, err := d.PersistTag(ctx, &models.Tag{UUID: "a", Name: "Alpha"})
			require.NoError(t, err)
			b, err := d.PersistTag(ctx, &models.Tag{UUID: "b", Name: "Beta"})
			require.NoError(t, err)
			tagTasks(t, d, a, "One")
			tagTasks(t, d, b, "Two")

			for round := 0; round < 10; round++ {
				name := fmt.Sprintf("Same %d", round)
				errs := make([]error, 2)
				var wg sync.WaitGroup
				for i, uuid := range []string{"a", "b"} {
					i, uuid := i, uuid
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, errs[i] = svc.Rename(ctx, uuid, name)
					}()
				}
				wg.Wait()

				var ok, dup int
				for _, err := range errs {
					switch {
					case err == nil:
						ok++
					case errors.Is(err, tags.ErrDuplicateName):
						dup++
					default:
						t.Errorf("round %d: unexpected error: %v", round, err)
					}
				}
				assert.Equal(t, 1, ok, "round %d successes", round)
				assert.Equal(t, 1, dup, "round %d duplicates", round)

				winner := "a"
				if errs[0] != nil {
					winner = "b"
				}
				assert.Equal(t, []string{name}, assocNames(t, d, winner), "round %d", round)
			}
		})
	}
}

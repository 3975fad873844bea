package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tgienger/stmtags/internal/models"
)

const tagColumns = "id, uuid, name, created_at, updated_at"

func scanTag(sc scanner) (*models.Tag, error) {
	t := &models.Tag{}
	if err := sc.Scan(&t.ID, &t.UUID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// getTagWhere runs a single-row tag query, returning nil when nothing matches
func (db *DB) getTagWhere(ctx context.Context, where string, arg any) (*models.Tag, error) {
	row := db.q.QueryRowContext(ctx, "SELECT "+tagColumns+" FROM tags WHERE "+where, arg)
	t, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTag retrieves a tag by ID, or nil if there is none
func (db *DB) GetTag(ctx context.Context, id int64) (*models.Tag, error) {
	t, err := db.getTagWhere(ctx, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get tag %d: %w", id, err)
	}
	return t, nil
}

// GetTagByUUID retrieves a tag by its uuid, or nil if there is none
func (db *DB) GetTagByUUID(ctx context.Context, uuid string) (*models.Tag, error) {
	t, err := db.getTagWhere(ctx, "uuid = ?", uuid)
	if err != nil {
		return nil, fmt.Errorf("get tag %s: %w", uuid, err)
	}
	return t, nil
}

// FindTagByName retrieves a tag by its name, or nil if there is none.
// Matching follows the NOCASE collation of tags.name, the same collation
// the unique constraint uses.
func (db *DB) FindTagByName(ctx context.Context, name string) (*models.Tag, error) {
	t, err := db.getTagWhere(ctx, "name = ?", name)
	if err != nil {
		return nil, fmt.Errorf("find tag %q: %w", name, err)
	}
	return t, nil
}

// ListTags returns all tags ordered by name
func (db *DB) ListTags(ctx context.Context) ([]models.Tag, error) {
	rows, err := db.q.QueryContext(ctx, "SELECT "+tagColumns+" FROM tags ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("list tags: %w", err)
		}
		tags = append(tags, *t)
	}
	return tags, rows.Err()
}

// PersistTag inserts a new tag (ID == 0) or updates the name of an existing
// one, and returns the stored row. A name or uuid clash yields ErrDuplicate.
func (db *DB) PersistTag(ctx context.Context, tag *models.Tag) (*models.Tag, error) {
	id := tag.ID
	if tag.IsNew() {
		result, err := db.q.ExecContext(ctx, "INSERT INTO tags (uuid, name) VALUES (?, ?)", tag.UUID, tag.Name)
		if err != nil {
			return nil, persistErr(tag, err)
		}
		if id, err = result.LastInsertId(); err != nil {
			return nil, fmt.Errorf("persist tag %s: %w", tag.UUID, err)
		}
	} else {
		result, err := db.q.ExecContext(ctx, `
			UPDATE tags SET name = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, tag.Name, tag.ID)
		if err != nil {
			return nil, persistErr(tag, err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return nil, fmt.Errorf("persist tag %s: %w", tag.UUID, sql.ErrNoRows)
		}
	}

	stored, err := db.GetTag(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("persist tag %s: %w", tag.UUID, sql.ErrNoRows)
	}
	return stored, nil
}

func persistErr(tag *models.Tag, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("persist tag %q: %w", tag.Name, ErrDuplicate)
	}
	return fmt.Errorf("persist tag %s: %w", tag.UUID, err)
}

// DeleteTag deletes a tag. Deleting a tag that does not exist is not an error.
func (db *DB) DeleteTag(ctx context.Context, id int64) error {
	if _, err := db.q.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete tag %d: %w", id, err)
	}
	return nil
}

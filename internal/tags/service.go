// Package tags enforces tag name rules and performs the create, rename and
// delete transitions for tags, keeping the denormalized tag name on task
// associations consistent with the tag itself.
//
// Every operation takes explicit inputs and returns a Result; the service
// holds no per-session state, so one Service can serve any number of
// callers. Uniqueness is checked before writing and is also enforced by the
// store: a unique-constraint conflict reported by the store surfaces as
// ErrDuplicateName, so concurrent writers racing past the check still get
// the same error.
package tags

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tgienger/stmtags/internal/db"
	"github.com/tgienger/stmtags/internal/models"
)

// TagStore persists tags. Lookups return nil, nil when nothing matches.
// PersistTag assigns an ID to a new tag and reports name conflicts with an
// error wrapping db.ErrDuplicate. DeleteTag of an absent ID is not an error.
type TagStore interface {
	FindTagByName(ctx context.Context, name string) (*models.Tag, error)
	GetTagByUUID(ctx context.Context, uuid string) (*models.Tag, error)
	ListTags(ctx context.Context) ([]models.Tag, error)
	PersistTag(ctx context.Context, tag *models.Tag) (*models.Tag, error)
	DeleteTag(ctx context.Context, id int64) error
}

// AssociationStore updates task/tag associations in bulk, keyed by tag uuid
type AssociationStore interface {
	UpdateTagNameByUUID(ctx context.Context, tagUUID, name string) (int64, error)
	DeleteByTagUUID(ctx context.Context, tagUUID string) (int64, error)
}

// Transactor runs fn with stores bound to a single transaction, committing
// when fn returns nil
type Transactor interface {
	InTx(ctx context.Context, fn func(tags TagStore, assocs AssociationStore) error) error
}

// Config holds the collaborators of a Service. Tx is optional; without it
// writes run directly against Tags and Associations.
type Config struct {
	Tags         TagStore
	Associations AssociationStore
	Tx           Transactor
	Logger       *slog.Logger
	NewUUID      func() string
}

// Service validates tag names and performs tag state transitions
type Service struct {
	tags    TagStore
	assocs  AssociationStore
	tx      Transactor
	logger  *slog.Logger
	newUUID func() string
}

// NewService creates a tag service
func NewService(cfg Config) *Service {
	s := &Service{
		tags:    cfg.Tags,
		assocs:  cfg.Associations,
		tx:      cfg.Tx,
		logger:  cfg.Logger,
		newUUID: cfg.NewUUID,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.newUUID == nil {
		s.newUUID = uuid.NewString
	}
	return s
}

// NormalizeName returns name as it would be stored: without leading or
// trailing whitespace
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// Get retrieves a tag by uuid
func (s *Service) Get(ctx context.Context, tagUUID string) (*models.Tag, error) {
	tag, err := s.tags.GetTagByUUID(ctx, tagUUID)
	if err != nil {
		return nil, storageErr("get tag", err)
	}
	if tag == nil {
		return nil, fmt.Errorf("%w: %s", ErrTagNotFound, tagUUID)
	}
	return tag, nil
}

// List returns every tag
func (s *Service) List(ctx context.Context) ([]models.Tag, error) {
	tags, err := s.tags.ListTags(ctx)
	if err != nil {
		return nil, storageErr("list tags", err)
	}
	return tags, nil
}

// Create defines a new tag with a freshly generated uuid
func (s *Service) Create(ctx context.Context, proposedName string) (Result, error) {
	name := NormalizeName(proposedName)
	if name == "" {
		return Result{}, ErrEmptyName
	}

	tag := &models.Tag{UUID: s.newUUID(), Name: name}
	if err := checkUnique(ctx, s.tags, tag.UUID, name); err != nil {
		return Result{}, err
	}

	stored, err := s.tags.PersistTag(ctx, tag)
	if err != nil {
		return Result{}, s.persistErr("create tag", name, err)
	}

	s.logger.Info("tag created",
		slog.String("uuid", stored.UUID),
		slog.Int64("id", stored.ID),
		slog.String("name", stored.Name))

	return Result{Action: ActionCreated, Tag: *stored, NewName: stored.Name}, nil
}

// Rename changes a tag's name and rewrites the name carried by each of its
// associations. Renaming to the current name writes nothing and returns
// ActionUnchanged.
func (s *Service) Rename(ctx context.Context, tagUUID, proposedName string) (Result, error) {
	name := NormalizeName(proposedName)
	if name == "" {
		return Result{}, ErrEmptyName
	}
	if tagUUID == "" {
		return Result{}, fmt.Errorf("%w: empty uuid", ErrTagNotFound)
	}

	var res Result
	var updated int64
	err := s.atomic(ctx, func(tags TagStore, assocs AssociationStore) error {
		tag, err := tags.GetTagByUUID(ctx, tagUUID)
		if err != nil {
			return storageErr("load tag", err)
		}
		if tag == nil {
			return fmt.Errorf("%w: %s", ErrTagNotFound, tagUUID)
		}

		oldName := tag.Name
		if oldName == name {
			res = Result{Action: ActionUnchanged, Tag: *tag, OldName: oldName, NewName: name}
			return nil
		}
		if err := checkUnique(ctx, tags, tag.UUID, name); err != nil {
			return err
		}

		// associations first: without a transaction an interrupted rename
		// leaves the tag row untouched
		if updated, err = assocs.UpdateTagNameByUUID(ctx, tag.UUID, name); err != nil {
			return storageErr("rename associations", err)
		}

		tag.Name = name
		stored, err := tags.PersistTag(ctx, tag)
		if err != nil {
			if s.tx == nil {
				s.restoreAssociations(ctx, assocs, tag.UUID, oldName)
			}
			return s.persistErr("rename tag", name, err)
		}

		res = Result{Action: ActionRenamed, Tag: *stored, OldName: oldName, NewName: stored.Name}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if res.Action == ActionUnchanged {
		s.logger.Debug("tag rename unchanged",
			slog.String("uuid", res.Tag.UUID),
			slog.String("name", res.NewName))
		return res, nil
	}

	s.logger.Info("tag renamed",
		slog.String("uuid", res.Tag.UUID),
		slog.String("old_name", res.OldName),
		slog.String("new_name", res.NewName),
		slog.Int64("associations", updated))

	return res, nil
}

// restoreAssociations puts back the old name after a failed rename when no
// transaction can undo the association update
func (s *Service) restoreAssociations(ctx context.Context, assocs AssociationStore, tagUUID, oldName string) {
	if _, err := assocs.UpdateTagNameByUUID(ctx, tagUUID, oldName); err != nil {
		s.logger.Error("restoring association names failed",
			slog.String("uuid", tagUUID),
			slog.String("name", oldName),
			slog.String("error", err.Error()))
	}
}

// Delete removes every association of a tag and then the tag itself.
// Deleting a tag that no longer exists succeeds; Result.Tag then carries
// only the uuid. The empty uuid is treated like any other absent tag.
func (s *Service) Delete(ctx context.Context, tagUUID string) (Result, error) {
	res := Result{Action: ActionDeleted, Tag: models.Tag{UUID: tagUUID}}
	var removed int64
	err := s.atomic(ctx, func(tags TagStore, assocs AssociationStore) error {
		tag, err := tags.GetTagByUUID(ctx, tagUUID)
		if err != nil {
			return storageErr("load tag", err)
		}

		if removed, err = assocs.DeleteByTagUUID(ctx, tagUUID); err != nil {
			return storageErr("delete associations", err)
		}

		if tag == nil {
			return nil
		}
		if err := tags.DeleteTag(ctx, tag.ID); err != nil {
			return storageErr("delete tag", err)
		}
		res.Tag = *tag
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("tag deleted",
		slog.String("uuid", tagUUID),
		slog.String("name", res.Tag.Name),
		slog.Int64("associations", removed))

	return res, nil
}

// atomic runs fn in a transaction when the service has a Transactor
func (s *Service) atomic(ctx context.Context, fn func(TagStore, AssociationStore) error) error {
	if s.tx == nil {
		return fn(s.tags, s.assocs)
	}
	err := s.tx.InTx(ctx, fn)
	if err != nil && !isServiceErr(err) {
		return storageErr("transaction", err)
	}
	return err
}

// checkUnique fails when a tag other than selfUUID already holds name
func checkUnique(ctx context.Context, tags TagStore, selfUUID, name string) error {
	existing, err := tags.FindTagByName(ctx, name)
	if err != nil {
		return storageErr("check tag name", err)
	}
	if existing != nil && existing.UUID != selfUUID {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	return nil
}

func (s *Service) persistErr(op, name string, err error) error {
	if errors.Is(err, db.ErrDuplicate) {
		s.logger.Warn("tag name conflict at store",
			slog.String("op", op),
			slog.String("name", name))
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	return storageErr(op, err)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func isServiceErr(err error) bool {
	return errors.Is(err, ErrEmptyName) ||
		errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrTagNotFound) ||
		errors.Is(err, ErrStorage)
}

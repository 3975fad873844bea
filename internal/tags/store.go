package tags

import (
	"context"

	"github.com/tgienger/stmtags/internal/db"
)

var (
	_ TagStore         = (*db.DB)(nil)
	_ AssociationStore = (*db.DB)(nil)
	_ Transactor       = DBTransactor{}
)

// DBTransactor runs service transactions on a SQLite database
type DBTransactor struct {
	DB *db.DB
}

// InTx implements Transactor
func (t DBTransactor) InTx(ctx context.Context, fn func(TagStore, AssociationStore) error) error {
	return t.DB.InTx(ctx, func(tx *db.DB) error {
		return fn(tx, tx)
	})
}

// NewSQLService wires a Service to a SQLite database, with every rename and
// delete running in one transaction
func NewSQLService(d *db.DB, cfg Config) *Service {
	cfg.Tags = d
	cfg.Associations = d
	cfg.Tx = DBTransactor{DB: d}
	return NewService(cfg)
}

package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

// Supported database/sql driver names
const (
	DriverCgo    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

// DefaultBusyTimeout is used when Options.BusyTimeout is zero
const DefaultBusyTimeout = 5 * time.Second

var (
	// ErrDuplicate is returned when a write violates a unique constraint
	ErrDuplicate = errors.New("duplicate record")
	// ErrUnknownDriver is returned by Open for an unsupported driver name
	ErrUnknownDriver = errors.New("unknown database driver")
)

// Options configures Open
type Options struct {
	Driver      string // DriverCgo or DriverPureGo; empty means DriverCgo
	Path        string
	BusyTimeout time.Duration
	Logger      *slog.Logger
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps the database connection. A DB returned to an InTx callback
// is bound to that transaction.
type DB struct {
	conn   *sql.DB
	q      querier
	tx     *sql.Tx
	logger *slog.Logger
}

// Open creates the database file if needed, applies connection pragmas and
// initializes the schema
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.Path == "" {
		return nil, errors.New("database path is required")
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Driver == "" {
		opts.Driver = DriverCgo
	}

	dsn, err := dataSourceName(opts)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", opts.Path, err)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	opts.Logger.Debug("database opened",
		slog.String("driver", opts.Driver),
		slog.String("path", opts.Path))

	return &DB{conn: conn, q: conn, logger: opts.Logger}, nil
}

// dataSourceName builds the driver specific DSN. Pragmas are passed in the
// DSN so that every pooled connection gets them, foreign_keys in particular
// being a per-connection setting. Transactions begin IMMEDIATE so that a
// read-then-write transaction waits on the busy timeout for the write lock
// instead of failing with SQLITE_BUSY when it tries to upgrade.
func dataSourceName(opts Options) (string, error) {
	ms := opts.BusyTimeout.Milliseconds()
	switch opts.Driver {
	case DriverCgo:
		return fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate", opts.Path, ms), nil
	case DriverPureGo:
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_txlock=immediate", opts.Path, ms), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

// Close closes the underlying connection pool. Calling Close on a
// transaction-bound DB is a no-op.
func (db *DB) Close() error {
	if db.tx != nil {
		return nil
	}
	return db.conn.Close()
}

// InTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise, including when fn panics. Nested
// calls join the outer transaction.
func (db *DB) InTx(ctx context.Context, fn func(tx *DB) error) error {
	if db.tx != nil {
		return fn(db)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	bound := &DB{conn: db.conn, q: tx, tx: tx, logger: db.logger}
	if err := fn(bound); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Warn("rollback failed", slog.String("error", rbErr.Error()))
		} else {
			db.logger.Debug("transaction rolled back", slog.String("error", err.Error()))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure from
// either SQLite driver
func isUniqueViolation(err error) bool {
	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		return cgoErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pureErr *sqlite.Error
	if errors.As(err, &pureErr) {
		code := pureErr.Code()
		if code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
		// without extended result codes only the primary code is set
		return code&0xff == sqlitelib.SQLITE_CONSTRAINT && strings.Contains(pureErr.Error(), "UNIQUE")
	}
	return false
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

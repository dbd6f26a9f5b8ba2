package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	memerrors "memstore/internal/errors"
	"memstore/internal/slogutil"
)

const (
	driverName         = "sqlite"
	defaultBusyTimeout = 5 * time.Second
)

// Options control how a scope database is opened. Zero values select the
// defaults noted on each field.
type Options struct {
	// BusyTimeout bounds how long a writer waits on a locked file. Default 5s.
	BusyTimeout time.Duration
	// MaxConns caps the connection pool of one database. Default 4.
	MaxConns int
	// Schema is the target schema. Default DefaultSchema().
	Schema *Schema
	// Fs is used for existence checks, backups and snapshots. Default OS.
	Fs afero.Fs
	// Logger receives lifecycle events. Default discards.
	Logger *slog.Logger
	// Clock stamps backups. Default time.Now.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = defaultBusyTimeout
	}
	if o.MaxConns <= 0 {
		o.MaxConns = 4
	}
	if o.Schema == nil {
		o.Schema = DefaultSchema()
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Logger == nil {
		o.Logger = slogutil.NewDiscardLogger()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// DB is one open scope database together with its transaction helpers
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
	path   string
	opts   Options
}

// Open opens or creates the SQLite database at path and brings it to the
// target schema. When the file already existed it is integrity-checked
// before anything is written to it.
func Open(ctx context.Context, path string, opts Options) (*DB, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With("path", path)

	if err := opts.Schema.Validate(); err != nil {
		return nil, err
	}

	if err := opts.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, memerrors.New(memerrors.IOError, "create data directory", err)
	}

	existed, err := fileExists(opts.Fs, path)
	if err != nil {
		return nil, memerrors.New(memerrors.IOError, "check database file", err)
	}

	if existed {
		if err := guardIntegrity(ctx, path, opts, logger); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open(driverName, dsn(path, opts.BusyTimeout, true))
	if err != nil {
		return nil, memerrors.New(memerrors.IOError, "open database", err)
	}
	conn.SetMaxOpenConns(opts.MaxConns)
	conn.SetMaxIdleConns(opts.MaxConns)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, memerrors.New(memerrors.IOError, "open database", err)
	}

	db := &DB{conn: conn, logger: logger, path: path, opts: opts}

	if err := db.ensureSchema(ctx, existed); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if !existed {
		logger.Info("Created scope database", "version", opts.Schema.Version)
	}
	return db, nil
}

// dsn builds a modernc DSN. Pragmas passed this way are applied to every
// connection the pool opens, not only the first one.
func dsn(path string, busy time.Duration, full bool) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout("+strconv.FormatInt(busy.Milliseconds(), 10)+")")
	if full {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
		q.Add("_pragma", "foreign_keys(1)")
		q.Set("_txlock", "immediate")
	}
	return path + "?" + q.Encode()
}

// Close closes the database connection
func (db *DB) Close() error {
	if db == nil || db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// WithTx executes fn within a transaction.
// If fn returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return memerrors.New(memerrors.IOError, "begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("failed to rollback transaction",
				"error", err.Error(),
				"rollback_error", rbErr.Error(),
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return memerrors.New(memerrors.IOError, "commit transaction", err)
	}
	return nil
}

func fileExists(fs afero.Fs, path string) (bool, error) {
	ok, err := afero.Exists(fs, path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return ok, nil
}

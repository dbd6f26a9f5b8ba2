package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	memerrors "memstore/internal/errors"
)

// CurrentSchemaVersion is the version DefaultSchema brings a database to.
const CurrentSchemaVersion = 1

const schemaVersionKey = "schema_version"

// Migration moves a database from one schema version to the next.
type Migration struct {
	From        int
	To          int
	Description string
	Statements  []string
}

// Schema is a target version, the statements that create it from scratch,
// and the migration chain that reaches it from older versions.
type Schema struct {
	Version    int
	Baseline   []string
	Migrations []Migration
}

var baselineStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_info (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		author TEXT,
		version TEXT,
		description TEXT,
		schema TEXT NOT NULL,
		injection TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		is_default INTEGER NOT NULL DEFAULT 0,
		is_builtin INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		table_id TEXT NOT NULL,
		contact_id TEXT,
		group_id TEXT,
		row_data TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		is_pinned INTEGER NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	"CREATE INDEX IF NOT EXISTS idx_memories_contact ON memories(contact_id)",
	"CREATE INDEX IF NOT EXISTS idx_memories_group ON memories(group_id)",
	"CREATE INDEX IF NOT EXISTS idx_memories_template ON memories(template_id)",
	"CREATE INDEX IF NOT EXISTS idx_memories_relevance ON memories(is_pinned DESC, priority DESC, updated_at DESC)",
	"CREATE INDEX IF NOT EXISTS idx_templates_updated ON templates(updated_at DESC)",
}

// DefaultSchema returns the schema used by memstore databases.
func DefaultSchema() *Schema {
	return &Schema{
		Version:  CurrentSchemaVersion,
		Baseline: baselineStatements,
	}
}

// Validate checks the migration chain structurally: every version in
// [1, Version) has exactly one outgoing step, and every step moves forward
// without overshooting Version.
func (s *Schema) Validate() error {
	if s.Version < 1 {
		return memerrors.Newf(memerrors.MigrationPathMissing, "schema version must be >= 1, got %d", s.Version)
	}

	outgoing := make(map[int]int, len(s.Migrations))
	for _, m := range s.Migrations {
		if m.From < 1 || m.To <= m.From || m.To > s.Version {
			return memerrors.Newf(memerrors.MigrationPathMissing,
				"invalid migration step %d -> %d (target %d)", m.From, m.To, s.Version)
		}
		outgoing[m.From]++
	}
	for v := 1; v < s.Version; v++ {
		switch outgoing[v] {
		case 1:
		case 0:
			return memerrors.Newf(memerrors.MigrationPathMissing, "missing migration path: no step from version %d", v)
		default:
			return memerrors.Newf(memerrors.MigrationPathMissing, "ambiguous migration path: %d steps from version %d", outgoing[v], v)
		}
	}
	return nil
}

// Plan returns the ordered steps that take a database at version from to
// s.Version. The whole path is resolved before anything runs.
func (s *Schema) Plan(from int) ([]Migration, error) {
	var steps []Migration
	for v := from; v < s.Version; {
		next, ok := s.stepFrom(v)
		if !ok {
			return nil, memerrors.Newf(memerrors.MigrationPathMissing,
				"missing migration path: %d -> %d", v, s.Version)
		}
		steps = append(steps, next)
		v = next.To
	}
	return steps, nil
}

func (s *Schema) stepFrom(v int) (Migration, bool) {
	for _, m := range s.Migrations {
		if m.From == v {
			return m, true
		}
	}
	return Migration{}, false
}

// ensureSchema brings the database to the target version.
//
// UNINITIALIZED: baseline plus version marker in one transaction.
// Behind: back up (pre-existing files only), then one transaction per step.
// Ahead: SchemaIncompatible, nothing written.
func (db *DB) ensureSchema(ctx context.Context, existed bool) error {
	schema := db.opts.Schema

	current, err := db.schemaVersion(ctx)
	if err != nil {
		return err
	}

	if current > schema.Version {
		return schemaTooNew(current, schema.Version)
	}

	if current == 0 {
		return db.initializeSchema(ctx)
	}

	if current == schema.Version {
		db.logger.Debug("Database schema is up to date", "version", current)
		return nil
	}

	steps, err := schema.Plan(current)
	if err != nil {
		return err
	}

	if existed {
		if err := db.backupForMigration(ctx); err != nil {
			return err
		}
	}

	for _, step := range steps {
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range step.Statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return memerrors.New(memerrors.IOError,
						fmt.Sprintf("apply migration %d -> %d", step.From, step.To), err)
				}
			}
			return setSchemaVersion(ctx, tx, step.To)
		})
		if err != nil {
			return err
		}
		migrationsAppliedTotal.Inc()
		db.logger.Info("Applied schema migration",
			"from_version", step.From,
			"to_version", step.To,
			"description", step.Description,
		)
	}
	return nil
}

func (db *DB) initializeSchema(ctx context.Context) error {
	schema := db.opts.Schema
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema.Baseline {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return memerrors.New(memerrors.IOError, "apply baseline schema", err)
			}
		}
		return setSchemaVersion(ctx, tx, schema.Version)
	})
}

// backupForMigration checkpoints the WAL so the copy is a complete database.
func (db *DB) backupForMigration(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return memerrors.New(memerrors.IOError, "checkpoint before migration backup", err)
	}
	if _, err := backupFile(db.opts.Fs, db.path, LabelPreMigrate, db.opts.Clock().UnixMilli(), db.logger); err != nil {
		return memerrors.New(memerrors.IOError, "pre-migration backup", err)
	}
	return nil
}

func (db *DB) schemaVersion(ctx context.Context) (int, error) {
	return readSchemaVersion(ctx, db.conn)
}

// readSchemaVersion reads the stored version without creating anything.
// A missing table, missing row or unparsable value all read as 0.
func readSchemaVersion(ctx context.Context, conn *sql.DB) (int, error) {
	var name string
	err := conn.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='schema_info'").Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, memerrors.New(memerrors.IOError, "read schema metadata", err)
	}

	var raw sql.NullString
	err = conn.QueryRowContext(ctx,
		"SELECT value FROM schema_info WHERE key = ?", schemaVersionKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, memerrors.New(memerrors.IOError, "read schema version", err)
	}

	v, err := strconv.Atoi(raw.String)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

func schemaTooNew(current, target int) error {
	return memerrors.Newf(memerrors.SchemaIncompatible,
		"db schema too new: %d > %d", current, target)
}

// SchemaVersion returns the version stored in the database.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	return db.schemaVersion(ctx)
}

func setSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO schema_info (key, value) VALUES (?, ?)",
		schemaVersionKey, strconv.Itoa(version))
	if err != nil {
		return memerrors.New(memerrors.IOError, "record schema version", err)
	}
	return nil
}

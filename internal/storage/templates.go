package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	memerrors "memstore/internal/errors"
)

const templateColumns = "id, name, author, version, description, schema, injection, created_at, updated_at, is_default, is_builtin"

// TemplateRepository provides template operations on one scope database.
type TemplateRepository struct {
	db *DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Save inserts the template, or replaces every non-key field of an existing
// one with the same id. created_at of an existing template is kept.
func (r *TemplateRepository) Save(ctx context.Context, in TemplateInput) (err error) {
	defer func(begin time.Time) { observe("save_template", begin, err) }(time.Now())

	if trimmedID(in.ID) == "" {
		return memerrors.Newf(memerrors.InvalidInput, "template id is required")
	}

	schema, err := encodeJSON("schema", in.Schema)
	if err != nil {
		return err
	}
	var injection sql.NullString
	if in.Injection != nil {
		raw, err := encodeJSON("injection", in.Injection)
		if err != nil {
			return err
		}
		injection = sql.NullString{String: raw, Valid: true}
	}

	now := r.db.opts.Clock().UnixMilli()
	_, err = r.db.conn.ExecContext(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			author = excluded.author,
			version = excluded.version,
			description = excluded.description,
			schema = excluded.schema,
			injection = excluded.injection,
			updated_at = excluded.updated_at,
			is_default = excluded.is_default,
			is_builtin = excluded.is_builtin
	`,
		in.ID,
		in.Name,
		nullString(in.Author),
		nullString(in.Version),
		nullString(in.Description),
		schema,
		injection,
		now,
		now,
		boolToInt(boolOr(in.IsDefault, false)),
		boolToInt(boolOr(in.IsBuiltin, false)),
	)
	if err != nil {
		return classify("save template", err)
	}
	return nil
}

// Query returns matching templates, most recently updated first
func (r *TemplateRepository) Query(ctx context.Context, q TemplateQuery) (out []TemplateRecord, err error) {
	defer func(begin time.Time) { observe("query_templates", begin, err) }(time.Now())

	var clauses []string
	var args []interface{}

	if q.ID != nil {
		clauses = append(clauses, "id = ?")
		args = append(args, *q.ID)
	}
	if q.IsDefault != nil {
		clauses = append(clauses, "is_default = ?")
		args = append(args, boolToInt(*q.IsDefault))
	}
	if q.IsBuiltin != nil {
		clauses = append(clauses, "is_builtin = ?")
		args = append(args, boolToInt(*q.IsBuiltin))
	}

	query := "SELECT " + templateColumns + " FROM templates"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query templates", err)
	}
	defer rows.Close()

	out = []TemplateRecord{}
	for rows.Next() {
		var (
			rec                          TemplateRecord
			author, version, description sql.NullString
			schema                       string
			injection                    sql.NullString
			isDefault, isBuiltin         int64
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &author, &version, &description, &schema, &injection,
			&rec.CreatedAt, &rec.UpdatedAt, &isDefault, &isBuiltin); err != nil {
			return nil, classify("scan template", err)
		}
		rec.Author = stringPtr(author)
		rec.Version = stringPtr(version)
		rec.Description = stringPtr(description)
		rec.Schema = decodeJSON(schema)
		rec.Injection = decodeOptionalJSON(injection)
		rec.IsDefault = isDefault != 0
		rec.IsBuiltin = isBuiltin != 0
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query templates", err)
	}
	return out, nil
}

// Delete removes a template by id. Memories referring to it are kept.
func (r *TemplateRepository) Delete(ctx context.Context, id string) (err error) {
	defer func(begin time.Time) { observe("delete_template", begin, err) }(time.Now())

	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM templates WHERE id = ?", id)
	if err != nil {
		return classify("delete template", err)
	}
	return requireAffected(result, "template", id)
}

// Count returns the number of templates in the scope.
func (r *TemplateRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM templates").Scan(&n); err != nil {
		return 0, classify("count templates", err)
	}
	return n, nil
}

package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	memerrors "memstore/internal/errors"
)

const memoryColumns = "id, template_id, table_id, contact_id, group_id, row_data, is_active, is_pinned, priority, sort_order, created_at, updated_at"

const insertMemorySQL = `INSERT INTO memories (` + memoryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// MemoryRepository provides memory row operations on one scope database.
type MemoryRepository struct {
	db  *DB
	ids IDGenerator
}

// NewMemoryRepository creates a new memory repository
func NewMemoryRepository(db *DB, ids IDGenerator) *MemoryRepository {
	if ids == nil {
		ids = NewCounterGenerator(db.opts.Clock)
	}
	return &MemoryRepository{db: db, ids: ids}
}

func (r *MemoryRepository) now() int64 {
	return r.db.opts.Clock().UnixMilli()
}

// memoryRow is a create input resolved to column values.
type memoryRow struct {
	id      string
	in      MemoryCreateInput
	rowData string
}

func (r *MemoryRepository) resolve(in MemoryCreateInput) (memoryRow, error) {
	rowData, err := encodeJSON("row_data", in.RowData)
	if err != nil {
		return memoryRow{}, err
	}
	id := trimmedID(in.ID)
	if id == "" {
		id = r.ids.NewID()
	}
	return memoryRow{id: id, in: in, rowData: rowData}, nil
}

func (row memoryRow) args(now int64) []interface{} {
	return []interface{}{
		row.id,
		row.in.TemplateID,
		row.in.TableID,
		nullString(row.in.ContactID),
		nullString(row.in.GroupID),
		row.rowData,
		boolToInt(boolOr(row.in.IsActive, true)),
		boolToInt(boolOr(row.in.IsPinned, false)),
		int64Or(row.in.Priority, 0),
		int64Or(row.in.SortOrder, 0),
		now,
		now,
	}
}

// Create inserts a memory and returns its id
func (r *MemoryRepository) Create(ctx context.Context, in MemoryCreateInput) (id string, err error) {
	defer func(begin time.Time) { observe("create_memory", begin, err) }(time.Now())

	row, err := r.resolve(in)
	if err != nil {
		return "", err
	}
	if _, err := r.db.conn.ExecContext(ctx, insertMemorySQL, row.args(r.now())...); err != nil {
		return "", classify("insert memory", err)
	}
	return row.id, nil
}

// Update writes the supplied fields of a memory and refreshes updated_at
func (r *MemoryRepository) Update(ctx context.Context, in MemoryUpdateInput) (err error) {
	defer func(begin time.Time) { observe("update_memory", begin, err) }(time.Now())

	if !in.HasChanges() {
		return memerrors.Newf(memerrors.InvalidInput, "no fields to update")
	}

	var sets []string
	var args []interface{}

	if in.RowData != nil {
		raw, err := encodeJSON("row_data", in.RowData)
		if err != nil {
			return err
		}
		sets = append(sets, "row_data = ?")
		args = append(args, raw)
	}
	if in.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolToInt(*in.IsActive))
	}
	if in.IsPinned != nil {
		sets = append(sets, "is_pinned = ?")
		args = append(args, boolToInt(*in.IsPinned))
	}
	if in.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *in.Priority)
	}
	if in.SortOrder != nil {
		sets = append(sets, "sort_order = ?")
		args = append(args, *in.SortOrder)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, r.now(), in.ID)

	query := "UPDATE memories SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	result, err := r.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return classify("update memory", err)
	}
	return requireAffected(result, "memory", in.ID)
}

// Delete removes a memory by id
func (r *MemoryRepository) Delete(ctx context.Context, id string) (err error) {
	defer func(begin time.Time) { observe("delete_memory", begin, err) }(time.Now())

	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return classify("delete memory", err)
	}
	return requireAffected(result, "memory", id)
}

// Query returns matching memories, most relevant first: pinned, then
// higher priority, then most recently updated.
func (r *MemoryRepository) Query(ctx context.Context, q MemoryQuery) (out []MemoryRecord, err error) {
	defer func(begin time.Time) { observe("query_memories", begin, err) }(time.Now())

	var clauses []string
	var args []interface{}

	switch strings.ToLower(strings.TrimSpace(q.Scope)) {
	case QueryScopeGlobal:
		clauses = append(clauses, "contact_id IS NULL AND group_id IS NULL")
	case QueryScopeContact:
		if q.ContactID == nil {
			return nil, memerrors.Newf(memerrors.InvalidInput, "contact scope requires contact_id")
		}
		clauses = append(clauses, "contact_id = ?")
		args = append(args, *q.ContactID)
	case QueryScopeGroup:
		if q.GroupID == nil {
			return nil, memerrors.Newf(memerrors.InvalidInput, "group scope requires group_id")
		}
		clauses = append(clauses, "group_id = ?")
		args = append(args, *q.GroupID)
	default:
		if q.ContactID != nil {
			clauses = append(clauses, "contact_id = ?")
			args = append(args, *q.ContactID)
		}
		if q.GroupID != nil {
			clauses = append(clauses, "group_id = ?")
			args = append(args, *q.GroupID)
		}
	}
	if q.TemplateID != nil {
		clauses = append(clauses, "template_id = ?")
		args = append(args, *q.TemplateID)
	}

	query := "SELECT " + memoryColumns + " FROM memories"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY is_pinned DESC, priority DESC, updated_at DESC"

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query memories", err)
	}
	defer rows.Close()

	out = []MemoryRecord{}
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, classify("scan memory", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query memories", err)
	}
	return out, nil
}

func scanMemory(rows *sql.Rows) (MemoryRecord, error) {
	var (
		rec                MemoryRecord
		contactID, groupID sql.NullString
		rowData            string
		isActive, isPinned int64
	)
	err := rows.Scan(&rec.ID, &rec.TemplateID, &rec.TableID, &contactID, &groupID, &rowData,
		&isActive, &isPinned, &rec.Priority, &rec.SortOrder, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return MemoryRecord{}, err
	}
	rec.ContactID = stringPtr(contactID)
	rec.GroupID = stringPtr(groupID)
	rec.RowData = decodeJSON(rowData)
	rec.IsActive = isActive != 0
	rec.IsPinned = isPinned != 0
	return rec, nil
}

// BatchCreate inserts every input in one transaction and returns how many
// rows were inserted. Any failure rolls the whole batch back.
//
// Ids for rows without one come from the repository's IDGenerator. With
// the counter strategy a batch of more than 1000 such rows generated in
// the same millisecond collides and fails as InvalidInput; the uuid
// strategy has no such limit.
func (r *MemoryRepository) BatchCreate(ctx context.Context, inputs []MemoryCreateInput) (count int, err error) {
	defer func(begin time.Time) { observe("batch_create_memories", begin, err) }(time.Now())

	rowsToInsert := make([]memoryRow, 0, len(inputs))
	for _, in := range inputs {
		row, err := r.resolve(in)
		if err != nil {
			return 0, err
		}
		rowsToInsert = append(rowsToInsert, row)
	}

	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertMemorySQL)
		if err != nil {
			return classify("prepare batch insert", err)
		}
		defer stmt.Close()

		for _, row := range rowsToInsert {
			if _, err := stmt.ExecContext(ctx, row.args(r.now())...); err != nil {
				return classify("batch insert memory "+row.id, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// BatchDelete deletes every id in one transaction and returns how many rows
// were actually removed. Unknown ids count zero.
func (r *MemoryRepository) BatchDelete(ctx context.Context, ids []string) (count int, err error) {
	defer func(begin time.Time) { observe("batch_delete_memories", begin, err) }(time.Now())

	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "DELETE FROM memories WHERE id = ?")
		if err != nil {
			return classify("prepare batch delete", err)
		}
		defer stmt.Close()

		for _, id := range ids {
			result, err := stmt.ExecContext(ctx, id)
			if err != nil {
				return classify("batch delete memory "+id, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return classify("batch delete memory "+id, err)
			}
			count += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Count returns the number of memory rows in the scope.
func (r *MemoryRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&n); err != nil {
		return 0, classify("count memories", err)
	}
	return n, nil
}

func requireAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return classify("rows affected", err)
	}
	if n == 0 {
		return memerrors.Newf(memerrors.NotFound, "%s not found: %s", kind, id)
	}
	return nil
}

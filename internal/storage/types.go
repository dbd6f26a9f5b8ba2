package storage

import "encoding/json"

// MemoryCreateInput is one memory row to insert. Nil optional fields take
// their defaults: active, unpinned, priority 0, sort order 0.
type MemoryCreateInput struct {
	ID         string          `json:"id,omitempty"`
	TemplateID string          `json:"template_id"`
	TableID    string          `json:"table_id"`
	ContactID  *string         `json:"contact_id,omitempty"`
	GroupID    *string         `json:"group_id,omitempty"`
	RowData    json.RawMessage `json:"row_data"`
	IsActive   *bool           `json:"is_active,omitempty"`
	IsPinned   *bool           `json:"is_pinned,omitempty"`
	Priority   *int64          `json:"priority,omitempty"`
	SortOrder  *int64          `json:"sort_order,omitempty"`
}

// MemoryUpdateInput names a memory and the fields to change. Only non-nil
// fields are written.
type MemoryUpdateInput struct {
	ID        string          `json:"id"`
	RowData   json.RawMessage `json:"row_data,omitempty"`
	IsActive  *bool           `json:"is_active,omitempty"`
	IsPinned  *bool           `json:"is_pinned,omitempty"`
	Priority  *int64          `json:"priority,omitempty"`
	SortOrder *int64          `json:"sort_order,omitempty"`
}

// HasChanges reports whether any mutable field was supplied.
func (in MemoryUpdateInput) HasChanges() bool {
	return in.RowData != nil || in.IsActive != nil || in.IsPinned != nil ||
		in.Priority != nil || in.SortOrder != nil
}

// Query scope discriminators
const (
	QueryScopeGlobal  = "global"
	QueryScopeContact = "contact"
	QueryScopeGroup   = "group"
)

// MemoryQuery filters memories. Scope selects the matching mode:
//   - "global": rows with neither contact nor group
//   - "contact": rows for ContactID, which is required
//   - "group": rows for GroupID, which is required
//   - anything else: whichever of ContactID and GroupID are set
//
// TemplateID, when set, always applies.
type MemoryQuery struct {
	ContactID  *string `json:"contact_id,omitempty"`
	GroupID    *string `json:"group_id,omitempty"`
	TemplateID *string `json:"template_id,omitempty"`
	Scope      string  `json:"scope,omitempty"`
}

// MemoryRecord is a stored memory row.
type MemoryRecord struct {
	ID         string          `json:"id"`
	TemplateID string          `json:"template_id"`
	TableID    string          `json:"table_id"`
	ContactID  *string         `json:"contact_id"`
	GroupID    *string         `json:"group_id"`
	RowData    json.RawMessage `json:"row_data"`
	IsActive   bool            `json:"is_active"`
	IsPinned   bool            `json:"is_pinned"`
	Priority   int64           `json:"priority"`
	SortOrder  int64           `json:"sort_order"`
	CreatedAt  int64           `json:"created_at"`
	UpdatedAt  int64           `json:"updated_at"`
}

// TemplateInput is a template to insert or replace by ID.
type TemplateInput struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Author      *string         `json:"author,omitempty"`
	Version     *string         `json:"version,omitempty"`
	Description *string         `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema"`
	Injection   json.RawMessage `json:"injection,omitempty"`
	IsDefault   *bool           `json:"is_default,omitempty"`
	IsBuiltin   *bool           `json:"is_builtin,omitempty"`
}

// TemplateQuery filters templates; nil fields match everything.
type TemplateQuery struct {
	ID        *string `json:"id,omitempty"`
	IsDefault *bool   `json:"is_default,omitempty"`
	IsBuiltin *bool   `json:"is_builtin,omitempty"`
}

// TemplateRecord is a stored template. Injection is nil when absent or
// when the stored text is not valid JSON.
type TemplateRecord struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Author      *string         `json:"author"`
	Version     *string         `json:"version"`
	Description *string         `json:"description"`
	Schema      json.RawMessage `json:"schema"`
	Injection   json.RawMessage `json:"injection"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
	IsDefault   bool            `json:"is_default"`
	IsBuiltin   bool            `json:"is_builtin"`
}

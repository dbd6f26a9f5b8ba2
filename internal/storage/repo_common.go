package storage

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	memerrors "memstore/internal/errors"
)

// encodeJSON validates a payload and returns its compact text. An empty
// payload encodes as JSON null.
func encodeJSON(field string, raw json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "null", nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", memerrors.New(memerrors.SerializationError, "encode "+field, err)
	}
	return buf.String(), nil
}

// decodeJSON returns stored text as JSON. Text that is not valid JSON is
// returned as a JSON string holding that text.
func decodeJSON(stored string) json.RawMessage {
	if json.Valid([]byte(stored)) {
		return json.RawMessage(stored)
	}
	quoted, _ := json.Marshal(stored)
	return quoted
}

// decodeOptionalJSON returns nil for NULL or unparsable text.
func decodeOptionalJSON(stored sql.NullString) json.RawMessage {
	if !stored.Valid || !json.Valid([]byte(stored.String)) {
		return nil
	}
	return json.RawMessage(stored.String)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func int64Or(v *int64, def int64) int64 {
	if v == nil {
		return def
	}
	return *v
}

func trimmedID(id string) string {
	return strings.TrimSpace(id)
}

// classify maps a driver error to the error taxonomy. Constraint
// violations are the caller's fault; everything else is I/O.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if memerrors.CodeOf(err) != "" {
		return err
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return memerrors.New(memerrors.InvalidInput, op, err)
	}
	return memerrors.New(memerrors.IOError, op, err)
}

// Package templatefile reads and writes template definitions kept in JSON,
// TOML or YAML files, so templates can be versioned next to the code that
// uses them and imported into a scope.
package templatefile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	memerrors "memstore/internal/errors"
	"memstore/internal/storage"
)

// Supported file formats
const (
	FormatJSON = "json"
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

// TemplateDeclaration is one template as written in a file. Schema and
// Injection are free-form documents in the file's own syntax.
type TemplateDeclaration struct {
	ID          string      `json:"id" toml:"id" yaml:"id"`
	Name        string      `json:"name" toml:"name" yaml:"name"`
	Author      string      `json:"author,omitempty" toml:"author,omitempty" yaml:"author,omitempty"`
	Version     string      `json:"version,omitempty" toml:"version,omitempty" yaml:"version,omitempty"`
	Description string      `json:"description,omitempty" toml:"description,omitempty" yaml:"description,omitempty"`
	Schema      interface{} `json:"schema" toml:"schema" yaml:"schema"`
	Injection   interface{} `json:"injection,omitempty" toml:"injection,omitempty" yaml:"injection,omitempty"`
	IsDefault   bool        `json:"is_default,omitempty" toml:"is_default,omitempty" yaml:"is_default,omitempty"`
	IsBuiltin   bool        `json:"is_builtin,omitempty" toml:"is_builtin,omitempty" yaml:"is_builtin,omitempty"`
}

// File is the root of a template file. A file holding a single template
// at the top level is accepted as well.
type File struct {
	Version   int                   `json:"version" toml:"version" yaml:"version"`
	Templates []TemplateDeclaration `json:"template" toml:"template" yaml:"template"`
}

// DetectFormat maps a file extension to a format.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", memerrors.Newf(memerrors.InvalidInput, "unsupported template file extension: %s", path)
	}
}

// Load reads a template file and returns its templates as save inputs.
func Load(fs afero.Fs, path string) ([]storage.TemplateInput, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, memerrors.New(memerrors.IOError, "read template file", err)
	}
	inputs, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inputs, nil
}

// Parse decodes template file content in the given format.
func Parse(data []byte, format string) ([]storage.TemplateInput, error) {
	var file File
	if err := unmarshal(data, format, &file); err != nil {
		return nil, err
	}

	decls := file.Templates
	if len(decls) == 0 {
		var single TemplateDeclaration
		if err := unmarshal(data, format, &single); err != nil {
			return nil, err
		}
		if single.ID == "" && single.Name == "" {
			return nil, memerrors.Newf(memerrors.InvalidInput, "no templates declared")
		}
		decls = []TemplateDeclaration{single}
	}

	inputs := make([]storage.TemplateInput, 0, len(decls))
	seen := make(map[string]bool, len(decls))
	for i, decl := range decls {
		in, err := decl.ToInput()
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", i+1, err)
		}
		if seen[in.ID] {
			return nil, memerrors.Newf(memerrors.InvalidInput, "template %q declared twice", in.ID)
		}
		seen[in.ID] = true
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func unmarshal(data []byte, format string, v interface{}) error {
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, v)
	case FormatTOML:
		err = toml.Unmarshal(data, v)
	case FormatYAML:
		err = yaml.Unmarshal(data, v)
	default:
		return memerrors.Newf(memerrors.InvalidInput, "unknown template format %q", format)
	}
	if err != nil {
		return memerrors.New(memerrors.SerializationError, "parse "+format+" template file", err)
	}
	return nil
}

// ToInput validates the declaration and converts it to a save input.
func (d TemplateDeclaration) ToInput() (storage.TemplateInput, error) {
	if strings.TrimSpace(d.ID) == "" {
		return storage.TemplateInput{}, memerrors.Newf(memerrors.InvalidInput, "template declaration missing required 'id' field")
	}
	if strings.TrimSpace(d.Name) == "" {
		return storage.TemplateInput{}, memerrors.Newf(memerrors.InvalidInput, "template %q missing required 'name' field", d.ID)
	}
	if d.Schema == nil {
		return storage.TemplateInput{}, memerrors.Newf(memerrors.InvalidInput, "template %q missing required 'schema' field", d.ID)
	}

	schema, err := toJSON(d.Schema)
	if err != nil {
		return storage.TemplateInput{}, memerrors.New(memerrors.SerializationError, "encode schema of "+d.ID, err)
	}
	in := storage.TemplateInput{
		ID:          d.ID,
		Name:        d.Name,
		Author:      optional(d.Author),
		Version:     optional(d.Version),
		Description: optional(d.Description),
		Schema:      schema,
		IsDefault:   &d.IsDefault,
		IsBuiltin:   &d.IsBuiltin,
	}
	if d.Injection != nil {
		if in.Injection, err = toJSON(d.Injection); err != nil {
			return storage.TemplateInput{}, memerrors.New(memerrors.SerializationError, "encode injection of "+d.ID, err)
		}
	}
	return in, nil
}

// FromRecord converts a stored template back to a declaration for export.
func FromRecord(rec storage.TemplateRecord) (TemplateDeclaration, error) {
	decl := TemplateDeclaration{
		ID:          rec.ID,
		Name:        rec.Name,
		Author:      deref(rec.Author),
		Version:     deref(rec.Version),
		Description: deref(rec.Description),
		IsDefault:   rec.IsDefault,
		IsBuiltin:   rec.IsBuiltin,
	}
	if err := json.Unmarshal(rec.Schema, &decl.Schema); err != nil {
		return TemplateDeclaration{}, memerrors.New(memerrors.SerializationError, "decode schema of "+rec.ID, err)
	}
	if len(rec.Injection) > 0 {
		if err := json.Unmarshal(rec.Injection, &decl.Injection); err != nil {
			return TemplateDeclaration{}, memerrors.New(memerrors.SerializationError, "decode injection of "+rec.ID, err)
		}
	}
	return decl, nil
}

// Marshal encodes a template file in the given format.
func Marshal(file *File, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(file, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatTOML:
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		enc.SetIndentTables(true)
		if err := enc.Encode(file); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatYAML:
		return yaml.Marshal(file)
	default:
		return nil, memerrors.Newf(memerrors.InvalidInput, "unknown template format %q", format)
	}
}

// Write exports records to path; the format follows the extension.
func Write(fs afero.Fs, path string, records []storage.TemplateRecord) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}

	file := &File{Version: 1, Templates: make([]TemplateDeclaration, 0, len(records))}
	for _, rec := range records {
		decl, err := FromRecord(rec)
		if err != nil {
			return err
		}
		file.Templates = append(file.Templates, decl)
	}

	data, err := Marshal(file, format)
	if err != nil {
		return memerrors.New(memerrors.SerializationError, "encode template file", err)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return memerrors.New(memerrors.IOError, "create template directory", err)
	}
	if err := afero.WriteFile(fs, path, data, os.FileMode(0o644)); err != nil {
		return memerrors.New(memerrors.IOError, "write template file", err)
	}
	return nil
}

// toJSON encodes a decoded document as JSON. YAML can produce maps with
// non-string keys, which are stringified first.
func toJSON(v interface{}) (json.RawMessage, error) {
	return json.Marshal(stringKeys(v))
}

func stringKeys(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = stringKeys(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = stringKeys(val)
		}
		return out
	default:
		return v
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package templatefile

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	memerrors "memstore/internal/errors"
	"memstore/internal/storage"
)

const tomlFile = `
version = 1

[[template]]
id = "persona"
name = "Persona"
author = "ops"
is_default = true

  [template.schema]
  title = "Persona facts"

    [[template.schema.tables]]
    id = "facts"
    columns = ["fact", "confidence"]

  [template.injection]
  position = "system"

[[template]]
id = "contacts"
name = "Contacts"

  [template.schema]
  tables = []
`

const yamlFile = `
version: 1
template:
  - id: persona
    name: Persona
    author: ops
    is_default: true
    schema:
      title: Persona facts
      tables:
        - id: facts
          columns: [fact, confidence]
    injection:
      position: system
  - id: contacts
    name: Contacts
    schema:
      tables: []
`

const jsonFile = `{
  "version": 1,
  "template": [
    {
      "id": "persona",
      "name": "Persona",
      "author": "ops",
      "is_default": true,
      "schema": {"title": "Persona facts", "tables": [{"id": "facts", "columns": ["fact", "confidence"]}]},
      "injection": {"position": "system"}
    },
    {"id": "contacts", "name": "Contacts", "schema": {"tables": []}}
  ]
}`

func TestParseFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		data   string
	}{
		{FormatTOML, tomlFile},
		{FormatYAML, yamlFile},
		{FormatJSON, jsonFile},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()

			inputs, err := Parse([]byte(tt.data), tt.format)
			require.NoError(t, err)
			require.Len(t, inputs, 2)

			persona := inputs[0]
			require.Equal(t, "persona", persona.ID)
			require.Equal(t, "Persona", persona.Name)
			require.Equal(t, "ops", *persona.Author)
			require.Nil(t, persona.Version)
			require.True(t, *persona.IsDefault)
			require.False(t, *persona.IsBuiltin)
			require.JSONEq(t, `{"title":"Persona facts","tables":[{"id":"facts","columns":["fact","confidence"]}]}`, string(persona.Schema))
			require.JSONEq(t, `{"position":"system"}`, string(persona.Injection))

			contacts := inputs[1]
			require.Equal(t, "contacts", contacts.ID)
			require.JSONEq(t, `{"tables":[]}`, string(contacts.Schema))
			require.Nil(t, contacts.Injection)
		})
	}
}

func TestParseSingleTopLevelTemplate(t *testing.T) {
	t.Parallel()

	inputs, err := Parse([]byte("id: solo\nname: Solo\nschema:\n  1: one\n"), FormatYAML)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.Equal(t, "solo", inputs[0].ID)
	require.JSONEq(t, `{"1":"one"}`, string(inputs[0].Schema))
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format string
		data   string
		code   memerrors.ErrorCode
	}{
		{"broken toml", FormatTOML, "[[template]\nid=", memerrors.SerializationError},
		{"broken json", FormatJSON, `{"template": [`, memerrors.SerializationError},
		{"empty", FormatYAML, "version: 1\n", memerrors.InvalidInput},
		{"missing id", FormatJSON, `{"template":[{"name":"x","schema":{}}]}`, memerrors.InvalidInput},
		{"missing name", FormatJSON, `{"template":[{"id":"x","schema":{}}]}`, memerrors.InvalidInput},
		{"missing schema", FormatJSON, `{"template":[{"id":"x","name":"X"}]}`, memerrors.InvalidInput},
		{"duplicate", FormatJSON, `{"template":[{"id":"x","name":"X","schema":{}},{"id":"x","name":"Y","schema":{}}]}`, memerrors.InvalidInput},
		{"unknown format", "ini", "id=x", memerrors.InvalidInput},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.data), tt.format)
			require.Error(t, err)
			require.True(t, memerrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]string{
		"a.json": FormatJSON, "b.TOML": FormatTOML, "c.yaml": FormatYAML, "d.yml": FormatYAML,
	} {
		got, err := DetectFormat(path)
		require.NoError(t, err)
		require.Equal(t, want, got, path)
	}

	_, err := DetectFormat("templates.txt")
	require.True(t, memerrors.HasCode(err, memerrors.InvalidInput))
}

func TestWriteThenLoad(t *testing.T) {
	t.Parallel()

	author := "ops"
	records := []storage.TemplateRecord{
		{
			ID: "persona", Name: "Persona", Author: &author, IsDefault: true,
			Schema:    json.RawMessage(`{"title":"Persona facts","tables":[{"id":"facts"}]}`),
			Injection: json.RawMessage(`{"position":"system"}`),
		},
		{ID: "contacts", Name: "Contacts", Schema: json.RawMessage(`{"tables":[]}`)},
	}

	for _, path := range []string{"/out/templates.toml", "/out/templates.yaml", "/out/templates.json"} {
		path := path
		t.Run(path, func(t *testing.T) {
			t.Parallel()
			fs := afero.NewMemMapFs()

			require.NoError(t, Write(fs, path, records))

			inputs, err := Load(fs, path)
			require.NoError(t, err)
			require.Len(t, inputs, 2)
			require.Equal(t, "persona", inputs[0].ID)
			require.Equal(t, "ops", *inputs[0].Author)
			require.True(t, *inputs[0].IsDefault)
			require.JSONEq(t, string(records[0].Schema), string(inputs[0].Schema))
			require.JSONEq(t, string(records[0].Injection), string(inputs[0].Injection))
			require.JSONEq(t, string(records[1].Schema), string(inputs[1].Schema))
			require.Nil(t, inputs[1].Injection)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(afero.NewMemMapFs(), "/nope.toml")
	require.True(t, memerrors.HasCode(err, memerrors.IOError), "got %v", err)
}

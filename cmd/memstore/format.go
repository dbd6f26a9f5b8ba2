package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	memerrors "memstore/internal/errors"
	"memstore/internal/memory"
	"memstore/internal/storage"
	"memstore/internal/version"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
	FormatYAML  OutputFormat = "yaml"
)

// MutationResult reports the outcome of a write command.
type MutationResult struct {
	Action string `json:"action"`
	Kind   string `json:"kind"`
	Scope  string `json:"scope"`
	ID     string `json:"id,omitempty"`
	Count  *int   `json:"count,omitempty"`
}

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatYAML:
		return formatYAML(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// formatJSON formats the response as JSON
func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// formatYAML goes through JSON first so embedded JSON payloads render as
// YAML documents rather than byte lists.
func formatYAML(resp interface{}) (string, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to decode JSON: %w", err)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// formatHuman formats the response in human-readable format
func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case []storage.MemoryRecord:
		return formatMemoriesHuman(v)
	case []storage.TemplateRecord:
		return formatTemplatesHuman(v)
	case []storage.ScopeFile:
		return formatScopesHuman(v, time.Now())
	case *memory.DoctorReport:
		return formatDoctorHuman(v)
	case storage.SnapshotResult:
		return formatSnapshotHuman(v), nil
	case *MutationResult:
		return formatMutationHuman(v), nil
	case version.BuildInfo:
		return version.Full(), nil
	default:
		// For unknown types, fall back to JSON
		return formatJSON(resp)
	}
}

func formatMemoriesHuman(records []storage.MemoryRecord) (string, error) {
	if len(records) == 0 {
		return "No memories found.", nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			r.TemplateID,
			r.TableID,
			ownerLabel(r.ContactID, r.GroupID),
			yesNo(r.IsPinned),
			strconv.FormatInt(r.Priority, 10),
			yesNo(r.IsActive),
			humanize.Time(time.UnixMilli(r.UpdatedAt)),
			truncate(string(r.RowData), 48),
		})
	}

	var b strings.Builder
	if err := renderTable(&b, []string{"ID", "Template", "Table", "Owner", "Pinned", "Priority", "Active", "Updated", "Data"}, rows); err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "%s\n", pluralize(len(records), "memory", "memories"))
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatTemplatesHuman(records []storage.TemplateRecord) (string, error) {
	if len(records) == 0 {
		return "No templates found.", nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			r.Name,
			orDash(r.Version),
			orDash(r.Author),
			yesNo(r.IsDefault),
			yesNo(r.IsBuiltin),
			humanize.Time(time.UnixMilli(r.UpdatedAt)),
		})
	}

	var b strings.Builder
	if err := renderTable(&b, []string{"ID", "Name", "Version", "Author", "Default", "Builtin", "Updated"}, rows); err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "%s\n", pluralize(len(records), "template", "templates"))
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatScopesHuman(files []storage.ScopeFile, now time.Time) (string, error) {
	if len(files) == 0 {
		return "No scope databases found.", nil
	}

	rows := make([][]string, 0, len(files))
	var total int64
	for _, f := range files {
		total += f.Size
		rows = append(rows, []string{
			scopeLabel(f.Key),
			f.Path,
			humanize.Bytes(uint64(f.Size)),
			humanize.RelTime(f.ModTime, now, "ago", "from now"),
		})
	}

	var b strings.Builder
	if err := renderTable(&b, []string{"Scope", "File", "Size", "Modified"}, rows); err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "%s, %s total\n", pluralize(len(files), "scope", "scopes"), humanize.Bytes(uint64(total)))
	return strings.TrimRight(b.String(), "\n"), nil
}

func formatDoctorHuman(report *memory.DoctorReport) (string, error) {
	var b strings.Builder

	b.WriteString("memstore doctor\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	healthIcon := "✓"
	healthText := "All scope databases passed"
	if !report.Healthy {
		healthIcon = "✗"
		healthText = "Issues found"
	}
	b.WriteString(fmt.Sprintf("%s %s\n\n", healthIcon, healthText))

	if len(report.Checks) == 0 {
		b.WriteString("No scope databases found.\n")
		return strings.TrimRight(b.String(), "\n"), nil
	}

	rows := make([][]string, 0, len(report.Checks))
	for _, c := range report.Checks {
		icon := "✓"
		if c.Status != memory.StatusPass {
			icon = "✗"
		}
		schema := "-"
		if c.SchemaVersion > 0 {
			schema = "v" + strconv.Itoa(c.SchemaVersion)
		}
		rows = append(rows, []string{
			icon,
			scopeLabel(c.Scope),
			schema,
			strconv.Itoa(c.Memories),
			strconv.Itoa(c.Templates),
			humanize.Bytes(uint64(c.Size)),
		})
	}
	if err := renderTable(&b, []string{"", "Scope", "Schema", "Memories", "Templates", "Size"}, rows); err != nil {
		return "", err
	}

	for _, c := range report.Checks {
		if c.Status == memory.StatusPass {
			continue
		}
		b.WriteString(fmt.Sprintf("\n✗ %s: %s\n", scopeLabel(c.Scope), c.Message))
		if c.Backup != "" {
			b.WriteString(fmt.Sprintf("  Backup written to %s\n", c.Backup))
		}
	}
	b.WriteString(fmt.Sprintf("\n(Checked in %dms)\n", report.DurationMs))
	return strings.TrimRight(b.String(), "\n"), nil
}

func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(header)
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("failed to build table: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

func formatSnapshotHuman(res storage.SnapshotResult) string {
	kind := "Snapshot"
	if res.Compressed {
		kind = "Compressed snapshot"
	}
	return fmt.Sprintf("%s written to %s (%s)", kind, res.Path, humanize.Bytes(uint64(res.Bytes)))
}

func formatMutationHuman(res *MutationResult) string {
	var b strings.Builder
	switch {
	case res.Count != nil:
		b.WriteString(fmt.Sprintf("%s %s", titleCase(res.Action), pluralize(*res.Count, res.Kind, pluralKind(res.Kind))))
	case res.ID != "":
		b.WriteString(fmt.Sprintf("%s %s %s", titleCase(res.Action), res.Kind, res.ID))
	default:
		b.WriteString(fmt.Sprintf("%s %s", titleCase(res.Action), res.Kind))
	}
	b.WriteString(" in scope " + scopeLabel(res.Scope))
	return b.String()
}

// reportError prints err in the selected format. JSON and YAML carry the
// stable error code so callers can branch on it.
func reportError(w io.Writer, err error, format OutputFormat) {
	if format == FormatJSON || format == FormatYAML {
		payload := map[string]interface{}{"error": errorPayload(err)}
		if out, ferr := FormatResponse(payload, format); ferr == nil {
			fmt.Fprintln(w, out)
			return
		}
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func errorPayload(err error) interface{} {
	if code := memerrors.CodeOf(err); code != "" {
		return map[string]interface{}{"code": code, "message": err.Error()}
	}
	return map[string]interface{}{"code": "UNCLASSIFIED", "message": err.Error()}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch memerrors.CodeOf(err) {
	case memerrors.InvalidInput:
		return 2
	case memerrors.NotFound:
		return 3
	case memerrors.IntegrityFailure:
		return 4
	case memerrors.SchemaIncompatible, memerrors.MigrationPathMissing:
		return 5
	default:
		return 1
	}
}

func ownerLabel(contactID, groupID *string) string {
	var parts []string
	if contactID != nil {
		parts = append(parts, "contact:"+*contactID)
	}
	if groupID != nil {
		parts = append(parts, "group:"+*groupID)
	}
	if len(parts) == 0 {
		return "global"
	}
	return strings.Join(parts, " ")
}

func scopeLabel(key string) string {
	if key == "" {
		return "(default)"
	}
	return key
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return "1 " + singular
	}
	return humanize.Comma(int64(n)) + " " + plural
}

func pluralKind(kind string) string {
	if strings.HasSuffix(kind, "y") {
		return strings.TrimSuffix(kind, "y") + "ies"
	}
	return kind + "s"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

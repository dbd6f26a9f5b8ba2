package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	memerrors "memstore/internal/errors"
	"memstore/internal/storage"
	"memstore/internal/templatefile"
)

var (
	tplID          string
	tplName        string
	tplSchema      string
	tplInjection   string
	tplAuthor      string
	tplVersion     string
	tplDescription string
	tplDefault     bool
	tplBuiltin     bool
)

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"tpl"},
	Short:   "Save, import, export, query and delete templates",
}

var templateSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create or replace a template",
	Long: `Save a template. An existing template with the same id is replaced; its
creation time is kept.

--schema and --injection are JSON: literal, @file, or - for stdin.

Examples:
  memstore template save --id persona --name Persona --schema @persona.schema.json
  memstore template save --id notes --name Notes --schema '{"tables":[]}' --default`,
	Args: cobra.NoArgs,
	RunE: runTemplateSave,
}

var templateImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import templates from a JSON, TOML or YAML file",
	Long: `Read every template declared in a file and save each one into the scope.
The format follows the file extension (.json, .toml, .yaml, .yml).

Examples:
  memstore template import templates.toml
  memstore -s work template import builtin.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runTemplateImport,
}

var templateExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the scope's templates to a JSON, TOML or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateExport,
}

var templateQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List templates, most recently updated first",
	Args:  cobra.NoArgs,
	RunE:  runTemplateQuery,
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateDelete,
}

func init() {
	templateSaveCmd.Flags().StringVar(&tplID, "id", "", "Template id")
	templateSaveCmd.Flags().StringVar(&tplName, "name", "", "Display name")
	templateSaveCmd.Flags().StringVar(&tplSchema, "schema", "", "Schema JSON, @file or -")
	templateSaveCmd.Flags().StringVar(&tplInjection, "injection", "", "Injection config JSON, @file or -")
	templateSaveCmd.Flags().StringVar(&tplAuthor, "author", "", "Author")
	templateSaveCmd.Flags().StringVar(&tplVersion, "version", "", "Template version")
	templateSaveCmd.Flags().StringVar(&tplDescription, "description", "", "Description")
	templateSaveCmd.Flags().BoolVar(&tplDefault, "default", false, "Mark as a default template")
	templateSaveCmd.Flags().BoolVar(&tplBuiltin, "builtin", false, "Mark as a builtin template")
	_ = templateSaveCmd.MarkFlagRequired("id")
	_ = templateSaveCmd.MarkFlagRequired("name")
	_ = templateSaveCmd.MarkFlagRequired("schema")

	templateQueryCmd.Flags().StringVar(&tplID, "id", "", "Filter by id")
	templateQueryCmd.Flags().BoolVar(&tplDefault, "default", false, "Filter by the default flag")
	templateQueryCmd.Flags().BoolVar(&tplBuiltin, "builtin", false, "Filter by the builtin flag")

	templateCmd.AddCommand(templateSaveCmd)
	templateCmd.AddCommand(templateImportCmd)
	templateCmd.AddCommand(templateExportCmd)
	templateCmd.AddCommand(templateQueryCmd)
	templateCmd.AddCommand(templateDeleteCmd)
	rootCmd.AddCommand(templateCmd)
}

func runTemplateSave(cmd *cobra.Command, args []string) error {
	schema, err := readInput(tplSchema, cmd.InOrStdin())
	if err != nil {
		return memerrors.New(memerrors.InvalidInput, "failed to read --schema", err)
	}
	in := storage.TemplateInput{
		ID:          tplID,
		Name:        tplName,
		Schema:      json.RawMessage(schema),
		Author:      changedString(cmd, "author", tplAuthor),
		Version:     changedString(cmd, "version", tplVersion),
		Description: changedString(cmd, "description", tplDescription),
		IsDefault:   changedBool(cmd, "default", tplDefault),
		IsBuiltin:   changedBool(cmd, "builtin", tplBuiltin),
	}
	if cmd.Flags().Changed("injection") {
		injection, err := readInput(tplInjection, cmd.InOrStdin())
		if err != nil {
			return memerrors.New(memerrors.InvalidInput, "failed to read --injection", err)
		}
		in.Injection = json.RawMessage(injection)
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	if err := svc.SaveTemplate(ctx, scopeFlag, in); err != nil {
		return err
	}
	return printResult(cmd, &MutationResult{Action: "saved", Kind: "template", Scope: scopeFlag, ID: in.ID})
}

func runTemplateImport(cmd *cobra.Command, args []string) error {
	inputs, err := templatefile.Load(afero.NewOsFs(), args[0])
	if err != nil {
		return err
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	for _, in := range inputs {
		if err := svc.SaveTemplate(ctx, scopeFlag, in); err != nil {
			return fmt.Errorf("template %q: %w", in.ID, err)
		}
	}
	n := len(inputs)
	return printResult(cmd, &MutationResult{Action: "imported", Kind: "template", Scope: scopeFlag, Count: &n})
}

func runTemplateExport(cmd *cobra.Command, args []string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	records, err := svc.QueryTemplates(ctx, scopeFlag, storage.TemplateQuery{})
	if err != nil {
		return err
	}
	if err := templatefile.Write(afero.NewOsFs(), args[0], records); err != nil {
		return err
	}
	n := len(records)
	return printResult(cmd, &MutationResult{Action: "exported", Kind: "template", Scope: scopeFlag, Count: &n})
}

func runTemplateQuery(cmd *cobra.Command, args []string) error {
	q := storage.TemplateQuery{
		ID:        changedString(cmd, "id", tplID),
		IsDefault: changedBool(cmd, "default", tplDefault),
		IsBuiltin: changedBool(cmd, "builtin", tplBuiltin),
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	records, err := svc.QueryTemplates(ctx, scopeFlag, q)
	if err != nil {
		return err
	}
	return printResult(cmd, records)
}

func runTemplateDelete(cmd *cobra.Command, args []string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	if err := svc.DeleteTemplate(ctx, scopeFlag, args[0]); err != nil {
		return err
	}
	return printResult(cmd, &MutationResult{Action: "deleted", Kind: "template", Scope: scopeFlag, ID: args[0]})
}

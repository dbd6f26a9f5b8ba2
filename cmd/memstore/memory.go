package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	memerrors "memstore/internal/errors"
	"memstore/internal/storage"
)

var (
	memID        string
	memTemplate  string
	memTable     string
	memContact   string
	memGroup     string
	memData      string
	memPatchData string
	memActive    bool
	memPinned    bool
	memPriority  int64
	memSortOrder int64
	memMatch     string
	memInput     string
)

var memoryCmd = &cobra.Command{
	Use:     "memory",
	Aliases: []string{"mem"},
	Short:   "Create, update, delete and query memory rows",
}

var memoryCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a memory row",
	Long: `Create one memory row in the selected scope and print its id.

Row data is JSON: pass it literally, as @file, or as - to read stdin.

Examples:
  memstore memory create --template persona --table facts --contact alice --data '{"relation":"friend"}'
  memstore -s work memory create --template notes --table todo --data @row.json --pinned --priority 5`,
	Args: cobra.NoArgs,
	RunE: runMemoryCreate,
}

var memoryUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields of a memory row",
	Long: `Update the given fields of a memory row. Only flags that are passed are
written; updated_at is always refreshed.

Examples:
  memstore memory update mem_1700000000000_3 --priority 7
  memstore memory update mem_1700000000000_3 --data '{"mood":"happy"}' --pinned=false`,
	Args: cobra.ExactArgs(1),
	RunE: runMemoryUpdate,
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a memory row",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryDelete,
}

var memoryQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query memory rows",
	Long: `List memory rows, pinned first, then by priority, then most recently updated.

--match selects how owners are matched:
  global    rows with neither contact nor group
  contact   rows for --contact (required)
  group     rows for --group (required)
  (unset)   whichever of --contact and --group are given

Examples:
  memstore memory query --match contact --contact alice
  memstore memory query --template persona --format json`,
	Args: cobra.NoArgs,
	RunE: runMemoryQuery,
}

var memoryBatchCreateCmd = &cobra.Command{
	Use:   "batch-create",
	Short: "Create many memory rows in one transaction",
	Long: `Create every row of a JSON array in one all-or-nothing transaction.

Each element uses the same fields as the JSON output of "memory query":
template_id, table_id, row_data and optionally id, contact_id, group_id,
is_active, is_pinned, priority, sort_order.

Examples:
  memstore memory batch-create --input @rows.json
  cat rows.json | memstore memory batch-create --input -`,
	Args: cobra.NoArgs,
	RunE: runMemoryBatchCreate,
}

var memoryBatchDeleteCmd = &cobra.Command{
	Use:   "batch-delete <id>...",
	Short: "Delete many memory rows in one transaction",
	Long: `Delete the given ids in one transaction and print how many rows were
removed. Unknown ids are not an error; they count zero.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMemoryBatchDelete,
}

func init() {
	memoryCreateCmd.Flags().StringVar(&memID, "id", "", "Memory id (generated when empty)")
	memoryCreateCmd.Flags().StringVar(&memTemplate, "template", "", "Template id")
	memoryCreateCmd.Flags().StringVar(&memTable, "table", "", "Template table id")
	memoryCreateCmd.Flags().StringVar(&memContact, "contact", "", "Contact the row belongs to")
	memoryCreateCmd.Flags().StringVar(&memGroup, "group", "", "Group the row belongs to")
	memoryCreateCmd.Flags().StringVar(&memData, "data", "{}", "Row data as JSON, @file or -")
	memoryCreateCmd.Flags().BoolVar(&memActive, "active", true, "Mark the row active")
	memoryCreateCmd.Flags().BoolVar(&memPinned, "pinned", false, "Pin the row")
	memoryCreateCmd.Flags().Int64Var(&memPriority, "priority", 0, "Priority (higher sorts first)")
	memoryCreateCmd.Flags().Int64Var(&memSortOrder, "sort-order", 0, "Display sort order")
	_ = memoryCreateCmd.MarkFlagRequired("template")
	_ = memoryCreateCmd.MarkFlagRequired("table")

	memoryUpdateCmd.Flags().StringVar(&memPatchData, "data", "", "Row data as JSON, @file or -")
	memoryUpdateCmd.Flags().BoolVar(&memActive, "active", true, "Mark the row active")
	memoryUpdateCmd.Flags().BoolVar(&memPinned, "pinned", false, "Pin the row")
	memoryUpdateCmd.Flags().Int64Var(&memPriority, "priority", 0, "Priority (higher sorts first)")
	memoryUpdateCmd.Flags().Int64Var(&memSortOrder, "sort-order", 0, "Display sort order")

	memoryQueryCmd.Flags().StringVar(&memMatch, "match", "", "Owner matching mode (global, contact, group)")
	memoryQueryCmd.Flags().StringVar(&memContact, "contact", "", "Filter by contact")
	memoryQueryCmd.Flags().StringVar(&memGroup, "group", "", "Filter by group")
	memoryQueryCmd.Flags().StringVar(&memTemplate, "template", "", "Filter by template id")

	memoryBatchCreateCmd.Flags().StringVar(&memInput, "input", "-", "JSON array of rows, @file or -")

	memoryCmd.AddCommand(memoryCreateCmd)
	memoryCmd.AddCommand(memoryUpdateCmd)
	memoryCmd.AddCommand(memoryDeleteCmd)
	memoryCmd.AddCommand(memoryQueryCmd)
	memoryCmd.AddCommand(memoryBatchCreateCmd)
	memoryCmd.AddCommand(memoryBatchDeleteCmd)
	rootCmd.AddCommand(memoryCmd)
}

func runMemoryCreate(cmd *cobra.Command, args []string) error {
	rowData, err := readInput(memData, cmd.InOrStdin())
	if err != nil {
		return memerrors.New(memerrors.InvalidInput, "failed to read --data", err)
	}

	in := storage.MemoryCreateInput{
		ID:         memID,
		TemplateID: memTemplate,
		TableID:    memTable,
		ContactID:  changedString(cmd, "contact", memContact),
		GroupID:    changedString(cmd, "group", memGroup),
		RowData:    json.RawMessage(rowData),
		IsActive:   changedBool(cmd, "active", memActive),
		IsPinned:   changedBool(cmd, "pinned", memPinned),
		Priority:   changedInt64(cmd, "priority", memPriority),
		SortOrder:  changedInt64(cmd, "sort-order", memSortOrder),
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	id, err := svc.CreateMemory(ctx, scopeFlag, in)
	if err != nil {
		return err
	}
	return printResult(cmd, &MutationResult{Action: "created", Kind: "memory", Scope: scopeFlag, ID: id})
}

func runMemoryUpdate(cmd *cobra.Command, args []string) error {
	in := storage.MemoryUpdateInput{
		ID:        args[0],
		IsActive:  changedBool(cmd, "active", memActive),
		IsPinned:  changedBool(cmd, "pinned", memPinned),
		Priority:  changedInt64(cmd, "priority", memPriority),
		SortOrder: changedInt64(cmd, "sort-order", memSortOrder),
	}
	if cmd.Flags().Changed("data") {
		rowData, err := readInput(memPatchData, cmd.InOrStdin())
		if err != nil {
			return memerrors.New(memerrors.InvalidInput, "failed to read --data", err)
		}
		in.RowData = json.RawMessage(rowData)
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	if err := svc.UpdateMemory(ctx, scopeFlag, in); err != nil {
		return err
	}
	return printResult(cmd, &MutationResult{Action: "updated", Kind: "memory", Scope: scopeFlag, ID: in.ID})
}

func runMemoryDelete(cmd *cobra.Command, args []string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	if err := svc.DeleteMemory(ctx, scopeFlag, args[0]); err != nil {
		return err
	}
	return printResult(cmd, &MutationResult{Action: "deleted", Kind: "memory", Scope: scopeFlag, ID: args[0]})
}

func runMemoryQuery(cmd *cobra.Command, args []string) error {
	q := storage.MemoryQuery{
		Scope:      memMatch,
		ContactID:  changedString(cmd, "contact", memContact),
		GroupID:    changedString(cmd, "group", memGroup),
		TemplateID: changedString(cmd, "template", memTemplate),
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	records, err := svc.QueryMemories(ctx, scopeFlag, q)
	if err != nil {
		return err
	}
	return printResult(cmd, records)
}

func runMemoryBatchCreate(cmd *cobra.Command, args []string) error {
	var inputs []storage.MemoryCreateInput
	if err := decodeInput(memInput, cmd.InOrStdin(), &inputs); err != nil {
		return err
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	n, err := svc.BatchCreateMemories(ctx, scopeFlag, inputs)
	if err != nil {
		return err
	}
	return printResult(cmd, &MutationResult{Action: "created", Kind: "memory", Scope: scopeFlag, Count: &n})
}

func runMemoryBatchDelete(cmd *cobra.Command, args []string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	n, err := svc.BatchDeleteMemories(ctx, scopeFlag, args)
	if err != nil {
		return err
	}
	return printResult(cmd, &MutationResult{Action: "deleted", Kind: "memory", Scope: scopeFlag, Count: &n})
}

// printResult formats resp with --format and writes it to the command's stdout.
func printResult(cmd *cobra.Command, resp interface{}) error {
	out, err := FormatResponse(resp, OutputFormat(formatFlag))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func changedString(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func changedBool(cmd *cobra.Command, name string, value bool) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func changedInt64(cmd *cobra.Command, name string, value int64) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

package main

import (
	"errors"

	"github.com/spf13/cobra"

	memerrors "memstore/internal/errors"
)

var (
	doctorConcurrency int
	snapshotOut       string
	snapshotCompress  bool
)

var initCmd = &cobra.Command{
	Use:   "init [scope]",
	Short: "Create or migrate a scope database",
	Long: `Open the scope database, creating it with the current schema or migrating
an older one, and verify its integrity. The scope comes from the argument
or --scope.

Examples:
  memstore init
  memstore init "Work Persona"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var scopesCmd = &cobra.Command{
	Use:   "scopes",
	Short: "List the scope databases in the data directory",
	Args:  cobra.NoArgs,
	RunE:  runScopes,
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the integrity of every scope database",
	Long: `Run an integrity check over every scope database in the data directory.
A corrupt database is backed up next to the original and reported; the
command exits non-zero when any scope fails.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write a consistent copy of a scope database",
	Long: `Copy the scope database to --out while it stays usable. With --compress the
copy is zstd-compressed.

Examples:
  memstore -s work snapshot --out work.db
  memstore -s work snapshot --out work.db.zst --compress`,
	Args: cobra.NoArgs,
	RunE: runSnapshot,
}

func init() {
	doctorCmd.Flags().IntVar(&doctorConcurrency, "concurrency", 4, "Scopes checked in parallel")

	snapshotCmd.Flags().StringVarP(&snapshotOut, "out", "o", "", "Destination file (must not exist)")
	snapshotCmd.Flags().BoolVar(&snapshotCompress, "compress", false, "Compress the snapshot with zstd")
	_ = snapshotCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(scopesCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	scope := scopeFlag
	if len(args) == 1 {
		scope = args[0]
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	if err := svc.Init(ctx, scope); err != nil {
		return err
	}
	return printResult(cmd, &MutationResult{Action: "initialized", Kind: "database", Scope: scope})
}

func runScopes(cmd *cobra.Command, args []string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	files, err := svc.ListScopes(ctx)
	if err != nil {
		return err
	}
	return printResult(cmd, files)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	report, err := svc.CheckAll(ctx, doctorConcurrency)
	if err != nil {
		return err
	}
	if err := printResult(cmd, report); err != nil {
		return err
	}
	if !report.Healthy {
		return memerrors.New(memerrors.IntegrityFailure, "doctor found unhealthy scopes", errors.New("see report above"))
	}
	return nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx, cancel := newContext()
	defer cancel()

	res, err := svc.Snapshot(ctx, scopeFlag, snapshotOut, snapshotCompress)
	if err != nil {
		return err
	}
	return printResult(cmd, res)
}

package main

import (
	"github.com/spf13/cobra"

	"memstore/internal/version"
)

var (
	// configPathFlag overrides the config file location
	configPathFlag string
	// dataDirFlag overrides config data_dir
	dataDirFlag string
	// scopeFlag selects the scope database; empty is the default scope
	scopeFlag string
	// formatFlag selects human, json or yaml output
	formatFlag string
	// logLevelFlag overrides config logging.level
	logLevelFlag string
	// printMetricsFlag dumps memstore metrics to stderr after the command
	printMetricsFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "memstore",
	Short: "memstore - scoped structured memory on SQLite",
	Long: `memstore keeps structured memory rows and the templates describing them
in one SQLite database per scope (persona, profile, ...). Scopes are fully
isolated; databases are created, migrated and integrity-checked on first use.`,
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if printMetricsFlag {
			writeMetrics(cmd.ErrOrStderr())
		}
	},
}

func init() {
	rootCmd.SetVersionTemplate("memstore version {{.Version}}\n")

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPathFlag, "config", "", "Config file (default: <data-dir>/memstore.toml)")
	flags.StringVar(&dataDirFlag, "data-dir", "", "Directory holding the scope databases")
	flags.StringVarP(&scopeFlag, "scope", "s", "", "Scope identifier (default scope when empty)")
	flags.StringVar(&formatFlag, "format", string(FormatHuman), "Output format (human, json, yaml)")
	flags.StringVar(&logLevelFlag, "log-level", "", "Log level override (debug, info, warn, error, silent)")
	flags.BoolVar(&printMetricsFlag, "print-metrics", false, "Print memstore metrics to stderr after the command")
}

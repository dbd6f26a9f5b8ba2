package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"memstore/internal/config"
	memerrors "memstore/internal/errors"
	"memstore/internal/version"
)

var configInitForce bool

// ConfigView is the resolved configuration shown by "config show".
type ConfigView struct {
	Source           string         `json:"source"`
	ResolvedStrategy string         `json:"resolved_strategy"`
	Config           *config.Config `json:"config"`
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Print the configuration after defaults, the config file, MEMSTORE_*
environment variables and flags are applied.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Long: `Write the effective configuration as TOML to --config, or to
<data-dir>/memstore.toml when --config is not given.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List the supported environment variables",
	Args:  cobra.NoArgs,
	RunE:  runConfigEnv,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResult(cmd, version.Get())
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configEnvCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	result, err := loadConfig()
	if err != nil {
		return err
	}

	source := result.ConfigPath
	if result.UsedDefaults {
		source = "defaults"
	}
	return printResult(cmd, &ConfigView{
		Source:           source,
		ResolvedStrategy: result.Config.ResolvedStrategy(),
		Config:           result.Config,
	})
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}

	path := configPathFlag
	if path == "" {
		path = filepath.Join(cfg.DataDir, config.FileName)
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return memerrors.Newf(memerrors.InvalidInput, "config file already exists: %s (use --force to overwrite)", path)
	}
	if err := cfg.Save(path); err != nil {
		return memerrors.New(memerrors.IOError, "write config", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote config to %s\n", path)
	return nil
}

func runConfigEnv(cmd *cobra.Command, args []string) error {
	vars := config.EnvVars()
	if OutputFormat(formatFlag) != FormatHuman {
		return printResult(cmd, vars)
	}
	for _, v := range vars {
		fmt.Fprintf(cmd.OutOrStdout(), "%-36s %s\n", v.Name, v.Key)
	}
	return nil
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskgraph/internal/config"
)

var (
	configInitProject bool
	configInitForce   bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create configuration",
	Long: `View or create taskgraph configuration.

Configuration is layered: built-in defaults, the user config at
~/.config/taskgraph/config.yaml, a project .taskgraph.yaml in the working
directory or a parent, then TASKGRAPH_* environment variables
(TASKGRAPH_EXECUTION_MAX_PARALLEL=8). ANTHROPIC_API_KEY is honored as well.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, string(data))
		fmt.Fprintf(out, "# api key source: %s\n", config.APIKeySource(cfg))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the files taskgraph reads and writes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		project := config.ProjectConfigPath()
		if project == "" {
			project = "(none)"
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "user config:    %s\n", config.UserConfigPath())
		fmt.Fprintf(out, "project config: %s\n", project)
		fmt.Fprintf(out, "history db:     %s (%s)\n", cfg.Storage.Path, cfg.Storage.Driver)
		if cfg.Logging.DebugDir != "" {
			fmt.Fprintf(out, "debug logs:     %s\n", filepath.Join(cfg.Logging.DebugDir, "runs"))
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.UserConfigPath()
		if configInitProject {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			path = filepath.Join(cwd, ".taskgraph.yaml")
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.SaveTo(config.Default(), path); err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", "wrote "+path, color.FgGreen)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitProject, "project", false, "Write .taskgraph.yaml in the working directory")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
}

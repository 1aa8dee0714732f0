package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/internal/config"
	"github.com/ShayCichocki/taskgraph/internal/logging"
	"github.com/ShayCichocki/taskgraph/internal/state"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "taskgraph",
	Short: "Infer task dependencies and execute them as a graph",
	Long: `taskgraph turns a goal and a list of task descriptions into a validated
dependency graph, then executes it.

Dependencies are inferred from the task text: shared vocabulary, the kind of
work each task describes, and ordering language in an optional narrative.
Plans run sequentially, with bounded parallelism, or phase by phase. Failed
work can be replanned and plan history is kept in a local SQLite database.

Task files are YAML or JSON:

  goal: Write a report on X
  narrative: First research X, then analyze the findings, then write the report
  tasks:
    - Research X
    - Analyze X findings
    - Write report on X`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user and project config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(abandonCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config when given, otherwise the layered config.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromPath(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lc := cfg.LoggerConfig()
	if verbose {
		lc.Level = "debug"
		lc.Development = true
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

func openStore(cfg *config.Config) (*state.DB, error) {
	db, err := state.OpenAndMigrate(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open plan history: %w", err)
	}
	return db, nil
}

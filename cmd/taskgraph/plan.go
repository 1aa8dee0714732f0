package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/internal/config"
	"github.com/ShayCichocki/taskgraph/internal/pipeline"
	"github.com/ShayCichocki/taskgraph/internal/taskfile"
	"github.com/ShayCichocki/taskgraph/internal/tui"
	"github.com/ShayCichocki/taskgraph/internal/visualize"
	"github.com/ShayCichocki/taskgraph/internal/watch"
)

var (
	planFile  string
	planJSON  bool
	planWatch bool
	planSave  bool
	planWidth int
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Infer dependencies for a task file and show the graph",
	Long: `Build a plan from a task file without executing it.

Each row shows the task's layer, ID, status, description and the tasks it
depends on. Inference warnings (near-tied or below-threshold edges) are
listed after the graph.

With --watch the file is re-planned every time it changes.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planFile, "file", "f", "", "Task file (YAML or JSON)")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Print the plan as JSON")
	planCmd.Flags().BoolVar(&planWatch, "watch", false, "Re-plan whenever the file changes")
	planCmd.Flags().BoolVar(&planSave, "save", false, "Save the plan to the history database")
	planCmd.Flags().IntVar(&planWidth, "width", visualize.DefaultWidth, "Description column width")
	_ = planCmd.MarkFlagRequired("file")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	planner, err := newPlanner(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()
	if err := planOnce(ctx, out, cfg, planner, logger); err != nil {
		if !planWatch {
			return err
		}
		printStatus(out, "✗", err.Error(), color.FgRed)
	}
	if !planWatch {
		return nil
	}

	changes, err := watch.Watch(ctx, planFile, watch.WithLogger(logger))
	if err != nil {
		return err
	}
	printStatus(out, "…", fmt.Sprintf("watching %s (Ctrl+C to stop)", planFile), color.FgHiBlack)
	for ch := range changes {
		if ch.Removed {
			printStatus(out, "✗", planFile+" was removed", color.FgYellow)
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", ch.At.Format("15:04:05"))
		if err := planOnce(ctx, out, cfg, planner, logger); err != nil {
			printStatus(out, "✗", err.Error(), color.FgRed)
		}
	}
	return nil
}

func planOnce(ctx context.Context, out io.Writer, cfg *config.Config, planner *pipeline.Planner, logger *zap.Logger) error {
	f, err := taskfile.Load(planFile)
	if err != nil {
		return err
	}
	res, err := planner.Plan(ctx, f)
	if err != nil {
		return err
	}

	if planSave {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.SavePlan(ctx, res.Plan); err != nil {
			return fmt.Errorf("save plan: %w", err)
		}
		logger.Debug("plan saved", zap.String("plan", res.Plan.ID))
	}

	if planJSON {
		return writeJSON(out, res.Plan)
	}

	fmt.Fprintf(out, "%s  (%s, %s, max parallel %d)\n\n",
		color.New(color.Bold).Sprint(res.Plan.OriginalTask), res.Plan.ID, res.Plan.Strategy, res.Plan.MaxParallel)
	fmt.Fprint(out, tui.StyledGraph(res.Plan, visualize.Options{Width: planWidth}))
	if warnings := res.Warnings(); len(warnings) > 0 {
		fmt.Fprintln(out)
		printWarnings(out, warnings)
	}
	if planSave {
		fmt.Fprintln(out)
		printStatus(out, "✓", "saved as "+res.Plan.ID, color.FgGreen)
	}
	return nil
}

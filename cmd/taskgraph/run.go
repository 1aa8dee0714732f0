package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/internal/config"
	"github.com/ShayCichocki/taskgraph/internal/inference"
	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
	"github.com/ShayCichocki/taskgraph/internal/pipeline"
	"github.com/ShayCichocki/taskgraph/internal/replan"
	"github.com/ShayCichocki/taskgraph/internal/state"
	"github.com/ShayCichocki/taskgraph/internal/taskfile"
	"github.com/ShayCichocki/taskgraph/internal/tui"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

var (
	runFile     string
	runResume   string
	runStrategy string
	runParallel int
	runRetries  int
	runTimeout  time.Duration
	runRunner   string
	runScript   string
	runTUI      bool
	runNoReplan bool
	runJSON     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Plan a task file and execute it",
	Long: `Plan a task file and execute the resulting graph.

Runners:
  dryrun     Every task succeeds and echoes its description (default)
  scripted   Outcomes come from a YAML script (--script), keyed by description
  anthropic  Each attempt is one Claude request; upstream results are included

Failed tasks are retried up to the retry budget. When tasks still fail, the
replanner proposes replacements and wires them into the running plan.

Interrupted runs stay in the history database as running. Continue one with
--resume PLAN_ID, or give up on it with 'taskgraph abandon PLAN_ID'.`,
	Args: cobra.NoArgs,
	RunE: runPlanFile,
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Task file (YAML or JSON)")
	runCmd.Flags().StringVar(&runResume, "resume", "", "Resume a saved plan by ID instead of planning a file")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "Override strategy: sequential, parallel or hierarchical")
	runCmd.Flags().IntVar(&runParallel, "parallel", 0, "Override the concurrency bound")
	runCmd.Flags().IntVar(&runRetries, "retries", -1, "Override the retry budget")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Override the per-attempt timeout")
	runCmd.Flags().StringVar(&runRunner, "runner", "", "Task runner: dryrun, scripted or anthropic")
	runCmd.Flags().StringVar(&runScript, "script", "", "Script file for the scripted runner")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the interactive progress view")
	runCmd.Flags().BoolVar(&runNoReplan, "no-replan", false, "Disable replanning")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the final report as JSON")
	runCmd.MarkFlagsMutuallyExclusive("file", "resume")
	runCmd.MarkFlagsOneRequired("file", "resume")
}

func runPlanFile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runTUI && cfg.Logging.File == "" {
		// Log lines on stderr would tear the view.
		cfg.Logging.Level = "fatal"
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runnerName := cfg.Execution.Runner
	if runRunner != "" {
		runnerName = runRunner
	}
	comps, err := newComponents(cfg, runnerName, runScript, logger)
	if err != nil {
		return err
	}

	planner, err := newPlanner(cfg, logger)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	plan, warnings, err := loadRunPlan(ctx, planner, db, logger)
	if err != nil {
		return err
	}
	if err := applyRunOverrides(plan); err != nil {
		return err
	}

	events := orchestrator.NewEventEmitter(256)
	pause := orchestrator.NewPauseController(logger)
	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithStore(db),
		pipeline.WithEventEmitter(events),
		pipeline.WithPauseController(pause),
		pipeline.WithDebugDir(cfg.Logging.DebugDir),
		pipeline.WithExecutorOptions(runExecutorOptions(cfg)...),
	}
	if cfg.Replan.Enabled && !runNoReplan {
		r := replan.New(planner.Engine(), replan.WithLogger(logger), replan.WithProposer(comps.proposer))
		opts = append(opts, pipeline.WithReplanner(r, cfg.Replan.MaxRounds))
	}
	p := pipeline.New(planner, comps.runner, opts...)

	out := cmd.OutOrStdout()
	if !runTUI && !runJSON {
		fmt.Fprintf(out, "%s  (%s, %s)\n", color.New(color.Bold).Sprint(plan.OriginalTask), plan.ID, plan.Strategy)
		printWarnings(out, warnings)
	}

	type result struct {
		report *orchestrator.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := p.Execute(ctx, plan)
		events.Close()
		done <- result{report, err}
	}()

	if runTUI {
		model := tui.New(plan, events.Events(), tui.WithCancel(cancel), tui.WithPauseController(pause))
		if _, err := tui.Run(ctx, model); err != nil {
			cancel()
			logger.Warn("tui exited", zap.Error(err))
		}
		// The view may quit before the run does.
		go follow(io.Discard, events.Events(), true)
	} else {
		follow(out, events.Events(), runJSON)
	}

	res := <-done
	if res.err != nil {
		return res.err
	}
	if comps.client != nil {
		in, outTok := comps.client.Tracker().Total()
		logger.Info("token usage", zap.Int64("input", in), zap.Int64("output", outTok),
			zap.Float64("cost_usd", comps.client.Tracker().Cost()))
	}

	if runJSON {
		return writeJSON(out, res.report)
	}
	printReport(out, res.report)
	if res.report.Status != models.PlanStatusCompleted {
		return fmt.Errorf("plan %s finished %s", plan.ID, res.report.Status)
	}
	return nil
}

// loadRunPlan plans --file or loads the --resume plan from history.
func loadRunPlan(ctx context.Context, planner *pipeline.Planner, db *state.DB, logger *zap.Logger) (*models.Plan, []inference.Warning, error) {
	if runResume != "" {
		plan, err := state.NewRecoveryManager(db, logger).Resume(ctx, runResume)
		if err != nil {
			return nil, nil, err
		}
		return plan, nil, nil
	}
	f, err := taskfile.Load(runFile)
	if err != nil {
		return nil, nil, err
	}
	res, err := planner.Plan(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	return res.Plan, res.Warnings(), nil
}

func applyRunOverrides(plan *models.Plan) error {
	if runStrategy != "" {
		s, err := models.ParseStrategy(runStrategy)
		if err != nil {
			return err
		}
		plan.Strategy = s
	}
	if runParallel > 0 {
		plan.MaxParallel = runParallel
	}
	return nil
}

// runExecutorOptions layers command-line overrides on the config options;
// later options win.
func runExecutorOptions(cfg *config.Config) []orchestrator.Option {
	opts := cfg.ExecutorOptions()
	if runRetries >= 0 {
		opts = append(opts, orchestrator.WithRetryBudget(runRetries))
	}
	if runTimeout > 0 {
		opts = append(opts, orchestrator.WithTaskTimeout(runTimeout))
	}
	return opts
}

// follow prints events until the channel closes.
func follow(out io.Writer, events <-chan orchestrator.Event, quiet bool) {
	for ev := range events {
		if !quiet {
			printEvent(out, ev)
		}
	}
}

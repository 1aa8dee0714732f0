package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskgraph/internal/state"
	"github.com/ShayCichocki/taskgraph/internal/tui"
	"github.com/ShayCichocki/taskgraph/internal/visualize"
)

var (
	historyLimit       int
	historyInterrupted bool
	showJSON           bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved plans, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var showCmd = &cobra.Command{
	Use:   "show PLAN_ID",
	Short: "Show a saved plan and its runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var abandonCmd = &cobra.Command{
	Use:   "abandon PLAN_ID",
	Short: "Mark an interrupted plan as finished without running it",
	Long: `Skip every unfinished task of an interrupted plan and store its final
status. Completed work is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runAbandon,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of plans to list (0 for all)")
	historyCmd.Flags().BoolVar(&historyInterrupted, "interrupted", false, "Only list plans whose run was interrupted")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the plan and its runs as JSON")
}

func withStore(fn func(ctx context.Context, db *state.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(context.Background(), db)
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, db *state.DB) error {
		var plans []state.PlanSummary
		var err error
		if historyInterrupted {
			plans, err = state.NewRecoveryManager(db, nil).Interrupted(ctx)
		} else {
			plans, err = db.ListPlans(ctx, historyLimit)
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(plans) == 0 {
			fmt.Fprintln(out, "No saved plans. Run 'taskgraph run -f FILE' to create one.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tTASKS\tSTRATEGY\tUPDATED\tGOAL")
		for _, p := range plans {
			fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
				p.ID,
				color.New(planStatusColor(p.Status)).Sprint(p.Status),
				p.Completed, p.Tasks,
				p.Strategy,
				p.UpdatedAt.Local().Format(time.DateTime),
				p.Goal,
			)
		}
		return tw.Flush()
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, db *state.DB) error {
		plan, err := db.GetPlan(ctx, args[0])
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("no saved plan %s", args[0])
		}
		if err != nil {
			return err
		}
		runs, err := db.ListRuns(ctx, plan.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if showJSON {
			return writeJSON(out, struct {
				Plan any         `json:"plan"`
				Runs []state.Run `json:"runs"`
			}{plan, runs})
		}

		printStatus(out, "●", fmt.Sprintf("%s  %s", color.New(color.Bold).Sprint(plan.OriginalTask), plan.Status),
			planStatusColor(plan.Status))
		fmt.Fprintf(out, "  id %s, %s, max parallel %d, revision %d\n\n", plan.ID, plan.Strategy, plan.MaxParallel, plan.Revision)
		fmt.Fprint(out, tui.StyledGraph(plan, visualize.Options{}))

		if len(runs) > 0 {
			fmt.Fprintln(out)
			for _, r := range runs {
				fmt.Fprintf(out, "  run %s  %s  %s  %d attempts, %d failures, %d replan rounds\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime),
					color.New(planStatusColor(r.Status)).Sprint(r.Status),
					r.Dispatched, r.Failures, r.ReplanRounds)
			}
		}
		return nil
	})
}

func runAbandon(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, db *state.DB) error {
		if err := state.NewRecoveryManager(db, nil).Abandon(ctx, args[0]); err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", "abandoned "+args[0], color.FgGreen)
		return nil
	})
}

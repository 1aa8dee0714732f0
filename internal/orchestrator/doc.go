// Package orchestrator drives a validated plan to completion.
//
// The Executor owns a plan for the duration of a run. A single coordinator
// goroutine decides which tasks are ready, dispatches them to a TaskRunner
// and applies each result as it arrives on a completion channel. Task
// status is written only by the coordinator; runners return an Outcome and
// never touch the plan.
//
// Three strategies are supported:
//   - sequential: one task at a time, in dependency order
//   - bounded_parallel: up to MaxParallel tasks at once
//   - hierarchical: phases run one after another, each with up to
//     MaxParallel tasks in flight
//
// Failed attempts are retried while the retry budget lasts. A task that
// still fails skips everything downstream of it, and an optional Replanner
// can extend the plan with replacement work while the run continues.
//
// Example usage:
//
//	exec := orchestrator.New(runner.NewDryRun(),
//		orchestrator.WithStrategy(models.StrategyBoundedParallel),
//		orchestrator.WithMaxParallel(4),
//	)
//	report, err := exec.Run(ctx, plan)
package orchestrator

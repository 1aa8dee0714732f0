package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/internal/config"
	"github.com/ShayCichocki/taskgraph/internal/inference"
	"github.com/ShayCichocki/taskgraph/internal/llm"
	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
	"github.com/ShayCichocki/taskgraph/internal/pipeline"
	"github.com/ShayCichocki/taskgraph/internal/planning"
	"github.com/ShayCichocki/taskgraph/internal/replan"
	"github.com/ShayCichocki/taskgraph/internal/runner"
)

const (
	runnerDryRun    = "dryrun"
	runnerScripted  = "scripted"
	runnerAnthropic = "anthropic"

	proposerRetry     = "retry"
	proposerAnthropic = "anthropic"
)

func newPlanner(cfg *config.Config, logger *zap.Logger) (*pipeline.Planner, error) {
	engine, err := inference.NewEngine(cfg.InferenceConfig(), inference.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create inference engine: %w", err)
	}
	validator := planning.NewValidator(planning.WithLogger(logger))
	return pipeline.NewPlanner(engine, validator,
		pipeline.WithPlannerLogger(logger),
		pipeline.WithDefaults(cfg.Strategy(), cfg.Execution.MaxParallel),
	), nil
}

// newLLMClient is created lazily so dry runs never need an API key.
func newLLMClient(cfg *config.Config) (*llm.Client, error) {
	cc := llm.ClientConfig{
		Model:         cfg.Anthropic.Model,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}
	if !cc.UseAWSBedrock {
		key, err := config.APIKey(cfg)
		if err != nil {
			return nil, err
		}
		if err := config.ValidateAPIKey(key); err != nil {
			return nil, err
		}
		cc.APIKey = key
	}
	return llm.NewClient(cc)
}

// components holds what a run is assembled from.
type components struct {
	runner   orchestrator.TaskRunner
	proposer replan.Proposer
	client   *llm.Client
}

func newComponents(cfg *config.Config, runnerName, scriptPath string, logger *zap.Logger) (*components, error) {
	c := &components{}
	client := func() (*llm.Client, error) {
		if c.client != nil {
			return c.client, nil
		}
		cl, err := newLLMClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("create Anthropic client: %w", err)
		}
		c.client = cl
		return cl, nil
	}

	switch runnerName {
	case runnerDryRun, "":
		c.runner = &runner.DryRun{Logger: logger}
	case runnerScripted:
		if scriptPath == "" {
			return nil, fmt.Errorf("the scripted runner needs --script")
		}
		s, err := runner.LoadScript(scriptPath)
		if err != nil {
			return nil, err
		}
		c.runner = s
	case runnerAnthropic:
		cl, err := client()
		if err != nil {
			return nil, err
		}
		c.runner = llm.NewRunner(cl, logger)
	default:
		return nil, fmt.Errorf("unknown runner %q: must be dryrun, scripted or anthropic", runnerName)
	}

	switch cfg.Replan.Proposer {
	case proposerRetry, "":
		c.proposer = replan.RetryProposer{}
	case proposerAnthropic:
		cl, err := client()
		if err != nil {
			return nil, err
		}
		c.proposer = llm.NewProposer(cl, logger)
	default:
		return nil, fmt.Errorf("unknown replan proposer %q: must be retry or anthropic", cfg.Replan.Proposer)
	}
	return c, nil
}

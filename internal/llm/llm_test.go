package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
	"github.com/ShayCichocki/taskgraph/internal/replan"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

type fakeCompleter struct {
	reply  string
	err    error
	system string
	prompt string
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.system, f.prompt = system, prompt
	return f.reply, f.err
}

func TestNewClient(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewClient(ClientConfig{})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	c, err := NewClient(ClientConfig{APIKey: "sk-ant-test"})
	require.NoError(t, err)
	assert.Equal(t, anthropic.ModelClaudeSonnet4_5_20250929, c.Model())
	assert.Equal(t, int64(DefaultMaxTokens), c.maxTokens)
	assert.NotNil(t, c.Tracker())
}

func TestBedrockModel(t *testing.T) {
	assert.Equal(t, anthropic.Model("us.anthropic.claude-sonnet-4-5-20250929-v1:0"), bedrockModel(anthropic.ModelClaudeSonnet4_5_20250929))
	assert.Equal(t, anthropic.Model("custom"), bedrockModel("custom"))
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(1_000_000, 0)
	tr.Add(0, 1_000_000)
	in, out := tr.Total()
	assert.Equal(t, int64(1_000_000), in)
	assert.Equal(t, int64(1_000_000), out)
	assert.Equal(t, 2, tr.Calls())
	assert.InDelta(t, 18.0, tr.Cost(), 1e-9)
}

func TestRunner(t *testing.T) {
	fc := &fakeCompleter{reply: "  the report  \n"}
	r := NewRunner(fc, nil)

	out := r.Execute(context.Background(), "Write report on X", orchestrator.ExecContext{
		TaskID:   "t3",
		Goal:     "Report on X",
		Attempt:  2,
		Upstream: map[string]string{"t2": "analysis", "t1": "notes"},
	})
	require.True(t, out.Success)
	assert.Equal(t, "the report", out.Output)
	assert.Contains(t, fc.prompt, "Overall goal: Report on X")
	assert.Contains(t, fc.prompt, "attempt 2")
	assert.Less(t, strings.Index(fc.prompt, `task="t1"`), strings.Index(fc.prompt, `task="t2"`))

	fc.reply = "   "
	assert.Equal(t, "empty response", r.Execute(context.Background(), "x", orchestrator.ExecContext{}).Error)

	fc.err = errors.New("rate limited")
	out = r.Execute(context.Background(), "x", orchestrator.ExecContext{})
	assert.False(t, out.Success)
	assert.Equal(t, "rate limited", out.Error)
}

func TestParseProposal(t *testing.T) {
	reply := `
1. [t2] Summarize the data with a smaller sample
- [t9] Something for an unknown task
* Double-check the summary

[t3]
`
	got := ParseProposal(reply, map[string]bool{"t2": true, "t3": true})
	assert.Equal(t, []replan.ProposedTask{
		{Description: "Summarize the data with a smaller sample", Replaces: "t2"},
		{Description: "Something for an unknown task"},
		{Description: "Double-check the summary"},
	}, got)
}

func TestProposer(t *testing.T) {
	plan := models.NewPlan("p", "Publish a summary", models.StrategySequential)
	require.NoError(t, plan.AddTask(&models.Task{ID: "t1", Description: "Fetch data", Status: models.TaskStatusCompleted}))
	require.NoError(t, plan.AddTask(&models.Task{ID: "t2", Description: "Summarize", Status: models.TaskStatusFailed, Error: "timeout", Dependencies: []string{"t1"}}))

	fc := &fakeCompleter{reply: "[t2] Summarize a sample of the data"}
	p := NewProposer(fc, nil)
	prop, err := p.Propose(context.Background(), replan.Request{
		Goal:     plan.OriginalTask,
		Plan:     plan,
		Failures: replan.FailuresOf(plan),
		Reason:   "task t2 failed",
	})
	require.NoError(t, err)
	assert.Equal(t, []replan.ProposedTask{{Description: "Summarize a sample of the data", Replaces: "t2"}}, prop.Items)
	assert.Contains(t, fc.prompt, "- [t1] Fetch data")
	assert.Contains(t, fc.prompt, "- [t2] Summarize (failed: timeout)")

	fc.err = errors.New("down")
	_, err = p.Propose(context.Background(), replan.Request{Plan: plan})
	assert.Error(t, err)
}

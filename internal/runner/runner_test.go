package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
)

func TestDryRun(t *testing.T) {
	d := &DryRun{}
	out := d.Execute(context.Background(), "Write report", orchestrator.ExecContext{
		TaskID:   "t3",
		Upstream: map[string]string{"t2": "b", "t1": "a"},
	})
	assert.True(t, out.Success)
	assert.Equal(t, "done: Write report (after t1, t2)", out.Output)

	out = d.Execute(context.Background(), "Research", orchestrator.ExecContext{TaskID: "t1"})
	assert.Equal(t, "done: Research", out.Output)
}

func TestDryRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := (&DryRun{Delay: time.Hour}).Execute(ctx, "x", orchestrator.ExecContext{})
	assert.False(t, out.Success)
	assert.Equal(t, context.Canceled.Error(), out.Error)
}

func TestScripted_FailTimes(t *testing.T) {
	s := NewScripted(map[string]Step{
		"Fetch  data": {FailTimes: 2, Error: "offline"},
		"Publish":     {FailTimes: -1},
		"Summarize":   {Output: "summary"},
	})
	ctx := context.Background()
	fetch := orchestrator.ExecContext{TaskID: "t1"}

	first := s.Execute(ctx, "fetch data", fetch)
	assert.False(t, first.Success)
	assert.Equal(t, "offline (attempt 1)", first.Error)
	assert.False(t, s.Execute(ctx, "fetch data", fetch).Success)
	assert.True(t, s.Execute(ctx, "fetch data", fetch).Success)
	assert.Equal(t, 3, s.Attempts("t1"))

	// A replacement task has its own count.
	assert.False(t, s.Execute(ctx, "Fetch data", orchestrator.ExecContext{TaskID: "r1.1"}).Success)

	for i := 0; i < 3; i++ {
		out := s.Execute(ctx, "Publish", orchestrator.ExecContext{TaskID: "t2"})
		assert.Contains(t, out.Error, "scripted failure")
	}

	assert.Equal(t, "summary", s.Execute(ctx, "Summarize", orchestrator.ExecContext{TaskID: "t3"}).Output)
	assert.True(t, s.Execute(ctx, "unknown", orchestrator.ExecContext{TaskID: "t4"}).Success)
}

func TestScripted_Panic(t *testing.T) {
	s := NewScripted(map[string]Step{"boom": {Panic: true}})
	assert.Panics(t, func() {
		s.Execute(context.Background(), "boom", orchestrator.ExecContext{TaskID: "t1"})
	})
}

func TestParseScript(t *testing.T) {
	s, err := ParseScript([]byte(`
Fetch data:
  fail_times: 1
  error: upstream offline
  delay: 1ms
Publish post:
  fail_times: -1
`))
	require.NoError(t, err)
	assert.Equal(t, Step{FailTimes: 1, Error: "upstream offline", Delay: time.Millisecond}, s.steps["fetch data"])
	assert.Equal(t, -1, s.steps["publish post"].FailTimes)

	_, err = ParseScript([]byte("a: [unclosed"))
	assert.Error(t, err)
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"ready is valid", TaskStatusReady, true},
		{"running is valid", TaskStatusRunning, true},
		{"completed is valid", TaskStatusCompleted, true},
		{"failed is valid", TaskStatusFailed, true},
		{"skipped is valid", TaskStatusSkipped, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"old done status is invalid", TaskStatus("done"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Valid())
		})
	}
}

func TestTaskStatus_Terminal(t *testing.T) {
	assert.False(t, TaskStatusPending.Terminal())
	assert.False(t, TaskStatusReady.Terminal())
	assert.False(t, TaskStatusRunning.Terminal())
	assert.True(t, TaskStatusCompleted.Terminal())
	assert.True(t, TaskStatusFailed.Terminal())
	assert.True(t, TaskStatusSkipped.Terminal())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskStatusPending, TaskStatusReady, true},
		{TaskStatusPending, TaskStatusSkipped, true},
		{TaskStatusPending, TaskStatusRunning, false},
		{TaskStatusReady, TaskStatusRunning, true},
		{TaskStatusReady, TaskStatusSkipped, true},
		{TaskStatusRunning, TaskStatusCompleted, true},
		{TaskStatusRunning, TaskStatusFailed, true},
		{TaskStatusRunning, TaskStatusReady, true},
		{TaskStatusRunning, TaskStatusSkipped, false},
		{TaskStatusCompleted, TaskStatusReady, false},
		{TaskStatusFailed, TaskStatusReady, false},
		{TaskStatusSkipped, TaskStatusReady, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTask_AddDependencyKeepsSortedSet(t *testing.T) {
	task := &Task{ID: "t4"}
	task.AddDependency("t3")
	task.AddDependency("t1")
	task.AddDependency("t3")
	task.AddDependency("t2")

	assert.Equal(t, []string{"t1", "t2", "t3"}, task.Dependencies)
	assert.True(t, task.HasDependency("t2"))
	assert.False(t, task.HasDependency("t4"))
}

func TestTask_CloneIsDeep(t *testing.T) {
	now := time.Now()
	orig := &Task{
		ID:           "p1",
		Dependencies: []string{"t0"},
		CompletedAt:  &now,
		Subtasks:     []*Task{{ID: "p1.t1", Dependencies: []string{"p1.t0"}}},
	}

	c := orig.Clone()
	c.Dependencies[0] = "changed"
	c.Subtasks[0].ID = "changed"
	*c.CompletedAt = now.Add(time.Hour)

	assert.Equal(t, "t0", orig.Dependencies[0])
	assert.Equal(t, "p1.t1", orig.Subtasks[0].ID)
	require.NotNil(t, orig.CompletedAt)
	assert.True(t, orig.CompletedAt.Equal(now))
}

func TestCategory_Precedes(t *testing.T) {
	assert.True(t, CategoryResearch.Precedes(CategoryAnalysis))
	assert.True(t, CategoryAnalysis.Precedes(CategoryReview))
	assert.False(t, CategoryCreation.Precedes(CategoryCreation))
	assert.False(t, CategoryReview.Precedes(CategoryResearch))
	assert.False(t, CategoryUnknown.Precedes(CategoryReview))
	assert.False(t, CategoryResearch.Precedes(CategoryUnknown))
}

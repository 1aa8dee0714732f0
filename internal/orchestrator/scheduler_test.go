package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskgraph/pkg/models"
)

func ids(tasks []*models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestScheduler_EmptyPlan(t *testing.T) {
	s, err := NewScheduler(buildPlan(t, models.StrategySequential, 1), 4)
	require.NoError(t, err)
	assert.Empty(t, s.Promote())
	assert.Empty(t, s.Schedule())
}

func TestScheduler_OrdersByPriorityLayerPosition(t *testing.T) {
	plan := buildPlan(t, models.StrategyBoundedParallel, 4,
		node{id: "t1"},
		node{id: "t2", deps: []string{"t1"}},
		node{id: "t3"},
		node{id: "t4"},
	)
	plan.Task("t4").Priority = 0
	plan.Task("t3").Priority = 0
	plan.Task("t1").Status = models.TaskStatusCompleted
	plan.Task("t2").Priority = 0

	s, err := NewScheduler(plan, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "t3", "t4"}, ids(s.Promote()))
	// Equal priority: t3 and t4 are layer 0, t2 is layer 1.
	assert.Equal(t, []string{"t3", "t4", "t2"}, ids(s.Schedule()))
}

func TestScheduler_RespectsBound(t *testing.T) {
	plan := buildPlan(t, models.StrategyBoundedParallel, 2,
		node{id: "t1"}, node{id: "t2"}, node{id: "t3"},
	)
	s, err := NewScheduler(plan, 2)
	require.NoError(t, err)
	s.Promote()

	batch := s.Schedule()
	require.Equal(t, []string{"t1", "t2"}, ids(batch))
	for _, task := range batch {
		task.Status = models.TaskStatusRunning
		s.OnDispatch(task)
	}
	assert.Empty(t, s.Schedule())
	assert.Equal(t, 2, s.Running())

	batch[0].Status = models.TaskStatusCompleted
	s.OnFinish(batch[0])
	assert.Equal(t, []string{"t3"}, ids(s.Schedule()))
}

func TestScheduler_SubtasksWaitForContainer(t *testing.T) {
	plan := buildPlan(t, models.StrategyBoundedParallel, 2,
		node{id: "p0"},
		node{id: "p1", deps: []string{"p0"}, sub: []node{{id: "p1.t1"}}},
	)
	s, err := NewScheduler(plan, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"p0"}, ids(s.Promote()))

	plan.Task("p0").Status = models.TaskStatusCompleted
	s.MarkComplete("p0")
	assert.Equal(t, []string{"p1", "p1.t1"}, ids(s.Promote()))
	assert.Equal(t, []string{"p1.t1"}, ids(s.Schedule()), "containers are never dispatched")
}

func TestScheduler_Scope(t *testing.T) {
	plan := buildPlan(t, models.StrategyHierarchical, 2, node{id: "a"}, node{id: "b"})
	s, err := NewScheduler(plan, 2)
	require.NoError(t, err)

	s.SetScope([]string{})
	assert.Empty(t, s.Promote())
	s.SetScope([]string{"b"})
	assert.Equal(t, []string{"b"}, ids(s.Promote()))
	s.SetScope(nil)
	assert.Equal(t, []string{"a"}, ids(s.Promote()))
}

func TestScheduler_Dependents(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1,
		node{id: "a"},
		node{id: "b", deps: []string{"a"}},
		node{id: "c", deps: []string{"b"}},
		node{id: "d"},
	)
	s, err := NewScheduler(plan, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, s.Dependents("a"))
	assert.Equal(t, 2, s.Layer("c"))
}

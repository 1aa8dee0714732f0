package visualize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskgraph/pkg/models"
)

func plan(t *testing.T, tasks ...*models.Task) *models.Plan {
	t.Helper()
	p := models.NewPlan("p", "goal", models.StrategySequential)
	for i, task := range tasks {
		task.Position = i
		if task.Status == "" {
			task.Status = models.TaskStatusPending
		}
		require.NoError(t, p.AddTask(task))
	}
	return p
}

func TestRender_ScenarioA(t *testing.T) {
	p := plan(t,
		&models.Task{ID: "t1", Description: "Research X", Status: models.TaskStatusCompleted},
		&models.Task{ID: "t2", Description: "Analyze X findings", Status: models.TaskStatusRunning, Dependencies: []string{"t1"}},
		&models.Task{ID: "t3", Description: "Write report on X", Dependencies: []string{"t2"}},
	)

	lines := strings.Split(strings.TrimSuffix(RenderWith(p, Options{Width: 18}), "\n"), "\n")
	assert.Equal(t, []string{
		"L0  t1  [completed]  Research X          <- -",
		"L1  t2  [running  ]  Analyze X findings  <- t1",
		"L2  t3  [pending  ]  Write report on X   <- t2",
	}, lines)
}

func TestRender_OrdersByLayerThenPosition(t *testing.T) {
	p := plan(t,
		&models.Task{ID: "t1", Description: "a", Dependencies: []string{"t2"}},
		&models.Task{ID: "t2", Description: "b"},
		&models.Task{ID: "t3", Description: "c"},
	)
	rows := Rows(p)
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"t2", "t3", "t1"}, ids)
	assert.Equal(t, 1, rows[2].Layer)
}

func TestRender_TruncatesDescription(t *testing.T) {
	p := plan(t, &models.Task{ID: "t1", Description: "Write a very long description that never ends"})
	got := RenderWith(p, Options{Width: 12})
	assert.Equal(t, "L0  t1  [pending  ]  Write a v...  <- -\n", got)
}

func TestRender_SortsDependencies(t *testing.T) {
	p := plan(t,
		&models.Task{ID: "t1", Description: "a"},
		&models.Task{ID: "t2", Description: "b"},
		&models.Task{ID: "t3", Description: "c", Dependencies: []string{"t2", "t1"}},
	)
	assert.Contains(t, Render(p), "<- t1,t2\n")
}

func TestRender_IndentsSubtasks(t *testing.T) {
	p := plan(t,
		&models.Task{ID: "p1", Description: "Gather", Subtasks: []*models.Task{
			{ID: "p1.t1", Description: "Fetch", Status: models.TaskStatusPending, Position: 0},
			{ID: "p1.t2", Description: "Summarize", Status: models.TaskStatusPending, Position: 1, Dependencies: []string{"p1.t1"}},
		}},
	)
	lines := strings.Split(strings.TrimSuffix(RenderWith(p, Options{Width: 9}), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "L0  p1     [pending  ]  Gather     <- -", lines[0])
	assert.Equal(t, "  L0  p1.t1  [pending  ]  Fetch      <- -", lines[1])
	assert.Equal(t, "  L1  p1.t2  [pending  ]  Summarize  <- p1.t1", lines[2])
}

func TestRender_FallsBackOnCycle(t *testing.T) {
	p := plan(t,
		&models.Task{ID: "t1", Description: "a", Dependencies: []string{"t2"}},
		&models.Task{ID: "t2", Description: "b", Dependencies: []string{"t1"}},
	)
	rows := Rows(p)
	require.Len(t, rows, 2)
	assert.Equal(t, "t1", rows[0].ID)
	assert.Equal(t, -1, rows[0].Layer)
	assert.True(t, strings.HasPrefix(Render(p), "L?  t1"))
}

func TestRender_Deterministic(t *testing.T) {
	p := plan(t,
		&models.Task{ID: "t1", Description: "a"},
		&models.Task{ID: "t2", Description: "b", Dependencies: []string{"t1"}},
	)
	assert.Equal(t, Render(p), Render(p))
	assert.Empty(t, Render(nil))
}

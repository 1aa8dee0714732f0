package planning

import (
	"github.com/ShayCichocki/taskgraph/internal/graph"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// Layers groups a sibling set into topological layers: layer 0 has no
// dependencies inside the set and layer k depends only on earlier layers.
// Dependencies outside the set are ignored, so a phase's subtasks can be
// layered on their own. Each layer keeps list order.
func Layers(tasks []*models.Task) ([][]string, error) {
	g := graph.New()
	if err := g.BuildScoped(tasks); err != nil {
		return nil, err
	}
	return g.Layers()
}

// PlanLayers layers the top-level tasks of a plan.
func PlanLayers(plan *models.Plan) ([][]string, error) {
	return Layers(plan.Tasks())
}

// LayerIndex maps every task ID in the plan to its layer in the full
// dependency graph, subtasks included.
func LayerIndex(plan *models.Plan) (map[string]int, error) {
	g := graph.New()
	if err := g.Build(plan.AllTasks()); err != nil {
		return nil, err
	}
	layers, err := g.Layers()
	if err != nil {
		return nil, err
	}
	idx := make(map[string]int, plan.Len())
	for k, layer := range layers {
		for _, id := range layer {
			idx[id] = k
		}
	}
	return idx, nil
}

// TopLevelLayers layers the top-level tasks after lifting every dependency,
// including those of subtasks, to its top-level ancestor. A phase whose
// subtasks reach into another phase is therefore layered after it.
func TopLevelLayers(plan *models.Plan) ([][]string, error) {
	lifted := make([]*models.Task, 0, len(plan.Tasks()))
	for _, top := range plan.Tasks() {
		t := &models.Task{ID: top.ID}
		var collect func(*models.Task)
		collect = func(n *models.Task) {
			for _, dep := range n.Dependencies {
				if anc := plan.TopLevelOf(dep); anc != "" && anc != top.ID {
					t.AddDependency(anc)
				}
			}
			for _, st := range n.Subtasks {
				collect(st)
			}
		}
		collect(top)
		lifted = append(lifted, t)
	}
	return Layers(lifted)
}

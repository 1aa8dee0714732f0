// Package graph provides a dependency graph for task scheduling.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph represents a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
// Every ordered result follows node insertion order, so two graphs built
// from the same task slice always produce the same output.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// order lists node IDs in insertion order.
	order []string
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	edges map[string][]string
	// dependents maps task ID to IDs of tasks blocked by it.
	dependents map[string][]string
	// completed tracks which tasks have been marked complete.
	completed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:      make(map[string]*models.Task),
		edges:      make(map[string][]string),
		dependents: make(map[string][]string),
		completed:  make(map[string]bool),
		debugLog:   func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the dependency graph from a slice of tasks.
// Returns an error if a cycle is detected or dependencies reference unknown tasks.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	return g.build(tasks, false)
}

// BuildScoped is like Build but silently ignores dependencies on tasks
// outside the slice. It is used for subtree-local views of a plan.
func (g *DependencyGraph) BuildScoped(tasks []*models.Task) error {
	return g.build(tasks, true)
}

func (g *DependencyGraph) build(tasks []*models.Task, scoped bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d tasks", len(tasks))

	// First pass: register all tasks as nodes.
	for _, task := range tasks {
		if _, exists := g.nodes[task.ID]; exists {
			return fmt.Errorf("duplicate task %s", task.ID)
		}
		g.nodes[task.ID] = task
		g.order = append(g.order, task.ID)
		g.edges[task.ID] = nil
	}

	// Second pass: build edges from Dependencies fields.
	for _, task := range tasks {
		for _, depID := range task.Dependencies {
			if _, exists := g.nodes[depID]; !exists {
				if scoped {
					continue
				}
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
			g.dependents[depID] = append(g.dependents[depID], task.ID)
		}
	}

	// Dependents were appended in task order, which is already insertion order.
	if g.findCycleLocked() != nil {
		return ErrCycleDetected
	}

	g.debugLog("[graph.Build] graph built successfully with %d nodes", len(g.nodes))
	return nil
}

// FindCycle returns the IDs along one cycle, first node repeated at the end,
// or nil if the graph is acyclic. Search follows insertion order.
func (g *DependencyGraph) FindCycle() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findCycleLocked()
}

// findCycleLocked uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) findCycleLocked() []string {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge: the cycle is the stack suffix starting at depID.
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == depID {
						cycle = append(append([]string(nil), stack[i:]...), depID)
						break
					}
				}
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return cycle
		}
	}
	return nil
}

// TopologicalSort returns task IDs in an order where all dependencies
// come before the tasks that depend on them. Among tasks that are free at
// the same time the earliest inserted comes first.
// Returns an error if the graph contains a cycle.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.edges[id])
	}

	result := make([]string, 0, len(g.order))
	done := make(map[string]bool, len(g.order))
	for len(result) < len(g.order) {
		next := ""
		for _, id := range g.order {
			if !done[id] && indegree[id] == 0 {
				next = id
				break
			}
		}
		if next == "" {
			return nil, ErrCycleDetected
		}
		done[next] = true
		result = append(result, next)
		for _, dep := range g.dependents[next] {
			indegree[dep]--
		}
	}
	return result, nil
}

// Layers groups tasks so layer 0 has no dependencies and every task in
// layer k depends only on tasks in earlier layers. Each layer keeps
// insertion order.
func (g *DependencyGraph) Layers() ([][]string, error) {
	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	depth := make(map[string]int, len(sorted))
	maxDepth := -1
	for _, id := range sorted {
		d := 0
		for _, dep := range g.edges[id] {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[id] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	layers := make([][]string, maxDepth+1)
	for _, id := range g.order {
		layers[depth[id]] = append(layers[depth[id]], id)
	}
	return layers, nil
}

// GetReady returns pending task IDs whose dependencies are all completed,
// in insertion order.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		task := g.nodes[id]
		if g.completed[id] || task.Status != models.TaskStatusPending {
			continue
		}

		allDepsComplete := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] && g.nodes[depID].Status != models.TaskStatusCompleted {
				allDepsComplete = false
				break
			}
		}
		if allDepsComplete {
			ready = append(ready, id)
		}
	}

	g.debugLog("[graph.GetReady] returning %d ready tasks: %v", len(ready), ready)
	return ready
}

// MarkComplete marks a task as completed in the graph.
// This affects subsequent calls to GetReady.
func (g *DependencyGraph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[taskID] = true
}

// TransitiveDependents returns every task that depends on the given task
// directly or indirectly, in insertion order.
func (g *DependencyGraph) TransitiveDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	queue := append([]string(nil), g.dependents[taskID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, g.dependents[id]...)
	}

	var out []string
	for _, id := range g.order {
		if seen[id] {
			out = append(out, id)
		}
	}
	return out
}

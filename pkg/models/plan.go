package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PlanStatus represents the aggregate state of a plan.
type PlanStatus string

const (
	// PlanStatusCreated indicates the plan has not started executing.
	PlanStatusCreated PlanStatus = "created"
	// PlanStatusRunning indicates at least one task is not terminal.
	PlanStatusRunning PlanStatus = "running"
	// PlanStatusCompleted indicates every task completed.
	PlanStatusCompleted PlanStatus = "completed"
	// PlanStatusFailed indicates the plan ended with no completed task.
	PlanStatusFailed PlanStatus = "failed"
	// PlanStatusPartiallyCompleted indicates a mix of completed and failed or skipped tasks.
	PlanStatusPartiallyCompleted PlanStatus = "partially_completed"
)

// Valid returns true if the status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusCreated, PlanStatusRunning, PlanStatusCompleted,
		PlanStatusFailed, PlanStatusPartiallyCompleted:
		return true
	default:
		return false
	}
}

// Terminal returns true once the plan can no longer change.
func (s PlanStatus) Terminal() bool {
	return s == PlanStatusCompleted || s == PlanStatusFailed || s == PlanStatusPartiallyCompleted
}

// Strategy selects how the executor walks a plan.
type Strategy string

const (
	// StrategySequential runs one task at a time in topological order.
	StrategySequential Strategy = "sequential"
	// StrategyBoundedParallel runs up to MaxParallel tasks at once.
	StrategyBoundedParallel Strategy = "bounded_parallel"
	// StrategyHierarchical runs phases one after another.
	StrategyHierarchical Strategy = "hierarchical"
)

// Valid returns true if the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySequential, StrategyBoundedParallel, StrategyHierarchical:
		return true
	default:
		return false
	}
}

// ParseStrategy converts user input such as "parallel" or "bounded-parallel"
// into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "", "sequential", "seq":
		return StrategySequential, nil
	case "bounded_parallel", "parallel", "boundedparallel":
		return StrategyBoundedParallel, nil
	case "hierarchical", "phased":
		return StrategyHierarchical, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// Plan is the task graph for one goal plus its execution strategy.
// Top-level tasks keep their insertion order.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string
	// OriginalTask is the goal the tasks were decomposed from.
	OriginalTask string
	// Narrative is the optional ordering text used during inference.
	Narrative string
	// Strategy selects the scheduling strategy.
	Strategy Strategy
	// MaxParallel bounds concurrently running tasks.
	MaxParallel int
	// Status is the aggregate state of the plan.
	Status PlanStatus
	// Revision counts merged replan fragments.
	Revision int
	// CreatedAt is when the plan was built.
	CreatedAt time.Time
	// UpdatedAt is when the plan was last changed.
	UpdatedAt time.Time
	// StartedAt is when execution began, if it has.
	StartedAt *time.Time
	// CompletedAt is when the plan reached a terminal status.
	CompletedAt *time.Time

	tasks []*Task
	index map[string]*Task
}

// NewPlan creates an empty plan.
func NewPlan(id, goal string, strategy Strategy) *Plan {
	now := time.Now().UTC()
	return &Plan{
		ID:           id,
		OriginalTask: goal,
		Strategy:     strategy,
		MaxParallel:  1,
		Status:       PlanStatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
		index:        make(map[string]*Task),
	}
}

// AddTask appends a top-level task and indexes its subtree.
func (p *Plan) AddTask(t *Task) error {
	if err := p.register(t); err != nil {
		return err
	}
	t.ParentID = ""
	p.tasks = append(p.tasks, t)
	return nil
}

// AddSubtask appends a child to an existing task.
func (p *Plan) AddSubtask(parentID string, t *Task) error {
	parent := p.Task(parentID)
	if parent == nil {
		return fmt.Errorf("unknown parent task %s", parentID)
	}
	if err := p.register(t); err != nil {
		return err
	}
	t.ParentID = parentID
	parent.Subtasks = append(parent.Subtasks, t)
	return nil
}

func (p *Plan) register(t *Task) error {
	if p.index == nil {
		p.index = make(map[string]*Task)
	}
	var ids []string
	var collect func(*Task) error
	collect = func(n *Task) error {
		if n.ID == "" {
			return fmt.Errorf("task with empty id")
		}
		if _, exists := p.index[n.ID]; exists {
			return fmt.Errorf("duplicate task id %s", n.ID)
		}
		for _, seen := range ids {
			if seen == n.ID {
				return fmt.Errorf("duplicate task id %s", n.ID)
			}
		}
		ids = append(ids, n.ID)
		for _, st := range n.Subtasks {
			if err := collect(st); err != nil {
				return err
			}
		}
		return nil
	}
	if err := collect(t); err != nil {
		return err
	}
	p.indexTask(t)
	return nil
}

func (p *Plan) indexTask(t *Task) {
	t.normalizeDependencies()
	p.index[t.ID] = t
	for _, st := range t.Subtasks {
		st.ParentID = t.ID
		p.indexTask(st)
	}
}

// Task returns the task with the given ID anywhere in the tree, or nil.
func (p *Plan) Task(id string) *Task {
	if p.index == nil {
		return nil
	}
	return p.index[id]
}

// Tasks returns the top-level tasks in insertion order.
func (p *Plan) Tasks() []*Task {
	return p.tasks
}

// Len returns the number of tasks in the tree.
func (p *Plan) Len() int {
	return len(p.index)
}

// AllTasks returns every task in pre-order.
func (p *Plan) AllTasks() []*Task {
	out := make([]*Task, 0, len(p.index))
	var walk func([]*Task)
	walk = func(ts []*Task) {
		for _, t := range ts {
			out = append(out, t)
			walk(t.Subtasks)
		}
	}
	walk(p.tasks)
	return out
}

// Leaves returns the tasks that are executed directly, in pre-order.
func (p *Plan) Leaves() []*Task {
	var out []*Task
	for _, t := range p.AllTasks() {
		if !t.IsContainer() {
			out = append(out, t)
		}
	}
	return out
}

// Siblings returns the ordered list that holds the task: the top-level
// tasks or the subtasks of its parent.
func (p *Plan) Siblings(id string) []*Task {
	t := p.Task(id)
	if t == nil {
		return nil
	}
	if t.ParentID == "" {
		return p.tasks
	}
	return p.Task(t.ParentID).Subtasks
}

// TopLevelOf returns the ID of the top-level ancestor of a task.
func (p *Plan) TopLevelOf(id string) string {
	t := p.Task(id)
	for t != nil && t.ParentID != "" {
		t = p.Task(t.ParentID)
	}
	if t == nil {
		return ""
	}
	return t.ID
}

// HasPhases reports whether any top-level task holds subtasks.
func (p *Plan) HasPhases() bool {
	for _, t := range p.tasks {
		if t.IsContainer() {
			return true
		}
	}
	return false
}

// CompletedIDs returns the IDs of completed tasks in pre-order.
func (p *Plan) CompletedIDs() []string {
	var ids []string
	for _, t := range p.AllTasks() {
		if t.Status == TaskStatusCompleted {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// ComputeStatus derives the aggregate status from the leaf tasks.
func (p *Plan) ComputeStatus() PlanStatus {
	leaves := p.Leaves()
	var completed, open int
	for _, t := range leaves {
		switch {
		case t.Status == TaskStatusCompleted:
			completed++
		case !t.Status.Terminal():
			open++
		}
	}
	switch {
	case open > 0:
		if p.Status == PlanStatusCreated {
			return PlanStatusCreated
		}
		return PlanStatusRunning
	case completed == len(leaves):
		return PlanStatusCompleted
	case completed > 0:
		return PlanStatusPartiallyCompleted
	default:
		return PlanStatusFailed
	}
}

// Clone returns a deep copy that shares nothing with the original.
func (p *Plan) Clone() *Plan {
	c := *p
	c.tasks = make([]*Task, len(p.tasks))
	c.index = make(map[string]*Task, len(p.index))
	for i, t := range p.tasks {
		c.tasks[i] = t.Clone()
		c.indexTask(c.tasks[i])
	}
	if p.StartedAt != nil {
		ts := *p.StartedAt
		c.StartedAt = &ts
	}
	if p.CompletedAt != nil {
		ts := *p.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

// planJSON is the serialized form of a plan.
type planJSON struct {
	ID           string     `json:"id"`
	OriginalTask string     `json:"original_task"`
	Narrative    string     `json:"narrative,omitempty"`
	Strategy     Strategy   `json:"strategy"`
	MaxParallel  int        `json:"max_parallel"`
	Status       PlanStatus `json:"status"`
	Revision     int        `json:"revision"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Tasks        []*Task    `json:"tasks"`
}

// MarshalJSON encodes the plan with tasks as an ordered array.
func (p *Plan) MarshalJSON() ([]byte, error) {
	tasks := p.tasks
	if tasks == nil {
		tasks = []*Task{}
	}
	return json.Marshal(planJSON{
		ID:           p.ID,
		OriginalTask: p.OriginalTask,
		Narrative:    p.Narrative,
		Strategy:     p.Strategy,
		MaxParallel:  p.MaxParallel,
		Status:       p.Status,
		Revision:     p.Revision,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		StartedAt:    p.StartedAt,
		CompletedAt:  p.CompletedAt,
		Tasks:        tasks,
	})
}

// UnmarshalJSON decodes a plan and rebuilds the task index.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var raw planJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Plan{
		ID:           raw.ID,
		OriginalTask: raw.OriginalTask,
		Narrative:    raw.Narrative,
		Strategy:     raw.Strategy,
		MaxParallel:  raw.MaxParallel,
		Status:       raw.Status,
		Revision:     raw.Revision,
		CreatedAt:    raw.CreatedAt,
		UpdatedAt:    raw.UpdatedAt,
		StartedAt:    raw.StartedAt,
		CompletedAt:  raw.CompletedAt,
		index:        make(map[string]*Task),
	}
	for _, t := range raw.Tasks {
		if err := p.AddTask(t); err != nil {
			return fmt.Errorf("decoding plan %s: %w", raw.ID, err)
		}
	}
	return nil
}

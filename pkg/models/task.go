package models

import (
	"sort"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting on its dependencies.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusReady indicates every dependency has completed.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusRunning indicates the task has been dispatched.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed with no retries left.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped indicates the task will never run.
	TaskStatusSkipped TaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusRunning,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true for statuses a task never leaves.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusSkipped
}

// transitions lists every legal status change. Running -> Ready is the
// requeue of a failed attempt that still has retry budget.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending: {TaskStatusReady, TaskStatusSkipped},
	TaskStatusReady:   {TaskStatusRunning, TaskStatusSkipped},
	TaskStatusRunning: {TaskStatusCompleted, TaskStatusFailed, TaskStatusReady},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task represents a unit of work in a plan.
type Task struct {
	// ID is unique across the whole plan, subtasks included.
	ID string `json:"id"`
	// ParentID is the ID of the containing phase, if any.
	ParentID string `json:"parent_id,omitempty"`
	// Description is the work to perform.
	Description string `json:"description"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Dependencies lists task IDs that must complete before this task.
	// Kept sorted and free of duplicates.
	Dependencies []string `json:"dependencies,omitempty"`
	// Category is the coarse label assigned during inference.
	Category Category `json:"category"`
	// Priority orders ready tasks; lower values dispatch first.
	Priority int `json:"priority"`
	// Position is the original list position within the parent.
	Position int `json:"position"`
	// Subtasks are the ordered children of a phase.
	Subtasks []*Task `json:"subtasks,omitempty"`
	// Promoted allows a subtask to depend on tasks outside its parent.
	Promoted bool `json:"promoted,omitempty"`
	// RetriesUsed counts failed attempts that were requeued.
	RetriesUsed int `json:"retries_used,omitempty"`
	// Result is the output payload of a completed task.
	Result string `json:"result,omitempty"`
	// Error contains the error message if the task failed or was skipped.
	Error string `json:"error,omitempty"`
	// Replaces is the ID of the task this one supersedes after a replan.
	Replaces string `json:"replaces,omitempty"`
	// StartedAt is when the last attempt was dispatched.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsContainer returns true when the task is a phase holding subtasks.
func (t *Task) IsContainer() bool {
	return len(t.Subtasks) > 0
}

// AddDependency records a dependency, keeping the set sorted.
func (t *Task) AddDependency(id string) {
	i := sort.SearchStrings(t.Dependencies, id)
	if i < len(t.Dependencies) && t.Dependencies[i] == id {
		return
	}
	t.Dependencies = append(t.Dependencies, "")
	copy(t.Dependencies[i+1:], t.Dependencies[i:])
	t.Dependencies[i] = id
}

// HasDependency reports whether id is a direct dependency.
func (t *Task) HasDependency(id string) bool {
	i := sort.SearchStrings(t.Dependencies, id)
	return i < len(t.Dependencies) && t.Dependencies[i] == id
}

// Clone returns a deep copy of the task and its subtasks.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Dependencies != nil {
		c.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	if t.Subtasks != nil {
		c.Subtasks = make([]*Task, len(t.Subtasks))
		for i, st := range t.Subtasks {
			c.Subtasks[i] = st.Clone()
		}
	}
	return &c
}

// normalizeDependencies sorts and de-duplicates the dependency list.
func (t *Task) normalizeDependencies() {
	if len(t.Dependencies) == 0 {
		return
	}
	sort.Strings(t.Dependencies)
	out := t.Dependencies[:1]
	for _, d := range t.Dependencies[1:] {
		if d != out[len(out)-1] {
			out = append(out, d)
		}
	}
	t.Dependencies = out
}

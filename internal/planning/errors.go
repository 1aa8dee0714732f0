package planning

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPlan is matched by every ValidationError via errors.Is.
var ErrInvalidPlan = errors.New("invalid plan")

// IssueKind classifies a structural problem in a plan.
type IssueKind string

const (
	// IssueEmptyID indicates a task without an ID.
	IssueEmptyID IssueKind = "empty_id"
	// IssueDuplicateID indicates two tasks share an ID.
	IssueDuplicateID IssueKind = "duplicate_id"
	// IssueEmptyDescription indicates a task with nothing to do.
	IssueEmptyDescription IssueKind = "empty_description"
	// IssueSelfDependency indicates a task depending on itself.
	IssueSelfDependency IssueKind = "self_dependency"
	// IssueDanglingReference indicates a dependency on an unknown task.
	IssueDanglingReference IssueKind = "dangling_reference"
	// IssueLocality indicates a subtask reaching outside its parent's subtree.
	IssueLocality IssueKind = "locality"
	// IssueCycle indicates the dependencies do not form a DAG.
	IssueCycle IssueKind = "cycle"
	// IssueSetting indicates an invalid plan-level setting.
	IssueSetting IssueKind = "setting"
)

// Issue is one structural problem found during validation.
type Issue struct {
	Kind    IssueKind
	TaskID  string
	Ref     string
	Message string
}

func (i Issue) String() string {
	if i.TaskID == "" {
		return fmt.Sprintf("[%s] %s", i.Kind, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Kind, i.TaskID, i.Message)
}

// ValidationError reports every structural problem in a plan. It is fatal:
// the caller never receives a partially valid plan alongside it.
type ValidationError struct {
	// PlanID is the plan that failed validation.
	PlanID string
	// Issues lists the problems in the order they were found.
	Issues []Issue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("plan %s failed validation: %s", e.PlanID, strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrInvalidPlan) true for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPlan
}

// Has reports whether any issue is of the given kind.
func (e *ValidationError) Has(kind IssueKind) bool {
	for _, issue := range e.Issues {
		if issue.Kind == kind {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(kind IssueKind, taskID, ref, format string, args ...any) {
	e.Issues = append(e.Issues, Issue{
		Kind:    kind,
		TaskID:  taskID,
		Ref:     ref,
		Message: fmt.Sprintf(format, args...),
	})
}

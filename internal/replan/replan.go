// Package replan extends a plan with replacement work after failures.
//
// A Replanner never edits the plan it is given. It returns a Fragment of
// new tasks wired to the completed work they build on; Merge and Apply add
// a fragment to a plan and re-validate it.
package replan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/internal/inference"
	"github.com/ShayCichocki/taskgraph/internal/planning"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// ErrStaleFragment is returned when a fragment was built against an older
// revision than the plan it is applied to.
var ErrStaleFragment = errors.New("fragment is stale")

// Failure is a task that did not complete.
type Failure struct {
	ID          string
	Description string
	Status      models.TaskStatus
	Error       string
}

// Request asks for replacement work.
type Request struct {
	Goal string
	// Plan is a snapshot; the replanner only reads it.
	Plan     *models.Plan
	Failures []Failure
	Reason   string
}

// Edge is a dependency inside a fragment: To depends on From.
type Edge struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Confidence float64 `json:"confidence,omitempty"`
	// Carried marks an edge inherited from the replaced task rather than
	// inferred.
	Carried bool `json:"carried,omitempty"`
}

// Fragment is a set of new tasks ready to be appended to a plan.
type Fragment struct {
	// Revision is the plan revision after the fragment is applied.
	Revision int            `json:"revision"`
	Tasks    []*models.Task `json:"tasks"`
	// Anchors are the completed tasks the new work was inferred against.
	Anchors  []string            `json:"anchors"`
	Edges    []Edge              `json:"edges"`
	Warnings []inference.Warning `json:"warnings,omitempty"`
}

// Empty reports whether the fragment adds nothing.
func (f *Fragment) Empty() bool {
	return f == nil || len(f.Tasks) == 0
}

// Replanner builds fragments.
type Replanner struct {
	engine   *inference.Engine
	proposer Proposer
	logger   *zap.Logger
}

// Option configures a Replanner.
type Option func(*Replanner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Replanner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithProposer sets the proposer. The default is RetryProposer.
func WithProposer(p Proposer) Option {
	return func(r *Replanner) {
		if p != nil {
			r.proposer = p
		}
	}
}

// New creates a Replanner that infers dependencies with engine.
func New(engine *inference.Engine, opts ...Option) *Replanner {
	r := &Replanner{
		engine:   engine,
		proposer: RetryProposer{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("replan")
	return r
}

// FailuresOf lists the failed or skipped leaf tasks of plan that no other
// task replaces yet, in plan order. Cancelled tasks are left out.
func FailuresOf(plan *models.Plan) []Failure {
	replaced := make(map[string]bool)
	for _, t := range plan.AllTasks() {
		if t.Replaces != "" {
			replaced[t.Replaces] = true
		}
	}
	var out []Failure
	for _, t := range plan.Leaves() {
		if t.Status != models.TaskStatusFailed && t.Status != models.TaskStatusSkipped {
			continue
		}
		if replaced[t.ID] || t.Error == "cancelled" {
			continue
		}
		out = append(out, Failure{ID: t.ID, Description: t.Description, Status: t.Status, Error: t.Error})
	}
	return out
}

// Replan asks the proposer for replacement work and wires it to the
// completed part of the plan.
func (r *Replanner) Replan(ctx context.Context, req Request) (*Fragment, error) {
	if req.Plan == nil {
		return nil, errors.New("replan: nil plan")
	}
	if req.Failures == nil {
		req.Failures = FailuresOf(req.Plan)
	}
	if req.Goal == "" {
		req.Goal = req.Plan.OriginalTask
	}

	proposal, err := r.proposer.Propose(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("replan: propose: %w", err)
	}

	frag := &Fragment{Revision: req.Plan.Revision + 1}
	items := cleanItems(proposal.Items)
	if len(items) == 0 {
		r.logger.Debug("nothing proposed", zap.String("plan", req.Plan.ID), zap.String("reason", req.Reason))
		return frag, nil
	}

	var anchors []*models.Task
	for _, t := range req.Plan.Leaves() {
		if t.Status == models.TaskStatusCompleted {
			anchors = append(anchors, t)
		}
	}

	descriptions := make([]string, 0, len(anchors)+len(items))
	for _, a := range anchors {
		descriptions = append(descriptions, a.Description)
		frag.Anchors = append(frag.Anchors, a.ID)
	}
	for _, it := range items {
		descriptions = append(descriptions, it.Description)
	}
	narrative := proposal.Narrative
	if strings.TrimSpace(narrative) == "" {
		narrative = req.Plan.Narrative
	}

	g, err := r.engine.Infer(ctx, inference.Input{Descriptions: descriptions, Narrative: narrative})
	if err != nil {
		return nil, fmt.Errorf("replan: infer: %w", err)
	}
	frag.Warnings = g.Warnings

	ids := freshIDs(req.Plan, frag.Revision, len(items))
	base := len(req.Plan.Tasks())
	byReplaced := make(map[string]string)
	for n, it := range items {
		t := &models.Task{
			ID:          ids[n],
			Description: it.Description,
			Status:      models.TaskStatusPending,
			Category:    g.Nodes[len(anchors)+n].Category,
			Priority:    base + n,
			Position:    base + n,
			Replaces:    it.Replaces,
		}
		frag.Tasks = append(frag.Tasks, t)
		if it.Replaces != "" {
			byReplaced[it.Replaces] = t.ID
		}
	}

	w := newWiring(frag.Tasks)

	// Replacements inherit the dependencies of what they replace and of the
	// phases that contain it, so p2.t1's replacement still waits on p1's.
	for n, it := range items {
		old := req.Plan.Task(it.Replaces)
		if old == nil {
			continue
		}
		for _, dep := range inheritedDependencies(req.Plan, old) {
			for _, from := range resolveDependency(req.Plan, dep, byReplaced) {
				if w.link(from, ids[n]) {
					frag.Edges = append(frag.Edges, Edge{From: from, To: ids[n], Carried: true})
				}
			}
		}
	}

	nodeID := func(i int) string {
		if i < len(anchors) {
			return anchors[i].ID
		}
		return ids[i-len(anchors)]
	}
	for _, e := range g.Edges {
		if e.To < len(anchors) {
			continue
		}
		from, to := nodeID(e.From), nodeID(e.To)
		if w.link(from, to) {
			frag.Edges = append(frag.Edges, Edge{From: from, To: to, Confidence: e.Confidence})
		}
	}

	r.logger.Info("replan fragment built",
		zap.String("plan", req.Plan.ID),
		zap.String("reason", req.Reason),
		zap.Int("revision", frag.Revision),
		zap.Int("tasks", len(frag.Tasks)),
		zap.Int("anchors", len(frag.Anchors)),
		zap.Int("edges", len(frag.Edges)),
	)
	return frag, nil
}

// inheritedDependencies lists the dependencies of t followed by those of
// each container above it.
func inheritedDependencies(plan *models.Plan, t *models.Task) []string {
	var deps []string
	for cur := t; cur != nil; cur = plan.Task(cur.ParentID) {
		deps = append(deps, cur.Dependencies...)
		if cur.ParentID == "" {
			break
		}
	}
	return deps
}

// resolveDependency maps a dependency of a replaced task into the merged
// plan. Completed work is kept, replaced work becomes its replacement and a
// container that did not complete becomes the replacements found below it.
// Anything else is dropped.
func resolveDependency(plan *models.Plan, dep string, byReplaced map[string]string) []string {
	d := plan.Task(dep)
	if d == nil {
		return nil
	}
	if d.Status == models.TaskStatusCompleted {
		return []string{dep}
	}
	if repl, ok := byReplaced[dep]; ok {
		return []string{repl}
	}
	var out []string
	var walk func(tasks []*models.Task)
	walk = func(tasks []*models.Task) {
		for _, st := range tasks {
			if repl, ok := byReplaced[st.ID]; ok {
				out = append(out, repl)
			}
			walk(st.Subtasks)
		}
	}
	walk(d.Subtasks)
	return out
}

func cleanItems(items []ProposedTask) []ProposedTask {
	out := make([]ProposedTask, 0, len(items))
	for _, it := range items {
		it.Description = strings.TrimSpace(it.Description)
		if it.Description != "" {
			out = append(out, it)
		}
	}
	return out
}

// freshIDs returns n IDs of the form r<rev>.<k> unused by plan.
func freshIDs(plan *models.Plan, rev, n int) []string {
	ids := make([]string, 0, n)
	for k := 1; len(ids) < n; k++ {
		id := fmt.Sprintf("r%d.%d", rev, k)
		if plan.Task(id) == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// wiring adds dependencies to fragment tasks while keeping them acyclic.
type wiring struct {
	tasks map[string]*models.Task
}

func newWiring(tasks []*models.Task) *wiring {
	w := &wiring{tasks: make(map[string]*models.Task, len(tasks))}
	for _, t := range tasks {
		w.tasks[t.ID] = t
	}
	return w
}

// link makes to depend on from unless it already does or the edge would
// close a cycle among new tasks. It reports whether the edge was added.
func (w *wiring) link(from, to string) bool {
	t := w.tasks[to]
	if t == nil || from == to || t.HasDependency(from) {
		return false
	}
	if w.reaches(to, from) {
		return false
	}
	t.AddDependency(from)
	return true
}

// reaches reports whether target depends on start, directly or through
// other fragment tasks.
func (w *wiring) reaches(start, target string) bool {
	seen := map[string]bool{}
	stack := []string{target}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == start {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if t := w.tasks[id]; t != nil {
			stack = append(stack, t.Dependencies...)
		}
	}
	return false
}

// Merge returns a copy of plan with the fragment appended and validated.
// The input plan is not modified.
func Merge(plan *models.Plan, frag *Fragment, v *planning.Validator) (*models.Plan, error) {
	if frag.Revision <= plan.Revision {
		return nil, fmt.Errorf("merge revision %d into plan at revision %d: %w", frag.Revision, plan.Revision, ErrStaleFragment)
	}
	merged := plan.Clone()
	if err := appendFragment(merged, frag); err != nil {
		return nil, err
	}
	if err := v.Validate(merged); err != nil {
		return nil, fmt.Errorf("merge fragment: %w", err)
	}
	return merged, nil
}

// Apply appends the fragment to plan in place, but only after a trial Merge
// on a copy succeeds.
func Apply(plan *models.Plan, frag *Fragment, v *planning.Validator) error {
	if _, err := Merge(plan, frag, v); err != nil {
		return err
	}
	return appendFragment(plan, frag)
}

func appendFragment(plan *models.Plan, frag *Fragment) error {
	for _, t := range frag.Tasks {
		if err := plan.AddTask(t.Clone()); err != nil {
			return fmt.Errorf("append fragment task: %w", err)
		}
	}
	plan.Revision = frag.Revision
	return nil
}

// Package inference derives a dependency graph from an ordered list of task
// descriptions and an optional narrative.
//
// Three analyzers each propose scored edges independently: content
// similarity, category precedence and narrative sequencing. Their proposals
// are fused through a weight table, contradictory pairs are resolved, cycles
// are broken by dropping the weakest edge, and edges implied by a two-hop
// path are pruned.
package inference

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// Proposal is one analyzer's vote for an edge From -> To.
type Proposal struct {
	From       int
	To         int
	Confidence float64
	Source     Source
	Reason     string
}

// Vote is the contribution of one analyzer to an accepted edge.
type Vote struct {
	Source     Source  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Edge is a directed dependency: To depends on From.
type Edge struct {
	From       int     `json:"from"`
	To         int     `json:"to"`
	Confidence float64 `json:"confidence"`
	Votes      []Vote  `json:"votes,omitempty"`
	// seq is the insertion order used for deterministic tie-breaks.
	seq int
}

// WarningKind classifies an inference warning.
type WarningKind string

const (
	// WarnBelowThreshold marks a candidate whose best direction scored under the threshold.
	WarnBelowThreshold WarningKind = "below_threshold"
	// WarnNearTie marks a pair whose forward and reverse scores were too close to call.
	WarnNearTie WarningKind = "near_tie"
	// WarnCycleBroken marks an accepted edge removed to break a cycle.
	WarnCycleBroken WarningKind = "cycle_broken"
)

// Warning is an informational inference ambiguity. It never blocks
// plan creation.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	From    int         `json:"from"`
	To      int         `json:"to"`
	Forward float64     `json:"forward"`
	Reverse float64     `json:"reverse"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %d->%d (forward %.3f, reverse %.3f)", w.Kind, w.From, w.To, w.Forward, w.Reverse)
}

// Node is a task position in the candidate graph.
type Node struct {
	Index       int             `json:"index"`
	Description string          `json:"description"`
	Category    models.Category `json:"category"`
	Keyword     string          `json:"keyword,omitempty"`
}

// Graph is the candidate dependency graph over task indices.
type Graph struct {
	Nodes    []Node    `json:"nodes"`
	Edges    []Edge    `json:"edges"`
	Removed  []Edge    `json:"removed,omitempty"`
	Pruned   []Edge    `json:"pruned,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Dependencies returns the upstream indices of node i in ascending order.
func (g *Graph) Dependencies(i int) []int {
	var deps []int
	for _, e := range g.Edges {
		if e.To == i {
			deps = append(deps, e.From)
		}
	}
	sort.Ints(deps)
	return deps
}

// HasEdge reports whether from -> to was accepted.
func (g *Graph) HasEdge(from, to int) bool {
	for _, e := range g.Edges {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}

// Input is what the engine analyzes.
type Input struct {
	Descriptions []string
	Narrative    string
}

// Engine runs the analyzers and fuses their proposals.
type Engine struct {
	cfg      Config
	keywords CategoryKeywords
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for ambiguity warnings.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithKeywords replaces the category keyword tables.
func WithKeywords(k CategoryKeywords) EngineOption {
	return func(e *Engine) {
		e.keywords = k
	}
}

// NewEngine creates an engine after validating cfg.
func NewEngine(cfg Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		keywords: DefaultCategoryKeywords,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("inference")
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Infer builds the candidate graph. The result depends only on the input
// and the configuration.
func (e *Engine) Infer(ctx context.Context, in Input) (*Graph, error) {
	docs := prepare(in.Descriptions)
	g := &Graph{Nodes: make([]Node, len(docs))}
	categories := make([]models.Category, len(docs))
	for i, d := range docs {
		m := e.keywords.Classify(d.text)
		categories[i] = m.Category
		g.Nodes[i] = Node{Index: i, Description: d.text, Category: m.Category, Keyword: m.MatchedKeyword}
	}

	var narrative, content, category []Proposal
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		narrative, err = analyzeNarrative(egCtx, in.Narrative, docs, e.cfg)
		return err
	})
	eg.Go(func() error {
		var err error
		content, err = analyzeContent(egCtx, docs, e.cfg)
		return err
	})
	eg.Go(func() error {
		var err error
		category, err = analyzeCategory(egCtx, docs, categories, e.cfg)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("running analyzers: %w", err)
	}

	proposals := make([]Proposal, 0, len(narrative)+len(content)+len(category))
	proposals = append(proposals, narrative...)
	proposals = append(proposals, content...)
	proposals = append(proposals, category...)

	e.logger.Debug("analyzers finished",
		zap.Int("tasks", len(docs)),
		zap.Int("narrative", len(narrative)),
		zap.Int("content", len(content)),
		zap.Int("category", len(category)),
	)

	edges, warnings := fuse(len(docs), proposals, e.cfg)
	g.Warnings = append(g.Warnings, warnings...)

	edges, removed := repairCycles(len(docs), edges)
	for _, r := range removed {
		g.Warnings = append(g.Warnings, Warning{Kind: WarnCycleBroken, From: r.From, To: r.To, Forward: r.Confidence})
	}
	g.Removed = removed

	if e.cfg.PruneRedundant {
		edges, g.Pruned = pruneRedundant(edges)
	}
	g.Edges = edges

	for _, w := range g.Warnings {
		e.logger.Debug("inference ambiguity",
			zap.String("kind", string(w.Kind)),
			zap.Int("from", w.From),
			zap.Int("to", w.To),
			zap.Float64("forward", w.Forward),
			zap.Float64("reverse", w.Reverse),
		)
	}
	e.logger.Debug("graph inferred",
		zap.Int("edges", len(g.Edges)),
		zap.Int("removed", len(g.Removed)),
		zap.Int("pruned", len(g.Pruned)),
		zap.Int("warnings", len(g.Warnings)),
	)
	return g, nil
}

// scoreEpsilon absorbs float noise when comparing fused scores.
const scoreEpsilon = 1e-9

// fuse combines proposals into accepted edges.
//
// For each unordered pair {a, b} the analyzers that voted in either
// direction form the panel. Each direction scores the weighted mean of the
// panel's confidences for it (an analyzer silent on that direction counts
// as 0). The higher direction wins; an exact tie goes to the earlier-listed
// task as upstream. The winner is accepted when it reaches the threshold,
// unless the loser is non-zero and within the ambiguity margin.
//
// The score is normalized by the panel's weights, not summed over every
// analyzer with its fixed weight. A pair only one analyzer saw therefore
// scores that analyzer's confidence: content overlap of 1.0 alone is
// accepted, while the category analyzer alone (0.4) never is.
func fuse(n int, proposals []Proposal, cfg Config) ([]Edge, []Warning) {
	type key struct{ from, to int }
	votes := make(map[key]map[Source]float64)
	for _, p := range proposals {
		if p.From == p.To || p.From < 0 || p.To < 0 || p.From >= n || p.To >= n {
			continue
		}
		k := key{p.From, p.To}
		if votes[k] == nil {
			votes[k] = make(map[Source]float64)
		}
		if p.Confidence > votes[k][p.Source] {
			votes[k][p.Source] = p.Confidence
		}
	}

	var edges []Edge
	var warnings []Warning
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			fwdVotes, revVotes := votes[key{a, b}], votes[key{b, a}]
			if len(fwdVotes) == 0 && len(revVotes) == 0 {
				continue
			}

			var panel float64
			for _, s := range sources {
				_, inFwd := fwdVotes[s]
				_, inRev := revVotes[s]
				if inFwd || inRev {
					panel += cfg.Weights.Of(s)
				}
			}
			if panel <= 0 {
				continue
			}

			var fwd, rev float64
			for _, s := range sources {
				fwd += cfg.Weights.Of(s) * fwdVotes[s]
				rev += cfg.Weights.Of(s) * revVotes[s]
			}
			fwd /= panel
			rev /= panel

			from, to, win, lose, winVotes := a, b, fwd, rev, fwdVotes
			if rev > fwd+scoreEpsilon {
				from, to, win, lose, winVotes = b, a, rev, fwd, revVotes
			}

			if win < cfg.Threshold-scoreEpsilon {
				if win > 0 {
					warnings = append(warnings, Warning{Kind: WarnBelowThreshold, From: from, To: to, Forward: win, Reverse: lose})
				}
				continue
			}
			diff := math.Abs(win - lose)
			if lose > 0 && diff > scoreEpsilon && diff < cfg.AmbiguityMargin {
				warnings = append(warnings, Warning{Kind: WarnNearTie, From: from, To: to, Forward: win, Reverse: lose})
				continue
			}

			e := Edge{From: from, To: to, Confidence: roundScore(win), seq: len(edges)}
			for _, s := range sources {
				if c, ok := winVotes[s]; ok {
					e.Votes = append(e.Votes, Vote{Source: s, Confidence: c})
				}
			}
			edges = append(edges, e)
		}
	}
	return edges, warnings
}

// roundScore trims float noise so repeated runs print identical scores.
func roundScore(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

package inference

import (
	"errors"
	"fmt"
)

// Source identifies the analyzer that proposed an edge.
type Source string

const (
	// SourceNarrative is the information-flow analyzer.
	SourceNarrative Source = "narrative"
	// SourceContent is the content-similarity analyzer.
	SourceContent Source = "content"
	// SourceCategory is the category-hierarchy analyzer.
	SourceCategory Source = "category"
)

// sources fixes the order analyzers are merged in.
var sources = []Source{SourceNarrative, SourceContent, SourceCategory}

// Weights is the fusion table.
type Weights struct {
	Narrative float64 `mapstructure:"narrative"`
	Content   float64 `mapstructure:"content"`
	Category  float64 `mapstructure:"category"`
}

// Of returns the weight of one analyzer.
func (w Weights) Of(s Source) float64 {
	switch s {
	case SourceNarrative:
		return w.Narrative
	case SourceContent:
		return w.Content
	case SourceCategory:
		return w.Category
	default:
		return 0
	}
}

// Config holds the tunable constants of the inference engine.
type Config struct {
	Weights Weights `mapstructure:"weights"`
	// Threshold is the minimum fused confidence for an accepted edge.
	Threshold float64 `mapstructure:"threshold"`
	// AmbiguityMargin is the band inside which forward and reverse scores
	// count as near-tied and the pair is dropped.
	AmbiguityMargin float64 `mapstructure:"ambiguity_margin"`
	// MinOverlap is the overlap ratio the content analyzer must exceed.
	MinOverlap float64 `mapstructure:"min_overlap"`
	// CategoryConfidence is the fixed confidence of category proposals.
	CategoryConfidence float64 `mapstructure:"category_confidence"`
	// NarrativeSequenceConfidence is used for "first ... then ..." chains.
	NarrativeSequenceConfidence float64 `mapstructure:"narrative_sequence_confidence"`
	// NarrativeExplicitConfidence is used for "after", "once ... is done",
	// "based on the results of" and "before".
	NarrativeExplicitConfidence float64 `mapstructure:"narrative_explicit_confidence"`
	// MinFragmentMatch is the token overlap a narrative fragment needs to
	// resolve to a task.
	MinFragmentMatch float64 `mapstructure:"min_fragment_match"`
	// PruneRedundant drops edges implied by a two-hop path.
	PruneRedundant bool `mapstructure:"prune_redundant"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Weights:                     Weights{Narrative: 0.5, Content: 0.3, Category: 0.2},
		Threshold:                   0.5,
		AmbiguityMargin:             0.05,
		MinOverlap:                  0.2,
		CategoryConfidence:          0.4,
		NarrativeSequenceConfidence: 0.85,
		NarrativeExplicitConfidence: 0.9,
		MinFragmentMatch:            0.34,
		PruneRedundant:              true,
	}
}

// ErrInvalidConfig is returned when a Config is out of range.
var ErrInvalidConfig = errors.New("invalid inference config")

// Validate checks that every constant is in range.
func (c Config) Validate() error {
	w := c.Weights
	if w.Narrative < 0 || w.Content < 0 || w.Category < 0 {
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidConfig)
	}
	if w.Narrative+w.Content+w.Category <= 0 {
		return fmt.Errorf("%w: weights must have a positive sum", ErrInvalidConfig)
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: threshold %.2f not in (0,1]", ErrInvalidConfig, c.Threshold)
	}
	if c.AmbiguityMargin < 0 || c.AmbiguityMargin >= 1 {
		return fmt.Errorf("%w: ambiguity margin %.2f not in [0,1)", ErrInvalidConfig, c.AmbiguityMargin)
	}
	for name, v := range map[string]float64{
		"min_overlap":                   c.MinOverlap,
		"category_confidence":           c.CategoryConfidence,
		"narrative_sequence_confidence": c.NarrativeSequenceConfidence,
		"narrative_explicit_confidence": c.NarrativeExplicitConfidence,
		"min_fragment_match":            c.MinFragmentMatch,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s %.2f not in [0,1]", ErrInvalidConfig, name, v)
		}
	}
	return nil
}

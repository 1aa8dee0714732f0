package inference

import (
	"context"
	"fmt"
)

// overlapRatio is the overlap coefficient of two term sets.
func overlapRatio(a, b termSet) float64 {
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	if smaller == 0 {
		return 0
	}
	return float64(a.shared(b)) / float64(smaller)
}

// analyzeContent proposes i->j when the two descriptions share enough
// significant terms and j refers back to earlier work. Overlap alone is not
// ordering evidence, so without a cue nothing is proposed.
func analyzeContent(ctx context.Context, docs []document, cfg Config) ([]Proposal, error) {
	var out []Proposal
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := range docs {
			if i == j || !docs[j].cue {
				continue
			}
			ratio := overlapRatio(docs[i].terms, docs[j].terms)
			if ratio <= cfg.MinOverlap {
				continue
			}
			out = append(out, Proposal{
				From:       i,
				To:         j,
				Confidence: clamp(ratio),
				Source:     SourceContent,
				Reason:     fmt.Sprintf("shares %.0f%% of terms and refers back", ratio*100),
			})
		}
	}
	return out, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

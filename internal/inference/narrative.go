package inference

import (
	"context"
	"regexp"
	"strings"
)

var (
	sentenceSplit = regexp.MustCompile(`[.;!?\n]+`)

	// orderingMarker separates consecutive steps inside a sentence.
	orderingMarker = regexp.MustCompile(`(?:,\s*)?\b(?:and then|after that|afterwards|subsequently|then|next|finally|lastly|secondly|thirdly)\b,?`)

	leadingFirst = regexp.MustCompile(`^(?:first(?:ly)?|to begin(?: with)?|start by|begin by)\b,?\s*`)
)

// relation is an explicit "A must happen before B" form. Groups name the
// upstream and downstream fragments; a zero downstream group means the
// clause only names its upstream and the next clause is the downstream.
type relation struct {
	re         *regexp.Regexp
	upstream   int
	downstream int
}

var relations = []relation{
	{regexp.MustCompile(`^(?:once|when)\s+(.+?)\s+(?:is|are|has been|have been)\s+(?:done|complete|completed|finished|ready)\s*,?\s*(.*)$`), 1, 2},
	{regexp.MustCompile(`^based on (?:the )?(?:results?|output|findings) of\s+(.+?)\s*,\s*(.+)$`), 1, 2},
	{regexp.MustCompile(`^based on (?:the )?(?:results?|output|findings) of\s+(.+)$`), 1, 0},
	{regexp.MustCompile(`^after\s+(.+?)\s*,\s*(.+)$`), 1, 2},
	{regexp.MustCompile(`^after\s+(.+)$`), 1, 0},
	{regexp.MustCompile(`^before\s+(.+?)\s*,\s*(.+)$`), 2, 1},
	{regexp.MustCompile(`^(.+?)\s+(?:once|when)\s+(.+?)\s+(?:is|are|has been|have been)\s+(?:done|complete|completed|finished|ready)$`), 2, 1},
	{regexp.MustCompile(`^(.+?)\s+based on (?:the )?(?:results?|output|findings) of\s+(.+)$`), 2, 1},
	{regexp.MustCompile(`^(.+?)\s+after\s+(.+)$`), 2, 1},
	{regexp.MustCompile(`^(.+?)\s+before\s+(.+)$`), 1, 2},
}

// clause is one step of the narrative after relation parsing.
type clause struct {
	// action is the fragment the clause performs; empty for clauses that
	// only name an upstream ("after the research").
	action string
	// upstream is the fragment an explicit relation put before action.
	upstream string
}

func parseClause(text string) clause {
	text = strings.TrimSpace(leadingFirst.ReplaceAllString(strings.TrimSpace(text), ""))
	for _, rel := range relations {
		m := rel.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		c := clause{upstream: strings.TrimSpace(m[rel.upstream])}
		if rel.downstream > 0 {
			c.action = strings.TrimSpace(m[rel.downstream])
		}
		return c
	}
	return clause{action: text}
}

// splitNarrative breaks the narrative into sentences of ordered clauses.
// continues reports whether the sentence opened with an ordering marker
// and so follows on from the previous sentence.
func splitNarrative(narrative string) (sentences [][]clause, continues []bool) {
	for _, raw := range sentenceSplit.Split(strings.ToLower(narrative), -1) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := orderingMarker.Split(raw, -1)
		cont := strings.TrimSpace(parts[0]) == ""

		var clauses []clause
		for _, p := range parts {
			if strings.TrimSpace(p) == "" {
				continue
			}
			clauses = append(clauses, parseClause(p))
		}
		if len(clauses) == 0 {
			continue
		}
		sentences = append(sentences, clauses)
		continues = append(continues, cont)
	}
	return sentences, continues
}

// matchFragment returns the index of the task the fragment refers to, or -1.
// The score is the share of fragment terms found in the task; ties go to the
// tighter match and then to the earlier task.
func matchFragment(fragment string, docs []document, minMatch float64) int {
	frag := newTermSet(terms(fragment))
	if len(frag) == 0 {
		return -1
	}
	best, bestScore, bestJaccard := -1, 0.0, 0.0
	for _, d := range docs {
		shared := frag.shared(d.terms)
		if shared == 0 {
			continue
		}
		score := float64(shared) / float64(len(frag))
		jaccard := float64(shared) / float64(len(frag)+len(d.terms)-shared)
		if score > bestScore || (score == bestScore && jaccard > bestJaccard) {
			best, bestScore, bestJaccard = d.index, score, jaccard
		}
	}
	if bestScore < minMatch {
		return -1
	}
	return best
}

// analyzeNarrative proposes edges from explicit sequencing language.
func analyzeNarrative(ctx context.Context, narrative string, docs []document, cfg Config) ([]Proposal, error) {
	if strings.TrimSpace(narrative) == "" {
		return nil, nil
	}

	best := make(map[[2]int]Proposal)
	var order [][2]int
	propose := func(upFrag, downFrag string, conf float64, reason string) {
		from := matchFragment(upFrag, docs, cfg.MinFragmentMatch)
		to := matchFragment(downFrag, docs, cfg.MinFragmentMatch)
		if from < 0 || to < 0 || from == to {
			return
		}
		key := [2]int{from, to}
		prev, seen := best[key]
		if !seen {
			order = append(order, key)
		}
		if !seen || conf > prev.Confidence {
			best[key] = Proposal{From: from, To: to, Confidence: conf, Source: SourceNarrative, Reason: reason}
		}
	}

	sentences, continues := splitNarrative(narrative)
	lastAction := ""
	for si, clauses := range sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !continues[si] {
			lastAction = ""
		}
		pendingUpstream := ""
		for _, c := range clauses {
			if c.action == "" {
				// "after the research, then ..." names the upstream of the next clause.
				pendingUpstream = c.upstream
				continue
			}
			if c.upstream != "" {
				propose(c.upstream, c.action, cfg.NarrativeExplicitConfidence, "explicit ordering phrase")
			}
			if pendingUpstream != "" {
				propose(pendingUpstream, c.action, cfg.NarrativeExplicitConfidence, "explicit ordering phrase")
				pendingUpstream = ""
			}
			if lastAction != "" {
				propose(lastAction, c.action, cfg.NarrativeSequenceConfidence, "sequence marker")
			}
			lastAction = c.action
		}
	}

	out := make([]Proposal, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out, nil
}

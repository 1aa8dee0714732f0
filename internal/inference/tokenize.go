package inference

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// stopwords are dropped before stemming. Referential cue words and
// ordering markers are included so they never count as shared content.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"of": true, "to": true, "in": true, "on": true, "for": true, "with": true,
	"by": true, "at": true, "from": true, "into": true, "onto": true, "as": true,
	"is": true, "are": true, "be": true, "was": true, "were": true, "been": true,
	"it": true, "its": true, "this": true, "that": true, "these": true, "those": true,
	"then": true, "than": true, "first": true, "next": true, "after": true,
	"before": true, "once": true, "when": true, "finally": true, "afterwards": true,
	"using": true, "use": true, "based": true, "above": true, "below": true,
	"previous": true, "prior": true, "all": true, "any": true, "each": true,
	"some": true, "also": true, "via": true, "per": true, "about": true,
	"do": true, "done": true, "complete": true, "completed": true, "finished": true,
	"we": true, "our": true, "you": true, "your": true, "i": true, "my": true,
	"so": true, "has": true, "have": true, "had": true, "will": true, "should": true,
	"can": true, "must": true, "them": true, "they": true, "their": true,
	"up": true, "out": true, "over": true, "new": true,
}

// referentialCues mark a description that builds on earlier output.
var referentialCues = []*regexp.Regexp{
	regexp.MustCompile(`\busing\b`),
	regexp.MustCompile(`\bbased on\b`),
	regexp.MustCompile(`\bfrom the\b`),
	regexp.MustCompile(`\bthese\b`),
	regexp.MustCompile(`\bthose\b`),
	regexp.MustCompile(`\babove\b`),
	regexp.MustCompile(`\bthe results\b`),
	regexp.MustCompile(`\bprevious\b`),
	regexp.MustCompile(`\boutput of\b`),
}

// words splits text into lower-case alphanumeric words.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// terms returns the distinct stemmed significant terms of text in
// first-seen order.
func terms(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range words(text) {
		if stopwords[w] {
			continue
		}
		stem := english.Stem(w, false)
		if stem == "" || seen[stem] {
			continue
		}
		seen[stem] = true
		out = append(out, stem)
	}
	return out
}

// hasReferentialCue reports whether text refers back to earlier work.
func hasReferentialCue(text string) bool {
	lower := strings.ToLower(text)
	for _, re := range referentialCues {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// termSet is a set of stemmed terms.
type termSet map[string]bool

func newTermSet(ts []string) termSet {
	s := make(termSet, len(ts))
	for _, t := range ts {
		s[t] = true
	}
	return s
}

// shared counts terms present in both sets.
func (s termSet) shared(other termSet) int {
	n := 0
	for t := range s {
		if other[t] {
			n++
		}
	}
	return n
}

// document is a task description prepared for analysis.
type document struct {
	index int
	text  string
	terms termSet
	cue   bool
}

func prepare(descriptions []string) []document {
	docs := make([]document, len(descriptions))
	for i, d := range descriptions {
		docs[i] = document{
			index: i,
			text:  d,
			terms: newTermSet(terms(d)),
			cue:   hasReferentialCue(d),
		}
	}
	return docs
}

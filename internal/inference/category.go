package inference

import (
	"context"
	"strings"

	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// CategoryKeywords is the single source of truth for task classification.
// Entries are word prefixes, so "analy" covers analyze, analysis and analyzing.
type CategoryKeywords struct {
	// Research keywords indicate gathering information.
	Research []string
	// Analysis keywords indicate evaluating gathered information.
	Analysis []string
	// Creation keywords indicate producing an artifact.
	Creation []string
	// Execution keywords indicate acting on an artifact.
	Execution []string
	// Review keywords indicate checking finished work.
	Review []string
}

// DefaultCategoryKeywords returns the keyword tables used by Classify.
var DefaultCategoryKeywords = CategoryKeywords{
	Research: []string{
		"research", "investigat", "explor", "gather", "collect", "survey",
		"study", "studies", "search", "fetch", "find", "discover", "look",
		"scan", "scrap", "download", "retriev", "read", "learn", "identif",
	},
	Analysis: []string{
		"analy", "evaluat", "assess", "compar", "summar", "examin",
		"interpret", "measur", "calculat", "inspect", "diagnos", "estimat",
		"benchmark", "profil", "classif", "categoriz", "rank", "process",
		"aggregat",
	},
	Creation: []string{
		"write", "writing", "written", "draft", "creat", "build", "design",
		"generat", "compos", "implement", "develop", "produc", "prepar",
		"construct", "author", "outline", "sketch", "make",
	},
	Execution: []string{
		"execut", "run", "deploy", "publish", "launch", "send", "post",
		"submit", "releas", "ship", "instal", "apply", "perform", "migrat",
		"schedul", "notify", "upload",
	},
	Review: []string{
		"review", "verif", "validat", "test", "check", "proofread", "audit",
		"approv", "critiqu", "qa", "polish", "edit",
	},
}

// table returns the keyword lists in precedence order.
func (k CategoryKeywords) table() []struct {
	category models.Category
	keywords []string
} {
	return []struct {
		category models.Category
		keywords []string
	}{
		{models.CategoryResearch, k.Research},
		{models.CategoryAnalysis, k.Analysis},
		{models.CategoryCreation, k.Creation},
		{models.CategoryExecution, k.Execution},
		{models.CategoryReview, k.Review},
	}
}

// CategoryMatch represents a classification with matching details.
type CategoryMatch struct {
	// Category is the selected category.
	Category models.Category
	// MatchedKeyword is the keyword prefix that triggered this selection.
	MatchedKeyword string
	// Word is the description word that matched.
	Word string
}

// Classify returns the category of the earliest word in text that matches
// any keyword prefix. Descriptions usually lead with their verb, so the
// first match wins over later nouns ("Analyze X findings" is analysis).
func Classify(text string) CategoryMatch {
	return DefaultCategoryKeywords.Classify(text)
}

// Classify classifies text against these keyword tables.
func (k CategoryKeywords) Classify(text string) CategoryMatch {
	tables := k.table()
	for _, w := range words(text) {
		for _, t := range tables {
			for _, kw := range t.keywords {
				if strings.HasPrefix(w, kw) {
					return CategoryMatch{Category: t.category, MatchedKeyword: kw, Word: w}
				}
			}
		}
	}
	return CategoryMatch{Category: models.CategoryUnknown}
}

// analyzeCategory proposes i->j whenever i is listed earlier and its
// category strictly precedes j's.
func analyzeCategory(ctx context.Context, docs []document, categories []models.Category, cfg Config) ([]Proposal, error) {
	var out []Proposal
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(docs); j++ {
			if categories[i].Precedes(categories[j]) {
				out = append(out, Proposal{
					From:       i,
					To:         j,
					Confidence: cfg.CategoryConfidence,
					Source:     SourceCategory,
					Reason:     string(categories[i]) + " precedes " + string(categories[j]),
				})
			}
		}
	}
	return out, nil
}

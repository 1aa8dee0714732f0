package models

// Category is the coarse label a task is classified into.
type Category string

const (
	// CategoryResearch covers gathering information.
	CategoryResearch Category = "research"
	// CategoryAnalysis covers evaluating gathered information.
	CategoryAnalysis Category = "analysis"
	// CategoryCreation covers producing an artifact.
	CategoryCreation Category = "creation"
	// CategoryExecution covers acting on an artifact.
	CategoryExecution Category = "execution"
	// CategoryReview covers checking finished work.
	CategoryReview Category = "review"
	// CategoryUnknown is used when no keyword matched.
	CategoryUnknown Category = "unknown"
)

// Valid returns true if the category is a known value.
func (c Category) Valid() bool {
	switch c {
	case CategoryResearch, CategoryAnalysis, CategoryCreation,
		CategoryExecution, CategoryReview, CategoryUnknown:
		return true
	default:
		return false
	}
}

// Rank returns the category's position in the precedence
// research < analysis < creation < execution < review.
// Unknown has no rank and returns -1.
func (c Category) Rank() int {
	switch c {
	case CategoryResearch:
		return 0
	case CategoryAnalysis:
		return 1
	case CategoryCreation:
		return 2
	case CategoryExecution:
		return 3
	case CategoryReview:
		return 4
	default:
		return -1
	}
}

// Precedes reports whether c strictly precedes other. Unknown precedes nothing.
func (c Category) Precedes(other Category) bool {
	a, b := c.Rank(), other.Rank()
	return a >= 0 && b >= 0 && a < b
}

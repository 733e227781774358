// Package recipe defines the reconstructed recipe artifact.
//
// A Recipe is always structurally complete: reconstruction failures
// degrade to a placeholder carrying an explanation rather than ever
// producing a nil or partially-typed result.
package recipe

import "strings"

// Recipe is the structured artifact reconstructed from a video.
type Recipe struct {
	// Title is a short human-readable name for the dish.
	Title string `json:"title"`

	// Ingredients is the ordered ingredient list, each entry a free-text
	// string that should include a quantity where one was recoverable.
	Ingredients []string `json:"ingredients"`

	// Steps is the ordered preparation instructions.
	Steps []string `json:"steps"`
}

// DefaultTitle is used when a reconstructed recipe carries no usable title.
const DefaultTitle = "Untitled Recipe"

// Placeholder returns the fail-soft recipe: non-nil empty ingredient list
// and a single step carrying the explanation for why reconstruction
// produced nothing better.
func Placeholder(explanation string) *Recipe {
	return &Recipe{
		Title:       DefaultTitle,
		Ingredients: []string{},
		Steps:       []string{explanation},
	}
}

// Normalize fills structural holes in place so the recipe is always
// well-typed: empty title gets the default, nil slices become empty.
func (r *Recipe) Normalize() {
	if strings.TrimSpace(r.Title) == "" {
		r.Title = DefaultTitle
	}
	if r.Ingredients == nil {
		r.Ingredients = []string{}
	}
	if r.Steps == nil {
		r.Steps = []string{}
	}
}

// IsPlaceholder reports whether the recipe carries no reconstructed
// content beyond the fail-soft shell.
func (r *Recipe) IsPlaceholder() bool {
	return len(r.Ingredients) == 0 && len(r.Steps) <= 1
}

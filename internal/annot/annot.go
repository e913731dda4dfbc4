// Package annot implements the annotation span model and the
// overlap-reconciliation rules applied on every save.
package annot

import (
	"errors"
	"sort"
)

// Annotation is a labeled half-open character interval [Start, End)
// into a document's text. Text duplicates the covered substring as it
// looked at annotation time. Rank is an optional free-text ordering hint.
type Annotation struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
	Label string `json:"label"`
	Rank  string `json:"rank"`
}

// ErrInvalidSpan indicates a candidate with a degenerate or negative
// interval.
var ErrInvalidSpan = errors.New("invalid span")

// Validate rejects zero-length, inverted, and negative-offset spans.
// Offsets are not checked against any document length: documents may be
// re-uploaded with shorter text after annotations were made.
func Validate(a Annotation) error {
	if a.Start < 0 || a.Start >= a.End {
		return ErrInvalidSpan
	}
	return nil
}

// Overlaps reports whether the two intervals share at least one
// character position. Touching endpoints do not count as overlap.
func Overlaps(a, b Annotation) bool {
	return a.Start < b.End && b.Start < a.End
}

// Reconcile applies the destructive overwrite policy: every stored
// annotation overlapping the candidate is discarded, the candidate is
// inserted, and the result is re-sorted by ascending Start. The sort is
// stable, so annotations with equal Start keep their relative order and
// the candidate sorts after an equal-start survivor.
func Reconcile(stored []Annotation, candidate Annotation) []Annotation {
	result := make([]Annotation, 0, len(stored)+1)
	for _, a := range stored {
		if !Overlaps(a, candidate) {
			result = append(result, a)
		}
	}
	result = append(result, candidate)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Start < result[j].Start
	})
	return result
}

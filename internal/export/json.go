package export

import (
	"encoding/json"
	"fmt"

	"notate/api/internal/annot"
)

// JSON serializes the stored annotation list verbatim, pretty-printed.
func JSON(docID string, anns []annot.Annotation) (*Result, error) {
	if anns == nil {
		anns = []annot.Annotation{}
	}
	data, err := json.MarshalIndent(anns, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal annotations: %w", err)
	}
	return &Result{
		Data:     data,
		Filename: filename(docID, "json"),
		MimeType: "application/json",
	}, nil
}

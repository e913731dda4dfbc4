// Package export renders a document's stored annotation list as a
// downloadable JSON, DOCX, or PDF artifact.
package export

import "errors"

// Format is the export output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
)

// Result contains the export output as a downloadable byte stream.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates the headless-Chrome runtime needed
// for PDF export is unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")

// filename builds the download name, `{doc_id}_annotations.{ext}`.
func filename(docID string, ext string) string {
	return sanitizeFilename(docID) + "_annotations." + ext
}

// sanitizeFilename keeps the doc_id recognizable while stripping
// anything that could break a Content-Disposition header or a path.
func sanitizeFilename(docID string) string {
	var b []rune
	for _, r := range docID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b = append(b, r)
		case r == ' ', r == '/', r == '\\':
			b = append(b, '-')
		}
	}
	if len(b) > 80 {
		b = b[:80]
	}
	if len(b) == 0 {
		return "document"
	}
	return string(b)
}

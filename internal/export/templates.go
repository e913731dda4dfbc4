package export

import (
	"bytes"
	"fmt"
	"html/template"

	"notate/api/internal/annot"
)

var reportTemplate = template.Must(template.New("report").Parse(reportTemplateHTML))

// templateData holds the annotation report for HTML rendering, used by
// the PDF pipeline.
type templateData struct {
	DocID       string
	Annotations []annot.Annotation
}

// renderReportHTML renders the annotation report as a standalone HTML
// page.
func renderReportHTML(docID string, anns []annot.Annotation) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, templateData{DocID: docID, Annotations: anns}); err != nil {
		return "", fmt.Errorf("render report template: %w", err)
	}
	return buf.String(), nil
}

const reportTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Annotations for {{.DocID}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .annotation { color: #c80000; margin: 0.25rem 0; }
    .empty { color: #666; font-style: italic; }
  </style>
</head>
<body>
  <h1>Annotations for {{.DocID}}</h1>
  {{if .Annotations}}
  {{range .Annotations}}<p class="annotation">[{{.Label}}] {{.Text}} (Rank={{.Rank}})</p>
  {{end}}
  {{else}}<p class="empty">No annotations.</p>{{end}}
</body>
</html>`

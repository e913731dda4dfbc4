package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"notate/api/internal/annot"
)

// Annotation lines are rendered in this color to stand out from body
// text, matching the report style of the JSON/PDF exports.
const annotationColor = "C80000"

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

// DOCX builds a minimal OOXML document: a heading followed by one
// colored line per annotation, in stored (start-sorted) order. No
// external converter is involved; the package writes the zip parts
// itself.
func DOCX(docID string, anns []annot.Annotation) (*Result, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", documentXML(docID, anns)},
	}
	for _, p := range parts {
		f, err := zw.Create(p.name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", p.name, err)
		}
		if _, err := f.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close docx archive: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: filename(docID, "docx"),
		MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}, nil
}

func documentXML(docID string, anns []annot.Annotation) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	// Heading paragraph.
	b.WriteString(`<w:p><w:r><w:rPr><w:b/><w:sz w:val="32"/></w:rPr><w:t xml:space="preserve">`)
	b.WriteString(escapeXML("Annotations for " + docID))
	b.WriteString(`</w:t></w:r></w:p>`)

	for _, a := range anns {
		line := fmt.Sprintf("[%s] %s (Rank=%s)", a.Label, a.Text, a.Rank)
		b.WriteString(`<w:p><w:r><w:rPr><w:color w:val="` + annotationColor + `"/></w:rPr><w:t xml:space="preserve">`)
		b.WriteString(escapeXML(line))
		b.WriteString(`</w:t></w:r></w:p>`)
	}

	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

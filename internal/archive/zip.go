// Package archive enumerates plain-text entries from uploaded zip
// archives.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Entry is one plain-text file found inside an archive.
type Entry struct {
	Name string
	Data []byte
}

// ExtractTexts returns the plain-text entries of a zip archive, keyed
// by their path inside the archive. Only .txt entries are considered
// plain text; directories and everything else are silently skipped.
func ExtractTexts(data []byte) ([]Entry, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var entries []Entry
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || !isText(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
		}
		entries = append(entries, Entry{Name: f.Name, Data: content})
	}
	return entries, nil
}

func isText(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".txt")
}

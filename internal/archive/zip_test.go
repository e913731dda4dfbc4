package archive

import (
	"archive/zip"
	"bytes"
	"testing"
)

func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractTextsSkipsNonText(t *testing.T) {
	data := buildZip(t, map[string][]byte{
		"notes/a.txt":  []byte("alpha"),
		"notes/b.TXT":  []byte("bravo"),
		"image.png":    {0x89, 0x50, 0x4e, 0x47},
		"readme.md":    []byte("# readme"),
		"nested/c.txt": []byte("charlie"),
	})

	entries, err := ExtractTexts(data)
	if err != nil {
		t.Fatalf("ExtractTexts: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 text entries, got %d: %+v", len(entries), entries)
	}

	byName := map[string]string{}
	for _, e := range entries {
		byName[e.Name] = string(e.Data)
	}
	if byName["notes/a.txt"] != "alpha" {
		t.Errorf("expected alpha for notes/a.txt, got %q", byName["notes/a.txt"])
	}
	if byName["nested/c.txt"] != "charlie" {
		t.Errorf("expected charlie for nested/c.txt, got %q", byName["nested/c.txt"])
	}
}

func TestExtractTextsEmptyArchive(t *testing.T) {
	data := buildZip(t, nil)

	entries, err := ExtractTexts(data)
	if err != nil {
		t.Fatalf("ExtractTexts: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %+v", entries)
	}
}

func TestExtractTextsRejectsGarbage(t *testing.T) {
	if _, err := ExtractTexts([]byte("definitely not a zip")); err == nil {
		t.Fatal("expected error for non-zip payload")
	}
}

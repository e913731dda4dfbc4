package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"notate/api/internal/annot"
	"notate/api/internal/config"
	"notate/api/internal/credentials"
	"notate/api/internal/session"
	"notate/api/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	kv, err := store.NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("create file store: %v", err)
	}
	cfg := config.Config{MaxUploadBytes: 32 << 20}
	return New(cfg, kv, credentials.NewService(kv), session.NewMemoryRegistry())
}

func assertDomainStatus(t *testing.T, err error, status int) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != status {
		t.Fatalf("expected status %d, got %d (%s)", status, domainErr.Status, domainErr.Code)
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "avery", "hunter2"); err != nil {
		t.Fatalf("register: %v", err)
	}

	sess, err := svc.Login(ctx, "avery", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.Token == "" || sess.Username != "avery" {
		t.Fatalf("unexpected session %+v", sess)
	}

	resolved, err := svc.SessionFromToken(ctx, sess.Token)
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}
	if resolved.Username != "avery" {
		t.Fatalf("expected avery, got %q", resolved.Username)
	}

	if err := svc.Logout(ctx, sess.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	_, err = svc.SessionFromToken(ctx, sess.Token)
	assertDomainStatus(t, err, http.StatusUnauthorized)
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "avery", "first"); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := svc.Register(ctx, "avery", "second")
	assertDomainStatus(t, err, http.StatusConflict)

	// The original password must survive the rejected re-registration.
	if _, err := svc.Login(ctx, "avery", "first"); err != nil {
		t.Fatalf("login with original password: %v", err)
	}
}

func TestRegisterBlankFieldsRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, tt := range []struct{ username, password string }{
		{"", "pw"},
		{"user", ""},
		{"   ", "pw"},
	} {
		err := svc.Register(ctx, tt.username, tt.password)
		assertDomainStatus(t, err, http.StatusBadRequest)
	}
}

func TestLoginWrongPasswordUnauthorized(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "avery", "hunter2"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Login(ctx, "avery", "wrong")
	assertDomainStatus(t, err, http.StatusUnauthorized)
}

func TestPutDocumentsAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	summaries, err := svc.PutDocuments(ctx, "avery", []IncomingFile{
		{Name: "b.txt", Data: []byte("second document")},
		{Name: "a.txt", Data: []byte("first document")},
	})
	if err != nil {
		t.Fatalf("put documents: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}

	listed, err := svc.ListDocuments(ctx, "avery")
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(listed) != 2 || listed[0].DocID != "a.txt" || listed[1].DocID != "b.txt" {
		t.Fatalf("unexpected listing %+v", listed)
	}

	text, err := svc.DocumentText(ctx, "avery", "a.txt")
	if err != nil {
		t.Fatalf("document text: %v", err)
	}
	if text != "first document" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestPutDocumentsReplacesOnSameID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.PutDocuments(ctx, "avery", []IncomingFile{{Name: "a.txt", Data: []byte("v1")}}); err != nil {
		t.Fatalf("put v1: %v", err)
	}
	if _, err := svc.PutDocuments(ctx, "avery", []IncomingFile{{Name: "a.txt", Data: []byte("v2")}}); err != nil {
		t.Fatalf("put v2: %v", err)
	}

	text, err := svc.DocumentText(ctx, "avery", "a.txt")
	if err != nil {
		t.Fatalf("document text: %v", err)
	}
	if text != "v2" {
		t.Fatalf("expected v2, got %q", text)
	}
	listed, _ := svc.ListDocuments(ctx, "avery")
	if len(listed) != 1 {
		t.Fatalf("expected one document, got %d", len(listed))
	}
}

func TestDocumentTextUnknownNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.DocumentText(context.Background(), "avery", "nope.txt")
	assertDomainStatus(t, err, http.StatusNotFound)
}

func TestNamespacesAreIsolated(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.PutDocuments(ctx, "avery", []IncomingFile{{Name: "a.txt", Data: []byte("avery's text")}}); err != nil {
		t.Fatalf("put documents: %v", err)
	}

	listed, err := svc.ListDocuments(ctx, "blake")
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected empty listing for other user, got %+v", listed)
	}
	_, err = svc.DocumentText(ctx, "blake", "a.txt")
	assertDomainStatus(t, err, http.StatusNotFound)
}

func TestMakePreview(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"short", "hello world", "hello world"},
		{"collapses whitespace", "hello\n\n  world\ttabs", "hello world tabs"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := makePreview(tt.input); got != tt.expected {
				t.Errorf("makePreview(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}

	long := strings.Repeat("x", 200)
	got := makePreview(long)
	if got != strings.Repeat("x", 120)+"..." {
		t.Errorf("long preview = %q", got)
	}

	// Truncation counts runes, not bytes.
	multibyte := strings.Repeat("é", 130)
	got = makePreview(multibyte)
	if got != strings.Repeat("é", 120)+"..." {
		t.Errorf("multibyte preview has %d runes", len([]rune(got)))
	}

	exact := strings.Repeat("y", 120)
	if got := makePreview(exact); got != exact {
		t.Errorf("exact-length preview should not be truncated, got %q", got)
	}
}

func TestSaveAnnotationReconciles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first := annot.Annotation{Start: 0, End: 10, Text: "wide", Label: "A"}
	if _, err := svc.SaveAnnotation(ctx, "avery", "doc.txt", first); err != nil {
		t.Fatalf("save first: %v", err)
	}

	second := annot.Annotation{Start: 3, End: 7, Text: "narrow", Label: "B"}
	list, err := svc.SaveAnnotation(ctx, "avery", "doc.txt", second)
	if err != nil {
		t.Fatalf("save second: %v", err)
	}
	if len(list) != 1 || list[0] != second {
		t.Fatalf("expected overlapping span replaced, got %+v", list)
	}

	stored, err := svc.Annotations(ctx, "avery", "doc.txt")
	if err != nil {
		t.Fatalf("annotations: %v", err)
	}
	if len(stored) != 1 || stored[0] != second {
		t.Fatalf("persisted list mismatch: %+v", stored)
	}
}

func TestSaveAnnotationValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SaveAnnotation(ctx, "avery", "doc.txt", annot.Annotation{Start: 5, End: 5})
	assertDomainStatus(t, err, http.StatusBadRequest)

	_, err = svc.SaveAnnotation(ctx, "avery", "doc.txt", annot.Annotation{Start: -1, End: 3})
	assertDomainStatus(t, err, http.StatusBadRequest)

	_, err = svc.SaveAnnotation(ctx, "avery", "  ", annot.Annotation{Start: 0, End: 3})
	assertDomainStatus(t, err, http.StatusBadRequest)
}

func TestConcurrentSavesSerializeWrites(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// Disjoint spans saved concurrently to one document: every save must
	// reconcile against the latest persisted list, so all of them survive.
	// A lost update here would mean the load-reconcile-persist cycle ran
	// against stale data.
	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := annot.Annotation{Start: i * 10, End: i*10 + 5, Text: "span", Label: "L"}
			if _, err := svc.SaveAnnotation(ctx, "avery", "doc.txt", a); err != nil {
				t.Errorf("save %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	list, err := svc.Annotations(ctx, "avery", "doc.txt")
	if err != nil {
		t.Fatalf("annotations: %v", err)
	}
	if len(list) != writers {
		t.Fatalf("expected %d annotations, got %d (lost update)", writers, len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Start > list[i].Start {
			t.Fatalf("list not sorted by start: %+v", list)
		}
	}
	for i := range list {
		for j := i + 1; j < len(list); j++ {
			if annot.Overlaps(list[i], list[j]) {
				t.Fatalf("overlap between %+v and %+v", list[i], list[j])
			}
		}
	}
}

func TestAnnotationsForUnseenDocumentIsEmpty(t *testing.T) {
	svc := newTestService(t)
	list, err := svc.Annotations(context.Background(), "avery", "never-seen.txt")
	if err != nil {
		t.Fatalf("annotations: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
}

func TestDeleteAnnotation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, a := range []annot.Annotation{
		{Start: 0, End: 2, Text: "aa", Label: "A"},
		{Start: 4, End: 6, Text: "bb", Label: "B"},
		{Start: 8, End: 10, Text: "cc", Label: "C"},
	} {
		if _, err := svc.SaveAnnotation(ctx, "avery", "doc.txt", a); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	if err := svc.DeleteAnnotation(ctx, "avery", "doc.txt", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ := svc.Annotations(ctx, "avery", "doc.txt")
	if len(list) != 2 || list[0].Label != "A" || list[1].Label != "C" {
		t.Fatalf("unexpected list after delete: %+v", list)
	}
}

func TestDeleteAnnotationOutOfRange(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SaveAnnotation(ctx, "avery", "doc.txt", annot.Annotation{Start: 0, End: 2}); err != nil {
		t.Fatalf("save: %v", err)
	}

	assertDomainStatus(t, svc.DeleteAnnotation(ctx, "avery", "doc.txt", 1), http.StatusNotFound)
	assertDomainStatus(t, svc.DeleteAnnotation(ctx, "avery", "doc.txt", -1), http.StatusNotFound)
	assertDomainStatus(t, svc.DeleteAnnotation(ctx, "avery", "missing.txt", 0), http.StatusNotFound)
}

func TestLabelLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.SetLabel(ctx, "avery", "PERSON", "#ff0000"); err != nil {
		t.Fatalf("set label: %v", err)
	}
	if err := svc.SetLabel(ctx, "avery", "PERSON", "#00ff00"); err != nil {
		t.Fatalf("update label: %v", err)
	}
	if err := svc.SetLabel(ctx, "avery", "PLACE", "#0000ff"); err != nil {
		t.Fatalf("set second label: %v", err)
	}

	labels, err := svc.Labels(ctx, "avery")
	if err != nil {
		t.Fatalf("labels: %v", err)
	}
	if len(labels) != 2 || labels["PERSON"] != "#00ff00" || labels["PLACE"] != "#0000ff" {
		t.Fatalf("unexpected labels %+v", labels)
	}

	if err := svc.DeleteLabel(ctx, "avery", "PERSON"); err != nil {
		t.Fatalf("delete label: %v", err)
	}
	assertDomainStatus(t, svc.DeleteLabel(ctx, "avery", "PERSON"), http.StatusNotFound)

	assertDomainStatus(t, svc.SetLabel(ctx, "avery", "  ", "#fff"), http.StatusBadRequest)
}

func TestNamespaceForIsDeterministic(t *testing.T) {
	a := namespaceFor("avery")
	if a != namespaceFor("avery") {
		t.Fatal("namespace must be stable")
	}
	if a == namespaceFor("blake") {
		t.Fatal("distinct users must map to distinct namespaces")
	}
	if strings.ContainsAny(a, "/\\.") {
		t.Fatalf("namespace %q must be path-safe", a)
	}
}

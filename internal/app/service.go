package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"notate/api/internal/annot"
	"notate/api/internal/archive"
	"notate/api/internal/config"
	"notate/api/internal/credentials"
	"notate/api/internal/export"
	"notate/api/internal/session"
	"notate/api/internal/store"
)

// Session is the resolved authentication context of a request.
type Session struct {
	Token    string
	Username string
}

// Document is the stored form of an uploaded text file. DocID equals
// the filename (or archive path) and is unique per user namespace.
type Document struct {
	DocID    string `json:"docId"`
	Filename string `json:"filename"`
	Text     string `json:"text"`
	Preview  string `json:"preview"`
}

// DocumentSummary is the listing shape: everything but the full text.
type DocumentSummary struct {
	DocID    string `json:"docId"`
	Filename string `json:"filename"`
	Preview  string `json:"preview"`
}

// IncomingFile is one uploaded file before it becomes a Document.
type IncomingFile struct {
	Name string
	Data []byte
}

const previewLength = 120

type Service struct {
	cfg      config.Config
	kv       store.KV
	creds    *credentials.Service
	sessions session.Registry

	// Serializes read-modify-write cycles per (namespace, store). The
	// whole mapping is persisted as one object, so the lock has to be
	// at least namespace-wide; per-document locking would let two
	// writers to different documents clobber each other's mapping.
	locks keyedMutex
}

func New(cfg config.Config, kv store.KV, creds *credentials.Service, sessions session.Registry) *Service {
	return &Service{
		cfg:      cfg,
		kv:       kv,
		creds:    creds,
		sessions: sessions,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// ── Auth ──

func (s *Service) Register(ctx context.Context, username, password string) error {
	err := s.creds.Register(ctx, username, password)
	switch {
	case errors.Is(err, credentials.ErrTaken):
		return conflict("USERNAME_EXISTS", "Username already registered")
	case errors.Is(err, credentials.ErrEmptyField):
		return validationError("username and password are required")
	case err != nil:
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	principal, err := s.creds.Verify(ctx, username, password)
	if errors.Is(err, credentials.ErrInvalidCredentials) {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}
	if err != nil {
		return Session{}, fmt.Errorf("verify credentials: %w", err)
	}

	token, err := s.sessions.Create(ctx, principal)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return Session{Token: token, Username: principal}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	username, err := s.sessions.Resolve(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		return Session{}, unauthorized()
	}
	if err != nil {
		return Session{}, fmt.Errorf("resolve session: %w", err)
	}
	return Session{Token: token, Username: username}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// namespaceFor maps a username to its isolated storage namespace. The
// digest keeps arbitrary usernames from colliding with or escaping the
// backing store's key space, and the mapping is deterministic so the
// namespace never has to be recorded anywhere.
func namespaceFor(username string) string {
	sum := sha256.Sum256([]byte(username))
	return hex.EncodeToString(sum[:8])
}

// ── Documents ──

func (s *Service) PutDocuments(ctx context.Context, principal string, files []IncomingFile) ([]DocumentSummary, error) {
	ns := namespaceFor(principal)
	unlock := s.locks.lock(ns + "/" + store.Documents)
	defer unlock()

	docs, err := s.kv.Load(ctx, store.Documents, ns)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	summaries := make([]DocumentSummary, 0, len(files))
	for _, f := range files {
		// Invalid UTF-8 sequences are dropped rather than rejected;
		// uploads are best-effort text.
		text := strings.ToValidUTF8(string(f.Data), "")
		doc := Document{
			DocID:    f.Name,
			Filename: f.Name,
			Text:     text,
			Preview:  makePreview(text),
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("marshal document %s: %w", f.Name, err)
		}
		docs[doc.DocID] = raw
		summaries = append(summaries, DocumentSummary{DocID: doc.DocID, Filename: doc.Filename, Preview: doc.Preview})
	}

	if err := s.kv.Save(ctx, store.Documents, ns, docs); err != nil {
		return nil, fmt.Errorf("save documents: %w", err)
	}
	return summaries, nil
}

// ImportArchive imports every plain-text entry of a zip archive as an
// independent document keyed by its archive path.
func (s *Service) ImportArchive(ctx context.Context, principal string, data []byte) ([]DocumentSummary, error) {
	entries, err := archive.ExtractTexts(data)
	if err != nil {
		return nil, validationError("payload is not a readable zip archive")
	}
	files := make([]IncomingFile, 0, len(entries))
	for _, e := range entries {
		files = append(files, IncomingFile{Name: e.Name, Data: e.Data})
	}
	return s.PutDocuments(ctx, principal, files)
}

func (s *Service) ListDocuments(ctx context.Context, principal string) ([]DocumentSummary, error) {
	docs, err := s.kv.Load(ctx, store.Documents, namespaceFor(principal))
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	summaries := make([]DocumentSummary, 0, len(docs))
	for _, raw := range docs {
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		summaries = append(summaries, DocumentSummary{DocID: doc.DocID, Filename: doc.Filename, Preview: doc.Preview})
	}
	// Callers must not rely on ordering; sorting just keeps responses
	// deterministic.
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].DocID < summaries[j].DocID })
	return summaries, nil
}

func (s *Service) DocumentText(ctx context.Context, principal, docID string) (string, error) {
	doc, err := s.getDocument(ctx, principal, docID)
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

func (s *Service) getDocument(ctx context.Context, principal, docID string) (Document, error) {
	docs, err := s.kv.Load(ctx, store.Documents, namespaceFor(principal))
	if err != nil {
		return Document{}, fmt.Errorf("load documents: %w", err)
	}
	raw, ok := docs[docID]
	if !ok {
		return Document{}, notFound("document not found")
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, notFound("document not found")
	}
	return doc, nil
}

func makePreview(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= previewLength {
		return collapsed
	}
	return string(runes[:previewLength]) + "..."
}

// ── Annotations ──

// SaveAnnotation runs the reconciliation cycle for one candidate span
// and returns the resulting list. Steps 2-6 of the cycle (load,
// reconcile, persist) are serialized per namespace.
func (s *Service) SaveAnnotation(ctx context.Context, principal, docID string, candidate annot.Annotation) ([]annot.Annotation, error) {
	if strings.TrimSpace(docID) == "" {
		return nil, validationError("docId is required")
	}
	if err := annot.Validate(candidate); err != nil {
		return nil, validationError("span must satisfy 0 <= start < end")
	}

	ns := namespaceFor(principal)
	unlock := s.locks.lock(ns + "/" + store.Annotations)
	defer unlock()

	mapping, err := s.kv.Load(ctx, store.Annotations, ns)
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}

	list := decodeAnnotationList(mapping[docID])
	list = annot.Reconcile(list, candidate)

	raw, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("marshal annotations: %w", err)
	}
	mapping[docID] = raw

	if err := s.kv.Save(ctx, store.Annotations, ns, mapping); err != nil {
		return nil, fmt.Errorf("save annotations: %w", err)
	}
	return list, nil
}

func (s *Service) Annotations(ctx context.Context, principal, docID string) ([]annot.Annotation, error) {
	mapping, err := s.kv.Load(ctx, store.Annotations, namespaceFor(principal))
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}
	return decodeAnnotationList(mapping[docID]), nil
}

func (s *Service) DeleteAnnotation(ctx context.Context, principal, docID string, index int) error {
	ns := namespaceFor(principal)
	unlock := s.locks.lock(ns + "/" + store.Annotations)
	defer unlock()

	mapping, err := s.kv.Load(ctx, store.Annotations, ns)
	if err != nil {
		return fmt.Errorf("load annotations: %w", err)
	}
	raw, ok := mapping[docID]
	if !ok {
		return notFound("annotation not found")
	}
	list := decodeAnnotationList(raw)
	if index < 0 || index >= len(list) {
		return notFound("annotation not found")
	}

	list = append(list[:index], list[index+1:]...)
	updated, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal annotations: %w", err)
	}
	mapping[docID] = updated

	if err := s.kv.Save(ctx, store.Annotations, ns, mapping); err != nil {
		return fmt.Errorf("save annotations: %w", err)
	}
	return nil
}

// decodeAnnotationList applies the same leniency as the stores: an
// absent or unreadable list is an empty one.
func decodeAnnotationList(raw json.RawMessage) []annot.Annotation {
	if len(raw) == 0 {
		return []annot.Annotation{}
	}
	var list []annot.Annotation
	if err := json.Unmarshal(raw, &list); err != nil || list == nil {
		return []annot.Annotation{}
	}
	return list
}

// ── Labels ──

func (s *Service) SetLabel(ctx context.Context, principal, name, color string) error {
	if strings.TrimSpace(name) == "" {
		return validationError("label name is required")
	}

	ns := namespaceFor(principal)
	unlock := s.locks.lock(ns + "/" + store.Labels)
	defer unlock()

	labels, err := s.kv.Load(ctx, store.Labels, ns)
	if err != nil {
		return fmt.Errorf("load labels: %w", err)
	}
	raw, err := json.Marshal(color)
	if err != nil {
		return fmt.Errorf("marshal label color: %w", err)
	}
	labels[name] = raw

	if err := s.kv.Save(ctx, store.Labels, ns, labels); err != nil {
		return fmt.Errorf("save labels: %w", err)
	}
	return nil
}

func (s *Service) Labels(ctx context.Context, principal string) (map[string]string, error) {
	labels, err := s.kv.Load(ctx, store.Labels, namespaceFor(principal))
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}

	result := make(map[string]string, len(labels))
	for name, raw := range labels {
		var color string
		if err := json.Unmarshal(raw, &color); err != nil {
			continue
		}
		result[name] = color
	}
	return result, nil
}

func (s *Service) DeleteLabel(ctx context.Context, principal, name string) error {
	ns := namespaceFor(principal)
	unlock := s.locks.lock(ns + "/" + store.Labels)
	defer unlock()

	labels, err := s.kv.Load(ctx, store.Labels, ns)
	if err != nil {
		return fmt.Errorf("load labels: %w", err)
	}
	if _, ok := labels[name]; !ok {
		return notFound("label not found")
	}
	delete(labels, name)

	if err := s.kv.Save(ctx, store.Labels, ns, labels); err != nil {
		return fmt.Errorf("save labels: %w", err)
	}
	return nil
}

// ── Exports ──

// ExportAnnotations renders a document's stored annotation list in the
// requested format. The DOCX and PDF reports require the document to
// exist even when it has no annotations; the JSON export mirrors the
// list endpoint and simply yields an empty array for unseen documents.
func (s *Service) ExportAnnotations(ctx context.Context, principal, docID string, format export.Format) (*export.Result, error) {
	switch format {
	case export.FormatJSON:
		anns, err := s.Annotations(ctx, principal, docID)
		if err != nil {
			return nil, err
		}
		return export.JSON(docID, anns)
	case export.FormatDOCX, export.FormatPDF:
		if _, err := s.getDocument(ctx, principal, docID); err != nil {
			return nil, err
		}
		anns, err := s.Annotations(ctx, principal, docID)
		if err != nil {
			return nil, err
		}
		if format == export.FormatDOCX {
			return export.DOCX(docID, anns)
		}
		return export.PDF(docID, anns)
	default:
		return nil, validationError("format must be json, docx, or pdf")
	}
}

// ── Locking ──

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for key, creating it on first use, and
// returns the release function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

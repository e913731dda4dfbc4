package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"notate/api/internal/annot"
	"notate/api/internal/export"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"store": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/register" {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.Register(r.Context(), body.Username, body.Password); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"username": body.Username})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Login(r.Context(), body.Username, body.Password)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":    session.Token,
			"username": session.Username,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		if token := bearerToken(r); token != "" {
			_ = s.service.Logout(r.Context(), token)
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "username": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "username": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "username": session.Username})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/upload" {
		file, ok := s.readUploadedFile(w, r, "file")
		if !ok {
			return
		}
		summaries, err := s.service.PutDocuments(r.Context(), session.Username, []IncomingFile{file})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": summaries})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/upload-zip" {
		file, ok := s.readUploadedFile(w, r, "file")
		if !ok {
			return
		}
		summaries, err := s.service.ImportArchive(r.Context(), session.Username, file.Data)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": summaries})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/upload-folder" {
		files, ok := s.readUploadedFiles(w, r, "files")
		if !ok {
			return
		}
		summaries, err := s.service.PutDocuments(r.Context(), session.Username, files)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": summaries})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/documents" {
		items, err := s.service.ListDocuments(r.Context(), session.Username)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list documents", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": items})
		return
	}

	parts := splitPath(r.URL.Path)

	// Document IDs may contain slashes (archive paths), so the ID is
	// the remainder of the path, not a single segment.
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "documents" && r.Method == http.MethodGet {
		docID := strings.Join(parts[2:], "/")
		text, err := s.service.DocumentText(r.Context(), session.Username, docID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"docId": docID, "text": text})
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "annotations" {
		s.handleAnnotations(w, r, session, parts)
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "labels" {
		s.handleLabels(w, r, session, parts)
		return
	}

	if len(parts) >= 4 && parts[0] == "api" && parts[1] == "export" {
		docID := strings.Join(parts[2:len(parts)-1], "/")
		format := export.Format(parts[len(parts)-1])
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		result, err := s.service.ExportAnnotations(r.Context(), session.Username, docID, format)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.Write(result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleAnnotations(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch r.Method {
	case http.MethodGet:
		docID := strings.Join(parts[2:], "/")
		items, err := s.service.Annotations(r.Context(), session.Username, docID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"annotations": items})
		return

	case http.MethodPost:
		docID := strings.Join(parts[2:], "/")
		var body struct {
			Start int    `json:"start"`
			End   int    `json:"end"`
			Text  string `json:"text"`
			Label string `json:"label"`
			Rank  string `json:"rank"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		candidate := annot.Annotation{Start: body.Start, End: body.End, Text: body.Text, Label: body.Label, Rank: body.Rank}
		items, err := s.service.SaveAnnotation(r.Context(), session.Username, docID, candidate)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"annotations": items})
		return

	case http.MethodDelete:
		// Last segment is the list index; everything before it is the
		// document ID.
		if len(parts) < 4 {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		index, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "index must be an integer", nil)
			return
		}
		docID := strings.Join(parts[2:len(parts)-1], "/")
		if err := s.service.DeleteAnnotation(r.Context(), session.Username, docID, index); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleLabels(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if r.Method == http.MethodGet && len(parts) == 2 {
		labels, err := s.service.Labels(r.Context(), session.Username)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"labels": labels})
		return
	}

	if r.Method == http.MethodPost && len(parts) == 2 {
		var body struct {
			Name  string `json:"name"`
			Color string `json:"color"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SetLabel(r.Context(), session.Username, body.Name, body.Color); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodDelete && len(parts) >= 3 {
		name := strings.Join(parts[2:], "/")
		if err := s.service.DeleteLabel(r.Context(), session.Username, name); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

// readUploadedFile extracts a single multipart file field, writing the
// error response itself on failure.
func (s *HTTPServer) readUploadedFile(w http.ResponseWriter, r *http.Request, field string) (IncomingFile, bool) {
	if err := r.ParseMultipartForm(s.service.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart payload", nil)
		return IncomingFile{}, false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("missing %s field", field), nil)
		return IncomingFile{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read upload", nil)
		return IncomingFile{}, false
	}
	return IncomingFile{Name: header.Filename, Data: data}, true
}

func (s *HTTPServer) readUploadedFiles(w http.ResponseWriter, r *http.Request, field string) ([]IncomingFile, bool) {
	if err := r.ParseMultipartForm(s.service.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart payload", nil)
		return nil, false
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("missing %s field", field), nil)
		return nil, false
	}

	var files []IncomingFile
	for _, header := range r.MultipartForm.File[field] {
		data, err := readMultipartFile(header)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read upload", nil)
			return nil, false
		}
		files = append(files, IncomingFile{Name: header.Filename, Data: data})
	}
	return files, true
}

func readMultipartFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export runtime not installed", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

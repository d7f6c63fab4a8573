// Package server exposes the question answering service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/soberano/soberano/internal/config"
	apperrors "github.com/soberano/soberano/internal/errors"
	"github.com/soberano/soberano/internal/extract"
	"github.com/soberano/soberano/internal/history"
	"github.com/soberano/soberano/internal/rag"
)

// maxUploadBytes caps one multipart upload.
const maxUploadBytes = 100 << 20

// Server is the HTTP front end.
type Server struct {
	svc     *rag.Service
	cfg     config.ServerConfig
	docsDir string
	http    *http.Server
}

// New builds the server. docsDir is where uploads are stored before
// ingestion.
func New(svc *rag.Service, cfg config.ServerConfig, docsDir string) *Server {
	s := &Server{svc: svc, cfg: cfg, docsDir: docsDir}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("GET /documents", s.handleListDocuments)
	mux.HandleFunc("DELETE /documents/{name}", s.handleDeleteDocument)
	mux.HandleFunc("POST /feedback", s.handleFeedback)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /conversations", s.handleListConversations)
	mux.HandleFunc("GET /conversations/{id}", s.handleConversation)

	rl := newRateLimiter(cfg.RateLimit, cfg.RateBurst)
	handler := chain(mux, recoveryMiddleware, loggingMiddleware, rl.middleware)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Generation against a local model can take minutes.
		WriteTimeout: 5 * time.Minute,
	}
	return s
}

// ListenAndServe runs until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	slog.Info("http server listening", "addr", s.cfg.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "soberano"})
}

// handleIngest accepts multipart uploads, stores them under docsDir and
// indexes them.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	var saved []string
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if !extract.Supported(name) {
			writeError(w, http.StatusBadRequest, "unsupported file type: "+name)
			return
		}
		dst := filepath.Join(s.docsDir, name)
		if err := saveUpload(fh, dst); err != nil {
			slog.Error("saving upload failed", "file", name, "error", err)
			writeError(w, http.StatusInternalServerError, "saving upload failed")
			return
		}
		saved = append(saved, dst)
	}

	results, err := s.svc.IngestFiles(r.Context(), saved)
	if err != nil {
		writeAppError(w, err)
		return
	}

	total := 0
	for _, res := range results {
		total += res.Added
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"chunks_indexed": total,
		"files":          results,
	})
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return err
	}
	return out.Close()
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req rag.AskRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	answer, err := s.svc.Ask(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"documents": s.svc.Documents()})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	removed, err := s.svc.Delete(r.Context(), name)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "chunks_removed": removed})
}

type feedbackRequest struct {
	ExchangeID string `json:"exchange_id"`
	Verdict    string `json:"verdict"`
	Comment    string `json:"comment,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := s.svc.Feedback(r.Context(), req.ExchangeID, history.Verdict(req.Verdict), req.Comment)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	status := s.svc.Status(r.Context())
	resp := map[string]any{"status": status}
	if h := s.svc.History(); h != nil {
		if fb, err := h.Feedback(r.Context()); err == nil {
			resp["feedback"] = fb
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	h := s.svc.History()
	if h == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	list, err := h.ListConversations(r.Context(), 50)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": list})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	h := s.svc.History()
	if h == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	exchanges, err := h.Conversation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exchanges": exchanges})
}

// writeAppError maps structured errors onto HTTP status codes.
func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	case apperrors.IsUserError(err):
		status = http.StatusBadRequest
	case apperrors.IsCode(err, apperrors.ErrCodeEncoderUnavailable),
		apperrors.IsCode(err, apperrors.ErrCodeGeneratorUnavailable):
		status = http.StatusServiceUnavailable
	case apperrors.IsCode(err, apperrors.ErrCodeModelTimeout):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}

	msg := err.Error()
	if appErr := new(apperrors.Error); errors.As(err, &appErr) {
		msg = appErr.Message
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
		"code":  apperrors.CodeOf(err),
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}

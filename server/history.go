package server

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hupe1980/fundmesh/transcript"
)

//go:embed web/index.html
var indexHTML []byte

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)
	r.Get("/history-content", s.handleHistoryContent)
	r.Post("/delete-history", s.handleDeleteHistory)

	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("OK"))
}

// handleHistoryContent serves a single record's content when the file query
// parameter is present, and the newest-first filename listing otherwise.
func (s *Server) handleHistoryContent(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("file")

	if name == "" {
		files, err := s.store.List()
		if err != nil {
			s.logger.Error("failed to list transcripts", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if files == nil {
			files = []string{}
		}
		writeJSON(w, map[string]any{"files": files})
		return
	}

	if !strings.HasSuffix(name, transcript.RecordExt) {
		http.Error(w, "Invalid file format", http.StatusBadRequest)
		return
	}

	content, err := s.store.Read(name)
	switch {
	case errors.Is(err, transcript.ErrPathViolation):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, transcript.ErrNotFound):
		http.Error(w, "File not found", http.StatusNotFound)
	case err != nil:
		s.logger.Error("failed to read transcript", "file", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(content))
	}
}

type deleteRequest struct {
	Files []string `json:"files"`
}

type failedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type deleteResponse struct {
	Success      bool         `json:"success"`
	DeletedFiles []string     `json:"deleted_files"`
	FailedFiles  []failedFile `json:"failed_files"`
	Message      string       `json:"message"`
}

// handleDeleteHistory removes the named records best effort and reports the
// per-file outcome; it never aborts on the first failure.
func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, map[string]any{"success": false, "message": "malformed request body"})
		return
	}
	if len(req.Files) == 0 {
		writeJSON(w, map[string]any{"success": false, "message": "no files specified"})
		return
	}

	res := s.store.Delete(req.Files)

	failed := make([]failedFile, 0, len(res.Failed))
	for name, reason := range res.Failed {
		failed = append(failed, failedFile{Filename: name, Reason: reason})
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].Filename < failed[j].Filename })

	writeJSON(w, deleteResponse{
		Success:      true,
		DeletedFiles: res.Deleted,
		FailedFiles:  failed,
		Message:      fmt.Sprintf("deleted %d files, %d failed", len(res.Deleted), len(res.Failed)),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

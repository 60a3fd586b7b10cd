package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"ragserver/internal/domain"
	"ragserver/internal/ingest"
	"ragserver/internal/retrieval"
)

// Server is the thin HTTP surface over the ingestion and retrieval
// pipelines. Validation errors map to 400; gateway failures map to 502
// with a fixed message that leaks nothing about the upstream service.
type Server struct {
	ingestion *ingest.Pipeline
	retrieval *retrieval.Pipeline
	docsDir   string
	log       *zap.Logger
}

func New(ing *ingest.Pipeline, ret *retrieval.Pipeline, docsDir string, log *zap.Logger) *Server {
	return &Server{ingestion: ing, retrieval: ret, docsDir: docsDir, log: log}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("GET /retrieve", s.handleRetrieve)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// handleIngest indexes the document directory. With ?rebuild=true the
// store is cleared first, replacing the index instead of appending
// duplicate chunks.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var (
		count   int
		err     error
		message = "ingestion complete"
	)
	if r.URL.Query().Get("rebuild") == "true" {
		count, err = s.ingestion.Rebuild(r.Context(), s.docsDir)
		message = "rebuild complete"
	} else {
		count, err = s.ingestion.Ingest(r.Context(), s.docsDir)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":           message,
		"documentsIngested": count,
	})
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	answer, err := s.retrieval.Ask(r.Context(), req.Question)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question": req.Question,
		"answer":   answer.Text,
	})
}

type retrievedDocument struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Similarity float32 `json:"similarity"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	question := r.URL.Query().Get("question")
	results, err := s.retrieval.Retrieve(r.Context(), question)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	docs := make([]retrievedDocument, len(results))
	for i, res := range results {
		docs[i] = retrievedDocument{
			Content:    res.Chunk.Text,
			Source:     res.Chunk.SourceID,
			Similarity: res.Score,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question":  question,
		"documents": docs,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail maps pipeline errors onto HTTP statuses without leaking upstream
// detail to clients.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "question cannot be empty")
	case errors.Is(err, domain.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, "invalid request configuration")
	case errors.Is(err, domain.ErrEmbedding):
		s.log.Error("embedding gateway failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadGateway, "embedding service unavailable")
	case errors.Is(err, domain.ErrGeneration):
		s.log.Error("generation gateway failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadGateway, "generation service unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

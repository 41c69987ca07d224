// Package server exposes the review workflow over HTTP: JSON endpoints
// for session control and a server-sent-events stream for execution.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/CAICAIIs/Auto-Scholar/review"
	"github.com/CAICAIIs/Auto-Scholar/stream"
)

// Server routes HTTP requests to the review service.
type Server struct {
	svc    *review.Service
	logger *zap.Logger
}

// New creates a server over the given service.
func New(svc *review.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, logger: logger}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/research/start", s.handleStart)
		r.Post("/research/{threadID}/approve", s.handleApprove)
		r.Get("/research/{threadID}/stream", s.handleStream)
		r.Post("/research/{threadID}/continue", s.handleContinue)
		r.Get("/research/{threadID}/status", s.handleStatus)
		r.Get("/research/{threadID}/export", s.handleExport)
		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/{threadID}", s.handleSession)
		r.Get("/models", s.handleModels)
	})
	return r
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req review.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := s.svc.Start(r.Context(), req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "workflow timed out before pausing")
			return
		}
		s.logger.Error("start failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type approveRequest struct {
	PaperIDs []string `json:"paper_ids"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	count, err := s.svc.Approve(r.Context(), threadID, req.PaperIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"thread_id":      threadID,
		"approved_count": count,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	q, err := s.svc.Stream(r.Context(), threadID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		ev, ok := q.Next(r.Context())
		if !ok {
			return
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if err := enc.Encode(ev); err != nil {
			return
		}
		// Encode already wrote the trailing newline; one more ends the frame.
		if _, err := w.Write([]byte("\n")); err != nil {
			return
		}
		flusher.Flush()

		if ev.Type == stream.EventCompleted || ev.Type == stream.EventError {
			return
		}
	}
}

type continueRequest struct {
	Query   string `json:"query"`
	ModelID string `json:"model_id"`
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var req continueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	if err := s.svc.Continue(r.Context(), threadID, req.Query, req.ModelID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"thread_id": threadID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Status(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Export(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.svc.Sessions(r.Context())
	if err != nil {
		s.logger.Error("listing sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.Session(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.svc.Models()})
}

// writeServiceError maps service sentinels to HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, review.ErrThreadNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, review.ErrNotAwaitingApproval),
		errors.Is(err, review.ErrNoMatchingPapers),
		errors.Is(err, review.ErrNoDraft):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
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

// ListenAndServe runs the server with sane timeouts. Write timeout stays
// zero: SSE streams outlive any fixed bound.
func (s *Server) ListenAndServe(addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("listening", zap.String("addr", addr))
	return srv.ListenAndServe()
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/babelmark/babelmark/internal/backend"
	"github.com/babelmark/babelmark/internal/config"
	"github.com/babelmark/babelmark/internal/segment"
	"github.com/babelmark/babelmark/internal/session"
)

type sessionRequest struct {
	Markdown       string                  `json:"markdown"`
	TargetLang     string                  `json:"targetLang"`
	Glossary       []backend.GlossaryEntry `json:"glossary"`
	ProtectedTerms []string                `json:"protectedTerms"`
	Options        config.Options          `json:"options"`
	Model          string                  `json:"model,omitempty"`
	Concurrency    json.RawMessage         `json:"concurrency,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	client, err := s.newClient(r, req.Model, s.instructions(req.TargetLang, req.Options, req.Glossary, req.ProtectedTerms))
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	sess, err := session.New(req.Markdown, req.Options.Segment())
	if errors.Is(err, segment.ErrNoSegments) {
		client.Close()
		jsonError(w, "No segments provided", http.StatusBadRequest)
		return
	}
	if err != nil {
		client.Close()
		s.log.Error("segmentation failed", "error", err)
		jsonError(w, "segmentation failed", http.StatusInternalServerError)
		return
	}

	concurrency := config.ResolveConcurrency(r.Header.Get(headerConcurrency), numberOrNil(req.Concurrency), s.cfg.Concurrency)
	if err := s.sessions.Submit(sess, client, concurrency); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id": sess.ID,
		"status":     session.StatusQueued,
		"segments":   len(sess.Segments()),
		"poll_url":   "/api/sessions/" + sess.ID,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if sess == nil {
		jsonError(w, session.ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSessionMarkdown(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if sess == nil {
		jsonError(w, session.ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(sess.Markdown()))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Cancel(chi.URLParam(r, "sessionID")); err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

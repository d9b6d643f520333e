package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/babelmark/babelmark/internal/backend"
	"github.com/babelmark/babelmark/internal/config"
	"github.com/babelmark/babelmark/internal/segment"
	"github.com/babelmark/babelmark/internal/translate"
)

// Request headers that override the server's provider defaults.
const (
	headerKey         = "x-openai-key"
	headerBase        = "x-openai-base"
	headerPath        = "x-openai-path"
	headerConcurrency = "x-openai-concurrency"
)

type translateRequest struct {
	Segments       []segment.Segment       `json:"segments"`
	TargetLang     string                  `json:"targetLang"`
	Glossary       []backend.GlossaryEntry `json:"glossary"`
	ProtectedTerms []string                `json:"protectedTerms"`
	Options        config.Options          `json:"options"`
	Model          string                  `json:"model,omitempty"`
	// Concurrency is honoured only when it is a JSON number.
	Concurrency json.RawMessage `json:"concurrency,omitempty"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	client, err := s.newClient(r, req.Model, s.instructions(req.TargetLang, req.Options, req.Glossary, req.ProtectedTerms))
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnauthorized)
		return
	}
	defer client.Close()

	if len(req.Segments) == 0 {
		jsonError(w, "No segments provided", http.StatusBadRequest)
		return
	}
	if err := segment.Validate(req.Segments); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	concurrency := config.ResolveConcurrency(r.Header.Get(headerConcurrency), numberOrNil(req.Concurrency), s.cfg.Concurrency)
	log := s.log.With("request_id", requestID(r), "segments", len(req.Segments), "concurrency", concurrency)

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	start := time.Now()
	var failed int
	for ev := range translate.Dispatch(r.Context(), req.Segments, client.Translate, concurrency) {
		if ev.Type == translate.EventError {
			failed++
		}
		if err := writeEvent(w, ev); err != nil {
			log.Warn("stream write failed", "error", err)
			break
		}
		_ = rc.Flush()
	}
	log.Info("translation stream finished",
		"failed", failed,
		"cancelled", r.Context().Err() != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// writeEvent writes one server-sent event frame.
func writeEvent(w http.ResponseWriter, ev translate.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

// newClient resolves provider settings for a request: headers first, then
// the server configuration.
func (s *Server) newClient(r *http.Request, model string, in backend.Instructions) (*backend.Client, error) {
	apiKey := headerOr(r, headerKey, s.cfg.OpenAIAPIKey)
	if apiKey == "" {
		return nil, config.ErrMissingAPIKey
	}
	if model == "" {
		model = s.cfg.OpenAIModel
	}
	return backend.NewClient(backend.Config{
		BaseURL:      headerOr(r, headerBase, s.cfg.OpenAIBaseURL),
		Path:         headerOr(r, headerPath, s.cfg.OpenAIPath),
		APIKey:       apiKey,
		Model:        model,
		SystemPrompt: backend.SystemPrompt(in),
		Timeout:      s.cfg.RequestTimeout,
		TPM:          s.cfg.TPM,
		MaxRetries:   s.cfg.MaxRetries,
	}, s.stats, s.log), nil
}

// instructions assembles the system message inputs, reading the base
// template from disk on every run so edits apply without a restart.
func (s *Server) instructions(targetLang string, opts config.Options, glossary []backend.GlossaryEntry, protected []string) backend.Instructions {
	base, err := backend.LoadBasePrompt(s.cfg.PromptFile)
	if err != nil {
		s.log.Warn("prompt file unreadable, using default", "path", s.cfg.PromptFile, "error", err)
	}
	return backend.Instructions{
		BaseTemplate:      base,
		TargetLang:        targetLang,
		Spellcheck:        opts.Spellcheck,
		PunctuationLocale: opts.PunctuationLocale,
		Glossary:          glossary,
		ProtectedTerms:    protected,
	}
}

func headerOr(r *http.Request, key, fallback string) string {
	if v := r.Header.Get(key); v != "" {
		return v
	}
	return fallback
}

func numberOrNil(raw json.RawMessage) *float64 {
	var f float64
	if len(raw) == 0 || json.Unmarshal(raw, &f) != nil {
		return nil
	}
	return &f
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

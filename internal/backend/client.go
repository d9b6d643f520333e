// Package backend talks to OpenAI-compatible chat completion endpoints and
// turns their streamed answers into translation events.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/babelmark/babelmark/internal/segment"
	"github.com/babelmark/babelmark/internal/translate"
)

// DefaultModel is used when neither the request nor the environment names one.
const DefaultModel = "gpt-4o-mini"

// Config describes one provider endpoint and the run-wide system message.
type Config struct {
	BaseURL string
	// Path overrides the chat completions path appended to BaseURL.
	Path   string
	APIKey string
	Model  string
	// SystemPrompt is sent with every segment request.
	SystemPrompt string
	// Timeout bounds a single segment stream. Zero means no limit.
	Timeout time.Duration
	// TPM paces requests by estimated tokens per minute. Zero disables pacing.
	TPM        int
	MaxRetries int
}

// Client streams segment translations from one endpoint.
type Client struct {
	url        string
	apiKey     string
	model      string
	system     string
	timeout    time.Duration
	maxRetries int

	httpClient *http.Client
	pacer      *pacer
	stats      *LLMStats
	log        *slog.Logger

	// backoff is replaceable in tests.
	backoff func(attempt int) time.Duration
}

// NewClient creates a client for cfg. stats may be nil.
func NewClient(cfg Config, stats *LLMStats, log *slog.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		url:        ResolveURL(base, cfg.Path),
		apiKey:     cfg.APIKey,
		model:      model,
		system:     cfg.SystemPrompt,
		timeout:    cfg.Timeout,
		maxRetries: max(cfg.MaxRetries, 0),
		// Streams can run for minutes; deadlines come from the context.
		httpClient: &http.Client{},
		pacer:      newPacer(cfg.TPM),
		stats:      stats,
		log:        log,
		backoff:    Backoff,
	}
}

// URL returns the resolved chat completions endpoint.
func (c *Client) URL() string { return c.url }

// chatRequest mirrors the provider's request body. Temperature is always sent,
// including zero.
type chatRequest struct {
	Model       string                         `json:"model"`
	Stream      bool                           `json:"stream"`
	Temperature float32                        `json:"temperature"`
	Messages    []openai.ChatCompletionMessage `json:"messages"`
}

// Translate streams the translation of seg. It satisfies translate.TranslateFunc.
//
// The sequence ends with exactly one done event. Any failure yields an error
// event carrying the best available message followed by done. When ctx is
// cancelled the sequence ends silently.
func (c *Client) Translate(ctx context.Context, seg segment.Segment) iter.Seq[translate.Event] {
	return func(yield func(translate.Event) bool) {
		rctx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		start := time.Now()
		failed := false
		fail := func(err error) {
			failed = true
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("segment translation failed", "segment_id", seg.ID, "error", err)
			if yield(translate.Error(seg.ID, eventMessage(err))) {
				yield(translate.Done(seg.ID))
			}
		}
		defer func() {
			if c.stats != nil && ctx.Err() == nil {
				c.stats.Record(time.Since(start), failed)
			}
		}()

		resp, err := c.open(rctx, seg.Text)
		if err != nil {
			fail(err)
			return
		}
		defer resp.Body.Close()

		if err := decodeStream(resp.Body, seg.ID, yield); err != nil {
			fail(err)
		}
	}
}

// open issues the streaming request, retrying transient statuses up to
// maxRetries times. On success the caller owns the response body.
func (c *Client) open(ctx context.Context, text string) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Stream:      true,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.system},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	tokens := EstimateTokens(c.system) + EstimateTokens(text)
	for attempt := 0; ; attempt++ {
		if err := c.pacer.wait(ctx, tokens); err != nil {
			return nil, err
		}
		resp, err := c.do(ctx, body)
		if err == nil {
			return resp, nil
		}
		if !IsRetryable(err) || attempt >= c.maxRetries {
			return nil, err
		}
		c.log.Warn("retryable upstream error", "attempt", attempt, "error", err)
		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) do(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return nil, statusError(resp.StatusCode, string(msg))
}

// eventMessage picks the text shown to clients for a failed segment.
func eventMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		if se.Message == "" {
			return "upstream error"
		}
		return se.Message
	}
	return err.Error()
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

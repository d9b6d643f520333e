package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/babelmark/babelmark/internal/segment"
	"github.com/babelmark/babelmark/internal/translate"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func chunk(t *testing.T, content string) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": content}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return "data: " + string(b) + "\n"
}

func drain(seq func(func(translate.Event) bool)) []translate.Event {
	var events []translate.Event
	for ev := range seq {
		events = append(events, ev)
	}
	return events
}

func seg(id, text string) segment.Segment {
	return segment.Segment{ID: id, Text: text, Kind: segment.KindText}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"https://api.openai.com", "", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/", "", "https://api.openai.com/v1/chat/completions"},
		{"https://api.deepseek.com/v1", "", "https://api.deepseek.com/v1/chat/completions"},
		{"https://open.bigmodel.cn/api/paas/v4", "", "https://open.bigmodel.cn/api/paas/v4/chat/completions"},
		{"https://x.io/v1/chat/completions", "", "https://x.io/v1/chat/completions"},
		{"https://x.io/V1/Chat/Completions/", "", "https://x.io/V1/Chat/Completions"},
		{"https://x.io", "custom/path", "https://x.io/custom/path"},
		{"https://x.io/", "/openai/deployments/chat", "https://x.io/openai/deployments/chat"},
	}
	for _, tt := range tests {
		if got := ResolveURL(tt.base, tt.path); got != tt.want {
			t.Errorf("ResolveURL(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
		}
	}
}

func TestLanguageLabel(t *testing.T) {
	tests := map[string]string{
		"fr":          "French",
		"de":          "German",
		"ja":          "Japanese",
		"":            "",
		"not a code!": "not a code!",
	}
	for code, want := range tests {
		if got := LanguageLabel(code); got != want {
			t.Errorf("LanguageLabel(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt(Instructions{TargetLang: "fr"})
	if !strings.HasPrefix(p, defaultInstruction+"\n") {
		t.Errorf("expected default instruction first, got %q", p)
	}
	for _, want := range []string{"Target language: French", "Do not change spelling", "␞ (U+241E)", "output only the translation"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	for _, absent := range []string{"Glossary", "Protected terms", "Localize punctuation"} {
		if strings.Contains(p, absent) {
			t.Errorf("prompt should not contain %q when unset", absent)
		}
	}

	p = SystemPrompt(Instructions{
		BaseTemplate:      "  Custom base.  \n",
		TargetLang:        "de",
		Spellcheck:        true,
		PunctuationLocale: "de",
		Glossary:          []GlossaryEntry{{Source: "cat", Target: "Katze"}, {Source: "dog", Target: "Hund"}},
		ProtectedTerms:    []string{"Go", "Kubernetes"},
	})
	for _, want := range []string{
		"Custom base.\nTarget language: German",
		"Lightly correct obvious spelling mistakes.",
		"Localize punctuation for German.",
		"Glossary (source = target, mandatory):\ncat = Katze\ndog = Hund",
		"Protected terms (keep unchanged, do not translate): Go, Kubernetes",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
	if strings.Contains(p, defaultInstruction) {
		t.Error("base template should replace the default instruction")
	}
}

func TestLoadBasePrompt_Missing(t *testing.T) {
	got, err := LoadBasePrompt(t.TempDir() + "/nope.txt")
	if err != nil || got != "" {
		t.Fatalf("expected empty template and no error, got %q, %v", got, err)
	}
}

func TestTranslate_StreamsDeltas(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, chunk(t, "Bon")+"\n")
		io.WriteString(w, ": keep-alive\n")
		io.WriteString(w, "data: not json\n")
		io.WriteString(w, "data: {\"choices\":[]}\n")
		io.WriteString(w, chunk(t, "jour"))
		io.WriteString(w, "data: [DONE]\n")
		io.WriteString(w, chunk(t, "ignored"))
	}))
	defer srv.Close()

	stats := NewLLMStats(time.Hour)
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "m1", SystemPrompt: "SYS"}, stats, quietLog)
	events := drain(c.Translate(context.Background(), seg("s1", "Hello")))

	want := []translate.Event{
		translate.Delta("s1", "Bon"),
		translate.Delta("s1", "jour"),
		translate.Done("s1"),
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: got %+v, want %+v", i, events[i], want[i])
		}
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotBody["model"] != "m1" || gotBody["stream"] != true {
		t.Errorf("unexpected body %v", gotBody)
	}
	if temp, ok := gotBody["temperature"]; !ok || temp != float64(0) {
		t.Errorf("expected temperature 0 to be sent, got %v (present=%v)", temp, ok)
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %v", gotBody["messages"])
	}
	sys := msgs[0].(map[string]any)
	user := msgs[1].(map[string]any)
	if sys["role"] != "system" || sys["content"] != "SYS" || user["role"] != "user" || user["content"] != "Hello" {
		t.Errorf("unexpected messages %v", msgs)
	}

	if snap := stats.Snapshot(); snap.Count != 1 || snap.Errors != 0 {
		t.Errorf("expected one successful sample, got %+v", snap)
	}
}

func TestTranslate_DoneAtEndOfBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, chunk(t, "a"))
		io.WriteString(w, strings.TrimSuffix(chunk(t, "unterminated"), "\n"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "k"}, nil, quietLog)
	events := drain(c.Translate(context.Background(), seg("s2", "x")))
	if len(events) != 2 || events[0] != translate.Delta("s2", "a") || events[1] != translate.Done("s2") {
		t.Errorf("expected delta then done, got %+v", events)
	}
}

func TestTranslate_HTTPErrorYieldsErrorThenDone(t *testing.T) {
	tests := []struct {
		name, body, want string
	}{
		{"with body", "model overloaded", "model overloaded"},
		{"empty body", "", "upstream error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			stats := NewLLMStats(time.Hour)
			c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, stats, quietLog)
			events := drain(c.Translate(context.Background(), seg("s3", "x")))

			if len(events) != 2 {
				t.Fatalf("expected exactly 2 events, got %+v", events)
			}
			if events[0] != translate.Error("s3", tt.want) {
				t.Errorf("unexpected error event %+v", events[0])
			}
			if events[1] != translate.Done("s3") {
				t.Errorf("expected done, got %+v", events[1])
			}
			if snap := stats.Snapshot(); snap.Errors != 1 {
				t.Errorf("expected one failed sample, got %+v", snap)
			}
		})
	}
}

func TestTranslate_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, chunk(t, "ok")+"data: [DONE]\n")
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", MaxRetries: 2}, nil, quietLog)
	c.backoff = func(int) time.Duration { return 0 }

	events := drain(c.Translate(context.Background(), seg("s1", "x")))
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
	if len(events) != 2 || events[0] != translate.Delta("s1", "ok") {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestTranslate_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", MaxRetries: 3}, nil, quietLog)
	c.backoff = func(int) time.Duration { return 0 }

	events := drain(c.Translate(context.Background(), seg("s1", "x")))
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
	if len(events) != 2 || events[0].Type != translate.EventError || !strings.Contains(events[0].Message, "bad key") {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestTranslate_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url, APIKey: "k"}, nil, quietLog)
	events := drain(c.Translate(context.Background(), seg("s9", "x")))
	if len(events) != 2 || events[0].Type != translate.EventError || events[0].Message == "" || events[1] != translate.Done("s9") {
		t.Errorf("expected error then done, got %+v", events)
	}
}

func TestTranslate_CancelledIsSilent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, chunk(t, "x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, nil, quietLog)
	if events := drain(c.Translate(ctx, seg("s1", "x"))); len(events) != 0 {
		t.Errorf("expected no events after cancellation, got %+v", events)
	}
}

func TestDecodeStream_SplitReads(t *testing.T) {
	body := chunk(t, "He") + "\r\n" + chunk(t, "llo") + "data: [DONE]\r\n"
	var events []translate.Event
	err := decodeStream(iotest.OneByteReader(strings.NewReader(body)), "s1", func(ev translate.Event) bool {
		events = append(events, ev)
		return true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 3 || events[0].Delta != "He" || events[1].Delta != "llo" || events[2].Type != translate.EventDone {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestDecodeStream_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader(chunk(t, "a")), iotest.ErrReader(boom))
	var events []translate.Event
	err := decodeStream(r, "s1", func(ev translate.Event) bool {
		events = append(events, ev)
		return true
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected read error, got %v", err)
	}
	if len(events) != 1 || events[0].Type != translate.EventDelta {
		t.Errorf("expected only the delta before the failure, got %+v", events)
	}
}

func TestStatusErrors(t *testing.T) {
	if !IsRetryable(statusError(http.StatusTooManyRequests, "")) {
		t.Error("429 should be retryable")
	}
	if !IsRetryable(statusError(http.StatusBadGateway, "")) {
		t.Error("502 should be retryable")
	}
	if IsRetryable(statusError(http.StatusBadRequest, "")) {
		t.Error("400 should not be retryable")
	}
	var se *StatusError
	if !errors.As(statusError(http.StatusServiceUnavailable, "busy"), &se) || se.Message != "busy" {
		t.Error("retryable error should unwrap to StatusError")
	}
}

func TestEstimateTokensAndPacer(t *testing.T) {
	if EstimateTokens("") != 0 {
		t.Error("empty text should be zero tokens")
	}
	if EstimateTokens("x") != 1 {
		t.Error("short text should be at least one token")
	}
	if got := EstimateTokens("one two three four five six"); got != 7 {
		t.Errorf("expected 7 tokens, got %d", got)
	}

	if newPacer(0) != nil {
		t.Error("zero TPM should disable pacing")
	}
	var p *pacer
	if err := p.wait(context.Background(), 1000); err != nil {
		t.Errorf("nil pacer should not wait: %v", err)
	}

	p = newPacer(600)
	start := time.Now()
	if err := p.wait(context.Background(), 5000); err != nil {
		t.Fatalf("oversized request should be clamped: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("first request should use the initial burst")
	}
}

func TestBackoff(t *testing.T) {
	for _, attempt := range []int{-1, 0, 1, 4, 5, 33, 34, 40, 64, 1 << 20} {
		d := Backoff(attempt)
		if d < time.Second || d >= 45*time.Second {
			t.Errorf("Backoff(%d) = %v, want within [1s, 45s)", attempt, d)
		}
	}
	if d := Backoff(64); d < 30*time.Second {
		t.Errorf("late attempts should use the 30s cap, got %v", d)
	}
}

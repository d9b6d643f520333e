package backend

import (
	"context"
	"strings"

	"golang.org/x/time/rate"
)

// EstimateTokens gives a rough token count from the word count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	// Roughly 0.75 tokens per word for English text.
	tokens := int(float64(len(strings.Fields(text))) * 1.33)
	return max(tokens, 1)
}

// pacer spreads requests to stay under a tokens-per-minute budget.
// A nil pacer never waits.
type pacer struct {
	lim *rate.Limiter
}

func newPacer(tpm int) *pacer {
	if tpm <= 0 {
		return nil
	}
	return &pacer{lim: rate.NewLimiter(rate.Limit(float64(tpm)/60), tpm)}
}

// wait blocks until n tokens are available. Requests larger than the whole
// budget wait for a full bucket instead of failing.
func (p *pacer) wait(ctx context.Context, n int) error {
	if p == nil || n <= 0 {
		return nil
	}
	return p.lim.WaitN(ctx, min(n, p.lim.Burst()))
}

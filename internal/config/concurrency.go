package config

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/babelmark/babelmark/internal/translate"
)

var leadingInt = regexp.MustCompile(`^\s*[+-]?\d+`)

// ResolveConcurrency picks the worker count for one request. The first usable
// value wins: the per-request override, the payload value, then the
// environment default, then translate.DefaultConcurrency. Fractions are
// floored and the result is clamped to the dispatcher's bounds.
func ResolveConcurrency(override string, payload *float64, env string) int {
	if n, ok := parseInt(override); ok {
		return translate.ClampConcurrency(n)
	}
	if payload != nil && !math.IsNaN(*payload) && !math.IsInf(*payload, 0) {
		f := math.Floor(*payload)
		f = math.Max(translate.MinConcurrency, math.Min(f, translate.MaxConcurrency))
		return int(f)
	}
	if n, ok := parseInt(env); ok {
		return translate.ClampConcurrency(n)
	}
	return translate.DefaultConcurrency
}

// parseInt reads the leading integer of s, ignoring any trailing text, so
// "4.5" and "8 workers" parse as 4 and 8.
func parseInt(s string) (int, bool) {
	m := strings.TrimSpace(leadingInt.FindString(s))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		// Out of int range; clamping only needs the sign.
		if strings.HasPrefix(m, "-") {
			return translate.MinConcurrency, true
		}
		return translate.MaxConcurrency, true
	}
	return n, true
}

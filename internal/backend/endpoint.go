package backend

import (
	"regexp"
	"strings"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "https://api.openai.com"

var (
	chatPathRe    = regexp.MustCompile(`(?i)/chat/completions$`)
	versionTailRe = regexp.MustCompile(`(?i)/(v\d+|api/paas/v\d+)$`)
)

// ResolveURL builds the chat completions endpoint from a base URL and an
// optional path override. Bases that already end in a version segment such as
// /v1 or /api/paas/v4 get /chat/completions appended directly; other bases get
// /v1/chat/completions.
func ResolveURL(base, pathOverride string) string {
	url := strings.TrimSuffix(base, "/")
	if pathOverride != "" {
		if !strings.HasPrefix(pathOverride, "/") {
			pathOverride = "/" + pathOverride
		}
		return url + pathOverride
	}
	switch {
	case chatPathRe.MatchString(url):
		return url
	case versionTailRe.MatchString(url):
		return url + "/chat/completions"
	default:
		return url + "/v1/chat/completions"
	}
}

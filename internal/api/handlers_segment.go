package api

import (
	"encoding/json"
	"net/http"

	"github.com/babelmark/babelmark/internal/config"
	"github.com/babelmark/babelmark/internal/mdtree"
	"github.com/babelmark/babelmark/internal/segment"
)

type segmentRequest struct {
	Markdown string         `json:"markdown"`
	Options  config.Options `json:"options"`
}

// handleSegment splits a document so thin clients can drive /api/translate
// themselves.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var req segmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	doc := mdtree.Parse([]byte(req.Markdown))
	res := segment.Split(doc, req.Options.Segment())
	segs := res.Segments
	if segs == nil {
		segs = []segment.Segment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"segments":          segs,
		"count":             len(segs),
		"front_matter_keys": doc.FrontMatterKeys,
	})
}

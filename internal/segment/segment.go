// Package segment splits a Markdown document into independently translatable
// units and writes translations back into the document.
package segment

import (
	"strconv"
	"strings"

	"github.com/babelmark/babelmark/internal/mdtree"
)

// Sep joins the values of several text nodes inside one segment. It is a
// printable-looking control picture (U+241E) that does not occur in normal
// prose, so the translated text can be split back per node.
const Sep = "␞"

// Kind is the segment kind.
type Kind string

const (
	KindText     Kind = "text"
	KindImageAlt Kind = "image-alt"
)

// Segment is one unit sent to the translation backend.
type Segment struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

// Entry records where a segment's translation is written back.
type Entry struct {
	Kind  Kind
	Nodes []mdtree.NodeID
	// Source holds the original value of each node, in the same order.
	Source []string
}

// Index maps segment IDs to the nodes that receive their translation.
type Index map[string]Entry

// Result is the output of a segmentation pass.
type Result struct {
	Segments []Segment
	Index    Index
}

// Split walks doc in pre-order and extracts translatable segments.
//
// Paragraphs, headings, list items and table cells each produce at most one
// text segment holding every descendant text node that is not inside code or
// an excluded link. A text node belongs to the outermost container that
// collects it; nested containers skip nodes already claimed. Image alt text
// produces its own segment when enabled, unless the image sits inside code or
// an excluded link. Text and image IDs come from separate counters with
// distinct prefixes ("s1", "img1").
func Split(doc *mdtree.Document, opts Options) Result {
	res := Result{Index: make(Index)}
	claimed := make([]bool, len(doc.Nodes))
	var textSeq, imageSeq int

	doc.Walk(mdtree.Root, func(id mdtree.NodeID, n *mdtree.Node) bool {
		switch {
		case opts.excluded(n):
			return false
		case isContainer(n):
			nodes := collect(doc, id, opts, claimed)
			if len(nodes) == 0 {
				break
			}
			values := make([]string, len(nodes))
			for i, nid := range nodes {
				values[i] = doc.Node(nid).Value
			}
			text := strings.Join(values, Sep)
			if !hasText(text) {
				break
			}
			for _, nid := range nodes {
				claimed[nid] = true
			}
			textSeq++
			sid := "s" + strconv.Itoa(textSeq)
			res.Segments = append(res.Segments, Segment{ID: sid, Text: text, Kind: KindText})
			res.Index[sid] = Entry{Kind: KindText, Nodes: nodes, Source: values}
		case opts.translatesAlt(n):
			imageSeq++
			sid := "img" + strconv.Itoa(imageSeq)
			res.Segments = append(res.Segments, Segment{ID: sid, Text: n.Alt, Kind: KindImageAlt})
			res.Index[sid] = Entry{Kind: KindImageAlt, Nodes: []mdtree.NodeID{id}, Source: []string{n.Alt}}
		}
		return true
	})

	return res
}

// collect gathers unclaimed, non-blank text nodes under id in document order.
func collect(doc *mdtree.Document, id mdtree.NodeID, opts Options, claimed []bool) []mdtree.NodeID {
	var out []mdtree.NodeID
	doc.Walk(id, func(nid mdtree.NodeID, n *mdtree.Node) bool {
		if opts.excluded(n) {
			return false
		}
		if n.Kind == mdtree.KindText && !claimed[nid] && hasText(n.Value) {
			out = append(out, nid)
		}
		return true
	})
	return out
}

func hasText(s string) bool {
	return strings.TrimSpace(s) != ""
}

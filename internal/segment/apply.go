package segment

import (
	"fmt"
	"strings"

	"github.com/babelmark/babelmark/internal/mdtree"
)

// Apply writes the accumulated translations into the indexed nodes of doc.
//
// Each indexed node is recomputed from its source value and the current
// translation, so calling Apply repeatedly with a growing translation map is
// safe and calling it twice with the same map is a no-op the second time.
//
// A text translation is split on Sep. When the part count equals the node
// count, parts are assigned in order. Otherwise the whole translation goes to
// the first node and the remaining nodes keep their source text. Segments
// without a translation keep their source text.
func Apply(doc *mdtree.Document, idx Index, translations map[string]string) {
	for id, e := range idx {
		t := translations[id]
		if e.Kind == KindImageAlt {
			for i, nid := range e.Nodes {
				v := e.Source[i]
				if t != "" {
					v = t
				}
				doc.Node(nid).Alt = v
			}
			continue
		}

		parts := strings.Split(t, Sep)
		for i, nid := range e.Nodes {
			v := e.Source[i]
			switch {
			case t == "":
			case len(parts) == len(e.Nodes):
				v = parts[i]
			case i == 0:
				v = t
			}
			doc.Node(nid).Value = v
		}
	}
}

// Validate checks that every entry refers to nodes of doc with the expected kind.
func (idx Index) Validate(doc *mdtree.Document) error {
	for id, e := range idx {
		if len(e.Nodes) == 0 {
			return fmt.Errorf("segment %s: no nodes", id)
		}
		if len(e.Source) != len(e.Nodes) {
			return fmt.Errorf("segment %s: %d source values for %d nodes", id, len(e.Source), len(e.Nodes))
		}
		want := mdtree.KindText
		if e.Kind == KindImageAlt {
			want = mdtree.KindImage
		}
		for _, nid := range e.Nodes {
			if !doc.Valid(nid) {
				return fmt.Errorf("segment %s: node %d out of range", id, nid)
			}
			if k := doc.Node(nid).Kind; k != want {
				return fmt.Errorf("segment %s: node %d is %s, want %s", id, nid, k, want)
			}
		}
	}
	return nil
}

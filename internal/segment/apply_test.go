package segment

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/babelmark/babelmark/internal/mdtree"
)

const sample = "# Title\n\nHello **world**.\n"

func TestApply_PartialTranslations(t *testing.T) {
	doc, res := split(t, sample, DefaultOptions())

	Apply(doc, res.Index, map[string]string{"s1": "Titre"})
	if got, want := mdtree.Render(doc), "# Titre\n\nHello **world**.\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestApply_SeparatorMismatchFallsBack(t *testing.T) {
	doc, res := split(t, sample, DefaultOptions())

	Apply(doc, res.Index, map[string]string{"s2": "Bonjour monde."})
	if got, want := mdtree.Render(doc), "# Title\n\nBonjour monde.**world**.\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestApply_Idempotent(t *testing.T) {
	doc, res := split(t, sample, DefaultOptions())
	tr := map[string]string{"s1": "Titre", "s2": "Bonjour " + Sep + "monde" + Sep + "."}

	Apply(doc, res.Index, tr)
	first := mdtree.Render(doc)
	Apply(doc, res.Index, tr)
	if second := mdtree.Render(doc); second != first {
		t.Errorf("second apply changed output: %q vs %q", first, second)
	}
}

func TestApply_RecomputesFromSource(t *testing.T) {
	doc, res := split(t, sample, DefaultOptions())

	// A fallback followed by a matching translation must not keep stale values.
	Apply(doc, res.Index, map[string]string{"s2": "Bonj"})
	Apply(doc, res.Index, map[string]string{"s2": "Bonjour " + Sep + "monde" + Sep + "!"})
	if got, want := mdtree.Render(doc), "# Title\n\nBonjour **monde**!\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestApply_EmptyTranslationKeepsSource(t *testing.T) {
	doc, res := split(t, sample, DefaultOptions())

	Apply(doc, res.Index, map[string]string{"s1": ""})
	if got := mdtree.Render(doc); got != sample {
		t.Errorf("expected source unchanged, got %q", got)
	}
}

func TestApply_UnknownIDsIgnored(t *testing.T) {
	doc, res := split(t, sample, DefaultOptions())

	Apply(doc, res.Index, map[string]string{"s99": "nope", "img4": "nope"})
	if got := mdtree.Render(doc); got != sample {
		t.Errorf("expected source unchanged, got %q", got)
	}
}

func TestIndexValidate(t *testing.T) {
	doc, res := split(t, sample, DefaultOptions())

	bad := Index{"s1": Entry{Kind: KindText, Nodes: []mdtree.NodeID{mdtree.NodeID(len(doc.Nodes) + 5)}, Source: []string{"x"}}}
	if err := bad.Validate(doc); err == nil {
		t.Error("expected out of range error")
	}

	wrongKind := Index{"img1": Entry{Kind: KindImageAlt, Nodes: res.Index["s1"].Nodes, Source: res.Index["s1"].Source}}
	if err := wrongKind.Validate(doc); err == nil {
		t.Error("expected kind mismatch error")
	}

	short := Index{"s2": Entry{Kind: KindText, Nodes: res.Index["s2"].Nodes, Source: []string{"x"}}}
	if err := short.Validate(doc); err == nil {
		t.Error("expected source length error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		segs    []Segment
		wantErr string
	}{
		{"ok", []Segment{{ID: "s1", Text: "a"}, {ID: "img1", Text: "b", Kind: KindImageAlt}}, ""},
		{"empty", nil, "no segments"},
		{"missing id", []Segment{{ID: "  ", Text: "a"}}, "missing id"},
		{"duplicate", []Segment{{ID: "s1"}, {ID: "s1"}}, "duplicate"},
		{"bad kind", []Segment{{ID: "s1", Kind: "video"}}, "unknown kind"},
		{"too large", []Segment{{ID: "s1", Text: strings.Repeat("x", MaxSegmentBytes+1)}}, "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.segs)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if err := Validate(nil); !errors.Is(err, ErrNoSegments) {
		t.Errorf("expected ErrNoSegments, got %v", err)
	}
}

// outline lists the non-text node kinds of doc in document order.
func outline(doc *mdtree.Document) string {
	var kinds []string
	doc.Walk(mdtree.Root, func(_ mdtree.NodeID, n *mdtree.Node) bool {
		if n.Kind != mdtree.KindText {
			kinds = append(kinds, n.Kind.String())
		}
		return true
	})
	return strings.Join(kinds, " ")
}

// blockTexts returns the text of every paragraph, heading and table cell,
// writing line breaks as "\n".
func blockTexts(doc *mdtree.Document) []string {
	var out []string
	doc.Walk(mdtree.Root, func(id mdtree.NodeID, n *mdtree.Node) bool {
		if !isContainer(n) || n.Kind == mdtree.KindListItem {
			return true
		}
		var sb strings.Builder
		doc.Walk(id, func(_ mdtree.NodeID, c *mdtree.Node) bool {
			if c.Kind == mdtree.KindText {
				sb.WriteString(c.Value)
				if c.SoftBreak || c.HardBreak {
					sb.WriteByte('\n')
				}
			}
			return true
		})
		out = append(out, sb.String())
		return false
	})
	return out
}

func TestApply_MarkdownInTranslationKeepsStructure(t *testing.T) {
	input := "| cell | x |\n| --- | --- |\n| y | z |\n\nFirst paragraph.\n\n# Title\n\nPlain *emph* text.\n"
	doc, res := split(t, input, DefaultOptions())
	if len(res.Segments) != 7 {
		t.Fatalf("expected 7 segments, got %+v", res.Segments)
	}

	Apply(doc, res.Index, map[string]string{
		"s1": "a | b",
		"s5": "1. Erster Absatz",
		"s6": "Titel\nzweite Zeile #",
		"s7": "- [nicht](ein Link) " + Sep + "`tick`" + Sep + " **fett** _x_ > y\n\n## kein Titel",
	})
	out := mdtree.Render(doc)

	back := mdtree.Parse([]byte(out))
	if got, want := outline(back), outline(mdtree.Parse([]byte(input))); got != want {
		t.Fatalf("structure changed\nwant: %s\ngot:  %s\nmarkdown: %q", want, got, out)
	}

	want := []string{
		"a | b", "x", "y", "z",
		"1. Erster Absatz",
		"Titel zweite Zeile #",
		"- [nicht](ein Link) `tick` **fett** _x_ > y\n## kein Titel",
	}
	got := blockTexts(back)
	if !slices.Equal(got, want) {
		t.Errorf("unexpected texts after reparse\nwant: %q\ngot:  %q", want, got)
	}
}

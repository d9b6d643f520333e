package segment

import (
	"strings"
	"testing"

	"github.com/babelmark/babelmark/internal/mdtree"
)

func split(t *testing.T, input string, opts Options) (*mdtree.Document, Result) {
	t.Helper()
	doc := mdtree.Parse([]byte(input))
	res := Split(doc, opts)
	if err := res.Index.Validate(doc); err != nil {
		t.Fatalf("index invalid: %v", err)
	}
	return doc, res
}

func TestSplit_HeadingAndParagraph(t *testing.T) {
	_, res := split(t, "# Title\n\nHello **world**.\n", Options{TranslateLinkText: true})

	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(res.Segments), res.Segments)
	}
	if res.Segments[0].ID != "s1" || res.Segments[0].Text != "Title" {
		t.Errorf("unexpected heading segment %+v", res.Segments[0])
	}
	want := "Hello " + Sep + "world" + Sep + "."
	if res.Segments[1].ID != "s2" || res.Segments[1].Text != want {
		t.Errorf("expected paragraph segment %q, got %+v", want, res.Segments[1])
	}
	if res.Segments[1].Kind != KindText {
		t.Errorf("expected kind %q, got %q", KindText, res.Segments[1].Kind)
	}
	if n := len(res.Index["s2"].Nodes); n != 3 {
		t.Errorf("expected 3 indexed nodes for s2, got %d", n)
	}
}

func TestSplit_EndToEndTranslation(t *testing.T) {
	doc, res := split(t, "# Title\n\nHello **world**.\n", Options{TranslateLinkText: true})

	Apply(doc, res.Index, map[string]string{
		"s1": "Titre",
		"s2": "Bonjour " + Sep + "monde" + Sep + ".",
	})

	want := "# Titre\n\nBonjour **monde**.\n"
	if got := mdtree.Render(doc); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSplit_CodeNeverSegmented(t *testing.T) {
	input := "Run `rm -rf` now.\n\n```\nsecret code\n```\n"
	_, res := split(t, input, Options{TranslateLinkText: true, TranslateImageAlt: true})

	for _, s := range res.Segments {
		if strings.Contains(s.Text, "rm -rf") || strings.Contains(s.Text, "secret code") {
			t.Errorf("segment %s contains code: %q", s.ID, s.Text)
		}
	}
	if len(res.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(res.Segments))
	}
	if want := "Run " + Sep + " now."; res.Segments[0].Text != want {
		t.Errorf("expected %q, got %q", want, res.Segments[0].Text)
	}
}

func TestSplit_OnlyCodeProducesNothing(t *testing.T) {
	_, res := split(t, "`code only`\n", DefaultOptions())
	if len(res.Segments) != 0 {
		t.Errorf("expected no segments, got %+v", res.Segments)
	}
}

func TestSplit_LinkTextExcluded(t *testing.T) {
	input := "Read [the guide](https://x.io/g) today.\n"
	doc, res := split(t, input, Options{TranslateLinkText: false})

	if len(res.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(res.Segments))
	}
	if strings.Contains(res.Segments[0].Text, "the guide") {
		t.Errorf("link text leaked into segment: %q", res.Segments[0].Text)
	}

	Apply(doc, res.Index, map[string]string{"s1": "Lisez " + Sep + " aujourd'hui."})
	got := mdtree.Render(doc)
	if want := "Lisez [the guide](https://x.io/g) aujourd'hui.\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSplit_LinkTextIncluded(t *testing.T) {
	_, res := split(t, "Read [the guide](https://x.io/g) today.\n", Options{TranslateLinkText: true})
	want := "Read " + Sep + "the guide" + Sep + " today."
	if len(res.Segments) != 1 || res.Segments[0].Text != want {
		t.Fatalf("expected single segment %q, got %+v", want, res.Segments)
	}
}

func TestSplit_ImageAlt(t *testing.T) {
	input := "![A cat](cat.png)\n"

	_, res := split(t, input, Options{})
	if len(res.Segments) != 0 {
		t.Fatalf("expected no segments with alt translation off, got %+v", res.Segments)
	}

	doc, res := split(t, input, Options{TranslateImageAlt: true})
	if len(res.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %+v", res.Segments)
	}
	seg := res.Segments[0]
	if seg.ID != "img1" || seg.Kind != KindImageAlt || seg.Text != "A cat" {
		t.Errorf("unexpected image segment %+v", seg)
	}

	Apply(doc, res.Index, map[string]string{"img1": "Un chat"})
	if got := mdtree.Render(doc); got != "![Un chat](cat.png)\n" {
		t.Errorf("unexpected render %q", got)
	}
}

func TestSplit_ImageInsideExcludedLink(t *testing.T) {
	input := "Badge [![build](b.svg)](https://ci.example) here.\n"

	_, res := split(t, input, Options{TranslateImageAlt: true})
	for _, s := range res.Segments {
		if s.Kind == KindImageAlt {
			t.Errorf("image inside an excluded link produced segment %+v", s)
		}
	}

	_, res = split(t, input, Options{TranslateLinkText: true, TranslateImageAlt: true})
	var alts int
	for _, s := range res.Segments {
		if s.Kind == KindImageAlt && s.Text == "build" {
			alts++
		}
	}
	if alts != 1 {
		t.Errorf("expected the badge alt once with link text enabled, got %+v", res.Segments)
	}
}

func TestSplit_SeparateIDSequences(t *testing.T) {
	_, res := split(t, "Intro ![pic](p.png) end\n\nMore.\n", Options{TranslateImageAlt: true})

	ids := make([]string, len(res.Segments))
	for i, s := range res.Segments {
		ids[i] = s.ID
	}
	if strings.Join(ids, ",") != "s1,img1,s2" {
		t.Errorf("expected ids s1,img1,s2 in document order, got %v", ids)
	}
}

func TestSplit_NestedListNotDoubleCollected(t *testing.T) {
	doc, res := split(t, "- parent\n  - child\n", DefaultOptions())

	if len(res.Segments) != 1 {
		t.Fatalf("expected 1 segment for nested list, got %d: %+v", len(res.Segments), res.Segments)
	}
	if want := "parent" + Sep + "child"; res.Segments[0].Text != want {
		t.Errorf("expected %q, got %q", want, res.Segments[0].Text)
	}

	seen := map[mdtree.NodeID]int{}
	for _, e := range res.Index {
		for _, id := range e.Nodes {
			seen[id]++
		}
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("node %d claimed by %d segments", id, n)
		}
	}

	Apply(doc, res.Index, map[string]string{"s1": "parent-fr" + Sep + "enfant"})
	if got := mdtree.Render(doc); got != "- parent-fr\n  - enfant\n" {
		t.Errorf("unexpected render %q", got)
	}
}

func TestSplit_TableCells(t *testing.T) {
	_, res := split(t, "| Name | Value |\n| --- | --- |\n| foo | bar |\n", DefaultOptions())

	var texts []string
	for _, s := range res.Segments {
		texts = append(texts, s.Text)
	}
	if strings.Join(texts, ",") != "Name,Value,foo,bar" {
		t.Errorf("unexpected cell segments %v", texts)
	}
}

func TestSplit_FrontMatterUntouched(t *testing.T) {
	_, res := split(t, "---\ntitle: Keep me\n---\n\nTranslate me.\n", DefaultOptions())
	if len(res.Segments) != 1 || res.Segments[0].Text != "Translate me." {
		t.Errorf("expected only the body paragraph, got %+v", res.Segments)
	}
}

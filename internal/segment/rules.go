package segment

import "github.com/babelmark/babelmark/internal/mdtree"

// Options controls which parts of a document are offered for translation.
type Options struct {
	TranslateLinkText bool `json:"translateLinkText" yaml:"translateLinkText"`
	TranslateImageAlt bool `json:"translateImageAlt" yaml:"translateImageAlt"`
}

// DefaultOptions matches the defaults of a fresh settings file.
func DefaultOptions() Options {
	return Options{TranslateLinkText: true}
}

// excluded reports whether the subtree under n never contributes text.
// Code is always protected; link labels are protected unless
// TranslateLinkText is set. A link's URL and title are never touched either way.
func (o Options) excluded(n *mdtree.Node) bool {
	switch n.Kind {
	case mdtree.KindCode, mdtree.KindInlineCode:
		return true
	case mdtree.KindLink:
		return !o.TranslateLinkText
	}
	return false
}

// isContainer reports whether n yields one text segment for its descendants.
func isContainer(n *mdtree.Node) bool {
	switch n.Kind {
	case mdtree.KindParagraph, mdtree.KindHeading, mdtree.KindListItem, mdtree.KindTableCell:
		return true
	}
	return false
}

// translatesAlt reports whether n is an image whose alt text is a segment.
func (o Options) translatesAlt(n *mdtree.Node) bool {
	return o.TranslateImageAlt && n.Kind == mdtree.KindImage && hasText(n.Alt)
}

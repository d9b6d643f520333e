// Package mdtree holds a parsed Markdown document as a flat node table.
//
// Nodes reference each other by NodeID (an index into Document.Nodes), so
// node references can be stored, copied and validated without aliasing the
// tree itself.
package mdtree

// NodeID is a stable index into Document.Nodes.
type NodeID int

// Root is the ID of the document node.
const Root NodeID = 0

// Kind discriminates node types.
type Kind uint8

const (
	KindDocument Kind = iota
	KindFrontMatter
	KindParagraph
	KindHeading
	KindThematicBreak
	KindCode // fenced or indented code block
	KindHTMLBlock
	KindBlockquote
	KindList
	KindListItem
	KindTable
	KindTableRow
	KindTableCell
	KindDefinitions // link reference definitions, kept as source text

	KindText
	KindEmphasis // Level 1 = emphasis, 2 = strong
	KindStrikethrough
	KindInlineCode
	KindLink
	KindImage
	KindAutoLink
	KindRawHTML
	KindTaskCheckBox
)

var kindNames = [...]string{
	KindDocument:      "document",
	KindFrontMatter:   "frontmatter",
	KindParagraph:     "paragraph",
	KindHeading:       "heading",
	KindThematicBreak: "thematicBreak",
	KindCode:          "code",
	KindHTMLBlock:     "html",
	KindBlockquote:    "blockquote",
	KindList:          "list",
	KindListItem:      "listItem",
	KindTable:         "table",
	KindTableRow:      "tableRow",
	KindTableCell:     "tableCell",
	KindDefinitions:   "definition",
	KindText:          "text",
	KindEmphasis:      "emphasis",
	KindStrikethrough: "delete",
	KindInlineCode:    "inlineCode",
	KindLink:          "link",
	KindImage:         "image",
	KindAutoLink:      "autolink",
	KindRawHTML:       "rawHTML",
	KindTaskCheckBox:  "taskCheckBox",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Align is a table column alignment.
type Align uint8

const (
	AlignNone Align = iota
	AlignLeft
	AlignCenter
	AlignRight
)

// Node is one entry in the node table. Only the fields relevant to Kind are set.
type Node struct {
	Kind     Kind
	Parent   NodeID
	Children []NodeID

	Value string // text, code content, raw HTML, front matter body, definitions
	Alt   string // image alt text
	URL   string // link, image and autolink destination
	Title string // link and image title
	Info  string // code fence info string

	Level int // heading level, emphasis level

	Ordered bool // list
	Start   int  // list
	Marker  byte // list bullet or ordered delimiter
	Tight   bool // list

	Header  bool    // table row
	Aligns  []Align // table
	Checked bool    // task checkbox

	SoftBreak bool // text followed by a soft line break
	HardBreak bool // text followed by a hard line break
}

// Document is a parsed Markdown document. Nodes[Root] is the document node.
type Document struct {
	Nodes []Node

	// FrontMatterKeys lists top-level front matter keys in source order.
	FrontMatterKeys []string
}

// Node returns a pointer to the node with the given ID.
func (d *Document) Node(id NodeID) *Node {
	return &d.Nodes[id]
}

// Valid reports whether id refers to a node in d.
func (d *Document) Valid(id NodeID) bool {
	return id >= 0 && int(id) < len(d.Nodes)
}

func (d *Document) add(parent NodeID, n Node) NodeID {
	n.Parent = parent
	id := NodeID(len(d.Nodes))
	d.Nodes = append(d.Nodes, n)
	if id != Root {
		d.Nodes[parent].Children = append(d.Nodes[parent].Children, id)
	}
	return id
}

// Walk visits id and its descendants in pre-order. If fn returns false the
// node's children are skipped.
func (d *Document) Walk(id NodeID, fn func(id NodeID, n *Node) bool) {
	n := &d.Nodes[id]
	if !fn(id, n) {
		return
	}
	for _, c := range n.Children {
		d.Walk(c, fn)
	}
}

package mdtree

import (
	"io"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"gopkg.in/yaml.v3"
)

// markdown is configured with the GFM block and inline extensions the printer
// knows how to write back. Linkify is left out so bare URLs stay plain text
// and round-trip byte for byte.
var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.Table,
		extension.Strikethrough,
		extension.TaskList,
	),
	goldmark.WithParserOptions(parser.WithParagraphTransformers(definitionTransformers...)),
)

// frontMatterBlock matches a YAML front matter block at the start of the file.
var frontMatterBlock = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n?`)

// ParseReader reads all of r and parses it.
func ParseReader(r io.Reader) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(src), nil
}

// Parse converts Markdown source into a Document. A leading YAML front matter
// block is kept verbatim as a KindFrontMatter node; it is only recognised when
// its body decodes to a YAML mapping.
func Parse(src []byte) *Document {
	doc := &Document{}
	doc.add(Root, Node{Kind: KindDocument})

	body := src
	if m := frontMatterBlock.FindSubmatchIndex(src); m != nil {
		raw := src[m[2]:m[3]]
		if keys, ok := frontMatterKeys(raw); ok {
			doc.add(Root, Node{Kind: KindFrontMatter, Value: string(raw)})
			doc.FrontMatterKeys = keys
			body = src[m[1]:]
		}
	}

	root := markdown.Parser().Parse(text.NewReader(body))
	c := &converter{doc: doc, src: body, math: mathBytes(body)}
	c.children(root, Root)
	return doc
}

func frontMatterKeys(raw []byte) ([]string, bool) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, false
	}
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return nil, false
	}
	mapping := node.Content[0]
	keys := make([]string, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keys = append(keys, mapping.Content[i].Value)
	}
	return keys, true
}

// converter copies a goldmark AST into the node table.
type converter struct {
	doc  *Document
	src  []byte
	math []bool
}

func (c *converter) children(n ast.Node, parent NodeID) {
	for ch := n.FirstChild(); ch != nil; ch = ch.NextSibling() {
		c.node(ch, parent)
	}
}

func (c *converter) container(n ast.Node, parent NodeID, node Node) {
	id := c.doc.add(parent, node)
	c.children(n, id)
}

func (c *converter) node(n ast.Node, parent NodeID) {
	switch n := n.(type) {
	// Blocks.
	case *ast.Paragraph, *ast.TextBlock:
		// A paragraph made only of link definitions leaves an empty block.
		if n.ChildCount() == 0 {
			return
		}
		c.container(n, parent, Node{Kind: KindParagraph})
	case *definitions:
		if k := n.consumed(); k > 0 {
			var sb strings.Builder
			for i := range k {
				seg := n.lines.At(i)
				sb.Write(seg.Value(c.src))
			}
			c.doc.add(parent, Node{Kind: KindDefinitions, Value: strings.TrimRight(sb.String(), "\r\n")})
		}
	case *ast.Heading:
		c.container(n, parent, Node{Kind: KindHeading, Level: n.Level})
	case *ast.ThematicBreak:
		c.doc.add(parent, Node{Kind: KindThematicBreak})
	case *ast.FencedCodeBlock:
		info := ""
		if n.Info != nil {
			info = string(n.Info.Segment.Value(c.src))
		}
		c.doc.add(parent, Node{Kind: KindCode, Info: info, Value: c.lines(n.Lines())})
	case *ast.CodeBlock:
		c.doc.add(parent, Node{Kind: KindCode, Value: c.lines(n.Lines())})
	case *ast.HTMLBlock:
		v := c.lines(n.Lines())
		if n.HasClosure() {
			v += string(n.ClosureLine.Value(c.src))
		}
		c.doc.add(parent, Node{Kind: KindHTMLBlock, Value: strings.TrimRight(v, "\r\n")})
	case *ast.Blockquote:
		c.container(n, parent, Node{Kind: KindBlockquote})
	case *ast.List:
		c.container(n, parent, Node{
			Kind:    KindList,
			Ordered: n.IsOrdered(),
			Start:   n.Start,
			Marker:  n.Marker,
			Tight:   n.IsTight,
		})
	case *ast.ListItem:
		c.container(n, parent, Node{Kind: KindListItem})
	case *east.Table:
		aligns := make([]Align, len(n.Alignments))
		for i, a := range n.Alignments {
			aligns[i] = convertAlign(a)
		}
		c.container(n, parent, Node{Kind: KindTable, Aligns: aligns})
	case *east.TableHeader:
		c.container(n, parent, Node{Kind: KindTableRow, Header: true})
	case *east.TableRow:
		c.container(n, parent, Node{Kind: KindTableRow})
	case *east.TableCell:
		c.container(n, parent, Node{Kind: KindTableCell})

	// Inlines.
	case *ast.Text:
		c.doc.add(parent, Node{
			Kind:      KindText,
			Value:     c.text(n),
			SoftBreak: n.SoftLineBreak(),
			HardBreak: n.HardLineBreak(),
		})
	case *ast.String:
		c.doc.add(parent, Node{Kind: KindText, Value: string(n.Value)})
	case *ast.Emphasis:
		c.container(n, parent, Node{Kind: KindEmphasis, Level: n.Level})
	case *east.Strikethrough:
		c.container(n, parent, Node{Kind: KindStrikethrough})
	case *ast.CodeSpan:
		v := strings.ReplaceAll(c.plainText(n, false), "\n", " ")
		c.doc.add(parent, Node{Kind: KindInlineCode, Value: v})
	case *ast.Link:
		c.container(n, parent, Node{Kind: KindLink, URL: string(n.Destination), Title: string(n.Title)})
	case *ast.Image:
		c.doc.add(parent, Node{
			Kind:  KindImage,
			URL:   string(n.Destination),
			Title: string(n.Title),
			Alt:   c.plainText(n, true),
		})
	case *ast.AutoLink:
		c.doc.add(parent, Node{Kind: KindAutoLink, URL: string(n.URL(c.src)), Value: string(n.Label(c.src))})
	case *ast.RawHTML:
		c.doc.add(parent, Node{Kind: KindRawHTML, Value: c.lines(n.Segments)})
	case *east.TaskCheckBox:
		c.doc.add(parent, Node{Kind: KindTaskCheckBox, Checked: n.IsChecked})

	default:
		// Unknown node types are transparent.
		c.children(n, parent)
	}
}

func (c *converter) lines(segs *text.Segments) string {
	if segs == nil {
		return ""
	}
	var sb strings.Builder
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		sb.Write(seg.Value(c.src))
	}
	return sb.String()
}

// text returns the literal value of t with backslash escapes removed outside
// math spans.
func (c *converter) text(t *ast.Text) string {
	v := t.Segment.Value(c.src)
	if t.IsRaw() {
		return string(v)
	}
	if c.math == nil || t.Segment.Padding > 0 {
		return string(util.UnescapePunctuations(v))
	}
	// Math keeps its backslashes; the printer escapes them and FixMath
	// restores them.
	var sb strings.Builder
	start := t.Segment.Start
	for i := 0; i < len(v); {
		inside := c.math[start+i]
		j := i + 1
		for j < len(v) && c.math[start+j] == inside {
			j++
		}
		if inside {
			sb.Write(v[i:j])
		} else {
			sb.Write(util.UnescapePunctuations(v[i:j]))
		}
		i = j
	}
	return sb.String()
}

// plainText flattens the inline content of n. Code spans keep their source
// text; everything else is unescaped.
func (c *converter) plainText(n ast.Node, unescape bool) string {
	var sb strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for ch := n.FirstChild(); ch != nil; ch = ch.NextSibling() {
			switch t := ch.(type) {
			case *ast.Text:
				if unescape {
					sb.WriteString(c.text(t))
				} else {
					sb.Write(t.Segment.Value(c.src))
				}
				if t.SoftLineBreak() || t.HardLineBreak() {
					sb.WriteByte(' ')
				}
			case *ast.String:
				sb.Write(t.Value)
			default:
				walk(ch)
			}
		}
	}
	walk(n)
	return sb.String()
}

func convertAlign(a east.Alignment) Align {
	switch a {
	case east.AlignLeft:
		return AlignLeft
	case east.AlignCenter:
		return AlignCenter
	case east.AlignRight:
		return AlignRight
	default:
		return AlignNone
	}
}

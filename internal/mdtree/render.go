package mdtree

import (
	"regexp"
	"strconv"
	"strings"
)

// Render serializes d back to Markdown and repairs escaping inside math
// spans. It is a pure function of the node table.
func Render(d *Document) string {
	return FixMath(Print(d))
}

// Print serializes d to Markdown. Blocks are separated by a blank line and
// the output ends with a single newline unless the document is empty.
func Print(d *Document) string {
	p := printer{d: d}
	out := p.blocks(d.Nodes[Root].Children, "\n\n")
	if out == "" {
		return ""
	}
	return out + "\n"
}

type printer struct {
	d *Document
}

func (p printer) blocks(ids []NodeID, sep string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if b := p.block(id); b != "" {
			parts = append(parts, b)
		}
	}
	return strings.Join(parts, sep)
}

func (p printer) block(id NodeID) string {
	n := p.d.Node(id)
	switch n.Kind {
	case KindFrontMatter:
		return "---\n" + n.Value + "\n---"
	case KindParagraph:
		return p.inlines(n.Children, flowing)
	case KindHeading:
		body := closingHashes(p.inlines(n.Children, singleLine))
		marks := strings.Repeat("#", max(n.Level, 1))
		if body == "" {
			return marks
		}
		return marks + " " + body
	case KindThematicBreak:
		return "***"
	case KindCode:
		return fencedCode(n.Info, n.Value)
	case KindHTMLBlock, KindDefinitions:
		return n.Value
	case KindBlockquote:
		return prefixLines(p.blocks(n.Children, "\n\n"), "> ", ">")
	case KindList:
		return p.list(n)
	case KindTable:
		return p.table(n)
	default:
		return p.blocks(n.Children, "\n\n")
	}
}

func (p printer) list(n *Node) string {
	sep := "\n\n"
	if n.Tight {
		sep = "\n"
	}
	marker := n.Marker
	if marker == 0 {
		if n.Ordered {
			marker = '.'
		} else {
			marker = '-'
		}
	}
	items := make([]string, 0, len(n.Children))
	for i, id := range n.Children {
		var bullet string
		if n.Ordered {
			bullet = strconv.Itoa(n.Start+i) + string(marker) + " "
		} else {
			bullet = string(marker) + " "
		}
		body := p.blocks(p.d.Node(id).Children, sep)
		if body == "" {
			items = append(items, strings.TrimRight(bullet, " "))
			continue
		}
		items = append(items, bullet+indentLines(body, strings.Repeat(" ", len(bullet))))
	}
	return strings.Join(items, sep)
}

func (p printer) table(n *Node) string {
	rows := make([]string, 0, len(n.Children)+1)
	for _, rid := range n.Children {
		row := p.d.Node(rid)
		cells := make([]string, len(row.Children))
		for i, cid := range row.Children {
			cells[i] = p.inlines(p.d.Node(cid).Children, tableCell)
		}
		rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
		if row.Header {
			rows = append(rows, delimiterRow(n.Aligns, len(cells)))
		}
	}
	return strings.Join(rows, "\n")
}

func delimiterRow(aligns []Align, cols int) string {
	cells := make([]string, cols)
	for i := range cells {
		a := AlignNone
		if i < len(aligns) {
			a = aligns[i]
		}
		switch a {
		case AlignLeft:
			cells[i] = ":--"
		case AlignCenter:
			cells[i] = ":-:"
		case AlignRight:
			cells[i] = "--:"
		default:
			cells[i] = "---"
		}
	}
	return "| " + strings.Join(cells, " | ") + " |"
}

// inlineMode is the kind of block inline content is printed into.
type inlineMode uint8

const (
	flowing    inlineMode = iota // paragraphs: line breaks allowed
	singleLine                   // headings
	tableCell                    // single line, pipes escaped
)

func (p printer) inlines(ids []NodeID, mode inlineMode) string {
	var sb strings.Builder
	p.inlineSeq(&sb, ids, mode, 0)
	return sb.String()
}

// inlineSeq prints ids in order. after is the first byte printed once the
// sequence ends, or 0 at the end of the block.
func (p printer) inlineSeq(sb *strings.Builder, ids []NodeID, mode inlineMode, after byte) {
	for i, id := range ids {
		next := after
		if i+1 < len(ids) {
			next = p.lead(ids[i+1], after)
		}
		p.inline(sb, id, mode, next)
	}
}

// lead returns the first byte id prints.
func (p printer) lead(id NodeID, after byte) byte {
	n := p.d.Node(id)
	switch n.Kind {
	case KindText:
		switch {
		case n.Value != "":
			return n.Value[0]
		case n.SoftBreak || n.HardBreak:
			return '\n'
		}
		return after
	case KindEmphasis:
		return '*'
	case KindStrikethrough:
		return '~'
	case KindInlineCode:
		return '`'
	case KindLink, KindTaskCheckBox:
		return '['
	case KindImage:
		return '!'
	case KindAutoLink:
		return '<'
	case KindRawHTML:
		if n.Value != "" {
			return n.Value[0]
		}
	}
	return after
}

func (p printer) inline(sb *strings.Builder, id NodeID, mode inlineMode, next byte) {
	n := p.d.Node(id)
	switch n.Kind {
	case KindText:
		brk := n.SoftBreak || n.HardBreak
		if brk && mode == flowing {
			writeText(sb, n.Value, mode, '\n')
		} else {
			writeText(sb, n.Value, mode, next)
		}
		switch {
		case !brk:
		case mode != flowing:
			sb.WriteByte(' ')
		case atLineStart(sb):
		case n.HardBreak:
			sb.WriteString("\\\n")
		default:
			sb.WriteByte('\n')
		}
	case KindEmphasis:
		marks := strings.Repeat("*", max(n.Level, 1))
		sb.WriteString(marks)
		p.inlineSeq(sb, n.Children, mode, '*')
		sb.WriteString(marks)
	case KindStrikethrough:
		sb.WriteString("~~")
		p.inlineSeq(sb, n.Children, mode, '~')
		sb.WriteString("~~")
	case KindInlineCode:
		v := codeSpan(n.Value)
		if mode == tableCell {
			v = strings.ReplaceAll(v, "|", "\\|")
		}
		sb.WriteString(v)
	case KindLink:
		sb.WriteByte('[')
		p.inlineSeq(sb, n.Children, mode, ']')
		sb.WriteString("](")
		sb.WriteString(destination(n.URL, n.Title))
		sb.WriteByte(')')
	case KindImage:
		sb.WriteString("![")
		sb.WriteString(escapeAlt(n.Alt, mode))
		sb.WriteString("](")
		sb.WriteString(destination(n.URL, n.Title))
		sb.WriteByte(')')
	case KindAutoLink:
		sb.WriteByte('<')
		sb.WriteString(n.Value)
		sb.WriteByte('>')
	case KindRawHTML:
		sb.WriteString(n.Value)
	case KindTaskCheckBox:
		if n.Checked {
			sb.WriteString("[x] ")
		} else {
			sb.WriteString("[ ] ")
		}
	default:
		p.inlineSeq(sb, n.Children, mode, next)
	}
}

var backtickRun = regexp.MustCompile("`+")

func longestRun(s string, re *regexp.Regexp) int {
	longest := 0
	for _, m := range re.FindAllString(s, -1) {
		longest = max(longest, len(m))
	}
	return longest
}

func codeSpan(v string) string {
	ticks := strings.Repeat("`", longestRun(v, backtickRun)+1)
	if strings.HasPrefix(v, "`") || strings.HasSuffix(v, "`") ||
		(strings.HasPrefix(v, " ") && strings.HasSuffix(v, " ") && strings.TrimSpace(v) != "") {
		v = " " + v + " "
	}
	return ticks + v + ticks
}

var fenceRun = regexp.MustCompile("(?m)^ {0,3}`{3,}")

// fencedCode writes a code block with a fence longer than any fence-like
// line inside the content.
func fencedCode(info, value string) string {
	ticks := 3
	for _, m := range fenceRun.FindAllString(value, -1) {
		ticks = max(ticks, strings.Count(m, "`")+1)
	}
	fence := strings.Repeat("`", ticks)
	if value != "" && !strings.HasSuffix(value, "\n") {
		value += "\n"
	}
	return fence + info + "\n" + value + fence
}

func destination(url, title string) string {
	if url == "" || strings.ContainsAny(url, " \t\n()<>") {
		url = "<" + strings.NewReplacer("<", "\\<", ">", "\\>").Replace(url) + ">"
	}
	if title == "" {
		return url
	}
	return url + ` "` + strings.ReplaceAll(title, `"`, `\"`) + `"`
}

// indentLines prefixes every non-empty line after the first with pad.
func indentLines(s, pad string) string {
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] != "" {
			lines[i] = pad + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

// prefixLines prefixes every line of s, using bare for empty lines.
func prefixLines(s, prefix, bare string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = bare
		} else {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

package mdtree

import (
	"bytes"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// goldmark resolves reference links and drops their definitions from the
// tree. definitionMarker runs before that happens and leaves a definitions
// node in front of every paragraph that could open with a definition.
// definitionCounter runs afterwards, records how many lines survived and
// removes the node again when nothing was consumed, so a task list item still
// starts with its paragraph. The consumed lines are always a prefix of the
// paragraph.
var definitionTransformers = []util.PrioritizedValue{
	util.Prioritized(definitionMarker{}, 50),
	util.Prioritized(definitionCounter{}, 150),
}

var kindDefinitions = ast.NewNodeKind("Definitions")

type definitions struct {
	ast.BaseBlock
	lines     *text.Segments
	remaining int
}

func (n *definitions) Kind() ast.NodeKind { return kindDefinitions }

func (n *definitions) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

// consumed returns the number of leading lines goldmark took as definitions.
func (n *definitions) consumed() int {
	return max(n.lines.Len()-n.remaining, 0)
}

type definitionMarker struct{}

func (definitionMarker) Transform(node *ast.Paragraph, reader text.Reader, pc parser.Context) {
	lines := node.Lines()
	parent := node.Parent()
	if parent == nil || lines.Len() == 0 {
		return
	}
	first := lines.At(0)
	if !bytes.HasPrefix(bytes.TrimLeft(first.Value(reader.Source()), " \t"), []byte("[")) {
		return
	}
	saved := text.NewSegments()
	saved.AppendAll(lines.Sliced(0, lines.Len()))
	parent.InsertBefore(parent, node, &definitions{lines: saved})
}

type definitionCounter struct{}

func (definitionCounter) Transform(node *ast.Paragraph, reader text.Reader, pc parser.Context) {
	d, ok := node.PreviousSibling().(*definitions)
	if !ok {
		return
	}
	d.remaining = node.Lines().Len()
	if d.consumed() == 0 {
		node.Parent().RemoveChild(node.Parent(), d)
	}
}

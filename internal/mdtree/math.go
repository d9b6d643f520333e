package mdtree

import (
	"bytes"
	"regexp"
)

var (
	blockMath = regexp.MustCompile(`(?s)\$\$(.*?)\$\$`)
	// Inline spans never cross a line break so currency amounts on different
	// lines are not paired up.
	inlineMath = regexp.MustCompile(`\$([^$\n]*?)\$`)
	// mathEscape matches the escapes the printer adds to literal text.
	mathEscape = regexp.MustCompile("\\\\([\\\\*_\\[\\]~`<])")
)

// FixMath removes the backslash escapes the printer adds to literal text
// inside $$...$$ and $...$ spans, so math reads as it was written. Text
// outside math spans is left alone.
func FixMath(s string) string {
	s = blockMath.ReplaceAllStringFunc(s, func(m string) string {
		return "$$" + unescapeMath(m[2:len(m)-2]) + "$$"
	})
	return inlineMath.ReplaceAllStringFunc(s, func(m string) string {
		return "$" + unescapeMath(m[1:len(m)-1]) + "$"
	})
}

func unescapeMath(s string) string {
	return mathEscape.ReplaceAllString(s, "$1")
}

// mathBytes marks the bytes of src that fall inside a math span. It returns
// nil when src has no dollar sign.
func mathBytes(src []byte) []bool {
	if bytes.IndexByte(src, '$') < 0 {
		return nil
	}
	in := make([]bool, len(src))
	for _, re := range []*regexp.Regexp{blockMath, inlineMath} {
		for _, m := range re.FindAllIndex(src, -1) {
			for i := m[0]; i < m[1]; i++ {
				in[i] = true
			}
		}
	}
	return in
}

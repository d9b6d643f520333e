package mdtree

import (
	"regexp"
	"strings"
)

var (
	// lineBreaks collapses a break and any blank lines after it, so inserted
	// text never ends a paragraph or turns into a hard break.
	lineBreaks = regexp.MustCompile(`[ \t\r]*\n[ \t\r\n]*`)
	// anyBreak matches a line break in single-line content.
	anyBreak = regexp.MustCompile(`[ \t]*\r?\n[ \t]*`)
)

// writeText appends the literal text v so that it parses back to the same
// characters and never opens a new block or inline construct. next is the
// first byte printed after v, or 0 at the end of the block.
func writeText(sb *strings.Builder, v string, mode inlineMode, next byte) {
	if mode == flowing {
		v = lineBreaks.ReplaceAllString(v, "\n")
	} else {
		v = anyBreak.ReplaceAllString(v, " ")
	}
	if next == 0 {
		v = strings.TrimRight(v, "\n")
	}

	for i := 0; i < len(v); i++ {
		c := v[i]
		if atLineStart(sb) {
			if c == ' ' || c == '\t' || c == '\n' {
				continue
			}
			line, _, cut := strings.Cut(v[i:], "\n")
			lineNext := next
			if cut {
				lineNext = '\n'
			}
			if j := blockMarker(line, lineNext); j >= 0 {
				sb.WriteString(v[i : i+j])
				sb.WriteByte('\\')
				sb.WriteByte(v[i+j])
				i += j
				continue
			}
		}
		following := next
		if i+1 < len(v) {
			following = v[i+1]
		}
		if needsEscape(c, lastByte(sb), following, mode) {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
}

func atLineStart(sb *strings.Builder) bool {
	b := lastByte(sb)
	return b == 0 || b == '\n'
}

func lastByte(sb *strings.Builder) byte {
	s := sb.String()
	if s == "" {
		return 0
	}
	return s[len(s)-1]
}

// blockMarker returns the index of the byte to escape when line would open
// a block (heading, list item, quote, table row, setext underline or
// thematic break), or -1.
func blockMarker(line string, next byte) int {
	// ends reports whether the marker ending at j is followed by whitespace.
	ends := func(j int) bool {
		if j >= len(line) {
			return next == 0 || next == ' ' || next == '\t' || next == '\n'
		}
		return line[j] == ' ' || line[j] == '\t'
	}
	switch c := line[0]; {
	case c == '#':
		j := len(line) - len(strings.TrimLeft(line, "#"))
		if j <= 6 && ends(j) {
			return 0
		}
	case c == '-':
		if ends(1) || strings.Trim(line, "- \t") == "" {
			return 0
		}
	case c == '+':
		if ends(1) {
			return 0
		}
	case c == '=':
		if strings.Trim(line, "= \t") == "" {
			return 0
		}
	case c == '>' || c == '|':
		return 0
	case isDigit(c):
		j := 0
		for j < len(line) && isDigit(line[j]) {
			j++
		}
		if j <= 9 && j < len(line) && (line[j] == '.' || line[j] == ')') && ends(j+1) {
			return j
		}
	}
	return -1
}

// needsEscape reports whether c must be backslash escaped between prev and
// next to stay literal.
func needsEscape(c, prev, next byte, mode inlineMode) bool {
	switch c {
	case '\\':
		return next == 0 || next == '\n' || isPunct(next)
	case '*', '`', '[', ']', '~':
		return true
	case '_':
		return !isWord(prev) || !isWord(next)
	case '<':
		return isLetter(next) || next == '/' || next == '!' || next == '?'
	case '|':
		return mode == tableCell
	}
	return false
}

// escapeAlt prepares image alt text for printing inside ![...].
func escapeAlt(alt string, mode inlineMode) string {
	alt = anyBreak.ReplaceAllString(alt, " ")
	var sb strings.Builder
	for i := 0; i < len(alt); i++ {
		c := alt[i]
		var next byte
		if i+1 < len(alt) {
			next = alt[i+1]
		}
		switch {
		case c == '[' || c == ']',
			c == '\\' && (next == 0 || isPunct(next)),
			c == '|' && mode == tableCell:
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// closingHashes escapes a trailing run of '#' that would otherwise be read as
// the closing sequence of an ATX heading.
func closingHashes(s string) string {
	t := strings.TrimRight(s, "#")
	if t == s {
		return s
	}
	if t == "" || strings.HasSuffix(t, " ") || strings.HasSuffix(t, "\t") {
		return t + "\\" + s[len(t):]
	}
	return s
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

// isWord treats every non-ASCII byte as part of a word.
func isWord(c byte) bool { return c >= 0x80 || isLetter(c) || isDigit(c) }

func isPunct(c byte) bool {
	return c >= '!' && c <= '/' || c >= ':' && c <= '@' || c >= '[' && c <= '`' || c >= '{' && c <= '~'
}

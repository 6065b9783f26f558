package sql

import "strings"

// segmentKind classifies a run of bytes in a SQL statement.
type segmentKind int

const (
	segCode segmentKind = iota
	segString
	segQuotedIdent
	segDollar
	segLineComment
	segBlockComment
)

// segment is a half-open byte range [start, end) of the scanned text.
type segment struct {
	kind   segmentKind
	start  int
	end    int
	closed bool
}

// scanSegments splits a statement into code, literal, quoted identifier,
// dollar-quoted and comment runs following PostgreSQL lexical rules:
//
//   - '...' literals escape a quote by doubling it; E'...' literals also
//     honour backslash escapes
//   - "..." identifiers escape a quote by doubling it
//   - $tag$...$tag$ bodies end at the first matching tag
//   - -- comments run to (not including) the next newline
//   - /* */ comments nest
//
// Unterminated literals and comments extend to the end of the input.
func scanSegments(s string) []segment {
	var segs []segment
	n := len(s)
	start := 0
	flush := func(end int) {
		if end > start {
			segs = append(segs, segment{kind: segCode, start: start, end: end})
		}
	}
	emit := func(kind segmentKind, from, to int, closed bool) {
		segs = append(segs, segment{kind: kind, start: from, end: to, closed: closed})
		start = to
	}

	i := 0
	for i < n {
		c := s[i]
		switch {
		case c == '-' && i+1 < n && s[i+1] == '-':
			flush(i)
			end := n
			if nl := strings.IndexByte(s[i:], '\n'); nl >= 0 {
				end = i + nl
			}
			emit(segLineComment, i, end, true)
			i = end
		case c == '/' && i+1 < n && s[i+1] == '*':
			flush(i)
			end, closed := blockCommentEnd(s, i)
			emit(segBlockComment, i, end, closed)
			i = end
		case c == '\'':
			flush(i)
			end, closed := quotedEnd(s, i, '\'', isEscapeStringPrefix(s, i))
			emit(segString, i, end, closed)
			i = end
		case c == '"':
			flush(i)
			end, closed := quotedEnd(s, i, '"', false)
			emit(segQuotedIdent, i, end, closed)
			i = end
		case c == '$':
			tag, ok := dollarTag(s, i)
			if !ok {
				i++
				continue
			}
			flush(i)
			end, closed := n, false
			if idx := strings.Index(s[i+len(tag):], tag); idx >= 0 {
				end, closed = i+len(tag)+idx+len(tag), true
			}
			emit(segDollar, i, end, closed)
			i = end
		default:
			i++
		}
	}
	flush(n)
	return segs
}

func quotedEnd(s string, i int, quote byte, backslashEscapes bool) (int, bool) {
	n := len(s)
	j := i + 1
	for j < n {
		switch {
		case backslashEscapes && s[j] == '\\':
			j += 2
		case s[j] == quote:
			if j+1 < n && s[j+1] == quote {
				j += 2
				continue
			}
			return j + 1, true
		default:
			j++
		}
	}
	return n, false
}

func blockCommentEnd(s string, i int) (int, bool) {
	n := len(s)
	depth := 0
	j := i
	for j+1 < n {
		switch {
		case s[j] == '/' && s[j+1] == '*':
			depth++
			j += 2
		case s[j] == '*' && s[j+1] == '/':
			depth--
			j += 2
			if depth == 0 {
				return j, true
			}
		default:
			j++
		}
	}
	return n, false
}

// isEscapeStringPrefix reports whether the quote at i opens an E'...' literal.
func isEscapeStringPrefix(s string, i int) bool {
	if i == 0 || (s[i-1] != 'e' && s[i-1] != 'E') {
		return false
	}
	return i == 1 || !isIdentByte(s[i-2])
}

// dollarTag returns the opening $tag$ (or $$) at i. Positional parameters
// such as $1 and identifiers containing $ are not dollar quotes.
func dollarTag(s string, i int) (string, bool) {
	n := len(s)
	if i > 0 && isIdentByte(s[i-1]) {
		return "", false
	}
	j := i + 1
	if j < n && s[j] == '$' {
		return "$$", true
	}
	if j >= n || !(isLetterByte(s[j]) || s[j] == '_') {
		return "", false
	}
	for j < n && (isLetterByte(s[j]) || isDigitByte(s[j]) || s[j] == '_') {
		j++
	}
	if j < n && s[j] == '$' {
		return s[i : j+1], true
	}
	return "", false
}

func isLetterByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isDigitByte(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentByte(c byte) bool {
	return isLetterByte(c) || isDigitByte(c) || c == '_' || c == '$'
}

// stripComments removes comments outside of literals and quoted identifiers.
// A block comment becomes a single space so the tokens around it stay apart;
// a line comment is dropped and its terminating newline kept.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, seg := range scanSegments(s) {
		switch seg.kind {
		case segLineComment:
		case segBlockComment:
			b.WriteByte(' ')
		default:
			b.WriteString(s[seg.start:seg.end])
		}
	}
	return b.String()
}

// maskLiterals returns a copy of s of the same length in which terminated
// literals, quoted identifiers, dollar-quoted strings and comments are
// replaced by '#'. Byte offsets found in the result are valid offsets into s.
// An unterminated run stays visible so text appended after it is still found
// on the next scan.
func maskLiterals(s string) string {
	masked := []byte(s)
	for _, seg := range scanSegments(s) {
		if !seg.closed {
			continue
		}
		switch seg.kind {
		case segString, segQuotedIdent, segDollar, segLineComment, segBlockComment:
			for k := seg.start; k < seg.end; k++ {
				masked[k] = '#'
			}
		}
	}
	return string(masked)
}

// stringLiterals returns the raw contents of every single-quoted and
// dollar-quoted literal in s, without the delimiters.
func stringLiterals(s string) []string {
	var out []string
	for _, seg := range scanSegments(s) {
		body := s[seg.start:seg.end]
		switch seg.kind {
		case segString:
			body = strings.TrimPrefix(body, "'")
			body = strings.TrimSuffix(body, "'")
			out = append(out, strings.ReplaceAll(body, "''", "'"))
		case segDollar:
			tag, _ := dollarTag(s, seg.start)
			body = strings.TrimPrefix(body, tag)
			if len(body) >= len(tag) && strings.HasSuffix(body, tag) {
				body = body[:len(body)-len(tag)]
			}
			out = append(out, body)
		}
	}
	return out
}

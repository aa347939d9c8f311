// Package lex turns raw makefile bytes into logical lines: backslash
// continuations joined, comments stripped outside quotes, and each line
// tagged with its originating file and starting line number plus whether it
// began with a tab (a recipe line).
package lex

import (
	"bufio"
	"io"
	"strings"

	"github.com/mklang/gomk/internal/mkerr"
)

// Line is one logical line of makefile text after continuation-joining.
type Line struct {
	File   string
	Num    int // line number of the first physical line joined into this one
	Text   string
	Recipe bool // true if the first physical line began with a tab
}

// Reader reads a byte stream into logical Lines one physical line at a
// time. A trailing unescaped backslash joins a line onto the next one:
// outside recipes the backslash and the whitespace around it collapse to a
// single space; in a recipe line the backslash becomes a newline.
type Reader struct {
	file string
	br   *bufio.Reader
	line int
}

// NewReader wraps rd, tagging every produced Line with file for error
// messages.
func NewReader(rd io.Reader, file string) *Reader {
	return &Reader{file: file, br: bufio.NewReader(rd), line: 0}
}

// ReadLine returns the next logical line, or io.EOF when the input is
// exhausted. A final physical line with no trailing newline is still
// returned.
func (r *Reader) ReadLine() (Line, error) {
	var b strings.Builder
	startLine := r.line + 1
	recipe := false
	first := true
	sawAny := false

	for {
		raw, err := r.br.ReadString('\n')
		if raw == "" && err != nil {
			if sawAny {
				return Line{File: r.file, Num: startLine, Text: b.String(), Recipe: recipe}, nil
			}
			return Line{}, err
		}
		sawAny = true
		r.line++
		text := strings.TrimSuffix(raw, "\n")
		text = strings.TrimSuffix(text, "\r")

		if first {
			recipe = strings.HasPrefix(text, "\t")
			if recipe {
				text = text[1:]
			}
			first = false
		} else if !recipe {
			text = strings.TrimLeft(text, " \t")
		}

		if strings.HasSuffix(text, "\\") && !strings.HasSuffix(text, "\\\\") {
			if !recipe {
				b.WriteString(strings.TrimRight(text[:len(text)-1], " \t"))
				b.WriteByte(' ')
			} else {
				b.WriteString(text[:len(text)-1])
				b.WriteByte('\n')
			}
			if err == io.EOF {
				return Line{File: r.file, Num: startLine, Text: b.String(), Recipe: recipe}, nil
			}
			continue
		}

		b.WriteString(text)
		return Line{File: r.file, Num: startLine, Text: b.String(), Recipe: recipe}, nil
	}
}

// StripComment removes a trailing "# ..." comment from a non-recipe line,
// honoring single/double quotes so a '#' inside a quoted string is left
// alone, treating "\#" as a literal escaped hash, and tracking paren/brace
// depth so a '#' inside a balanced $(...) or ${...} (e.g. a literal "#"
// passed as a function argument) does not terminate the line early. A
// close paren/brace with no matching open is reported as a parse error.
func StripComment(s string) (string, error) {
	inSingle, inDouble := false, false
	parenDepth, braceDepth := 0, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && s[i+1] == '#':
			i++
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == '(' && !inSingle && !inDouble:
			parenDepth++
		case c == ')' && !inSingle && !inDouble:
			if parenDepth == 0 {
				return "", mkerr.Newf(mkerr.KindParse, "parentheses mismatch on line with content: %s", s)
			}
			parenDepth--
		case c == '{' && !inSingle && !inDouble:
			braceDepth++
		case c == '}' && !inSingle && !inDouble:
			if braceDepth == 0 {
				return "", mkerr.Newf(mkerr.KindParse, "brace mismatch on line with content: %s", s)
			}
			braceDepth--
		case c == '#' && !inSingle && !inDouble && parenDepth == 0 && braceDepth == 0:
			return s[:i], nil
		}
	}
	return s, nil
}

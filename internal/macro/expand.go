package macro

import (
	"strings"

	"github.com/mklang/gomk/internal/mkerr"
)

// Expand scans template for $ references, expanding variables and built-in
// function calls. Unknown macro names expand to the empty string, matching
// GNU make's behavior rather than erroring.
func (s *Store) Expand(template string) (string, error) {
	return s.expand(template, map[string]bool{})
}

// expand is the recursive scanner. active tracks macro names currently being
// expanded on this call stack, to detect A = $(B); B = $(A) cycles instead
// of recursing to stack exhaustion.
func (s *Store) expand(template string, active map[string]bool) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(template) {
		c := template[i]
		if c != '$' {
			out.WriteByte(c)
			i++
			continue
		}

		if i+1 >= len(template) {
			return "", mkerr.New(mkerr.KindUnclosedMacroRef, "'$' at end of input")
		}

		next := template[i+1]
		switch next {
		case '$':
			out.WriteByte('$')
			i += 2

		case '(', '{':
			open, close := next, byte(')')
			if open == '{' {
				close = '}'
			}
			content, consumed, err := extractBalanced(template[i+2:], open, close)
			if err != nil {
				return "", err
			}
			val, err := s.expandRef(content, active)
			if err != nil {
				return "", err
			}
			out.WriteString(val)
			i += 2 + consumed

		default:
			val, err := s.expandName(string(next), active)
			if err != nil {
				return "", err
			}
			out.WriteString(val)
			i += 2
		}
	}
	return out.String(), nil
}

// extractBalanced returns the text up to (but not including) the matching
// close delimiter, plus the number of input bytes consumed including that
// close delimiter. Nested occurrences of the same open/close pair (from a
// nested $(...) or ${...}) are tracked so e.g. $(subst a,b,$(X)) finds the
// correct outer close.
func extractBalanced(s string, open, close byte) (string, int, error) {
	depth := 1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[:i], i + 1, nil
			}
		}
	}
	return "", 0, mkerr.New(mkerr.KindUnclosedMacroRef, "unclosed macro reference")
}

// expandRef resolves the content of a $(...) or ${...} reference: either a
// built-in function call ("NAME ARGS") or a variable reference, possibly
// with a computed name (e.g. $(VAR_$(SUFFIX))).
func (s *Store) expandRef(content string, active map[string]bool) (string, error) {
	name, argsRaw, hasCall := splitFuncCall(content)
	if hasCall {
		if fn, ok := lazyBuiltins[name]; ok {
			return fn(s, argsRaw, active)
		}
		if fn, ok := builtins[name]; ok {
			expandedArgs, err := s.expand(argsRaw, active)
			if err != nil {
				return "", err
			}
			return fn(expandedArgs, s)
		}
	}

	varname, err := s.expand(content, active)
	if err != nil {
		return "", err
	}
	return s.expandName(varname, active)
}

// expandName looks up a single variable name, recursively expanding deferred
// macros at every use: a deferred macro stores its pre-expansion template
// and is re-expanded each time it's referenced.
func (s *Store) expandName(name string, active map[string]bool) (string, error) {
	m, ok := s.vars[name]
	if !ok {
		return "", nil
	}
	if m.Kind == Immediate {
		return m.Value, nil
	}
	if active[name] {
		return "", mkerr.Newf(mkerr.KindCycleDetected, "cyclic macro reference involving %q", name)
	}
	active[name] = true
	defer delete(active, name)
	return s.expand(m.Value, active)
}

// splitFuncCall recognizes "NAME ARGS" where NAME is a literal identifier
// matching a registered built-in. It does not expand anything; the name
// itself must appear verbatim (function names are never computed).
func splitFuncCall(content string) (name, rest string, ok bool) {
	idx := strings.IndexAny(content, " \t")
	if idx < 0 {
		return "", "", false
	}
	candidate := content[:idx]
	if !isIdent(candidate) {
		return "", "", false
	}
	if _, known := builtins[candidate]; !known {
		if _, known := lazyBuiltins[candidate]; !known {
			return "", "", false
		}
	}
	return candidate, strings.TrimLeft(content[idx+1:], " \t"), true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_') {
			return false
		}
	}
	return true
}

// splitCommaN splits s on the first n commas (by raw byte index, no
// paren-awareness), returning n+1 parts, or fewer when s has fewer than n
// commas — the last argument to subst and
// patsubst is everything after the second comma, applied to already-expanded
// argument text.
func splitCommaN(s string, n int) []string {
	parts := make([]string, 0, n+1)
	for i := 0; i < n; i++ {
		idx := strings.IndexByte(s, ',')
		if idx < 0 {
			parts = append(parts, s)
			return parts
		}
		parts = append(parts, s[:idx])
		s = s[idx+1:]
	}
	parts = append(parts, s)
	return parts
}

// splitTopLevelCommasN is like splitCommaN but skips commas nested inside a
// balanced $(...) or ${...} (or bare parens/braces); used for the lazy
// built-ins (foreach/if/or/and) which must see their sub-expressions
// unexpanded.
func splitTopLevelCommasN(s string, n int) []string {
	parts := make([]string, 0, n+1)
	depth := 0
	start := 0
	count := 0
	for i := 0; i < len(s) && count < n; i++ {
		switch s[i] {
		case '(', '{':
			depth++
		case ')', '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
				count++
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// splitTopLevelCommas splits on every top-level comma (used by or/and, which
// take a variable number of arguments).
func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '{':
			depth++
		case ')', '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

package macro

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mklang/gomk/internal/glob"
	"github.com/mklang/gomk/internal/mkerr"
)

// Func is a built-in text function. It receives its already fully-expanded
// argument text and the store, for functions that need to shell out or glob.
type Func func(args string, s *Store) (string, error)

// LazyFunc is a built-in whose sub-expressions must NOT be pre-expanded,
// because they bind a loop/branch variable per use (foreach) or
// short-circuit (if/or/and).
type LazyFunc func(s *Store, argsRaw string, active map[string]bool) (string, error)

var builtins = map[string]Func{
	"subst":     fnSubst,
	"patsubst":  fnPatsubst,
	"firstword": fnFirstword,
	"lastword":  fnLastword,
	"word":      fnWord,
	"words":     fnWords,
	"sort":      fnSort,
	"strip":     fnStrip,
	"dir":       fnDir,
	"notdir":    fnNotdir,
	"abspath":   fnAbspath,
	"realpath":  fnRealpath,
	"wildcard":  fnWildcard,
	"shell":     fnShell,
	"addprefix": fnAddprefix,
	"addsuffix": fnAddsuffix,
	"join":      fnJoin,
}

var lazyBuiltins = map[string]LazyFunc{
	"foreach": fnForeach,
	"if":      fnIf,
	"or":      fnOr,
	"and":     fnAnd,
}

func fnSubst(args string, _ *Store) (string, error) {
	parts := splitCommaN(args, 2)
	if len(parts) < 3 {
		return "", mkerr.Newf(mkerr.KindParse, "subst: expected FROM,TO,TEXT, got %q", args)
	}
	from, to, text := parts[0], parts[1], parts[2]
	if from == "" {
		return text, nil
	}
	return strings.ReplaceAll(text, from, to), nil
}

// patMatch matches word against a pattern containing at most one '%'
// wildcard, returning the substring the wildcard matched.
func patMatch(pat, word string) (string, bool) {
	idx := strings.IndexByte(pat, '%')
	if idx < 0 {
		if word == pat {
			return "", true
		}
		return "", false
	}
	pre, post := pat[:idx], pat[idx+1:]
	if len(word) < len(pre)+len(post) {
		return "", false
	}
	if !strings.HasPrefix(word, pre) || !strings.HasSuffix(word, post) {
		return "", false
	}
	return word[len(pre) : len(word)-len(post)], true
}

func patApply(repl, stem string) string {
	idx := strings.IndexByte(repl, '%')
	if idx < 0 {
		return repl
	}
	return repl[:idx] + stem + repl[idx+1:]
}

func fnPatsubst(args string, _ *Store) (string, error) {
	parts := splitCommaN(args, 2)
	if len(parts) < 3 {
		return "", mkerr.Newf(mkerr.KindParse, "patsubst: expected PAT,REPL,TEXT, got %q", args)
	}
	pat, repl, text := parts[0], parts[1], parts[2]
	words := strings.Fields(text)
	out := make([]string, len(words))
	for i, w := range words {
		if stem, ok := patMatch(pat, w); ok {
			out[i] = patApply(repl, stem)
		} else {
			out[i] = w
		}
	}
	return strings.Join(out, " "), nil
}

func fnFirstword(args string, _ *Store) (string, error) {
	words := strings.Fields(args)
	if len(words) == 0 {
		return "", nil
	}
	return words[0], nil
}

func fnLastword(args string, _ *Store) (string, error) {
	words := strings.Fields(args)
	if len(words) == 0 {
		return "", nil
	}
	return words[len(words)-1], nil
}

func fnWord(args string, _ *Store) (string, error) {
	parts := splitCommaN(args, 1)
	if len(parts) < 2 {
		return "", mkerr.Newf(mkerr.KindParse, "word: expected N,TEXT, got %q", args)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return "", mkerr.Newf(mkerr.KindParse, "word: invalid index %q", parts[0])
	}
	words := strings.Fields(parts[1])
	if n < 1 || n > len(words) {
		return "", nil
	}
	return words[n-1], nil
}

func fnWords(args string, _ *Store) (string, error) {
	return strconv.Itoa(len(strings.Fields(args))), nil
}

func fnSort(args string, _ *Store) (string, error) {
	words := strings.Fields(args)
	sort.Strings(words)
	out := words[:0]
	for i, w := range words {
		if i == 0 || w != out[len(out)-1] {
			out = append(out, w)
		}
	}
	return strings.Join(out, " "), nil
}

func fnStrip(args string, _ *Store) (string, error) {
	return strings.Join(strings.Fields(args), " "), nil
}

func fnDir(args string, _ *Store) (string, error) {
	return wordwise(args, func(w string) string {
		idx := strings.LastIndexByte(w, '/')
		if idx < 0 {
			return "./"
		}
		return w[:idx+1]
	}), nil
}

func fnNotdir(args string, _ *Store) (string, error) {
	return wordwise(args, func(w string) string {
		idx := strings.LastIndexByte(w, '/')
		if idx < 0 {
			return w
		}
		return w[idx+1:]
	}), nil
}

func fnAbspath(args string, _ *Store) (string, error) {
	return wordwise(args, func(w string) string {
		abs, err := filepath.Abs(w)
		if err != nil {
			return w
		}
		return filepath.ToSlash(abs)
	}), nil
}

func fnRealpath(args string, _ *Store) (string, error) {
	return wordwise(args, func(w string) string {
		abs, err := filepath.Abs(w)
		if err != nil {
			return w
		}
		real, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return filepath.ToSlash(abs)
		}
		return filepath.ToSlash(real)
	}), nil
}

func wordwise(args string, f func(string) string) string {
	words := strings.Fields(args)
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = f(w)
	}
	return strings.Join(out, " ")
}

func fnWildcard(args string, _ *Store) (string, error) {
	patterns := strings.Fields(args)
	matches, err := glob.Glob(patterns)
	if err != nil {
		return "", err
	}
	return strings.Join(matches, " "), nil
}

func fnShell(args string, s *Store) (string, error) {
	shell := "sh"
	shellArgs := []string{"-c"}
	if m, ok := s.Lookup("SHELL"); ok {
		if v, err := s.Expand(m.Value); err == nil && v != "" {
			shell = v
		}
	}
	cmd := exec.Command(shell, append(shellArgs, args)...)
	cmd.Env = append(os.Environ(), s.Environ()...)
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	if err != nil {
		return "", mkerr.Wrapf(mkerr.KindIO, "", 0, err, "$(shell %s)", args)
	}
	result := strings.ReplaceAll(string(out), "\n", " ")
	return strings.TrimRight(result, " "), nil
}

func fnAddprefix(args string, _ *Store) (string, error) {
	parts := splitCommaN(args, 1)
	if len(parts) < 2 {
		return "", mkerr.Newf(mkerr.KindParse, "addprefix: expected PREFIX,TEXT, got %q", args)
	}
	prefix := parts[0]
	return wordwise(parts[1], func(w string) string { return prefix + w }), nil
}

func fnAddsuffix(args string, _ *Store) (string, error) {
	parts := splitCommaN(args, 1)
	if len(parts) < 2 {
		return "", mkerr.Newf(mkerr.KindParse, "addsuffix: expected SUFFIX,TEXT, got %q", args)
	}
	suffix := parts[0]
	return wordwise(parts[1], func(w string) string { return w + suffix }), nil
}

func fnJoin(args string, _ *Store) (string, error) {
	parts := splitCommaN(args, 1)
	if len(parts) < 2 {
		return "", mkerr.Newf(mkerr.KindParse, "join: expected LIST1,LIST2, got %q", args)
	}
	a, b := strings.Fields(parts[0]), strings.Fields(parts[1])
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		var left, right string
		if i < len(a) {
			left = a[i]
		}
		if i < len(b) {
			right = b[i]
		}
		out[i] = left + right
	}
	return strings.Join(out, " "), nil
}

// fnForeach implements $(foreach var,list,text): list is expanded once,
// then text is expanded once per word with var bound to that word — text
// itself must stay unexpanded until bound, which is why this is a
// LazyFunc rather than a Func.
func fnForeach(s *Store, argsRaw string, active map[string]bool) (string, error) {
	parts := splitTopLevelCommasN(argsRaw, 2)
	if len(parts) < 3 {
		return "", mkerr.Newf(mkerr.KindParse, "foreach: expected VAR,LIST,TEXT, got %q", argsRaw)
	}
	varName := strings.TrimSpace(parts[0])
	if !IsValidName(varName) {
		return "", mkerr.Newf(mkerr.KindParse, "foreach: invalid loop variable %q", varName)
	}
	list, err := s.expand(parts[1], active)
	if err != nil {
		return "", err
	}
	words := strings.Fields(list)
	results := make([]string, 0, len(words))
	for _, w := range words {
		overlay := s.Clone()
		overlay.set(varName, w, Immediate, false)
		val, err := overlay.expand(parts[2], active)
		if err != nil {
			return "", err
		}
		results = append(results, val)
	}
	return strings.Join(results, " "), nil
}

// fnIf implements $(if COND,THEN[,ELSE]).
func fnIf(s *Store, argsRaw string, active map[string]bool) (string, error) {
	parts := splitTopLevelCommasN(argsRaw, 2)
	if len(parts) < 2 {
		return "", mkerr.Newf(mkerr.KindParse, "if: expected COND,THEN[,ELSE], got %q", argsRaw)
	}
	cond, err := s.expand(parts[0], active)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cond) != "" {
		return s.expand(parts[1], active)
	}
	if len(parts) > 2 {
		return s.expand(parts[2], active)
	}
	return "", nil
}

// fnOr implements $(or A,B,...): the first non-empty expansion, else "".
func fnOr(s *Store, argsRaw string, active map[string]bool) (string, error) {
	for _, part := range splitTopLevelCommas(argsRaw) {
		val, err := s.expand(part, active)
		if err != nil {
			return "", err
		}
		if val != "" {
			return val, nil
		}
	}
	return "", nil
}

// fnAnd implements $(and A,B,...): short-circuits empty on the first empty
// expansion, otherwise the last expansion.
func fnAnd(s *Store, argsRaw string, active map[string]bool) (string, error) {
	var last string
	for _, part := range splitTopLevelCommas(argsRaw) {
		val, err := s.expand(part, active)
		if err != nil {
			return "", err
		}
		if val == "" {
			return "", nil
		}
		last = val
	}
	return last, nil
}

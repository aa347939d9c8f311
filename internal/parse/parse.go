// Package parse turns a stream of logical lines into macro definitions and
// a populated graph.TargetTable: conditionals (ifeq/ifneq/ifdef/ifndef),
// include processing, and rule/recipe accumulation.
package parse

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mklang/gomk/internal/graph"
	"github.com/mklang/gomk/internal/lex"
	"github.com/mklang/gomk/internal/macro"
	"github.com/mklang/gomk/internal/mkerr"
)

// Parser accumulates macros and rules while walking one or more makefiles
// (an include pulls a nested file through the same Parser).
type Parser struct {
	Macros *macro.Store
	Table  *graph.TargetTable

	condStack []condFrame
	current   *pendingRule
	depth     int // include nesting guard
}

type condFrame struct {
	activeBefore bool // were we emitting before this block opened
	taken        bool // has any branch in this if/elif chain matched yet
	branchActive bool // is the current branch active
}

type pendingRule struct {
	targets   []string
	prereqs   []string
	orderOnly []string
	file      string
	line      int
	recipe    []string
}

// New creates a Parser seeded with macros (typically from the environment
// and CLI overrides) and an empty target table.
func New(macros *macro.Store) *Parser {
	return &Parser{Macros: macros, Table: graph.NewTargetTable()}
}

// active reports whether lines are currently being processed (all enclosing
// conditional branches are taken).
func (p *Parser) active() bool {
	for _, f := range p.condStack {
		if !f.branchActive {
			return false
		}
	}
	return true
}

// ParseFile opens path and parses it into the Parser's macros and table.
func (p *Parser) ParseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return mkerr.Wrapf(mkerr.KindIO, path, 0, err, "opening makefile")
	}
	defer f.Close()
	return p.parseReader(f, path)
}

func (p *Parser) parseReader(f *os.File, path string) error {
	p.depth++
	if p.depth > 64 {
		return mkerr.Newf(mkerr.KindParse, "include nesting too deep while reading %s", path)
	}
	defer func() { p.depth-- }()

	r := lex.NewReader(f, path)
	for {
		line, err := r.ReadLine()
		if err != nil {
			break
		}
		if err := p.handleLine(line); err != nil {
			return err
		}
	}
	p.flushRule()
	return nil
}

func (p *Parser) handleLine(line lex.Line) error {
	if line.Recipe {
		if p.current != nil && p.active() {
			p.current.recipe = append(p.current.recipe, line.Text)
		}
		return nil
	}

	text, err := lex.StripComment(line.Text)
	if err != nil {
		return mkerr.Wrapf(mkerr.KindParse, line.File, line.Num, err, "stripping comment")
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if isDirective(trimmed) {
		p.flushRule()
		return p.handleDirective(trimmed, line)
	}

	if !p.active() {
		return nil
	}

	p.flushRule()

	op, name, rhs, isAssign := splitAssignment(trimmed)
	if isAssign {
		expandedName, err := p.Macros.Expand(name)
		if err != nil {
			return mkerr.Wrap(mkerr.KindParse, line.File, line.Num, err, "expanding assignment target")
		}
		if err := p.Macros.Define(strings.TrimSpace(expandedName), rhs, op); err != nil {
			return mkerr.Wrap(mkerr.KindParse, line.File, line.Num, err, "invalid assignment")
		}
		return nil
	}

	return p.handleRuleHeader(trimmed, line)
}

func isDirective(trimmed string) bool {
	for _, kw := range []string{"ifeq", "ifneq", "ifdef", "ifndef", "else", "endif", "include", "-include", "sinclude", ".include"} {
		if trimmed == kw || strings.HasPrefix(trimmed, kw+" ") || strings.HasPrefix(trimmed, kw+"(") {
			return true
		}
	}
	return false
}

// splitAssignment recognizes "NAME op RHS". The makefile colon separating a
// rule's targets from its prerequisites is checked for first; ":=" always
// wins over a bare rule colon.
func splitAssignment(s string) (op macro.AssignOp, name, rhs string, ok bool) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ':':
			if i+1 < len(s) && s[i+1] == '=' {
				return macro.AssignImmediate, strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+2:]), true
			}
			return 0, "", "", false
		case '=':
			switch {
			case i > 0 && s[i-1] == '?':
				return macro.AssignIfAbsent, strings.TrimSpace(s[:i-1]), strings.TrimSpace(s[i+1:]), true
			case i > 0 && s[i-1] == '+':
				return macro.AssignAppend, strings.TrimSpace(s[:i-1]), strings.TrimSpace(s[i+1:]), true
			default:
				return macro.Assign, strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
			}
		}
	}
	return 0, "", "", false
}

func (p *Parser) handleRuleHeader(trimmed string, line lex.Line) error {
	idx := strings.IndexByte(trimmed, ':')
	if idx < 0 {
		return mkerr.Newf(mkerr.KindParse, "%s:%d: expected ':' in rule header", line.File, line.Num)
	}
	targetsPart := trimmed[:idx]
	rest := trimmed[idx+1:]

	expandedTargets, err := p.Macros.Expand(targetsPart)
	if err != nil {
		return mkerr.Wrap(mkerr.KindParse, line.File, line.Num, err, "expanding rule targets")
	}
	targets := strings.Fields(expandedTargets)
	if len(targets) == 0 {
		return mkerr.Newf(mkerr.KindParse, "%s:%d: rule has no targets", line.File, line.Num)
	}

	var inlineRecipe string
	if semi := strings.IndexByte(rest, ';'); semi >= 0 {
		inlineRecipe = strings.TrimSpace(rest[semi+1:])
		rest = rest[:semi]
	}

	expandedRest, err := p.Macros.Expand(rest)
	if err != nil {
		return mkerr.Wrap(mkerr.KindParse, line.File, line.Num, err, "expanding prerequisites")
	}

	prereqs, orderOnly := splitOrderOnly(expandedRest)

	if handled, err := p.handleSpecialTarget(targets, prereqs); err != nil {
		return err
	} else if handled {
		return nil
	}

	p.current = &pendingRule{
		targets:   targets,
		prereqs:   prereqs,
		orderOnly: orderOnly,
		file:      line.File,
		line:      line.Num,
	}
	if inlineRecipe != "" {
		p.current.recipe = append(p.current.recipe, inlineRecipe)
	}
	return nil
}

// splitOrderOnly splits "a b | c d" into (["a","b"], ["c","d"]); order-only
// prerequisites are a GNU extension this repo also supports.
func splitOrderOnly(s string) (prereqs, orderOnly []string) {
	if idx := strings.IndexByte(s, '|'); idx >= 0 {
		return strings.Fields(s[:idx]), strings.Fields(s[idx+1:])
	}
	return strings.Fields(s), nil
}

func (p *Parser) handleSpecialTarget(targets, prereqs []string) (bool, error) {
	if len(targets) != 1 {
		return false, nil
	}
	switch targets[0] {
	case ".PHONY":
		p.Table.MarkPhony(prereqs)
		return true, nil
	case ".SUFFIXES":
		if len(prereqs) == 0 {
			p.Table.SuffixSet = nil
		} else {
			p.Table.SuffixSet = append(p.Table.SuffixSet, prereqs...)
		}
		return true, nil
	case ".POSIX":
		return true, nil
	}
	return false, nil
}

// flushRule commits the in-progress rule, classifying it as explicit,
// pattern (exactly one '%' per target), or suffix (".x.y" naming, both
// extensions present in the active .SUFFIXES list).
func (p *Parser) flushRule() {
	if p.current == nil {
		return
	}
	r := p.current
	p.current = nil

	rule := &graph.Rule{
		Targets:    r.targets,
		Prereqs:    r.prereqs,
		OrderOnly:  r.orderOnly,
		Recipe:     r.recipe,
		OriginFile: r.file,
		OriginLine: r.line,
	}

	isPattern := len(r.targets) > 0
	for _, t := range r.targets {
		if strings.Count(t, "%") != 1 {
			isPattern = false
			break
		}
	}
	if isPattern {
		p.Table.AddPattern(rule)
		return
	}
	if len(r.targets) == 1 {
		if src, dst, ok := graph.ParseSuffixRuleName(r.targets[0]); ok && p.inSuffixSet(src) && p.inSuffixSet(dst) {
			p.Table.AddSuffix(rule)
			return
		}
	}
	rule.Kind = graph.Explicit
	p.Table.AddExplicit(rule)
}

func (p *Parser) inSuffixSet(ext string) bool {
	for _, s := range p.Table.SuffixSet {
		if s == ext {
			return true
		}
	}
	return false
}

var directiveArg = regexp.MustCompile(`^(\S+)\s*(.*)$`)

func (p *Parser) handleDirective(trimmed string, line lex.Line) error {
	m := directiveArg.FindStringSubmatch(trimmed)
	kw, arg := m[1], strings.TrimSpace(m[2])

	switch kw {
	case "ifeq", "ifneq":
		a, b, err := p.evalComparisonArgs(arg)
		if err != nil {
			return mkerr.Wrap(mkerr.KindParse, line.File, line.Num, err, "parsing "+kw)
		}
		cond := a == b
		if kw == "ifneq" {
			cond = !cond
		}
		p.pushCond(cond)
		return nil

	case "ifdef", "ifndef":
		_, defined := p.Macros.Lookup(strings.TrimSpace(arg))
		cond := defined
		if kw == "ifndef" {
			cond = !defined
		}
		p.pushCond(cond)
		return nil

	case "else":
		return p.handleElse(arg, line)

	case "endif":
		return p.popCond(line)

	case "include", "-include", "sinclude", ".include":
		if !p.active() {
			return nil
		}
		return p.handleInclude(kw, arg, line)
	}
	return nil
}

func (p *Parser) evalComparisonArgs(arg string) (string, string, error) {
	arg = strings.TrimSpace(arg)
	var a, b string
	switch {
	case strings.HasPrefix(arg, "(") && strings.HasSuffix(arg, ")"):
		inner := arg[1 : len(arg)-1]
		parts := strings.SplitN(inner, ",", 2)
		if len(parts) != 2 {
			return "", "", mkerr.Newf(mkerr.KindParse, "expected ifeq(A,B), got %q", arg)
		}
		a, b = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	default:
		parts := splitQuoted(arg)
		if len(parts) != 2 {
			return "", "", mkerr.Newf(mkerr.KindParse, `expected ifeq "A" "B", got %q`, arg)
		}
		a, b = parts[0], parts[1]
	}
	ea, err := p.Macros.Expand(a)
	if err != nil {
		return "", "", err
	}
	eb, err := p.Macros.Expand(b)
	if err != nil {
		return "", "", err
	}
	return ea, eb, nil
}

func splitQuoted(s string) []string {
	var out []string
	for _, q := range []byte{'"', '\''} {
		s = strings.TrimSpace(s)
		if len(s) == 0 || s[0] != q {
			continue
		}
		end := strings.IndexByte(s[1:], q)
		if end < 0 {
			continue
		}
		out = append(out, s[1:1+end])
		s = s[1+end+1:]
	}
	return out
}

func (p *Parser) pushCond(cond bool) {
	activeBefore := p.active()
	p.condStack = append(p.condStack, condFrame{
		activeBefore: activeBefore,
		taken:        cond && activeBefore,
		branchActive: cond && activeBefore,
	})
}

func (p *Parser) handleElse(arg string, line lex.Line) error {
	if len(p.condStack) == 0 {
		return mkerr.Newf(mkerr.KindParse, "%s:%d: else without if", line.File, line.Num)
	}
	top := &p.condStack[len(p.condStack)-1]

	if strings.HasPrefix(arg, "ifeq") || strings.HasPrefix(arg, "ifneq") {
		sub := directiveArg.FindStringSubmatch(arg)
		kw, rest := sub[1], strings.TrimSpace(sub[2])
		if top.taken {
			top.branchActive = false
			return nil
		}
		a, b, err := p.evalComparisonArgs(rest)
		if err != nil {
			return mkerr.Wrap(mkerr.KindParse, line.File, line.Num, err, "parsing else "+kw)
		}
		cond := a == b
		if kw == "ifneq" {
			cond = !cond
		}
		active := cond && top.activeBefore
		top.branchActive = active
		if active {
			top.taken = true
		}
		return nil
	}

	if top.taken {
		top.branchActive = false
	} else {
		top.branchActive = top.activeBefore
		top.taken = true
	}
	return nil
}

func (p *Parser) popCond(line lex.Line) error {
	if len(p.condStack) == 0 {
		return mkerr.Newf(mkerr.KindParse, "%s:%d: endif without if", line.File, line.Num)
	}
	p.condStack = p.condStack[:len(p.condStack)-1]
	return nil
}

func (p *Parser) handleInclude(kw, arg string, line lex.Line) error {
	expanded, err := p.Macros.Expand(arg)
	if err != nil {
		return mkerr.Wrap(mkerr.KindParse, line.File, line.Num, err, "expanding include path")
	}
	optional := kw == "-include" || kw == "sinclude"
	for _, name := range strings.Fields(strings.Trim(expanded, `"`)) {
		path := name
		if !filepath.IsAbs(path) {
			if dir := filepath.Dir(line.File); dir != "." {
				candidate := filepath.Join(dir, path)
				if _, statErr := os.Stat(candidate); statErr == nil {
					path = candidate
				}
			}
		}
		if err := p.ParseFile(path); err != nil {
			if optional {
				continue
			}
			return mkerr.Wrapf(mkerr.KindIncludeNotFound, line.File, line.Num, err, "including %q", name)
		}
	}
	return nil
}

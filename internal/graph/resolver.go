package graph

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mklang/gomk/internal/mkerr"
)

// SearchPath splits a VPATH-style value the way the resolver needs it: try
// ';' first, then ':', then whitespace, and use whichever separator is the
// first to yield more than one segment.
func SearchPath(vpath string) []string {
	for _, sep := range []string{";", ":"} {
		if strings.Contains(vpath, sep) {
			parts := splitNonEmpty(vpath, sep)
			if len(parts) > 1 {
				return parts
			}
		}
	}
	return strings.Fields(vpath)
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Resolver walks a TargetTable from a goal name to a DAG of ResolvedTargets.
type Resolver struct {
	Table      *TargetTable
	SearchDirs []string // VPATH directories, current dir implicitly first

	visiting map[string]bool
	done     map[string]*ResolvedTarget
	statted  map[string]statResult
}

type statResult struct {
	exists bool
	mtime  time.Time
}

// NewResolver builds a Resolver over tt with the given VPATH directories.
func NewResolver(tt *TargetTable, searchDirs []string) *Resolver {
	return &Resolver{
		Table:      tt,
		SearchDirs: searchDirs,
		visiting:   make(map[string]bool),
		done:       make(map[string]*ResolvedTarget),
		statted:    make(map[string]statResult),
	}
}

// Resolve returns the fully resolved DAG rooted at goal.
func (r *Resolver) Resolve(goal string) (*ResolvedTarget, error) {
	return r.resolve(goal)
}

func (r *Resolver) resolve(name string) (*ResolvedTarget, error) {
	if rt, ok := r.done[name]; ok {
		return rt, nil
	}
	if r.visiting[name] {
		return nil, mkerr.Newf(mkerr.KindCycleDetected, "dependency cycle detected at target %q", name)
	}
	r.visiting[name] = true
	defer delete(r.visiting, name)

	rule, stem := r.findRule(name)

	st := r.stat(name)
	phony := r.Table.Phony[name]

	if rule == nil {
		if st.exists {
			rt := &ResolvedTarget{
				Name:          name,
				Phony:         phony,
				ExistsOnDisk:  true,
				MTimeUnixNano: st.mtime.UnixNano(),
			}
			r.done[name] = rt
			return rt, nil
		}
		return nil, mkerr.Newf(mkerr.KindNoRule, "no rule to make target %q", name)
	}

	rt := &ResolvedTarget{
		Name:          name,
		Recipe:        rule.Recipe,
		Phony:         phony,
		ExistsOnDisk:  st.exists,
		MTimeUnixNano: st.mtime.UnixNano(),
		Stem:          stem,
	}

	mustBuild := phony || !st.exists
	for _, p := range substStem(rule.Prereqs, stem) {
		dep, err := r.resolve(p)
		if err != nil {
			return nil, err
		}
		rt.ConcretePrereq = append(rt.ConcretePrereq, p)
		rt.Deps = append(rt.Deps, dep)
		if dep.Phony || dep.MustBuild || dep.MTimeUnixNano >= rt.MTimeUnixNano {
			mustBuild = true
		}
	}
	for _, p := range substStem(rule.OrderOnly, stem) {
		dep, err := r.resolve(p)
		if err != nil {
			return nil, err
		}
		rt.OrderOnly = append(rt.OrderOnly, p)
		rt.Deps = append(rt.Deps, dep)
	}
	rt.MustBuild = mustBuild

	r.done[name] = rt
	return rt, nil
}

// findRule locates the rule that applies to name: an explicit rule first,
// else the first matching pattern rule (in source order), else a
// synthesized suffix rule. Returns the matched stem for pattern rules
// (empty for explicit and suffix rules).
func (r *Resolver) findRule(name string) (*Rule, string) {
	if rule, ok := r.Table.Explicit[name]; ok && (len(rule.Recipe) > 0 || len(rule.Prereqs) > 0) {
		return rule, ""
	}

	for _, rule := range r.Table.Patterns {
		for _, target := range rule.Targets {
			if stem, ok := patternMatch(target, name); ok {
				return rule, stem
			}
		}
	}

	for _, suffix := range r.activeSuffixes(name) {
		src := strings.TrimSuffix(name, suffix.dst) + suffix.src
		if _, ok := r.Table.Explicit[src]; ok || r.existsAlongPath(src) {
			for _, rule := range r.Table.Suffixes {
				if len(rule.Targets) == 1 && rule.Targets[0] == suffix.src+suffix.dst {
					synthesized := *rule
					synthesized.Prereqs = append([]string{src}, rule.Prereqs...)
					return &synthesized, ""
				}
			}
		}
	}

	// An explicit rule with neither recipe nor prereqs still counts (e.g. a
	// bare phony declaration with no recipe): prefer it over "no rule" if
	// nothing else matched.
	if rule, ok := r.Table.Explicit[name]; ok {
		return rule, ""
	}
	return nil, ""
}

type suffixPair struct{ src, dst string }

func (r *Resolver) activeSuffixes(name string) []suffixPair {
	var out []suffixPair
	for _, dst := range r.Table.SuffixSet {
		if !strings.HasSuffix(name, dst) {
			continue
		}
		for _, src := range r.Table.SuffixSet {
			if src == dst {
				continue
			}
			out = append(out, suffixPair{src: src, dst: dst})
		}
	}
	return out
}

// patternMatch matches a pattern containing exactly one '%' against name,
// returning the stem.
func patternMatch(pattern, name string) (string, bool) {
	idx := strings.IndexByte(pattern, '%')
	if idx < 0 {
		return "", false
	}
	pre, post := pattern[:idx], pattern[idx+1:]
	if len(name) < len(pre)+len(post) || !strings.HasPrefix(name, pre) || !strings.HasSuffix(name, post) {
		return "", false
	}
	return name[len(pre) : len(name)-len(post)], true
}

func substStem(items []string, stem string) []string {
	if stem == "" {
		return items
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = strings.ReplaceAll(it, "%", stem)
	}
	return out
}

func (r *Resolver) stat(name string) statResult {
	if st, ok := r.statted[name]; ok {
		return st
	}
	path := r.locate(name)
	info, err := os.Stat(path)
	var st statResult
	if err == nil {
		st = statResult{exists: true, mtime: info.ModTime()}
	}
	r.statted[name] = st
	return st
}

func (r *Resolver) existsAlongPath(name string) bool {
	return r.stat(name).exists
}

// locate searches the current directory then SearchDirs for name,
// returning the first path that exists, or name itself if none do.
func (r *Resolver) locate(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	for _, dir := range r.SearchDirs {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return name
}

// Refresh drops name's cached stat and resolution so the next Resolve that
// reaches it stats it again; the Scheduler calls it after a recipe updates
// a target's mtime (the Resolver otherwise reads a target's mtime at most
// once per build).
func (r *Resolver) Refresh(name string) {
	delete(r.statted, name)
	delete(r.done, name)
}

var suffixRuleName = regexp.MustCompile(`^(\.[^.]+)(\.[^.]+)$`)

// ParseSuffixRuleName splits ".c.o" into (".c", ".o"), the naming
// convention RuleParser uses to recognize suffix rules.
func ParseSuffixRuleName(target string) (src, dst string, ok bool) {
	m := suffixRuleName.FindStringSubmatch(target)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

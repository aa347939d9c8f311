// Package macro implements variable storage with immediate and deferred
// semantics, $-reference expansion, and the registry of built-in text
// functions (subst, patsubst, word, ...).
package macro

import (
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/mklang/gomk/internal/mkerr"
)

// Kind distinguishes immediate (:=) from deferred (=) macros.
type Kind int

const (
	Deferred Kind = iota
	Immediate
)

// Macro is a single stored name/value pair.
type Macro struct {
	Name     string
	Value    string // already-expanded for Immediate, a template for Deferred
	Kind     Kind
	Exported bool
}

// AssignOp selects the assignment semantics for Define.
type AssignOp int

const (
	Assign          AssignOp = iota // =
	AssignImmediate                 // :=
	AssignIfAbsent                  // ?=
	AssignAppend                    // +=
)

const validNameRunes = "@^<"

// IsValidName reports whether name matches [A-Za-z0-9_@^<]+.
func IsValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		case strings.ContainsRune(validNameRunes, c):
		default:
			return false
		}
	}
	return true
}

// Store holds all macros defined while parsing a makefile. It is safe for
// concurrent read-only use (Expand, Lookup) once parsing has finished;
// Define is not safe to call concurrently with Expand — the macro table is
// frozen before scheduling begins, same as the target table.
type Store struct {
	vars  map[string]*Macro
	order []string // insertion order, for -p style dumps
}

// New creates an empty Store.
func New() *Store {
	return &Store{vars: make(map[string]*Macro)}
}

// NewFromEnv seeds a Store from the process environment (os.Environ-style
// "NAME=VALUE" pairs), marking every entry exported so it flows into
// recipe environments without an explicit export directive.
func NewFromEnv(environ []string) *Store {
	s := New()
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		s.vars[name] = &Macro{Name: name, Value: value, Kind: Immediate, Exported: true}
		s.order = append(s.order, name)
	}
	return s
}

// Lookup returns the macro's stored value. For Deferred macros this is the
// unexpanded template; callers that want the expanded value should use
// Expand("$(name)") instead.
func (s *Store) Lookup(name string) (*Macro, bool) {
	m, ok := s.vars[name]
	return m, ok
}

// Define implements the four assignment operators: =, :=, ?=, +=.
func (s *Store) Define(name, rhs string, op AssignOp) error {
	if !IsValidName(name) {
		return mkerr.Newf(mkerr.KindParse, "invalid macro name %q", name)
	}

	existing, had := s.vars[name]

	switch op {
	case AssignIfAbsent:
		if had {
			return nil
		}
		s.set(name, rhs, Deferred, had)

	case AssignImmediate:
		expanded, err := s.Expand(rhs)
		if err != nil {
			return err
		}
		s.set(name, expanded, Immediate, had)

	case AssignAppend:
		if !had {
			s.set(name, rhs, Deferred, false)
			return nil
		}
		sep := ""
		if existing.Value != "" && rhs != "" {
			sep = " "
		}
		kind := existing.Kind
		value := existing.Value + sep + rhs
		if kind == Immediate {
			expanded, err := s.Expand(rhs)
			if err != nil {
				return err
			}
			sep := ""
			if existing.Value != "" && expanded != "" {
				sep = " "
			}
			value = existing.Value + sep + expanded
		}
		s.set(name, value, kind, had)

	default: // Assign
		s.set(name, rhs, Deferred, had)
	}
	return nil
}

func (s *Store) set(name, value string, kind Kind, had bool) {
	exported := false
	if m, ok := s.vars[name]; ok {
		exported = m.Exported
	}
	s.vars[name] = &Macro{Name: name, Value: value, Kind: kind, Exported: exported}
	if !had {
		s.order = append(s.order, name)
	}
}

// Export marks name (creating it empty if absent) for inclusion in a
// recipe's environment.
func (s *Store) Export(name string) {
	m, ok := s.vars[name]
	if !ok {
		m = &Macro{Name: name, Kind: Deferred}
		s.vars[name] = m
		s.order = append(s.order, name)
	}
	m.Exported = true
}

// Environ returns "NAME=VALUE" pairs for every exported macro, expanding
// deferred values.
func (s *Store) Environ() []string {
	var out []string
	for _, name := range s.order {
		m := s.vars[name]
		if !m.Exported {
			continue
		}
		val, err := s.Expand(m.Value)
		if err != nil {
			val = m.Value
		}
		out = append(out, name+"="+val)
	}
	return out
}

// Names returns every defined macro name in definition order.
func (s *Store) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Clone makes a shallow copy suitable for target-scoped overlays (automatic
// variables @, ^, < during a single recipe's expansion). Assignments on the
// clone are scoped to that target's recipe execution and never leak back
// to siblings sharing the parent store.
func (s *Store) Clone() *Store {
	clone := &Store{vars: make(map[string]*Macro, len(s.vars)), order: append([]string(nil), s.order...)}
	for k, v := range s.vars {
		cp := *v
		clone.vars[k] = &cp
	}
	return clone
}

// SetAutomatic installs the resolver-computed @, ^, < values on a (usually
// cloned) store ahead of expanding one target's recipe.
func (s *Store) SetAutomatic(target string, prereqs []string, first string) {
	s.set("@", target, Immediate, true)
	s.set("^", strings.Join(prereqs, " "), Immediate, true)
	s.set("<", first, Immediate, true)
}

// ColorCapable reports whether stdout looks like a terminal, the way
// cmd/gomk decides whether to emit ANSI color for recipe echoing.
func ColorCapable(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}


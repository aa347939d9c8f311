// Package debugdump renders internal build state for the -d flag using
// github.com/sanity-io/litter, the way the wider mk pack declares but never
// wires up for inspecting parsed rule sets and macro tables.
package debugdump

import (
	"io"

	"github.com/sanity-io/litter"

	"github.com/mklang/gomk/internal/graph"
	"github.com/mklang/gomk/internal/macro"
)

// Options configures litter's output; Compact keeps single-line dumps for
// quick scanning in CI logs.
var Options = litter.Options{
	Compact:           true,
	StripPackageNames: true,
	HideZeroValues:    true,
}

// Macros writes every defined macro name and value to w.
func Macros(w io.Writer, store *macro.Store) {
	dump := make(map[string]macro.Macro, len(store.Names()))
	for _, name := range store.Names() {
		m, _ := store.Lookup(name)
		dump[name] = *m
	}
	io.WriteString(w, Options.Sdump(dump))
}

// Rules writes the parsed target table: explicit rules, pattern rules, and
// suffix rules.
func Rules(w io.Writer, table *graph.TargetTable) {
	io.WriteString(w, "explicit:\n"+Options.Sdump(table.Explicit))
	io.WriteString(w, "patterns:\n"+Options.Sdump(table.Patterns))
	io.WriteString(w, "suffixes:\n"+Options.Sdump(table.Suffixes))
	io.WriteString(w, "phony:\n"+Options.Sdump(table.Phony))
}

// ResolvedTarget writes one resolution result, used to trace why a
// particular target was (or was not) considered stale.
func ResolvedTarget(w io.Writer, rt *graph.ResolvedTarget) {
	io.WriteString(w, Options.Sdump(rt))
}

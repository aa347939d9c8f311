// Command gomk is the CLI front-end: it parses flags, reads a makefile,
// resolves the requested goals against the target table, and drives the
// scheduler to build them.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/mklang/gomk/internal/build"
	"github.com/mklang/gomk/internal/debugdump"
	"github.com/mklang/gomk/internal/graph"
	"github.com/mklang/gomk/internal/macro"
	"github.com/mklang/gomk/internal/mkerr"
	"github.com/mklang/gomk/internal/parse"
	"github.com/mklang/gomk/internal/shellbridge"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("gomk", pflag.ContinueOnError)

	var (
		makefile    = flags.StringP("file", "f", "Makefile", "read FILE as the makefile")
		directory   = flags.StringP("directory", "C", "", "change to DIR before doing anything")
		keepGoing   = flags.BoolP("keep-going", "k", false, "keep going after errors where possible")
		silent      = flags.BoolP("silent", "s", false, "don't echo recipe commands")
		justPrint   = flags.BoolP("just-print", "n", false, "print commands without executing them")
		jobs        = flags.IntP("jobs", "j", runtime.NumCPU(), "allow N recipes to run in parallel")
		printVars   = flags.BoolP("print-expanded", "p", false, "print the macro table and target table, then exit")
		builtinSh   = flags.BoolP("builtin-shell", "b", false, "use the embedded POSIX shell instead of the host shell")
		printDir    = flags.BoolP("print-directory", "w", false, "print the working directory before and after")
		debug       = flags.BoolP("debug", "d", false, "dump internal macro/target state for diagnosis")
		showVersion = flags.Bool("version", false, "print version and exit")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: gomk [options] [NAME=VALUE...] [target...]\n\n")
		flags.PrintDefaults()
	}

	args = append(flagsFromMakeflags(os.Getenv("MAKEFLAGS")), args...)
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 1
	}

	if *showVersion {
		fmt.Println("gomk version 1.0.0")
		return 0
	}

	if *directory != "" {
		if err := os.Chdir(*directory); err != nil {
			fmt.Fprintf(os.Stderr, "gomk: %v\n", err)
			return 1
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gomk: %v\n", err)
		return 1
	}
	if *printDir {
		fmt.Printf("gomk: Entering directory '%s'\n", cwd)
		defer fmt.Printf("gomk: Leaving directory '%s'\n", cwd)
	}

	macros := macro.NewFromEnv(os.Environ())

	var goals []string
	for _, arg := range flags.Args() {
		if name, value, ok := strings.Cut(arg, "="); ok && macro.IsValidName(name) {
			if err := macros.Define(name, value, macro.AssignImmediate); err != nil {
				fmt.Fprintf(os.Stderr, "gomk: %v\n", err)
				return 1
			}
			continue
		}
		goals = append(goals, arg)
	}

	p := parse.New(macros)
	if err := p.ParseFile(*makefile); err != nil {
		fmt.Fprintf(os.Stderr, "gomk: %v\n", err)
		return exitCodeFor(err)
	}

	if *printVars {
		debugdump.Macros(os.Stdout, macros)
		debugdump.Rules(os.Stdout, p.Table)
		return 0
	}
	if *debug {
		debugdump.Macros(os.Stderr, macros)
		debugdump.Rules(os.Stderr, p.Table)
	}

	if len(goals) == 0 {
		goals = firstExplicitTarget(p.Table)
	}
	if len(goals) == 0 {
		fmt.Println("gomk: nothing to do")
		return 0
	}

	makeflags := makeflagsFor(*keepGoing, *silent, *justPrint, *jobs)
	os.Setenv("MAKEFLAGS", makeflags)
	macros.Define("MAKEFLAGS", makeflags, macro.AssignImmediate)
	macros.Export("MAKEFLAGS")

	searchDirs := searchPathFromMacros(macros)

	shellValue := ""
	if m, ok := macros.Lookup("SHELL"); ok {
		if v, err := macros.Expand(m.Value); err == nil {
			shellValue = v
		}
	}

	var shell shellbridge.Bridge
	if _, ok := macros.Lookup("_BUILTIN_SHELL"); ok || *builtinSh {
		embedded := shellbridge.NewEmbedded()
		if _, ok := macros.Lookup("_SYSTEM_SHELL_PIPES"); ok {
			embedded.SystemShellPipes = true
			embedded.Fallback = &shellbridge.System{Shell: shellValue}
		}
		shell = embedded
	} else {
		shell = &shellbridge.System{Shell: shellValue}
	}

	state := build.State{
		Macros:      macros,
		SearchDirs:  searchDirs,
		Cwd:         cwd,
		MaxJobs:     *jobs,
		StopOnError: !*keepGoing,
		Silent:      *silent,
		JustPrint:   *justPrint,
		Color:       isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}
	sched := build.New(state, shell)
	resolver := graph.NewResolver(p.Table, searchDirs)
	sched.Resolver = resolver

	ctx := context.Background()
	failed := false
	for _, goal := range goals {
		resolved, err := resolver.Resolve(goal)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gomk: %v\n", err)
			if !*keepGoing {
				return exitCodeFor(err)
			}
			failed = true
			continue
		}
		if *debug {
			debugdump.ResolvedTarget(os.Stderr, resolved)
		}
		if err := sched.Build(ctx, resolved); err != nil {
			fmt.Fprintf(os.Stderr, "gomk: %v\n", err)
			if !*keepGoing {
				return 2
			}
			failed = true
		}
	}
	if failed {
		return 2
	}
	return 0
}

func firstExplicitTarget(tt *graph.TargetTable) []string {
	var best string
	for name, rule := range tt.Explicit {
		if strings.HasPrefix(name, ".") {
			continue
		}
		if best == "" || rule.OriginLine < tt.Explicit[best].OriginLine {
			best = name
		}
	}
	if best == "" {
		return nil
	}
	return []string{best}
}

func searchPathFromMacros(macros *macro.Store) []string {
	m, ok := macros.Lookup("VPATH")
	if !ok {
		return nil
	}
	expanded, err := macros.Expand(m.Value)
	if err != nil {
		return nil
	}
	return graph.SearchPath(expanded)
}

// flagsFromMakeflags turns a MAKEFLAGS value inherited from a parent gomk
// invocation back into flag tokens, so a recursively-invoked "$(MAKE) -C
// sub" picks up -k/-s/-n/-j the way a recursive GNU make does.
func flagsFromMakeflags(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Fields(value) {
		if strings.HasPrefix(tok, "-") {
			out = append(out, tok)
			continue
		}
		for _, c := range tok {
			out = append(out, "-"+string(c))
		}
	}
	return out
}

// makeflagsFor renders the current flag state back into a MAKEFLAGS string
// for child recipe environments to inherit.
func makeflagsFor(keepGoing, silent, justPrint bool, jobs int) string {
	var letters strings.Builder
	if keepGoing {
		letters.WriteByte('k')
	}
	if silent {
		letters.WriteByte('s')
	}
	if justPrint {
		letters.WriteByte('n')
	}
	out := letters.String()
	if jobs > 1 {
		out += fmt.Sprintf(" -j%d", jobs)
	}
	return out
}

func exitCodeFor(err error) int {
	if mkerr.Is(err, mkerr.KindIO) {
		return 1
	}
	return 2
}

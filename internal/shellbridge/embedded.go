package shellbridge

import (
	"context"
	"errors"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Embedded interprets recipe commands with a real POSIX shell grammar
// instead of delegating to a host binary. It gives correct handling of
// "||", "&&", ";", "|", redirections, and "&" without hand-rolling an
// operator-tree evaluator, and its "cd" builtin mutates only the
// interp.Runner's own working directory, never the engine process's.
type Embedded struct {
	parser *syntax.Parser

	// SystemShellPipes, when true (driven by the _SYSTEM_SHELL_PIPES
	// macro), collapses any command containing a pipe or redirection back
	// to a plain string and hands it to Fallback instead of interp.Runner.
	SystemShellPipes bool
	Fallback         Bridge
}

// NewEmbedded returns an Embedded shell bridge.
func NewEmbedded() *Embedded {
	return &Embedded{parser: syntax.NewParser()}
}

func (e *Embedded) Run(ctx context.Context, command string, env []string, dir string) (int, error) {
	if e.SystemShellPipes && e.Fallback != nil && containsPipeOrRedirect(command) {
		return e.Fallback.Run(ctx, command, env, dir)
	}

	file, err := e.parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return -1, err
	}

	runner, err := interp.New(
		interp.StdIO(os.Stdin, os.Stdout, os.Stderr),
		interp.Env(expand.ListEnviron(env...)),
		interp.Dir(dir),
	)
	if err != nil {
		return -1, err
	}

	err = runner.Run(ctx, file)
	if err == nil {
		return 0, nil
	}
	var status interp.ExitStatus
	if errors.As(err, &status) {
		return int(status), nil
	}
	return -1, err
}

// containsPipeOrRedirect reports whether command has a '|' or '>' outside
// single/double quotes and not backslash-escaped (nesting such as $(...)
// is not tracked), the trigger for handing the whole
// command to the system shell under _SYSTEM_SHELL_PIPES.
func containsPipeOrRedirect(command string) bool {
	inSingle, inDouble := false, false
	for i := 0; i < len(command); i++ {
		c := command[i]
		switch {
		case c == '\\' && i+1 < len(command):
			i++
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case (c == '|' || c == '>') && !inSingle && !inDouble:
			return true
		}
	}
	return false
}

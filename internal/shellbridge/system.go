package shellbridge

import (
	"context"
	"os"
	"os/exec"

	"github.com/google/shlex"
	"github.com/pkg/errors"
)

const defaultShell = "sh -c"

// System delegates recipe commands to the host command interpreter,
// splitting a configured SHELL value with shlex. A value naming only a
// program (e.g. "/bin/sh") is run with "-c"; a value that carries its own
// flags (e.g. "sh -ec") is used as given, with the command appended as the
// last argument.
type System struct {
	// Shell overrides the configured SHELL macro value; empty means
	// defaultShell.
	Shell string
}

func (s *System) Run(ctx context.Context, command string, env []string, dir string) (int, error) {
	shellCmd := s.Shell
	if shellCmd == "" {
		shellCmd = defaultShell
	}
	parts, err := shlex.Split(shellCmd)
	if err != nil {
		return -1, errors.Wrapf(err, "splitting SHELL value %q", shellCmd)
	}
	if len(parts) == 0 {
		parts = []string{"sh", "-c"}
	} else if len(parts) == 1 {
		parts = append(parts, "-c")
	}
	args := append(append([]string(nil), parts[1:]...), command)

	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Env = env
	cmd.Dir = dir
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err = cmd.Run()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, errors.Wrapf(err, "running %q", command)
}

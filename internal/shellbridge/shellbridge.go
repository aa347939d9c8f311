// Package shellbridge runs one recipe command, either by delegating to the
// host shell binary or by interpreting it with an embedded POSIX shell.
package shellbridge

import "context"

// Bridge is the contract the scheduler drives one recipe command through.
type Bridge interface {
	Run(ctx context.Context, command string, env []string, dir string) (exitCode int, err error)
}

// Sigil describes the leading recipe-line markers GNU make recognizes.
type Sigil struct {
	Silent    bool // '@' — suppress echo
	IgnoreErr bool // '-' — non-zero exit does not fail the target
	AlwaysRun bool // '+' — run even when just_print is set
}

// StripSigils consumes any leading combination of '@', '-', '+' (in any
// order, each at most meaningfully once) and returns the remaining command
// text.
func StripSigils(line string) (Sigil, string) {
	var s Sigil
	i := 0
	for i < len(line) {
		switch line[i] {
		case '@':
			s.Silent = true
		case '-':
			s.IgnoreErr = true
		case '+':
			s.AlwaysRun = true
		default:
			return s, line[i:]
		}
		i++
	}
	return s, line[i:]
}

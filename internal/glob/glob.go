// Package glob resolves wildcard patterns ("*.c", "src/**/*.go") against the
// real filesystem, the collaborator behind the wildcard built-in.
package glob

import (
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// Glob expands each pattern against the filesystem rooted at the current
// working directory and returns the union of matches, deduplicated and
// sorted. A pattern that matches nothing contributes no entries and is not
// an error, matching make's $(wildcard) behavior.
func Glob(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, pat := range patterns {
		matches, err := doublestar.FilepathGlob(pat)
		if err != nil {
			return nil, errors.Wrapf(err, "wildcard: bad pattern %q", pat)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

package archive

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Filter selects archives by glob patterns over normalized package names.
// A Filter without patterns matches everything.
type Filter struct {
	patterns []glob.Glob
}

// NewFilter compiles the patterns. Blank patterns are skipped.
func NewFilter(patterns ...string) (*Filter, error) {
	f := &Filter{
		patterns: make([]glob.Glob, 0, len(patterns)),
	}

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		g, err := glob.Compile(NormalizeName(p))
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}

		f.patterns = append(f.patterns, g)
	}

	return f, nil
}

// Empty reports whether the filter lets everything through.
func (f *Filter) Empty() bool {
	return f == nil || len(f.patterns) == 0
}

// Match reports whether a passes the filter.
func (f *Filter) Match(a *Archive) bool {
	if f.Empty() {
		return true
	}

	name := a.NormalizedName()
	for _, g := range f.patterns {
		if g.Match(name) {
			return true
		}
	}

	return false
}

// Package globmatch implements the case-insensitive "*"-wildcard glob
// matching used by crawl job include/exclude URL patterns (spec.md §4.2,
// §8: `"*docs*"` matches `/guide/docs/x` and not `/guide/foo`).
package globmatch

import (
	"fmt"
	"strings"
)

// Pattern is a compiled glob pattern.
type Pattern struct {
	segments []string
	anchored bool
}

// Compile validates and compiles a glob pattern. The only metacharacter
// is "*"; everything else matches literally, case-insensitively. A
// pattern containing "[" or "]" is rejected, since character classes
// are not supported.
func Compile(pattern string) (*Pattern, error) {
	if strings.ContainsAny(pattern, "[]") {
		return nil, fmt.Errorf("glob pattern %q: character classes are not supported", pattern)
	}
	lower := strings.ToLower(pattern)
	anchored := !strings.Contains(lower, "*")
	return &Pattern{segments: strings.Split(lower, "*"), anchored: anchored}, nil
}

// Match reports whether s matches the pattern.
func (p *Pattern) Match(s string) bool {
	s = strings.ToLower(s)
	if p.anchored {
		return s == p.segments[0]
	}

	if !strings.HasPrefix(s, p.segments[0]) {
		return false
	}
	rest := s[len(p.segments[0]):]

	for i := 1; i < len(p.segments); i++ {
		seg := p.segments[i]
		if i == len(p.segments)-1 {
			return strings.HasSuffix(rest, seg)
		}
		idx := strings.Index(rest, seg)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(seg):]
	}
	return true
}

// MatchAny reports whether s matches any of the given patterns (an empty
// pattern list means filtering is disabled: always true).
func MatchAny(patterns []*Pattern, s string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if p.Match(s) {
			return true
		}
	}
	return false
}

// CompileAll compiles every pattern, returning the first compile error.
func CompileAll(patterns []string) ([]*Pattern, error) {
	out := make([]*Pattern, 0, len(patterns))
	for _, pat := range patterns {
		p, err := Compile(pat)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

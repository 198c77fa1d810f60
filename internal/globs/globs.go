// Package globs compiles file glob patterns to anchored regular expressions
// and tests pattern overlap without touching the filesystem.
package globs

import (
	"fmt"
	"regexp"
	"strings"
)

// Supported tokens:
//
//	*   any run of non-separator characters (may be empty)
//	**  any number of path segments, including zero
//	?   exactly one non-separator character
//
// Patterns are anchored: they must match the whole candidate path.

// Pattern is a compiled glob.
type Pattern struct {
	Source string
	re     *regexp.Regexp
}

// Compile translates a glob into an anchored regexp.
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty glob pattern")
	}
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				// ** crosses separators
				switch {
				case i+2 < len(runes) && runes[i+2] == '/':
					// "**/" - zero or more whole segments
					b.WriteString(`(?:.*/)?`)
					i += 2
				case i > 0 && runes[i-1] == '/':
					// "/**" suffix was already emitted up to the slash;
					// rewind it so "src/**" also matches "src" itself.
					cur := b.String()
					b.Reset()
					b.WriteString(strings.TrimSuffix(cur, "/"))
					b.WriteString(`(?:/.*)?`)
					i++
				default:
					b.WriteString(`.*`)
					i++
				}
			} else {
				b.WriteString(`[^/]*`)
			}
		case '?':
			b.WriteString(`[^/]`)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	return &Pattern{Source: pattern, re: re}, nil
}

// MustCompile is Compile for patterns known to be valid.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether the compiled pattern matches the full path.
func (p *Pattern) Match(path string) bool {
	return p.re.MatchString(path)
}

// Match compiles pattern and matches path against it. Invalid patterns
// match nothing.
func Match(pattern, path string) bool {
	p, err := Compile(pattern)
	if err != nil {
		return false
	}
	return p.Match(path)
}

// Materialize produces a concrete path the pattern matches, by replacing
// wildcard tokens with fixed filler text. Used for overlap detection: if
// one pattern matches a path materialized from another, their scopes
// intersect.
func Materialize(pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				// Deep segment stands in for "any depth".
				if i+2 < len(runes) && runes[i+2] == '/' {
					b.WriteString("d1/d2/")
					i += 2
				} else {
					b.WriteString("d1/d2")
					i++
				}
			} else {
				b.WriteString("f")
			}
		case '?':
			b.WriteString("c")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// materializeShallow is Materialize with ** collapsed to zero depth, so
// "src/utils/**" also yields the bare "src/utils" candidate.
func materializeShallow(pattern string) string {
	s := strings.ReplaceAll(pattern, "/**", "")
	s = strings.ReplaceAll(s, "**/", "")
	s = strings.ReplaceAll(s, "**", "d")
	s = strings.ReplaceAll(s, "*", "f")
	s = strings.ReplaceAll(s, "?", "c")
	return s
}

// Overlaps reports whether two glob patterns can match a common path.
// Each pattern is tested against paths materialized from the other (one
// deep, one zero-depth) and against the other's literal text, which
// catches exact duplicates and nested scopes without enumerating the
// filesystem.
func Overlaps(p, q string) bool {
	pc, err := Compile(p)
	if err != nil {
		return false
	}
	qc, err := Compile(q)
	if err != nil {
		return false
	}
	if pc.Match(Materialize(q)) || qc.Match(Materialize(p)) {
		return true
	}
	if pc.Match(materializeShallow(q)) || qc.Match(materializeShallow(p)) {
		return true
	}
	return pc.Match(q) || qc.Match(p)
}

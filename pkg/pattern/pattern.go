// Package pattern compiles URL patterns used by request blocking.
//
//   - "tracker.example.com/p.gif": exact, case-insensitive
//   - "*doubleclick.net*": wildcard, case-insensitive, * spans any run of characters
//   - "~^https://cdn\.example\.org/": regular expression, case-sensitive
//   - "~*\.ads\.": regular expression, case-insensitive
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is the matching strategy of a pattern
type Kind int

const (
	Wildcard Kind = iota
	Regexp
	Exact
)

func (k Kind) String() string {
	switch k {
	case Wildcard:
		return "wildcard"
	case Regexp:
		return "regexp"
	case Exact:
		return "exact"
	}
	return "unknown"
}

// Pattern is a compiled pattern
type Pattern struct {
	Source string
	Kind   Kind

	body string // lowercased for exact and wildcard
	re   *regexp.Regexp
}

// Compile parses src. Surrounding whitespace is ignored.
func Compile(src string) (*Pattern, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}

	p := &Pattern{Source: src}
	switch {
	case strings.HasPrefix(src, "~*"):
		p.Kind = Regexp
		p.body = "(?i)" + src[2:]
	case strings.HasPrefix(src, "~"):
		p.Kind = Regexp
		p.body = src[1:]
	case strings.Contains(src, "*"):
		p.Kind = Wildcard
		p.body = strings.ToLower(src)
	default:
		p.Kind = Exact
		p.body = strings.ToLower(src)
	}

	if p.Kind == Regexp {
		re, err := regexp.Compile(p.body)
		if err != nil {
			return nil, fmt.Errorf("invalid regexp pattern %q: %w", src, err)
		}
		p.re = re
	}
	return p, nil
}

// Match reports whether s matches. A nil pattern matches nothing.
func (p *Pattern) Match(s string) bool {
	if p == nil {
		return false
	}
	switch p.Kind {
	case Regexp:
		return p.re.MatchString(s)
	case Wildcard:
		return matchWildcard(strings.ToLower(s), p.body)
	default:
		return strings.ToLower(s) == p.body
	}
}

func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	return p.Source
}

// matchWildcard walks the literal segments between stars in order. The
// first segment anchors the start and the last anchors the end.
func matchWildcard(text, pat string) bool {
	parts := strings.Split(pat, "*")
	if len(parts) == 1 {
		return text == pat
	}

	first, last := parts[0], parts[len(parts)-1]
	if len(text) < len(first)+len(last) || !strings.HasPrefix(text, first) || !strings.HasSuffix(text, last) {
		return false
	}
	text = text[len(first) : len(text)-len(last)]

	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(text, part)
		if idx < 0 {
			return false
		}
		text = text[idx+len(part):]
	}
	return true
}

// Package globre compiles the keep-list globs used when promoting ticket
// files to evidence.
package globre

import (
	"regexp"
	"strings"
)

// Source translates a glob into an anchored regular expression. Every regex
// metacharacter is escaped except '*', which becomes ".*".
func Source(glob string) string {
	parts := strings.Split(glob, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return "^" + strings.Join(parts, ".*") + "$"
}

// Compile returns the anchored regexp for glob.
func Compile(glob string) (*regexp.Regexp, error) {
	return regexp.Compile(Source(glob))
}

// Matcher tests file names against a list of globs.
type Matcher struct {
	patterns []*regexp.Regexp
}

// NewMatcher compiles every glob. Empty globs are skipped.
func NewMatcher(globs []string) (*Matcher, error) {
	m := &Matcher{}
	for _, g := range globs {
		if g == "" {
			continue
		}
		re, err := Compile(g)
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Match reports whether name matches any glob.
func (m *Matcher) Match(name string) bool {
	for _, re := range m.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

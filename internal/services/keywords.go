// KeywordMatcher – optional pre-filter for incoming message text.
//
// When a keyword list is configured, only messages containing at least one
// keyword (on a word boundary) have their links relayed. An empty matcher
// matches everything, so the filter is opt-in.
package services

import (
	"regexp"
	"strings"
)

// KeywordMatcher checks message text against a fixed keyword list.
// Matching is side-effect free and safe for concurrent use.
type KeywordMatcher struct {
	keywords []string
	patterns []*regexp.Regexp
}

// NewKeywordMatcher compiles word-boundary patterns for each keyword.
// Blank keywords are dropped.
func NewKeywordMatcher(keywords []string, caseSensitive bool) *KeywordMatcher {
	m := &KeywordMatcher{}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		expr := `\b` + regexp.QuoteMeta(kw) + `\b`
		if !caseSensitive {
			expr = `(?i)` + expr
		}
		m.keywords = append(m.keywords, kw)
		m.patterns = append(m.patterns, regexp.MustCompile(expr))
	}
	return m
}

// Empty reports whether no keywords are configured.
func (m *KeywordMatcher) Empty() bool { return m == nil || len(m.patterns) == 0 }

// Matches reports whether text contains any configured keyword. An empty
// matcher matches all non-nil input.
func (m *KeywordMatcher) Matches(text string) bool {
	if m.Empty() {
		return true
	}
	if text == "" {
		return false
	}
	for _, p := range m.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Matched returns the keywords found in text, in configuration order.
func (m *KeywordMatcher) Matched(text string) []string {
	if m.Empty() || text == "" {
		return nil
	}
	var out []string
	for i, p := range m.patterns {
		if p.MatchString(text) {
			out = append(out, m.keywords[i])
		}
	}
	return out
}

// Package parser classifies the error-stream output of language test runners.
//
// Runners signal structured warnings by writing bracketed markers such as
// "[ratelimit]" to stderr, usually wrapped in terminal color codes. Everything
// else on stderr is still a warning signal, just not a parseable one.
package parser

import "regexp"

var (
	ansiPattern    = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	warningPattern = regexp.MustCompile(`\[[^\]]+\]`)
)

// StripANSI removes ANSI escape sequences (colors, cursor movement).
func StripANSI(s string) string {
	if s == "" {
		return s
	}
	return ansiPattern.ReplaceAllString(s, "")
}

// ExtractWarnings returns every bracketed marker found in the given stderr
// text, color codes stripped first, in order of appearance.
func ExtractWarnings(stderr string) []string {
	if stderr == "" {
		return nil
	}
	return warningPattern.FindAllString(StripANSI(stderr), -1)
}

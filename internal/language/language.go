// Package language defines the fixed set of per-language test runners.
//
// Each runner is an external executable invoked as
// <interpreter> <script> <exchange-id> [<symbol>]; exit code 0 means pass,
// nonzero means fail, and bracketed markers on stderr are structured warnings.
package language

import "strings"

// Spec describes one language runner. The set of specs is fixed at process
// start and never mutated.
type Spec struct {
	Key    string // selection flag key: js, php, python2, python3
	Name   string // display name used in reports
	Binary string // interpreter binary
	Script string // test script path, relative to the working directory
}

// BuildArgs returns the argument list for one invocation of this runner.
// The symbol filter is omitted when it is empty or the "all" wildcard.
func (s Spec) BuildArgs(target, filter string) []string {
	args := []string{s.Script, target}
	filter = strings.TrimSpace(filter)
	if filter != "" && filter != "all" {
		args = append(args, filter)
	}
	return args
}

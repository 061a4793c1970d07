package executor

import (
	"context"

	"exchange-test-runner/internal/runner"
)

// SetRunProcessFn swaps the subprocess runner, for tests. Pass nil to
// restore the real one.
func SetRunProcessFn(fn func(context.Context, runner.Invocation, bool) runner.ProcessResult) (restore func()) {
	prev := runProcessFn
	if fn != nil {
		runProcessFn = fn
	} else {
		runProcessFn = runner.Run
	}
	return func() { runProcessFn = prev }
}

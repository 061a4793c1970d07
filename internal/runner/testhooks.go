package runner

import (
	"context"
	"os/exec"
	"sync/atomic"
)

// forceKillDelay is the grace period in seconds between TERM and KILL when
// hard-kill is enabled.
var forceKillDelay = func() *atomic.Int32 {
	v := &atomic.Int32{}
	v.Store(5)
	return v
}()

func SetForceKillDelay(seconds int32) (restore func()) {
	prev := forceKillDelay.Load()
	forceKillDelay.Store(seconds)
	return func() { forceKillDelay.Store(prev) }
}

func SetNewCommandFn(fn func(context.Context, string, ...string) *exec.Cmd) (restore func()) {
	prev := newCommand
	if fn != nil {
		newCommand = fn
	} else {
		newCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
			return exec.CommandContext(ctx, name, args...)
		}
	}
	return func() { newCommand = prev }
}

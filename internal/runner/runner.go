// Package runner executes one external test subprocess and classifies its
// outcome.
//
// Stdout and stderr are captured as a single interleaved stream, in the order
// chunks arrive, so a failure replay reads the way the output would have
// appeared in a terminal. Stderr is additionally accumulated on its own for
// warning classification.
package runner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	ilogger "exchange-test-runner/internal/logger"
	"exchange-test-runner/internal/parser"
)

// Keep only the tail of very chatty runners; a failure replay of the last
// megabyte is always enough to diagnose.
const combinedOutputLimit = 1 << 20

// Invocation names one subprocess to run.
type Invocation struct {
	Binary string
	Args   []string
	Dir    string // working directory; empty means inherit
	Label  string // log prefix, e.g. "PHP/kraken"
}

// ProcessResult is the classified outcome of one subprocess execution.
// Failed reflects only the exit code; HasWarnings is true iff any bytes at
// all arrived on stderr, whether or not they parsed as warning markers.
type ProcessResult struct {
	Failed         bool
	ExitCode       int
	CombinedOutput string
	HasWarnings    bool
	Warnings       []string
}

var newCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// Run executes the invocation and blocks until the process terminates.
// A command that cannot be started (missing interpreter, bad path) is
// reported as a failed result with the error text in CombinedOutput; Run
// never returns an error to the caller.
//
// When hardKill is false, ctx cancellation does not terminate the process:
// the caller has stopped waiting, but the subprocess runs to completion on
// its own. With hardKill the process gets SIGTERM on cancellation and
// SIGKILL after a short grace period.
func Run(ctx context.Context, inv Invocation, hardKill bool) ProcessResult {
	combined := newCombinedWriter(combinedOutputLimit, inv.Label+" | ")
	stderr := &errStreamWriter{combined: combined}

	// The command gets a background context so the pool's timeout cannot
	// kill it behind our back; hard-kill is handled explicitly below.
	cmd := newCommand(context.Background(), inv.Binary, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Stdout = combined
	cmd.Stderr = stderr

	ilogger.LogInfo(fmt.Sprintf("%s: exec %s %s", inv.Label, inv.Binary, strings.Join(inv.Args, " ")))

	if err := cmd.Start(); err != nil {
		combined.writeString(fmt.Sprintf("failed to start %s: %v\n", inv.Binary, err))
		combined.flush()
		ilogger.LogError(fmt.Sprintf("%s: start failed: %v", inv.Label, err))
		return ProcessResult{
			Failed:         true,
			ExitCode:       -1,
			CombinedOutput: combined.String(),
		}
	}

	if hardKill {
		stop := watchForKill(ctx, cmd, inv.Label)
		defer stop()
	}

	err := cmd.Wait()
	combined.flush()

	exitCode := 0
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		} else {
			exitCode = -1
			combined.writeString(fmt.Sprintf("wait failed: %v\n", err))
		}
	}

	stderrText := stderr.String()
	result := ProcessResult{
		Failed:         exitCode != 0,
		ExitCode:       exitCode,
		CombinedOutput: combined.String(),
		HasWarnings:    len(stderrText) > 0,
		Warnings:       parser.ExtractWarnings(stderrText),
	}

	ilogger.LogInfo(fmt.Sprintf("%s: exit=%d warnings=%d", inv.Label, exitCode, len(result.Warnings)))
	return result
}

// watchForKill terminates the process when ctx is cancelled: SIGTERM first,
// SIGKILL once the grace period elapses. The returned stop function releases
// the watcher once the process has been waited on.
func watchForKill(ctx context.Context, cmd *exec.Cmd, label string) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}

		proc := cmd.Process
		if proc == nil {
			return
		}
		ilogger.LogWarn(fmt.Sprintf("%s: timeout, sending TERM to pid %d", label, proc.Pid))
		if err := sendTermSignal(proc); err != nil {
			ilogger.LogWarn(fmt.Sprintf("%s: TERM failed: %v", label, err))
		}

		grace := time.Duration(forceKillDelay.Load()) * time.Second
		select {
		case <-done:
		case <-time.After(grace):
			ilogger.LogWarn(fmt.Sprintf("%s: still alive after %s, sending KILL", label, grace))
			_ = proc.Kill()
		}
	}()
	return func() { close(done) }
}

package executor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	ilogger "exchange-test-runner/internal/logger"
	"exchange-test-runner/internal/runner"
)

// Options configures one full run. Concurrency is the pool ceiling; Timeout
// bounds how long one target may hold a slot.
type Options struct {
	Concurrency int
	Timeout     time.Duration
	HardKill    bool
	WorkDir     string
	Out         io.Writer
}

// Summary is the consolidated result of a run, partitioned by outcome class.
type Summary struct {
	Total     int
	Failed    []UnitOutcome
	Warned    []UnitOutcome // warnings only, no failure
	Succeeded []UnitOutcome
}

// ExitCode is 0 when no outcome failed, 1 otherwise.
func (s Summary) ExitCode() int {
	if len(s.Failed) > 0 {
		return 1
	}
	return 0
}

// Outcomes returns every outcome: failed, then warned, then succeeded.
func (s Summary) Outcomes() []UnitOutcome {
	out := make([]UnitOutcome, 0, s.Total)
	out = append(out, s.Failed...)
	out = append(out, s.Warned...)
	out = append(out, s.Succeeded...)
	return out
}

// runOutput serializes all writes to the run's output stream. Progress lines
// arrive from pool goroutines concurrently with the coordinator's own replay
// and tally writes, and a unit leaked past its timeout may still report after
// the run has finished. Once sealed, progress lines are dropped; the summary
// is final at that point.
type runOutput struct {
	mu     sync.Mutex
	w      io.Writer
	sealed bool
}

func (ro *runOutput) Write(p []byte) (int, error) {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	return ro.w.Write(p)
}

func (ro *runOutput) progressLine(line string) {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	if ro.sealed {
		return
	}
	io.WriteString(ro.w, line)
}

func (ro *runOutput) sealProgress() {
	ro.mu.Lock()
	ro.sealed = true
	ro.mu.Unlock()
}

// RunAll drives the pool over the full target list: one unit-executor task
// per target, bounded by opts.Concurrency, each bounded by opts.Timeout.
// After every ticket settles it partitions the outcomes, replays the combined
// output of warned and then failed units, and prints the final tally.
func RunAll(ctx context.Context, targets []string, filter string, langKeys []string, opts Options) Summary {
	out := &runOutput{w: opts.Out}
	if opts.Out == nil {
		out.w = io.Discard
	}

	ilogger.LogInfo(fmt.Sprintf("run: %d targets, concurrency=%d, timeout=%s, filter=%q",
		len(targets), opts.Concurrency, opts.Timeout, filter))

	pool := NewPool(opts.Concurrency, opts.Timeout)

	var completed atomic.Int64
	total := len(targets)
	progress := func(o UnitOutcome) {
		done := completed.Add(1)
		pct := float64(done) / float64(total) * 100
		out.progressLine(fmt.Sprintf("%5.1f%% %-20s %s\n", pct, o.Target, o.Status()))
	}

	tickets := make([]*Ticket, len(targets))
	for i, target := range targets {
		req := UnitRequest{
			Target:    target,
			Filter:    filter,
			Languages: langKeys,
			WorkDir:   opts.WorkDir,
			HardKill:  opts.HardKill,
			Progress:  progress,
		}
		tickets[i] = pool.Submit(func(taskCtx context.Context) (UnitOutcome, error) {
			if err := ctx.Err(); err != nil {
				return UnitOutcome{}, err
			}
			return RunUnit(taskCtx, req)
		})
	}

	pool.Join()
	out.sealProgress()

	summary := Summary{Total: total}
	for i, ticket := range tickets {
		outcome, err := ticket.Wait()
		if err != nil {
			outcome = errorOutcome(targets[i], err)
			fmt.Fprintf(out, "       %-20s %s\n", outcome.Target, outcome.Status())
		}
		switch {
		case outcome.Failed:
			summary.Failed = append(summary.Failed, outcome)
		case outcome.HasWarnings:
			summary.Warned = append(summary.Warned, outcome)
		default:
			summary.Succeeded = append(summary.Succeeded, outcome)
		}
	}

	for _, outcome := range summary.Warned {
		outcome.Explain(out)
	}
	for _, outcome := range summary.Failed {
		outcome.Explain(out)
	}

	fmt.Fprintf(out, "\nAll done, %d failed, %d with warnings, %d succeeded\n",
		len(summary.Failed), len(summary.Warned), len(summary.Succeeded))
	ilogger.LogInfo(fmt.Sprintf("run done: failed=%d warned=%d succeeded=%d",
		len(summary.Failed), len(summary.Warned), len(summary.Succeeded)))

	return summary
}

// errorOutcome converts a pool-level settlement error (timeout, panic, early
// cancellation) into a failed outcome whose replay shows the error.
func errorOutcome(target string, err error) UnitOutcome {
	return UnitOutcome{
		Target: target,
		Failed: true,
		subResults: []SubResult{{
			Language: "scheduler",
			ProcessResult: runner.ProcessResult{
				Failed:         true,
				ExitCode:       -1,
				CombinedOutput: err.Error() + "\n",
			},
		}},
	}
}

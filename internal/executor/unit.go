package executor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"exchange-test-runner/internal/language"
	ilogger "exchange-test-runner/internal/logger"
	"exchange-test-runner/internal/runner"
)

// SubResult is the outcome of one per-language sub-invocation for a target.
type SubResult struct {
	Language string
	runner.ProcessResult
}

// UnitOutcome aggregates the sub-invocations of one target. Exactly one
// exists per target per run; it is read-only once built.
type UnitOutcome struct {
	Target      string
	Failed      bool
	HasWarnings bool
	Warnings    []string

	// immutable snapshot over which Explain replays; never exposed directly
	subResults []SubResult
}

// Explain replays the combined output of every failed or warned sub-result,
// labeled with language and target, in fixed language order.
func (o UnitOutcome) Explain(w io.Writer) {
	for _, sub := range o.subResults {
		if !sub.Failed && !sub.HasWarnings {
			continue
		}
		fmt.Fprintf(w, "\n----- %s %s -----\n\n%s\n", sub.Language, o.Target, sub.CombinedOutput)
	}
}

// FailureDetail returns a one-line summary of what went wrong, for compact
// reports. Empty for clean outcomes.
func (o UnitOutcome) FailureDetail(maxLen int) string {
	for _, sub := range o.subResults {
		if !sub.Failed {
			continue
		}
		return extractErrorDetail(sub.CombinedOutput, maxLen)
	}
	return ""
}

// UnitRequest names one target's worth of work.
type UnitRequest struct {
	Target    string
	Filter    string
	Languages []string // selection keys; empty means the full fixed set
	WorkDir   string
	HardKill  bool

	// Progress, when set, is called once with the finished outcome before
	// RunUnit returns.
	Progress func(UnitOutcome)
}

var runProcessFn = runner.Run

// RunUnit runs every selected language test for one target, strictly in
// sequence and in fixed language order. Concurrent sub-invocations against
// the same target are forbidden: parallel runs would corrupt the request
// nonces the target's API shares across sessions.
//
// The language selection resolves per invocation, never from cached global
// state. Cancellation of ctx stops the unit before its next sub-invocation.
func RunUnit(ctx context.Context, req UnitRequest) (UnitOutcome, error) {
	specs, err := language.Select(req.Languages)
	if err != nil {
		return UnitOutcome{}, err
	}

	outcome := UnitOutcome{Target: req.Target}
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			outcome.Failed = true
			outcome.subResults = append(outcome.subResults, SubResult{
				Language: spec.Name,
				ProcessResult: runner.ProcessResult{
					Failed:         true,
					ExitCode:       -1,
					CombinedOutput: fmt.Sprintf("not run: %v\n", err),
				},
			})
			continue
		}

		inv := runner.Invocation{
			Binary: spec.Binary,
			Args:   spec.BuildArgs(req.Target, req.Filter),
			Dir:    req.WorkDir,
			Label:  spec.Name + "/" + req.Target,
		}
		res := runProcessFn(ctx, inv, req.HardKill)

		outcome.Failed = outcome.Failed || res.Failed
		outcome.HasWarnings = outcome.HasWarnings || res.HasWarnings
		outcome.Warnings = append(outcome.Warnings, res.Warnings...)
		outcome.subResults = append(outcome.subResults, SubResult{Language: spec.Name, ProcessResult: res})
	}

	ilogger.LogInfo(fmt.Sprintf("unit %s done: failed=%t warnings=%d", req.Target, outcome.Failed, len(outcome.Warnings)))
	if req.Progress != nil {
		req.Progress(outcome)
	}
	return outcome, nil
}

// Status returns the tri-state display status: FAIL, WARN plus the warning
// tokens, or OK.
func (o UnitOutcome) Status() string {
	switch {
	case o.Failed:
		return "FAIL"
	case o.HasWarnings:
		if len(o.Warnings) > 0 {
			return "WARN " + strings.Join(o.Warnings, " ")
		}
		return "WARN"
	default:
		return "OK"
	}
}

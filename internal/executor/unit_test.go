package executor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"exchange-test-runner/internal/runner"
)

// fakeRunner records invocations and plays back scripted results per language.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []runner.Invocation
	windows []struct{ start, end time.Time }
	delay   time.Duration
	results map[string]runner.ProcessResult // keyed by binary
}

func (f *fakeRunner) run(ctx context.Context, inv runner.Invocation, hardKill bool) runner.ProcessResult {
	f.mu.Lock()
	start := time.Now()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.windows = append(f.windows, struct{ start, end time.Time }{start, time.Now()})
	f.mu.Unlock()

	if res, ok := f.results[inv.Binary]; ok {
		return res
	}
	return runner.ProcessResult{}
}

func (f *fakeRunner) binaries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, call := range f.calls {
		out = append(out, call.Binary)
	}
	return out
}

func TestRunUnitSequentialInFixedOrder(t *testing.T) {
	fake := &fakeRunner{delay: 5 * time.Millisecond}
	restore := SetRunProcessFn(fake.run)
	defer restore()

	outcome, err := RunUnit(context.Background(), UnitRequest{Target: "kraken"})
	if err != nil {
		t.Fatalf("RunUnit error: %v", err)
	}
	if outcome.Failed || outcome.HasWarnings {
		t.Errorf("clean run reported failed=%t warnings=%t", outcome.Failed, outcome.HasWarnings)
	}

	want := []string{"node", "php", "python2", "python3"}
	if got := fake.binaries(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("invocation order = %v, want %v", got, want)
	}

	// Strict sequencing: each sub-invocation starts at or after the previous
	// one completed.
	for i := 1; i < len(fake.windows); i++ {
		if fake.windows[i].start.Before(fake.windows[i-1].end) {
			t.Fatalf("sub-invocation %d started before %d completed", i, i-1)
		}
	}
}

func TestRunUnitSubsetSelection(t *testing.T) {
	fake := &fakeRunner{}
	restore := SetRunProcessFn(fake.run)
	defer restore()

	_, err := RunUnit(context.Background(), UnitRequest{
		Target:    "kraken",
		Languages: []string{"php", "python3"},
	})
	if err != nil {
		t.Fatalf("RunUnit error: %v", err)
	}

	want := []string{"php", "python3"}
	if got := fake.binaries(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("invocations = %v, want exactly %v", got, want)
	}
}

func TestRunUnitUnknownLanguage(t *testing.T) {
	restore := SetRunProcessFn((&fakeRunner{}).run)
	defer restore()

	if _, err := RunUnit(context.Background(), UnitRequest{Target: "kraken", Languages: []string{"ruby"}}); err == nil {
		t.Fatal("expected error for unknown language")
	}
}

func TestRunUnitAggregation(t *testing.T) {
	fake := &fakeRunner{results: map[string]runner.ProcessResult{
		"node": {CombinedOutput: "ok\n"},
		"php":  {Failed: true, ExitCode: 1, CombinedOutput: "assertion failed\n"},
		"python2": {
			HasWarnings:    true,
			Warnings:       []string{"[ratelimit]"},
			CombinedOutput: "slow\n",
		},
		"python3": {
			HasWarnings: true,
			Warnings:    []string{"[order-book]", "[nonce]"},
		},
	}}
	restore := SetRunProcessFn(fake.run)
	defer restore()

	outcome, err := RunUnit(context.Background(), UnitRequest{Target: "bittrex"})
	if err != nil {
		t.Fatalf("RunUnit error: %v", err)
	}

	if !outcome.Failed {
		t.Error("Failed = false, want OR over sub-results")
	}
	if !outcome.HasWarnings {
		t.Error("HasWarnings = false, want OR over sub-results")
	}
	want := []string{"[ratelimit]", "[order-book]", "[nonce]"}
	if strings.Join(outcome.Warnings, ",") != strings.Join(want, ",") {
		t.Errorf("Warnings = %v, want concatenation in invocation order %v", outcome.Warnings, want)
	}
	if got := outcome.Status(); got != "FAIL" {
		t.Errorf("Status = %q, want FAIL", got)
	}
}

func TestRunUnitProgressCallback(t *testing.T) {
	restore := SetRunProcessFn((&fakeRunner{}).run)
	defer restore()

	var calls int
	var seen UnitOutcome
	outcome, err := RunUnit(context.Background(), UnitRequest{
		Target:   "kraken",
		Progress: func(o UnitOutcome) { calls++; seen = o },
	})
	if err != nil {
		t.Fatalf("RunUnit error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("progress called %d times, want 1", calls)
	}
	if seen.Target != outcome.Target {
		t.Errorf("progress saw target %q, want %q", seen.Target, outcome.Target)
	}
}

func TestRunUnitCancelledContext(t *testing.T) {
	fake := &fakeRunner{}
	restore := SetRunProcessFn(fake.run)
	defer restore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := RunUnit(ctx, UnitRequest{Target: "kraken"})
	if err != nil {
		t.Fatalf("RunUnit error: %v", err)
	}
	if !outcome.Failed {
		t.Error("cancelled unit must be failed")
	}
	if got := len(fake.calls); got != 0 {
		t.Errorf("cancelled unit ran %d subprocesses, want 0", got)
	}
}

func TestExplainReplaysOffendersOnly(t *testing.T) {
	fake := &fakeRunner{results: map[string]runner.ProcessResult{
		"node":    {CombinedOutput: "clean output\n"},
		"php":     {Failed: true, CombinedOutput: "php stack trace\n"},
		"python2": {HasWarnings: true, CombinedOutput: "py2 warning text\n"},
		"python3": {CombinedOutput: "also clean\n"},
	}}
	restore := SetRunProcessFn(fake.run)
	defer restore()

	outcome, err := RunUnit(context.Background(), UnitRequest{Target: "bitmex"})
	if err != nil {
		t.Fatalf("RunUnit error: %v", err)
	}

	var buf strings.Builder
	outcome.Explain(&buf)
	text := buf.String()

	if !strings.Contains(text, "PHP bitmex") || !strings.Contains(text, "php stack trace") {
		t.Errorf("explain missing failed PHP block:\n%s", text)
	}
	if !strings.Contains(text, "Python 2 bitmex") || !strings.Contains(text, "py2 warning text") {
		t.Errorf("explain missing warned Python 2 block:\n%s", text)
	}
	if strings.Contains(text, "clean output") || strings.Contains(text, "also clean") {
		t.Errorf("explain replayed clean sub-results:\n%s", text)
	}
	if strings.Index(text, "PHP bitmex") > strings.Index(text, "Python 2 bitmex") {
		t.Errorf("explain blocks out of fixed language order:\n%s", text)
	}
}

func TestStatusTriState(t *testing.T) {
	tests := []struct {
		name    string
		outcome UnitOutcome
		want    string
	}{
		{"ok", UnitOutcome{}, "OK"},
		{"fail wins", UnitOutcome{Failed: true, HasWarnings: true}, "FAIL"},
		{"warn with tokens", UnitOutcome{HasWarnings: true, Warnings: []string{"[a]", "[b]"}}, "WARN [a] [b]"},
		{"warn without tokens", UnitOutcome{HasWarnings: true}, "WARN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerRoundtrip(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Info("unit started")
	logger.Error("unit exploded")
	logger.Flush()

	data, err := os.ReadFile(logger.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "unit started") || !strings.Contains(text, `"info"`) {
		t.Errorf("log missing info entry:\n%s", text)
	}
	if !strings.Contains(text, "unit exploded") || !strings.Contains(text, `"error"`) {
		t.Errorf("log missing error entry:\n%s", text)
	}
}

func TestExtractRecentErrors(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Info("not an error")
	logger.Warn("first warning")
	logger.Error("first error")
	logger.Error("second error")

	entries := logger.ExtractRecentErrors(2)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0] != "ERROR: first error" || entries[1] != "ERROR: second error" {
		t.Errorf("entries = %v, want the two most recent errors", entries)
	}

	if got := logger.ExtractRecentErrors(10); len(got) != 3 {
		t.Errorf("got %d entries, want all 3 warn/error lines", len(got))
	}
}

func TestRemoveLogFile(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	_ = logger.Close()

	if err := logger.RemoveLogFile(); err != nil {
		t.Fatalf("RemoveLogFile error: %v", err)
	}
	if _, err := os.Stat(logger.Path()); !os.IsNotExist(err) {
		t.Errorf("log file still exists after removal")
	}
	// Removing twice is fine.
	if err := logger.RemoveLogFile(); err != nil {
		t.Errorf("second RemoveLogFile error: %v", err)
	}
}

func TestSanitizeLogSuffix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"kraken", "kraken"},
		{"BTC/USDT", "BTCUSDT"},
		{"weird name!", "weirdname"},
		{"", ""},
		{"ok-already_9", "ok-already_9"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeLogSuffix(tt.in); got != tt.want {
				t.Errorf("SanitizeLogSuffix(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPidFromLogName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantPid int
		wantOK  bool
	}{
		{"plain", "exchangetest-12345-678.log", 12345, true},
		{"with suffix", "exchangetest-42-99-kraken.log", 42, true},
		{"non numeric", "exchangetest-abc-1.log", 0, false},
		{"negative", "exchangetest--5-1.log", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pid, ok := pidFromLogName(tt.in)
			if pid != tt.wantPid || ok != tt.wantOK {
				t.Errorf("pidFromLogName(%q) = (%d, %t), want (%d, %t)", tt.in, pid, ok, tt.wantPid, tt.wantOK)
			}
		})
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	// A file whose owning process is long gone.
	stale := filepath.Join(dir, "exchangetest-999999998-1.log")
	if err := os.WriteFile(stale, []byte("stale"), 0o600); err != nil {
		t.Fatalf("write stale log: %v", err)
	}
	// A file owned by this very process.
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	defer func() { _ = logger.Close() }()
	// An unrelated file that must be left alone.
	other := filepath.Join(dir, "unrelated.log")
	if err := os.WriteFile(other, []byte("x"), 0o600); err != nil {
		t.Fatalf("write unrelated file: %v", err)
	}

	stats, err := CleanupOldLogs()
	if err != nil {
		t.Fatalf("CleanupOldLogs error: %v", err)
	}
	if stats.Scanned < 2 {
		t.Errorf("Scanned = %d, want >= 2", stats.Scanned)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale log was not removed")
	}
	if _, err := os.Stat(logger.Path()); err != nil {
		t.Error("own log file was removed")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("unrelated file was touched")
	}
}

func TestActiveLoggerLifecycle(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	if ActiveLogger() != nil {
		t.Fatal("unexpected active logger at test start")
	}
	// Logging with no active logger is a no-op, not a crash.
	LogInfo("dropped")
	LogError("dropped")

	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	SetLogger(logger)
	if ActiveLogger() != logger {
		t.Error("ActiveLogger did not return the set logger")
	}

	LogError("captured")
	if entries := logger.ExtractRecentErrors(1); len(entries) != 1 || !strings.Contains(entries[0], "captured") {
		t.Errorf("entries = %v, want the captured error", entries)
	}

	if err := CloseLogger(); err != nil {
		t.Fatalf("CloseLogger error: %v", err)
	}
	if ActiveLogger() != nil {
		t.Error("active logger still set after CloseLogger")
	}
	_ = logger.RemoveLogFile()
}

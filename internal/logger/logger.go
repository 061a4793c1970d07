// Package logger provides the per-run log file shared by every component.
//
// One log file exists per process, named after the owning pid so a later run
// can garbage-collect files whose owners are gone. The file is removed on
// clean exit and kept (briefly, with an excerpt to stderr) when the run fails.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const recentErrorLimit = 50

// Logger is a file-backed zerolog sink with a ring of recent error lines.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	zl     zerolog.Logger
	path   string
	recent []string
	closed bool
}

// NewLogger creates the run log file under the OS temp directory.
func NewLogger() (*Logger, error) {
	return NewLoggerWithSuffix("")
}

// NewLoggerWithSuffix creates a run log file with an extra filename suffix,
// used by per-task logs in tests.
func NewLoggerWithSuffix(suffix string) (*Logger, error) {
	name := fmt.Sprintf("%s-%d-%d", LogPrefix(), os.Getpid(), time.Now().UnixNano())
	if suffix = SanitizeLogSuffix(suffix); suffix != "" {
		name += "-" + suffix
	}
	path := filepath.Join(os.TempDir(), name+".log")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	zl := zerolog.New(file).With().Timestamp().Logger()
	return &Logger{file: file, zl: zl, path: path}, nil
}

// SanitizeLogSuffix keeps only filename-safe characters of a raw suffix.
func SanitizeLogSuffix(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Path returns the log file path.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *Logger) Debug(msg string) { l.log(zerolog.DebugLevel, msg) }
func (l *Logger) Info(msg string)  { l.log(zerolog.InfoLevel, msg) }

func (l *Logger) Warn(msg string) {
	l.log(zerolog.WarnLevel, msg)
	l.remember("WARN: " + msg)
}

func (l *Logger) Error(msg string) {
	l.log(zerolog.ErrorLevel, msg)
	l.remember("ERROR: " + msg)
}

func (l *Logger) log(level zerolog.Level, msg string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.zl.WithLevel(level).Msg(msg)
}

func (l *Logger) remember(line string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recent = append(l.recent, line)
	if len(l.recent) > recentErrorLimit {
		l.recent = l.recent[len(l.recent)-recentErrorLimit:]
	}
}

// ExtractRecentErrors returns up to n of the most recent warn/error lines.
func (l *Logger) ExtractRecentErrors(n int) []string {
	if l == nil || n <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.recent) > n {
		return append([]string(nil), l.recent[len(l.recent)-n:]...)
	}
	return append([]string(nil), l.recent...)
}

// Flush syncs the log file to disk.
func (l *Logger) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil && !l.closed {
		_ = l.file.Sync()
	}
}

// Close closes the underlying file. Further log calls are dropped.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.file == nil {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

// RemoveLogFile deletes the log file from disk.
func (l *Logger) RemoveLogFile() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// CleanupStats reports what a stale-log sweep did.
type CleanupStats struct {
	Scanned int
	Removed int
}

// CleanupOldLogs removes log files whose owning process is no longer running.
// Files whose pid cannot be parsed are removed once they are older than a day.
func CleanupOldLogs() (CleanupStats, error) {
	var stats CleanupStats

	dir := os.TempDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return stats, err
	}

	prefix := LogPrefix() + "-"
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		stats.Scanned++

		path := filepath.Join(dir, name)
		pid, ok := pidFromLogName(name)
		if !ok {
			if info, err := entry.Info(); err == nil && time.Since(info.ModTime()) > 24*time.Hour {
				if os.Remove(path) == nil {
					stats.Removed++
				}
			}
			continue
		}

		if pid == os.Getpid() {
			continue
		}
		if isProcessRunning(pid) && !startedAfter(pid, path) {
			continue
		}
		if os.Remove(path) == nil {
			stats.Removed++
		}
	}

	return stats, nil
}

// pidFromLogName parses "<prefix>-<pid>-<nanos>[-suffix].log".
func pidFromLogName(name string) (int, bool) {
	trimmed := strings.TrimPrefix(name, LogPrefix()+"-")
	trimmed = strings.TrimSuffix(trimmed, ".log")
	fields := strings.SplitN(trimmed, "-", 2)
	if len(fields) == 0 {
		return 0, false
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// startedAfter reports whether the process started after the log file was
// last written, which means the pid was recycled and the file is stale.
func startedAfter(pid int, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	start := getProcessStartTime(pid)
	if start.IsZero() {
		return false
	}
	return start.After(info.ModTime())
}

package logger

import (
	"errors"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

func pidToInt32(pid int) (int32, bool) {
	if pid <= 0 || pid > math.MaxInt32 {
		return 0, false
	}
	return int32(pid), true
}

// isProcessRunning reports whether the pid that owns a log file is still
// alive. Conservative on errors: a running instance must never lose its log
// to the cleanup sweep.
func isProcessRunning(pid int) bool {
	pid32, ok := pidToInt32(pid)
	if !ok {
		return false
	}

	exists, err := process.PidExists(pid32)
	if err == nil {
		return exists
	}

	if errors.Is(err, process.ErrorProcessNotRunning) {
		return false
	}

	// Permission or inspection failure: treat the owner as alive.
	return true
}

// getProcessStartTime returns when the process started, or the zero time if
// that cannot be determined. The cleanup sweep uses it to catch pid reuse: a
// log file older than its pid's start time belongs to a finished run.
func getProcessStartTime(pid int) time.Time {
	pid32, ok := pidToInt32(pid)
	if !ok {
		return time.Time{}
	}

	proc, err := process.NewProcess(pid32)
	if err != nil {
		return time.Time{}
	}

	ms, err := proc.CreateTime()
	if err != nil || ms <= 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms)
}

func IsProcessRunning(pid int) bool { return isProcessRunning(pid) }

func GetProcessStartTime(pid int) time.Time { return getProcessStartTime(pid) }

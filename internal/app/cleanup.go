package app

import (
	"fmt"
	"os"
)

// runCleanupMode removes log files left behind by runs whose process is gone.
func runCleanupMode() int {
	stats, err := cleanupOldLogs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: cleanup failed: %v\n", err)
		return 1
	}
	fmt.Printf("Scanned %d log files, removed %d\n", stats.Scanned, stats.Removed)
	return 0
}

// scheduleStartupCleanup sweeps stale logs in the background so startup is
// not delayed by filesystem scanning.
func scheduleStartupCleanup() {
	go func() {
		if _, err := cleanupOldLogs(); err != nil {
			logWarn("startup log cleanup failed: " + err.Error())
		}
	}()
}

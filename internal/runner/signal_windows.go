//go:build windows
// +build windows

package runner

import "os"

// Windows has no SIGTERM; fall back to a hard kill.
func sendTermSignal(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return proc.Kill()
}

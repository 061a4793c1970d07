package executor

import (
	"strings"

	"exchange-test-runner/internal/utils"
)

// extractErrorDetail pulls meaningful error context out of a test run's
// combined output for compact reports.
func extractErrorDetail(message string, maxLen int) string {
	if message == "" || maxLen <= 0 {
		return ""
	}

	lines := strings.Split(message, "\n")
	var errorLines []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		lower := strings.ToLower(line)

		// Collapse stack trace frames into one representative line.
		if strings.HasPrefix(line, "at ") && strings.Contains(line, "(") {
			if len(errorLines) > 0 && strings.HasPrefix(strings.ToLower(errorLines[len(errorLines)-1]), "at ") {
				continue
			}
		}

		if strings.Contains(lower, "error") ||
			strings.Contains(lower, "fail") ||
			strings.Contains(lower, "exception") ||
			strings.Contains(lower, "assert") ||
			strings.Contains(lower, "expected") ||
			strings.Contains(lower, "timeout") ||
			strings.Contains(lower, "not found") ||
			strings.Contains(lower, "cannot") ||
			strings.Contains(lower, "traceback") {
			errorLines = append(errorLines, line)
		}
	}

	// Nothing matched: fall back to the last few non-empty lines.
	if len(errorLines) == 0 {
		start := len(lines) - 5
		if start < 0 {
			start = 0
		}
		for _, line := range lines[start:] {
			line = strings.TrimSpace(line)
			if line != "" {
				errorLines = append(errorLines, line)
			}
		}
	}

	result := strings.Join(errorLines, " | ")
	return utils.SafeTruncate(result, maxLen)
}

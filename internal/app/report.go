package app

import (
	"exchange-test-runner/internal/executor"

	"github.com/goccy/go-json"
)

const reportDetailLimit = 150

type reportEntry struct {
	Target   string   `json:"target"`
	Status   string   `json:"status"` // "failed", "warned" or "ok"
	Warnings []string `json:"warnings,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

type runReport struct {
	Total     int           `json:"total"`
	Failed    int           `json:"failed"`
	Warned    int           `json:"warned"`
	Succeeded int           `json:"succeeded"`
	Results   []reportEntry `json:"results"`
}

// renderJSONReport serializes the run summary for machine consumers.
func renderJSONReport(s executor.Summary) (string, error) {
	report := runReport{
		Total:     s.Total,
		Failed:    len(s.Failed),
		Warned:    len(s.Warned),
		Succeeded: len(s.Succeeded),
	}

	for _, outcome := range s.Outcomes() {
		entry := reportEntry{
			Target:   outcome.Target,
			Warnings: outcome.Warnings,
		}
		switch {
		case outcome.Failed:
			entry.Status = "failed"
			entry.Detail = outcome.FailureDetail(reportDetailLimit)
		case outcome.HasWarnings:
			entry.Status = "warned"
		default:
			entry.Status = "ok"
		}
		report.Results = append(report.Results, entry)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

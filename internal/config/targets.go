package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// DefaultExchangesFile is the persisted exchange list produced by the export
// step of the build.
const DefaultExchangesFile = "exchanges.json"

// ErrNoTargets indicates a missing or empty exchange list. This is a
// configuration error that aborts before any test runs, not a test failure.
var ErrNoTargets = errors.New("no exchanges to test")

type exchangesFile struct {
	IDs []string `json:"ids"`
}

// LoadTargets reads the persisted exchange list. A missing file or an empty
// ids field is fatal configuration; the error carries remediation guidance
// for the operator.
func LoadTargets(path string) ([]string, error) {
	if path == "" {
		path = DefaultExchangesFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s (%v); regenerate it with \"npm run export-exchanges\"", ErrNoTargets, path, err)
	}

	var parsed exchangesFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %s is not valid JSON (%v); regenerate it with \"npm run export-exchanges\"", ErrNoTargets, path, err)
	}
	if len(parsed.IDs) == 0 {
		return nil, fmt.Errorf("%w: %s has no ids; regenerate it with \"npm run export-exchanges\"", ErrNoTargets, path)
	}

	return parsed.IDs, nil
}

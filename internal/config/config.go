// Package config resolves run configuration from flags, environment and an
// optional config file, and loads the persisted exchange list.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// The concurrency ceiling keeps a full run inside typical OS process and
// file-descriptor limits, the timeout bounds one exchange's sequential test
// runs, and the flush delay lets external log capture drain before a nonzero
// exit.
const (
	DefaultConcurrency = 60
	DefaultTimeout     = 120 * time.Second
	DefaultFlushDelay  = 10 * time.Second

	concurrencyLimit = 100
)

// Config holds one run's resolved configuration.
type Config struct {
	Targets       []string
	Filter        string
	Languages     []string // selection keys; empty means all
	Concurrency   int
	Timeout       time.Duration
	FlushDelay    time.Duration
	HardKill      bool
	JSONReport    bool
	ExchangesFile string
	WorkDir       string
}

// ParseBoolFlag interprets common truthy/falsey spellings.
func ParseBoolFlag(val string, defaultValue bool) bool {
	val = strings.TrimSpace(strings.ToLower(val))
	switch val {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// ResolveConcurrency reads the pool ceiling from viper ("concurrency" key,
// EXCHANGETEST_CONCURRENCY env). Out-of-range values fall back to the
// default; values above the hard upper limit are clamped.
func ResolveConcurrency(v *viper.Viper) int {
	value := v.GetInt("concurrency")
	if value <= 0 {
		return DefaultConcurrency
	}
	if value > concurrencyLimit {
		return concurrencyLimit
	}
	return value
}

// ResolveTimeout reads the per-unit timeout in seconds ("timeout" key).
func ResolveTimeout(v *viper.Viper) time.Duration {
	seconds := v.GetInt("timeout")
	if seconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(seconds) * time.Second
}

// ResolveFlushDelay reads the pre-exit flush delay in seconds
// ("flush-delay" key). Zero is a valid value, used by tests.
func ResolveFlushDelay(v *viper.Viper) time.Duration {
	if !v.IsSet("flush-delay") {
		return DefaultFlushDelay
	}
	seconds := v.GetInt("flush-delay")
	if seconds < 0 {
		return DefaultFlushDelay
	}
	return time.Duration(seconds) * time.Second
}

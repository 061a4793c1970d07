package language

import (
	"fmt"
	"strings"
)

// registry holds the closed runner set in its fixed invocation order.
// Sub-invocations for one target always run in this order.
var registry = []Spec{
	{Key: "js", Name: "JavaScript", Binary: "node", Script: "js/test/test.js"},
	{Key: "php", Name: "PHP", Binary: "php", Script: "php/test/test.php"},
	{Key: "python2", Name: "Python 2", Binary: "python2", Script: "python/test/test.py"},
	{Key: "python3", Name: "Python 3", Binary: "python3", Script: "python/test/test_async.py"},
}

// All returns every registered runner in fixed order.
func All() []Spec {
	out := make([]Spec, len(registry))
	copy(out, registry)
	return out
}

// Keys returns the selection keys of every registered runner, in fixed order.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for _, spec := range registry {
		keys = append(keys, spec.Key)
	}
	return keys
}

// Select resolves a set of selection keys to runner specs, preserving the
// registry's fixed order regardless of the order keys were given in. An empty
// selection means the full set. Unknown keys are an error.
func Select(keys []string) ([]Spec, error) {
	if len(keys) == 0 {
		return All(), nil
	}

	wanted := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		if !known(key) {
			return nil, fmt.Errorf("unsupported language %q", key)
		}
		wanted[key] = struct{}{}
	}
	if len(wanted) == 0 {
		return All(), nil
	}

	out := make([]Spec, 0, len(wanted))
	for _, spec := range registry {
		if _, ok := wanted[spec.Key]; ok {
			out = append(out, spec)
		}
	}
	return out, nil
}

func known(key string) bool {
	for _, spec := range registry {
		if spec.Key == key {
			return true
		}
	}
	return false
}

package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations live in the config file as Go duration strings ("30s",
// "1m", "10m"); parsing happens once, at load/validate time, with the
// offending field path in the error.

// ParseDurationField parses a duration config value. Empty means
// "unset" and yields zero; negatives are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for
// unset fields, used for the intervals that always need a value
// (scan/overdue/dispatch periods, grace window).
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

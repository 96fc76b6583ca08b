// Package xtime extends the duration syntax of the time package.
package xtime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	day  = 24 * time.Hour
	week = 7 * day

	longUnitRx = regexp.MustCompile(`^(\d+(?:\.\d+)?)([dw])(.*)$`)
)

// ParseDuration parses a duration string, accepting days ("d") and weeks ("w")
// as leading units in addition to those supported by time.ParseDuration.
// Examples: "30s", "1m30s", "1d", "2w3d4h".
func ParseDuration(s string) (time.Duration, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid duration '%s'", orig)
	}
	if s == "0" {
		return 0, nil
	}

	var total time.Duration
	for s != "" {
		match := longUnitRx.FindStringSubmatch(s)
		if match == nil {
			break
		}
		n, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration '%s': %w", orig, err)
		}
		unit := day
		if match[2] == "w" {
			unit = week
		}
		total += time.Duration(n * float64(unit))
		s = match[3]
	}

	if s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration '%s'", orig)
		}
		total += d
	}

	return total, nil
}

// FormatDuration is the inverse of ParseDuration for durations that only need
// the units of time.Duration.String, which ParseDuration always accepts.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	return d.String()
}

package player

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatOffset renders a microsecond offset as mm:ss or hh:mm:ss.
func FormatOffset(us int64) string {
	sign := ""
	if us < 0 {
		sign = "-"
		us = -us
	}
	seconds := us / 1_000_000
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	if h > 0 {
		return fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s)
	}
	return fmt.Sprintf("%s%02d:%02d", sign, m, s)
}

// ParseOffset parses "ss", "mm:ss" or "hh:mm:ss", each optionally with a
// fractional seconds part, into microseconds.
func ParseOffset(str string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(str), ":")
	if len(parts) > 3 || parts[0] == "" {
		return 0, fmt.Errorf("invalid time format: %s", str)
	}

	secs, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid time format: %s", str)
	}
	var whole int64
	for _, p := range parts[:len(parts)-1] {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time format: %s", str)
		}
		whole = whole*60 + n
	}
	return whole*60*1_000_000 + int64(math.Round(secs*1_000_000)), nil
}

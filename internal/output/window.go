package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseBound reads a query bound. Empty means open. A duration ("90m", "24h",
// "7d") is taken relative to now; otherwise RFC3339 or a plain date is
// expected.
func ParseBound(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			t := now.Add(-time.Duration(n) * 24 * time.Hour)
			return &t, nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return nil, fmt.Errorf("negative duration %q", s)
		}
		t := now.Add(-d)
		return &t, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q (want a duration like 24h or 7d, or RFC3339)", s)
}

// ParseWindow parses both bounds and rejects an inverted range.
func ParseWindow(since, until string, now time.Time) (*time.Time, *time.Time, error) {
	from, err := ParseBound(since, now)
	if err != nil {
		return nil, nil, fmt.Errorf("since: %w", err)
	}
	to, err := ParseBound(until, now)
	if err != nil {
		return nil, nil, fmt.Errorf("until: %w", err)
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, fmt.Errorf("since %s is after until %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}

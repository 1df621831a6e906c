package utils

import (
	"fmt"
	"time"
	// zone lookups must work on hosts without zoneinfo
	_ "time/tzdata"
)

// ClockLayout is the "HH:MM" form notification times are stored in.
const ClockLayout = "15:04"

// LoadLocation resolves an IANA zone name. Unknown names fall back to UTC
// and are reported through the error.
func LoadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// LocalClock renders now as "HH:MM" in the given zone.
func LocalClock(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(ClockLayout)
}

// ParseClock validates an "HH:MM" string and normalises it to two-digit form.
func ParseClock(s string) (string, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid time %q, expected HH:MM: %w", s, err)
	}
	return t.Format(ClockLayout), nil
}

// TruncateToMinute drops seconds so a tick is matched once per minute.
func TruncateToMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// internal/notifications/preferences/dnd.go
package preferences

import (
	"fmt"
	"time"
)

const timeOfDayLayout = "15:04:05"

// InDoNotDisturbWindow compares HH:MM:SS strings. When start > end the window
// wraps past midnight.
func InDoNotDisturbWindow(now, start, end string) bool {
	if start > end {
		return now >= start || now < end
	}
	return now >= start && now < end
}

// TimeOfDay formats t as HH:MM:SS in loc.
func TimeOfDay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(timeOfDayLayout)
}

// NormalizeTimeOfDay accepts HH:MM or HH:MM:SS and returns HH:MM:SS.
func NormalizeTimeOfDay(s string) (string, error) {
	for _, layout := range []string{timeOfDayLayout, "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(timeOfDayLayout), nil
		}
	}
	return "", fmt.Errorf("invalid time of day %q (expected HH:MM or HH:MM:SS)", s)
}

package tool

import (
	"fmt"
	"time"
)

func plural(n int64, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// FormatDuration renders d for humans. With subsecond set, short durations
// keep a tenth of a second ("2.5 seconds"); otherwise anything under a
// minute is "less than a minute" and seconds are never shown.
func FormatDuration(d time.Duration, subsecond bool) string {
	if d < 0 {
		d = 0
	}
	hours := int64(d / time.Hour)
	minutes := int64(d%time.Hour) / int64(time.Minute)
	seconds := int64(d%time.Minute) / int64(time.Second)

	switch {
	case hours > 0:
		if minutes == 0 {
			return plural(hours, "hour", "hours")
		}
		return plural(hours, "hour", "hours") + " and " + plural(minutes, "minute", "minutes")
	case minutes > 0:
		if !subsecond || seconds == 0 {
			return plural(minutes, "minute", "minutes")
		}
		return plural(minutes, "minute", "minutes") + " and " + plural(seconds, "second", "seconds")
	case !subsecond:
		return "less than a minute"
	default:
		return fmt.Sprintf("%.1f seconds", d.Seconds())
	}
}

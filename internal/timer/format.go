package timer

import (
	"fmt"
	"time"
)

// Format renders d as HH:MM:SS. Negative durations render as 00:00:00; hours
// are not capped at 99.
func Format(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatMs is Format for a millisecond count.
func FormatMs(ms int64) string {
	return Format(time.Duration(ms) * time.Millisecond)
}

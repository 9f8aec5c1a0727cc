package trade

import (
	"fmt"
	"time"
)

// Remaining is the number of whole seconds left before expiresAt (unix
// seconds). It is derived from absolute timestamps on every call and never
// goes below zero.
func Remaining(expiresAt int64, now time.Time) int64 {
	left := expiresAt - now.Unix()
	if left < 0 {
		return 0
	}
	return left
}

// FormatRemaining renders seconds as mm:ss, or h:mm:ss past an hour.
func FormatRemaining(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

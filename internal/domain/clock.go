package domain

import "fmt"

// FormatClock renders seconds as HH:MM:SS. Hours are not capped at 24 and
// negative input renders as zero.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}

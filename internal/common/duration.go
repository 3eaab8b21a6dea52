package common

import (
	"fmt"
	"time"
)

// FormatDurationConcise prints whole days, hours, minutes or seconds as
// "7d", "3h", "15m" or "30s", falling back to time.Duration's format.
func FormatDurationConcise(d time.Duration) string {
	for _, unit := range []struct {
		size   time.Duration
		suffix string
	}{
		{24 * time.Hour, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	} {
		if d > 0 && d%unit.size == 0 {
			return fmt.Sprintf("%d%s", d/unit.size, unit.suffix)
		}
	}
	return d.String()
}

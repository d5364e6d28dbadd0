package services

import (
	"fmt"
	"strings"
	"time"
)

type unit struct {
	name string
	size time.Duration
}

var units = []unit{
	{"week", 7 * 24 * time.Hour},
	{"day", 24 * time.Hour},
	{"hour", time.Hour},
	{"minute", time.Minute},
	{"second", time.Second},
}

// FormatRemaining renders d as at most two non-zero units, largest first,
// joined by "and" (e.g. "1 hour and 30 minutes"). Partial seconds round up.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	if d == 0 {
		return "1 second"
	}

	var parts []string
	for _, u := range units {
		n := d / u.size
		if n == 0 {
			continue
		}
		d -= n * u.size
		parts = append(parts, plural(int64(n), u.name))
		if len(parts) == 2 {
			break
		}
	}
	return strings.Join(parts, " and ")
}

func plural(n int64, name string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", name)
	}
	return fmt.Sprintf("%d %ss", n, name)
}

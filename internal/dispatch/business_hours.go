package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Hours gates dispatching to a daily wall-clock window in a business
// timezone. A zero Hours (no window configured) is always open.
type Hours struct {
	startMinute int
	endMinute   int
	loc         *time.Location
	enabled     bool
}

// NewHours parses "HH:MM" bounds in the given IANA timezone. Empty
// start or end disables the window.
func NewHours(start, end, timezone string) (Hours, error) {
	if start == "" || end == "" {
		return Hours{}, nil
	}

	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return Hours{}, fmt.Errorf("invalid business timezone %q: %w", timezone, err)
		}
	}

	startMin, err := parseClock(start)
	if err != nil {
		return Hours{}, fmt.Errorf("invalid business hours start: %w", err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return Hours{}, fmt.Errorf("invalid business hours end: %w", err)
	}

	return Hours{
		startMinute: startMin,
		endMinute:   endMin,
		loc:         loc,
		enabled:     true,
	}, nil
}

// Open reports whether dispatching is allowed at the given instant.
// Windows that cross midnight (start > end) are supported.
func (h Hours) Open(now time.Time) bool {
	if !h.enabled {
		return true
	}

	local := now.In(h.loc)
	minute := local.Hour()*60 + local.Minute()

	if h.startMinute <= h.endMinute {
		return minute >= h.startMinute && minute < h.endMinute
	}
	return minute >= h.startMinute || minute < h.endMinute
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return hour*60 + minute, nil
}

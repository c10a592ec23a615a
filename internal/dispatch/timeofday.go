package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a civil wall-clock time with minute resolution. Project work
// times are stored as bare "HH:MM" or "HH:MM:SS" strings with no timezone;
// parsing them into a value type keeps the window arithmetic out of string
// land. Seconds are accepted and truncated.
type TimeOfDay struct {
	hour   int
	minute int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("malformed time of day: %q", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("malformed hour in %q", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("malformed minute in %q", s)
	}

	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return TimeOfDay{}, fmt.Errorf("malformed second in %q", s)
		}
	}

	return TimeOfDay{hour: hour, minute: minute}, nil
}

// TimeOfDayFrom truncates a time.Time to its wall-clock time of day.
func TimeOfDayFrom(t time.Time) TimeOfDay {
	return TimeOfDay{hour: t.Hour(), minute: t.Minute()}
}

// MinuteOfDay returns the minute offset from midnight, 0..1439.
func (t TimeOfDay) MinuteOfDay() int {
	return t.hour*60 + t.minute
}

// MinutesSince returns t - other in minutes. Both values are taken on the
// same calendar day: a shift spanning midnight yields a negative result and
// never qualifies for a dispatch window. Cross-midnight shifts are not
// supported.
func (t TimeOfDay) MinutesSince(other TimeOfDay) int {
	return t.MinuteOfDay() - other.MinuteOfDay()
}

// String renders the canonical "HH:MM" form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.hour, t.minute)
}

package appointment

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusUpcoming Status = "Upcoming"
	StatusLate     Status = "Late"
	StatusFailed   Status = "Failed"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Pending reports whether the engine may still move s forward.
func (s Status) Pending() bool {
	return s == StatusUpcoming || s == StatusLate
}

// NextStatus applies the two-tier staleness rule to a. A previous calendar
// day goes straight to Failed. Today with a passed time becomes Late.
// changed is false when no write is needed.
func NextStatus(a *Appointment, now time.Time, loc *time.Location) (next Status, changed bool, err error) {
	if !a.Status.Pending() {
		return a.Status, false, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	day, err := time.ParseInLocation(dateLayout, a.Date, loc)
	if err != nil {
		return a.Status, false, fmt.Errorf("%w: date %q", ErrInvalidDate, a.Date)
	}

	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch {
	case day.Before(today):
		next = StatusFailed
	default:
		clock, err := parseClock(a.Time)
		if err != nil {
			return a.Status, false, fmt.Errorf("%w: time %q", ErrInvalidDate, a.Time)
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, loc)
		if !at.Before(now) {
			return a.Status, false, nil
		}
		next = StatusLate
	}

	return next, next != a.Status, nil
}

func parseClock(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err == nil {
		return t, nil
	}
	return time.Parse("15:04:05", v)
}

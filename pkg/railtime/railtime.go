package railtime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MinutesPerDay is the number of minutes in one service day
	MinutesPerDay = 24 * 60

	// AbsentTime is the sentinel stored for a missing arrival or departure
	AbsentTime = "None"

	// DateLayout is the layout of a requested travel date
	DateLayout = "2006-01-02"

	// TimestampLayout is the layout of every absolute timestamp in a route
	TimestampLayout = "2006-01-02 15:04:05"
)

var (
	// ErrMalformedTime indicates a time-of-day that is not HH:MM[:SS]
	ErrMalformedTime = errors.New("time of day must be HH:MM or HH:MM:SS")

	// ErrMalformedDate indicates a date that is not YYYY-MM-DD
	ErrMalformedDate = errors.New("date must be YYYY-MM-DD")
)

// IsAbsent reports whether t is the empty string or the absent sentinel.
func IsAbsent(t string) bool {
	t = strings.TrimSpace(t)
	return t == "" || t == AbsentTime
}

// MinutesOfDay converts "HH:MM[:SS]" into minutes past midnight.
// Seconds are ignored. The absent sentinel maps to 0; callers filter
// absent times before relying on the value.
func MinutesOfDay(t string) (int, error) {
	if IsAbsent(t) {
		return 0, nil
	}

	h, m, _, err := splitClock(t)
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

// JourneyDuration returns the minutes between a departure on depDay and an
// arrival on arrDay. Day counts are 1-based positions along a single train run.
func JourneyDuration(depTime string, depDay int, arrTime string, arrDay int) (int, error) {
	depMins, err := MinutesOfDay(depTime)
	if err != nil {
		return 0, err
	}
	arrMins, err := MinutesOfDay(arrTime)
	if err != nil {
		return 0, err
	}
	return (arrDay-depDay)*MinutesPerDay + (arrMins - depMins), nil
}

// Layover returns the wait between arriving at arrTime and leaving at depTime,
// wrapping past midnight at most once.
func Layover(arrTime, depTime string) (int, error) {
	arrMins, err := MinutesOfDay(arrTime)
	if err != nil {
		return 0, err
	}
	depMins, err := MinutesOfDay(depTime)
	if err != nil {
		return 0, err
	}

	layover := depMins - arrMins
	if layover < 0 {
		layover += MinutesPerDay
	}
	return layover, nil
}

// Anchor places a time-of-day on a calendar date.
func Anchor(date time.Time, timeOfDay string) (time.Time, error) {
	if IsAbsent(timeOfDay) {
		return time.Time{}, ErrMalformedTime
	}

	h, m, s, err := splitClock(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := date.Date()
	return time.Date(y, mo, d, h, m, s, 0, time.UTC), nil
}

// Advance moves ts forward by the given number of minutes.
func Advance(ts time.Time, minutes int) time.Time {
	return ts.Add(time.Duration(minutes) * time.Minute)
}

// ParseDate parses a YYYY-MM-DD travel date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}
	return d, nil
}

// FormatTimestamp renders ts in TimestampLayout.
func FormatTimestamp(ts time.Time) string {
	return ts.Format(TimestampLayout)
}

// ParseTimestamp parses a TimestampLayout string.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.UTC)
}

const secondsPerDay = 24 * 60 * 60

// DayDelta returns the whole calendar days from one date to another.
func DayDelta(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int((b.Unix() - a.Unix()) / secondsPerDay)
}

func splitClock(t string) (h, m, s int, err error) {
	parts := strings.Split(strings.TrimSpace(t), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrMalformedTime, t)
	}

	fields := []int{0, 0, 0}
	limits := []int{23, 59, 59}
	for i, p := range parts {
		v, convErr := strconv.Atoi(p)
		if convErr != nil || v < 0 || v > limits[i] {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrMalformedTime, t)
		}
		fields[i] = v
	}
	return fields[0], fields[1], fields[2], nil
}

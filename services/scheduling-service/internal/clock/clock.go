// Package clock implements wall-clock times of day at minute granularity and
// the half-open interval arithmetic the scheduler is built on. Times never
// wrap past midnight.
package clock

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

var (
	ErrInvalidTime = errors.New("clock: time must be HH:mm between 00:00 and 23:59")
	ErrOutOfDay    = errors.New("clock: result falls outside the civil day")
)

const (
	minutesPerDay = 24 * 60
	lastMinute    = minutesPerDay - 1
)

// Time is a time of day stored as minutes since midnight.
type Time int

func New(hour, minute int) (Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, ErrInvalidTime
	}
	return Time(hour*60 + minute), nil
}

// Parse accepts exactly "HH:mm", zero padded.
func Parse(s string) (Time, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	digits := [4]byte{s[0], s[1], s[3], s[4]}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	t, err := New(h, m)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t, nil
}

// MustParse panics on malformed input. Use it for literals only.
func MustParse(s string) Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func FromMinutes(n int) (Time, error) {
	if n < 0 || n > lastMinute {
		return 0, ErrOutOfDay
	}
	return Time(n), nil
}

func (t Time) Minutes() int { return int(t) }
func (t Time) Hour() int    { return int(t) / 60 }
func (t Time) Minute() int  { return int(t) % 60 }

func (t Time) Valid() bool { return t >= 0 && t <= lastMinute }

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// AddMinutes returns ErrOutOfDay when the result is past 23:59 or before 00:00.
func (t Time) AddMinutes(n int) (Time, error) {
	return FromMinutes(int(t) + n)
}

// Sub returns t-u in minutes.
func (t Time) Sub(u Time) int { return int(t) - int(u) }

func (t Time) Before(u Time) bool { return t < u }
func (t Time) After(u Time) bool  { return t > u }
func (t Time) Equal(u Time) bool  { return t == u }

func (t Time) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, ErrInvalidTime
	}
	return []byte(t.String()), nil
}

func (t *Time) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) share any minute.
func Overlaps(aStart, aEnd, bStart, bEnd Time) bool {
	return aStart < bEnd && bStart < aEnd
}

// ParseDate parses a timezone-naive "YYYY-MM-DD" calendar date.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("clock: date must be YYYY-MM-DD: %q", s)
	}
	return d, nil
}

func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

// DateRange lists every date in [from, to].
func DateRange(from, to civil.Date) []civil.Date {
	if to.Before(from) {
		return nil
	}
	out := make([]civil.Date, 0, to.DaysSince(from)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

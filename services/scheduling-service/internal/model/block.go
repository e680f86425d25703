package model

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
)

// Block removes availability on a date, or on every date through EndDate.
// Without StartTime/EndTime the whole day is blocked.
type Block struct {
	ID              string      `json:"id"`
	ProfessionalID  string      `json:"professional_id"`
	Date            civil.Date  `json:"date"`
	EndDate         *civil.Date `json:"end_date,omitempty"`
	StartTime       *clock.Time `json:"start_time,omitempty"`
	EndTime         *clock.Time `json:"end_time,omitempty"`
	Reason          string      `json:"reason"`
	RecurringYearly bool        `json:"recurring_yearly"`
	CreatedAt       time.Time   `json:"created_at"`
}

func (b Block) Validate() error {
	if b.ProfessionalID == "" {
		return Invalid("professional_id", "is required")
	}
	if !b.Date.IsValid() {
		return Invalid("date", "must be a valid YYYY-MM-DD date")
	}
	if b.EndDate != nil {
		if !b.EndDate.IsValid() {
			return Invalid("end_date", "must be a valid YYYY-MM-DD date")
		}
		if b.EndDate.Before(b.Date) {
			return Invalid("end_date", "must not be before date")
		}
		if b.RecurringYearly && b.EndDate.DaysSince(b.Date) >= 365 {
			return Invalid("end_date", "a yearly block must span less than a year")
		}
	}
	if (b.StartTime == nil) != (b.EndTime == nil) {
		return Invalid("end_time", "start_time and end_time must be given together")
	}
	if b.StartTime != nil {
		if !b.StartTime.Valid() || !b.EndTime.Valid() {
			return Invalid("start_time", "must be HH:mm between 00:00 and 23:59")
		}
		if !b.StartTime.Before(*b.EndTime) {
			return Invalid("end_time", "must be after start_time")
		}
	}
	if b.Reason == "" {
		return Invalid("reason", "is required")
	}
	return nil
}

func (b Block) IsFullDay() bool { return b.StartTime == nil }

// Interval returns the blocked time range; ok is false for full-day blocks.
func (b Block) Interval() (clock.Interval, bool) {
	if b.StartTime == nil || b.EndTime == nil {
		return clock.Interval{}, false
	}
	return clock.Interval{Start: *b.StartTime, End: *b.EndTime}, true
}

func (b Block) LastDate() civil.Date {
	if b.EndDate != nil {
		return *b.EndDate
	}
	return b.Date
}

// Covers reports whether the block applies to date. A yearly block repeats
// its month/day span in every later year, including spans that cross New Year.
// A Feb 29 endpoint falls on Feb 28 in common years.
func (b Block) Covers(date civil.Date) bool {
	first, last := b.Date, b.LastDate()
	if !date.Before(first) && !date.After(last) {
		return true
	}
	if !b.RecurringYearly || date.Before(first) {
		return false
	}
	for _, shift := range []int{date.Year - first.Year, date.Year - first.Year - 1} {
		if shift <= 0 {
			continue
		}
		from := anniversary(first, first.Year+shift)
		until := anniversary(last, last.Year+shift)
		if !date.Before(from) && !date.After(until) {
			return true
		}
	}
	return false
}

// CoversAny reports whether the block applies to at least one date in
// [from, to].
func (b Block) CoversAny(from, to civil.Date) bool {
	if to.Before(from) || b.Date.After(to) {
		return false
	}
	if !b.LastDate().Before(from) {
		return true
	}
	if !b.RecurringYearly {
		return false
	}
	// Any window of a full year holds an occurrence.
	if to.DaysSince(from) >= 365 {
		return true
	}
	for d := from; !d.After(to); d = d.AddDays(1) {
		if b.Covers(d) {
			return true
		}
	}
	return false
}

func anniversary(d civil.Date, year int) civil.Date {
	out := civil.Date{Year: year, Month: d.Month, Day: d.Day}
	if d.Month == time.February && d.Day == 29 && !out.IsValid() {
		out.Day = 28
	}
	return out
}

package model

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
)

// Template is a recurring weekly working window for one professional.
type Template struct {
	ID             string       `json:"id"`
	ProfessionalID string       `json:"professional_id"`
	DayOfWeek      time.Weekday `json:"day_of_week"`
	StartTime      clock.Time   `json:"start_time"`
	EndTime        clock.Time   `json:"end_time"`
	SlotDuration   int          `json:"slot_duration_minutes"`
	IsActive       bool         `json:"is_active"`
	ValidFrom      *civil.Date  `json:"valid_from,omitempty"`
	ValidUntil     *civil.Date  `json:"valid_until,omitempty"`
	Notes          string       `json:"notes,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (t Template) Validate() error {
	if t.ProfessionalID == "" {
		return Invalid("professional_id", "is required")
	}
	if t.DayOfWeek < time.Sunday || t.DayOfWeek > time.Saturday {
		return Invalid("day_of_week", "must be between 0 (Sunday) and 6 (Saturday)")
	}
	if !t.StartTime.Valid() || !t.EndTime.Valid() {
		return Invalid("start_time", "must be HH:mm between 00:00 and 23:59")
	}
	if !t.StartTime.Before(t.EndTime) {
		return Invalid("end_time", "must be after start_time")
	}
	if t.SlotDuration <= 0 {
		return Invalid("slot_duration_minutes", "must be positive")
	}
	if t.SlotDuration > t.EndTime.Sub(t.StartTime) {
		return Invalid("slot_duration_minutes", "does not fit between start_time and end_time")
	}
	if t.ValidFrom != nil && t.ValidUntil != nil && t.ValidUntil.Before(*t.ValidFrom) {
		return Invalid("valid_until", "must not be before valid_from")
	}
	return nil
}

func (t Template) Window() clock.Interval {
	return clock.Interval{Start: t.StartTime, End: t.EndTime}
}

// AppliesOn reports whether the template is active and in effect on date.
func (t Template) AppliesOn(date civil.Date) bool {
	if !t.IsActive || clock.Weekday(date) != t.DayOfWeek {
		return false
	}
	if t.ValidFrom != nil && date.Before(*t.ValidFrom) {
		return false
	}
	if t.ValidUntil != nil && date.After(*t.ValidUntil) {
		return false
	}
	return true
}

// Collides reports whether two active templates of the same professional
// could both apply to one date with intersecting windows.
func (t Template) Collides(o Template) bool {
	if t.ID == o.ID || !t.IsActive || !o.IsActive {
		return false
	}
	if t.ProfessionalID != o.ProfessionalID || t.DayOfWeek != o.DayOfWeek {
		return false
	}
	if !t.Window().Overlaps(o.Window()) {
		return false
	}
	return validityOverlaps(t.ValidFrom, t.ValidUntil, o.ValidFrom, o.ValidUntil)
}

func validityOverlaps(aFrom, aUntil, bFrom, bUntil *civil.Date) bool {
	if aUntil != nil && bFrom != nil && aUntil.Before(*bFrom) {
		return false
	}
	if bUntil != nil && aFrom != nil && bUntil.Before(*aFrom) {
		return false
	}
	return true
}

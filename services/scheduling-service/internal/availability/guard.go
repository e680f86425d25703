package availability

import (
	"errors"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

// Proposal is a booking or edit to be checked. ExcludeID names the
// appointment being edited so its current slot does not count against it.
type Proposal struct {
	ProfessionalID  string
	Date            civil.Date
	StartTime       clock.Time
	DurationMinutes int
	ExcludeID       string
}

// CheckBookingConflict is the last check before persisting p. It returns nil,
// a *model.ValidationError or a *model.ConflictError and never mutates snap.
func CheckBookingConflict(snap model.Snapshot, p Proposal) error {
	window, err := proposalWindow(p)
	if err != nil {
		return err
	}

	r := NewResolver(snap, p.ExcludeID)
	slots := r.Date(p.ProfessionalID, p.Date)

	var hit []model.ResolvedSlot
	for _, s := range slots {
		if s.Interval().Overlaps(window) {
			hit = append(hit, s)
		}
	}
	if len(hit) == 0 {
		return model.Invalid("start_time", "no availability configured for this time")
	}

	for _, s := range hit {
		if s.Status == model.SlotBusy {
			return conflict(p, s.Time, model.SlotBusy, s.OccupantRef, "slot is already booked")
		}
	}
	if over := r.Occupancy().Overlapping(p.ProfessionalID, p.Date, window, p.ExcludeID); len(over) > 0 {
		return conflict(p, over[0].StartTime, model.SlotBusy, over[0].ID, "overlaps another appointment")
	}
	for _, s := range hit {
		if s.Status == model.SlotBlocked {
			return conflict(p, s.Time, model.SlotBlocked, s.OccupantRef, "time is blocked")
		}
	}
	if blocks := r.Exceptions().Overlapping(p.ProfessionalID, p.Date, window); len(blocks) > 0 {
		return conflict(p, p.StartTime, model.SlotBlocked, blocks[0].ID, "time is blocked")
	}

	for _, w := range r.Weekly().Windows(p.ProfessionalID, p.Date) {
		if w.Covers(window) {
			return nil
		}
	}
	return model.Invalid("duration_minutes", "appointment extends outside configured working hours")
}

func proposalWindow(p Proposal) (clock.Interval, error) {
	if p.ProfessionalID == "" {
		return clock.Interval{}, model.Invalid("professional_id", "is required")
	}
	if !p.Date.IsValid() {
		return clock.Interval{}, model.Invalid("date", "must be a valid YYYY-MM-DD date")
	}
	if !p.StartTime.Valid() {
		return clock.Interval{}, model.Invalid("start_time", "must be HH:mm between 00:00 and 23:59")
	}
	if p.DurationMinutes <= 0 {
		return clock.Interval{}, model.Invalid("duration_minutes", "must be positive")
	}
	window, err := clock.NewInterval(p.StartTime, p.DurationMinutes)
	if errors.Is(err, clock.ErrOutOfDay) {
		return clock.Interval{}, model.Invalid("duration_minutes", "appointment must end within the same day")
	}
	if err != nil {
		return clock.Interval{}, model.Invalid("duration_minutes", err.Error())
	}
	return window, nil
}

func conflict(p Proposal, at clock.Time, status model.SlotStatus, ref, reason string) error {
	return &model.ConflictError{
		Date:        p.Date,
		Time:        at,
		Status:      status,
		OccupantRef: ref,
		Reason:      reason,
	}
}

// Package availability turns weekly templates, blocks and booked appointments
// into dated slots and guards bookings against them. Everything here is pure:
// callers pass a read-consistent model.Snapshot and get values back.
package availability

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

// MaxRangeDays caps a single resolution request.
const MaxRangeDays = 92

// Resolver holds the indexes built from one snapshot. It is immutable once
// built and safe for concurrent use.
type Resolver struct {
	weekly     *Weekly
	exceptions *Exceptions
	occupancy  *Occupancy
}

// NewResolver indexes snap. Appointments whose id is in exclude are treated as
// if they did not exist, which is how an edit is checked against the rest of
// the day.
func NewResolver(snap model.Snapshot, exclude ...string) *Resolver {
	return &Resolver{
		weekly:     NewWeekly(snap.Templates),
		exceptions: NewExceptions(snap.Blocks),
		occupancy:  NewOccupancy(snap.Appointments, exclude...),
	}
}

func (r *Resolver) Weekly() *Weekly         { return r.weekly }
func (r *Resolver) Exceptions() *Exceptions { return r.exceptions }
func (r *Resolver) Occupancy() *Occupancy   { return r.occupancy }

// Resolve computes slots for every date in [from, to].
func Resolve(snap model.Snapshot, professionalID string, from, to civil.Date) ([]model.ResolvedSlot, error) {
	if err := ValidateRange(from, to); err != nil {
		return nil, err
	}
	if professionalID == "" {
		return nil, model.Invalid("professional_id", "is required")
	}
	return NewResolver(snap).Range(professionalID, from, to), nil
}

func ValidateRange(from, to civil.Date) error {
	if !from.IsValid() {
		return model.Invalid("from", "must be a valid YYYY-MM-DD date")
	}
	if !to.IsValid() {
		return model.Invalid("to", "must be a valid YYYY-MM-DD date")
	}
	if to.Before(from) {
		return model.Invalid("to", "must not be before from")
	}
	if days := to.DaysSince(from) + 1; days > MaxRangeDays {
		return model.Invalid("to", fmt.Sprintf("range covers %d days, at most %d allowed", days, MaxRangeDays))
	}
	return nil
}

func (r *Resolver) Range(professionalID string, from, to civil.Date) []model.ResolvedSlot {
	var out []model.ResolvedSlot
	for _, d := range clock.DateRange(from, to) {
		out = append(out, r.Date(professionalID, d)...)
	}
	return out
}

// Date resolves one day. A day with no applicable templates yields nothing,
// while a fully blocked working day yields every slot as blocked.
func (r *Resolver) Date(professionalID string, date civil.Date) []model.ResolvedSlot {
	templates := r.weekly.TemplatesOn(professionalID, date)
	if len(templates) == 0 {
		return nil
	}

	fullDay, fullyBlocked := r.exceptions.FullDayBlock(professionalID, date)

	var out []model.ResolvedSlot
	for _, t := range templates {
		for _, start := range SlotStarts(t) {
			slot := model.ResolvedSlot{
				Date:            date,
				Time:            start,
				DurationMinutes: t.SlotDuration,
				Status:          model.SlotAvailable,
				TemplateID:      t.ID,
			}
			switch {
			case fullyBlocked:
				slot.Status, slot.OccupantRef = model.SlotBlocked, fullDay.ID
			default:
				r.classify(professionalID, &slot)
			}
			out = append(out, slot)
		}
	}
	return out
}

func (r *Resolver) classify(professionalID string, slot *model.ResolvedSlot) {
	if a, ok := r.occupancy.OccupantAt(professionalID, slot.Date, slot.Time); ok {
		slot.Status, slot.OccupantRef = model.SlotBusy, a.ID
		return
	}
	// An appointment starting mid-slot still makes the slot unbookable.
	if over := r.occupancy.Overlapping(professionalID, slot.Date, slot.Interval(), ""); len(over) > 0 {
		slot.Status, slot.OccupantRef = model.SlotBusy, over[0].ID
		return
	}
	if b, ok := r.exceptions.BlockAt(professionalID, slot.Date, slot.Time, slot.DurationMinutes); ok {
		slot.Status, slot.OccupantRef = model.SlotBlocked, b.ID
	}
}

// Summary counts slots by status for one day.
type Summary struct {
	Date      civil.Date `json:"date"`
	Available int        `json:"available"`
	Busy      int        `json:"busy"`
	Blocked   int        `json:"blocked"`
	Working   bool       `json:"working"`
}

func Summarize(slots []model.ResolvedSlot, from, to civil.Date) []Summary {
	byDate := map[civil.Date]*Summary{}
	var out []Summary
	for _, d := range clock.DateRange(from, to) {
		out = append(out, Summary{Date: d})
	}
	for i := range out {
		byDate[out[i].Date] = &out[i]
	}
	for _, s := range slots {
		sum := byDate[s.Date]
		if sum == nil {
			continue
		}
		sum.Working = true
		switch s.Status {
		case model.SlotAvailable:
			sum.Available++
		case model.SlotBusy:
			sum.Busy++
		case model.SlotBlocked:
			sum.Blocked++
		}
	}
	return out
}

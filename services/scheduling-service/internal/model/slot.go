package model

import (
	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBusy      SlotStatus = "busy"
	SlotBlocked   SlotStatus = "blocked"
)

// ResolvedSlot is derived on every query and never stored.
type ResolvedSlot struct {
	Date            civil.Date `json:"date"`
	Time            clock.Time `json:"time"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          SlotStatus `json:"status"`
	OccupantRef     string     `json:"occupant_ref,omitempty"`
	TemplateID      string     `json:"template_id"`
}

func (s ResolvedSlot) Interval() clock.Interval {
	return clock.Interval{Start: s.Time, End: clock.Time(s.Time.Minutes() + s.DurationMinutes)}
}

// Snapshot is one read-consistent view of a professional's schedule over
// [From, To]. Blocks and appointments outside the range may be omitted.
type Snapshot struct {
	ProfessionalID string
	From           civil.Date
	To             civil.Date
	Templates      []Template
	Blocks         []Block
	Appointments   []Appointment
}

// SnapshotLoader reads a snapshot for one professional and date while the
// caller holds whatever lock serialises writes to that day.
type SnapshotLoader func(professionalID string, date civil.Date) (Snapshot, error)

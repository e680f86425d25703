package model

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

var AllStatuses = []Status{
	StatusScheduled, StatusConfirmed, StatusInProgress,
	StatusCompleted, StatusCancelled, StatusNoShow,
}

func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", Invalid("status", "unknown status "+s)
}

// Occupies reports whether an appointment in this status holds its slot.
func (s Status) Occupies() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return true
	default:
		return false
	}
}

type AppointmentType string

const (
	TypeFirstVisit AppointmentType = "first_visit"
	TypeFollowUp   AppointmentType = "follow_up"
	TypeEmergency  AppointmentType = "emergency"
	TypeRoutine    AppointmentType = "routine"
	TypeSpecialist AppointmentType = "specialist"
)

func ParseAppointmentType(s string) (AppointmentType, error) {
	switch t := AppointmentType(s); t {
	case "":
		return TypeFirstVisit, nil
	case TypeFirstVisit, TypeFollowUp, TypeEmergency, TypeRoutine, TypeSpecialist:
		return t, nil
	default:
		return "", Invalid("type", "unknown appointment type "+s)
	}
}

type Appointment struct {
	ID                 string          `json:"id"`
	ProfessionalID     string          `json:"professional_id"`
	PatientID          string          `json:"patient_id"`
	Date               civil.Date      `json:"date"`
	StartTime          clock.Time      `json:"start_time"`
	Duration           int             `json:"duration_minutes"`
	Status             Status          `json:"status"`
	Type               AppointmentType `json:"type"`
	Reason             string          `json:"reason,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	Observations       string          `json:"observations,omitempty"`
	CreatedBy          string          `json:"created_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy        string          `json:"cancelled_by,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
}

// Interval is [StartTime, StartTime+Duration). Rows that would run past
// midnight are clamped to 23:59 so old data never panics the index.
func (a Appointment) Interval() clock.Interval {
	end, err := a.StartTime.AddMinutes(a.Duration)
	if err != nil {
		end = clock.Time(23*60 + 59)
	}
	return clock.Interval{Start: a.StartTime, End: end}
}

func (a Appointment) EndTime() clock.Time { return a.Interval().End }

func (a Appointment) Occupies() bool { return a.Status.Occupies() }

// Validate checks the fields a booking request supplies.
func (a Appointment) Validate() error {
	if a.ProfessionalID == "" {
		return Invalid("professional_id", "is required")
	}
	if a.PatientID == "" {
		return Invalid("patient_id", "is required")
	}
	if !a.Date.IsValid() {
		return Invalid("date", "must be a valid YYYY-MM-DD date")
	}
	if !a.StartTime.Valid() {
		return Invalid("start_time", "must be HH:mm between 00:00 and 23:59")
	}
	if a.Duration <= 0 {
		return Invalid("duration_minutes", "must be positive")
	}
	if _, err := a.StartTime.AddMinutes(a.Duration); err != nil {
		return Invalid("duration_minutes", "appointment must end within the same day")
	}
	return nil
}

type AppointmentFilter struct {
	ProfessionalID string
	PatientID      string
	Status         Status
	Type           AppointmentType
	From           *civil.Date
	To             *civil.Date
	Limit          int
}

func (f AppointmentFilter) Matches(a Appointment) bool {
	if f.ProfessionalID != "" && a.ProfessionalID != f.ProfessionalID {
		return false
	}
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.From != nil && a.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && a.Date.After(*f.To) {
		return false
	}
	return true
}

// Stats counts appointments per status over a date range.
type Stats struct {
	ProfessionalID string         `json:"professional_id"`
	From           civil.Date     `json:"from"`
	To             civil.Date     `json:"to"`
	Total          int            `json:"total"`
	ByStatus       map[Status]int `json:"by_status"`
}

package booking

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	otelx "github.com/md-rashed-zaman/clinicsched/libs/otel"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type BookRequest struct {
	ProfessionalID  string     `json:"professional_id"`
	PatientID       string     `json:"patient_id"`
	Date            civil.Date `json:"date"`
	StartTime       clock.Time `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Type            string     `json:"type,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Observations    string     `json:"observations,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
}

// DetailsUpdate edits the descriptive fields of an appointment. Nil fields
// are left unchanged.
type DetailsUpdate struct {
	Type         *string `json:"type,omitempty"`
	Reason       *string `json:"reason,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	Observations *string `json:"observations,omitempty"`
}

type RescheduleRequest struct {
	Date            civil.Date `json:"date"`
	StartTime       clock.Time `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
}

type rescheduledData struct {
	Appointment model.Appointment `json:"appointment"`
	Previous    RescheduleRequest `json:"previous"`
}

type statusChangedData struct {
	AppointmentID  string       `json:"appointment_id"`
	ProfessionalID string       `json:"professional_id"`
	PatientID      string       `json:"patient_id"`
	From           model.Status `json:"from"`
	To             model.Status `json:"to"`
	Actor          string       `json:"actor,omitempty"`
	Reason         string       `json:"reason,omitempty"`
}

// Book validates req, applies the advance-booking policy and persists the
// appointment. The guard runs again inside the store's critical section, so
// two racing requests for the same slot cannot both succeed.
func (s *Service) Book(ctx context.Context, req BookRequest) (appt model.Appointment, err error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.Book", "professional_id", req.ProfessionalID)
	defer func() {
		s.metrics.ObserveBooking("book", outcome(err))
		endSpan(span, err)
	}()

	typ, err := model.ParseAppointmentType(req.Type)
	if err != nil {
		return model.Appointment{}, err
	}
	now := s.now()
	appt = model.Appointment{
		ID:             newID(),
		ProfessionalID: req.ProfessionalID,
		PatientID:      req.PatientID,
		Date:           req.Date,
		StartTime:      req.StartTime,
		Duration:       req.DurationMinutes,
		Status:         model.StatusScheduled,
		Type:           typ,
		Reason:         req.Reason,
		Notes:          req.Notes,
		Observations:   req.Observations,
		CreatedBy:      req.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := appt.Validate(); err != nil {
		return model.Appointment{}, err
	}
	if err := s.checkPolicy(appt.Date); err != nil {
		return model.Appointment{}, err
	}

	evt, err := outbox.NewEvent(outbox.TypeAppointmentBooked, outbox.AggregateAppointment, appt.ID, appt, now)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("build booked event: %w", err)
	}
	proposal := availability.Proposal{
		ProfessionalID:  appt.ProfessionalID,
		Date:            appt.Date,
		StartTime:       appt.StartTime,
		DurationMinutes: appt.Duration,
	}
	err = s.store.BookAppointment(ctx, appt, func(snap model.Snapshot) error {
		return availability.CheckBookingConflict(snap, proposal)
	}, evt)
	if err != nil {
		return model.Appointment{}, err
	}
	s.invalidate(ctx, appt.ProfessionalID)
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"professional_id", appt.ProfessionalID,
		"date", appt.Date.String(),
		"start_time", appt.StartTime.String(),
	)
	return appt, nil
}

// Reschedule moves a scheduled or confirmed appointment. Its own current slot
// is ignored when checking the new one.
func (s *Service) Reschedule(ctx context.Context, id string, req RescheduleRequest) (appt model.Appointment, err error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.Reschedule", "appointment_id", id)
	defer func() {
		s.metrics.ObserveBooking("reschedule", outcome(err))
		endSpan(span, err)
	}()

	if err := s.checkPolicy(req.Date); err != nil {
		return model.Appointment{}, err
	}
	appt, err = s.store.UpdateAppointment(ctx, id, func(cur model.Appointment, load model.SnapshotLoader) (model.Appointment, outbox.Event, error) {
		if !cur.Status.Reschedulable() {
			return cur, outbox.Event{}, model.Invalid("status", fmt.Sprintf("cannot reschedule a %s appointment", cur.Status))
		}
		next := cur
		next.Date = req.Date
		next.StartTime = req.StartTime
		next.Duration = req.DurationMinutes
		next.UpdatedAt = s.now()
		if err := next.Validate(); err != nil {
			return cur, outbox.Event{}, err
		}
		snap, err := load(next.ProfessionalID, next.Date)
		if err != nil {
			return cur, outbox.Event{}, err
		}
		err = availability.CheckBookingConflict(snap, availability.Proposal{
			ProfessionalID:  next.ProfessionalID,
			Date:            next.Date,
			StartTime:       next.StartTime,
			DurationMinutes: next.Duration,
			ExcludeID:       next.ID,
		})
		if err != nil {
			return cur, outbox.Event{}, err
		}
		evt, err := outbox.NewEvent(outbox.TypeAppointmentRescheduled, outbox.AggregateAppointment, next.ID, rescheduledData{
			Appointment: next,
			Previous:    RescheduleRequest{Date: cur.Date, StartTime: cur.StartTime, DurationMinutes: cur.Duration},
		}, next.UpdatedAt)
		if err != nil {
			return cur, outbox.Event{}, fmt.Errorf("build rescheduled event: %w", err)
		}
		return next, evt, nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.invalidate(ctx, appt.ProfessionalID)
	s.logger.Info("appointment rescheduled",
		"appointment_id", appt.ID,
		"professional_id", appt.ProfessionalID,
		"date", appt.Date.String(),
		"start_time", appt.StartTime.String(),
	)
	return appt, nil
}

// Transition moves an appointment along the status state machine. It never
// re-runs the conflict guard. actor and reason are recorded on cancellation.
func (s *Service) Transition(ctx context.Context, id string, to model.Status, actor, reason string) (appt model.Appointment, err error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.Transition", "appointment_id", id, "to", string(to))
	defer func() {
		s.metrics.ObserveBooking("transition", outcome(err))
		endSpan(span, err)
	}()

	var from model.Status
	appt, err = s.store.UpdateAppointment(ctx, id, func(cur model.Appointment, _ model.SnapshotLoader) (model.Appointment, outbox.Event, error) {
		if err := model.CheckTransition(cur.Status, to); err != nil {
			return cur, outbox.Event{}, err
		}
		now := s.now()
		next := cur
		next.Status = to
		next.UpdatedAt = now
		if to == model.StatusCancelled {
			next.CancelledAt = &now
			next.CancelledBy = actor
			next.CancellationReason = reason
		}
		evt, err := outbox.NewEvent(outbox.TypeAppointmentStatus, outbox.AggregateAppointment, next.ID, statusChangedData{
			AppointmentID:  next.ID,
			ProfessionalID: next.ProfessionalID,
			PatientID:      next.PatientID,
			From:           cur.Status,
			To:             to,
			Actor:          actor,
			Reason:         reason,
		}, now)
		if err != nil {
			return cur, outbox.Event{}, fmt.Errorf("build status event: %w", err)
		}
		from = cur.Status
		return next, evt, nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if from.Occupies() != to.Occupies() {
		s.invalidate(ctx, appt.ProfessionalID)
	}
	s.logger.Info("appointment status changed",
		"appointment_id", appt.ID,
		"from", string(from),
		"to", string(to),
	)
	return appt, nil
}

// UpdateDetails edits type, reason, notes and observations. Date, time and
// status stay as they are, so the slot guard is not involved.
func (s *Service) UpdateDetails(ctx context.Context, id string, upd DetailsUpdate, actor string) (appt model.Appointment, err error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.UpdateDetails", "appointment_id", id)
	defer func() {
		s.metrics.ObserveBooking("update", outcome(err))
		endSpan(span, err)
	}()

	var typ *model.AppointmentType
	if upd.Type != nil {
		if *upd.Type == "" {
			return model.Appointment{}, model.Invalid("type", "must not be empty")
		}
		t, err := model.ParseAppointmentType(*upd.Type)
		if err != nil {
			return model.Appointment{}, err
		}
		typ = &t
	}
	appt, err = s.store.UpdateAppointment(ctx, id, func(cur model.Appointment, _ model.SnapshotLoader) (model.Appointment, outbox.Event, error) {
		next := cur
		if typ != nil {
			next.Type = *typ
		}
		if upd.Reason != nil {
			next.Reason = *upd.Reason
		}
		if upd.Notes != nil {
			next.Notes = *upd.Notes
		}
		if upd.Observations != nil {
			next.Observations = *upd.Observations
		}
		if next == cur {
			return cur, outbox.Event{}, nil
		}
		now := s.now()
		next.UpdatedAt = now
		evt, err := outbox.NewEvent(outbox.TypeAppointmentUpdated, outbox.AggregateAppointment, next.ID, next, now)
		if err != nil {
			return cur, outbox.Event{}, fmt.Errorf("build updated event: %w", err)
		}
		return next, evt, nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment details updated", "appointment_id", appt.ID, "actor", actor)
	return appt, nil
}

func (s *Service) Confirm(ctx context.Context, id, actor string) (model.Appointment, error) {
	return s.Transition(ctx, id, model.StatusConfirmed, actor, "")
}

func (s *Service) Start(ctx context.Context, id, actor string) (model.Appointment, error) {
	return s.Transition(ctx, id, model.StatusInProgress, actor, "")
}

func (s *Service) Complete(ctx context.Context, id, actor string) (model.Appointment, error) {
	return s.Transition(ctx, id, model.StatusCompleted, actor, "")
}

func (s *Service) Cancel(ctx context.Context, id, actor, reason string) (model.Appointment, error) {
	return s.Transition(ctx, id, model.StatusCancelled, actor, reason)
}

func (s *Service) MarkNoShow(ctx context.Context, id, actor string) (model.Appointment, error) {
	return s.Transition(ctx, id, model.StatusNoShow, actor, "")
}

func (s *Service) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	switch {
	case f.Limit < 0:
		return nil, model.Invalid("limit", "must not be negative")
	case f.Limit == 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, model.Invalid("to", "must not be before from")
	}
	return s.store.ListAppointments(ctx, f)
}

func (s *Service) Stats(ctx context.Context, professionalID string, from, to civil.Date) (model.Stats, error) {
	if professionalID == "" {
		return model.Stats{}, model.Invalid("professional_id", "is required")
	}
	if to.Before(from) {
		return model.Stats{}, model.Invalid("to", "must not be before from")
	}
	counts, err := s.store.CountByStatus(ctx, professionalID, from, to)
	if err != nil {
		return model.Stats{}, err
	}
	stats := model.Stats{
		ProfessionalID: professionalID,
		From:           from,
		To:             to,
		ByStatus:       make(map[model.Status]int, len(model.AllStatuses)),
	}
	for _, st := range model.AllStatuses {
		stats.ByStatus[st] = counts[st]
		stats.Total += counts[st]
	}
	return stats, nil
}

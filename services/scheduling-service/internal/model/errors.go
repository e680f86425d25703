package model

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")
)

// ValidationError reports malformed input or a request outside configured
// working hours. The caller fixes the input; it is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError reports that a proposed window touches a busy or blocked
// slot. OccupantRef names the appointment or block in the way.
type ConflictError struct {
	Date        civil.Date
	Time        clock.Time
	Status      SlotStatus
	OccupantRef string
	Reason      string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("conflict: %s %s is %s", e.Date, e.Time, e.Status)
	if e.OccupantRef != "" {
		msg += " (" + e.OccupantRef + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

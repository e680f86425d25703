package booking

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
)

// AppointmentUpdate receives the locked current row and a loader for any day
// it needs to re-check, and returns the new row plus the event to record.
type AppointmentUpdate func(current model.Appointment, load model.SnapshotLoader) (model.Appointment, outbox.Event, error)

// Store persists schedules. Every write records evt in the same transaction.
type Store interface {
	Snapshot(ctx context.Context, professionalID string, from, to civil.Date) (model.Snapshot, error)

	SaveTemplate(ctx context.Context, t model.Template, check func(existing []model.Template) error, evt outbox.Event) error
	GetTemplate(ctx context.Context, id string) (model.Template, error)
	ListTemplates(ctx context.Context, professionalID string) ([]model.Template, error)
	DeleteTemplate(ctx context.Context, id string, evt outbox.Event) error

	CreateBlock(ctx context.Context, b model.Block, evt outbox.Event) error
	GetBlock(ctx context.Context, id string) (model.Block, error)
	ListBlocks(ctx context.Context, professionalID string, from, to civil.Date) ([]model.Block, error)
	DeleteBlock(ctx context.Context, id string, evt outbox.Event) error

	// BookAppointment runs check against a fresh snapshot of the
	// appointment's day and inserts only if check passes, atomically with
	// respect to other bookings for that day.
	BookAppointment(ctx context.Context, a model.Appointment, check func(model.Snapshot) error, evt outbox.Event) error
	UpdateAppointment(ctx context.Context, id string, fn func(current model.Appointment, load model.SnapshotLoader) (model.Appointment, outbox.Event, error)) (model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error)
	CountByStatus(ctx context.Context, professionalID string, from, to civil.Date) (map[model.Status]int, error)
}

// Cache stores resolved days per professional under a version that
// Invalidate bumps.
type Cache interface {
	Version(ctx context.Context, professionalID string) (int64, error)
	GetMany(ctx context.Context, professionalID string, version int64, dates []civil.Date) (map[civil.Date][]model.ResolvedSlot, error)
	SetMany(ctx context.Context, professionalID string, version int64, days map[civil.Date][]model.ResolvedSlot) error
	Invalidate(ctx context.Context, professionalID string) error
}

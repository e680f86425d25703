package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
)

// store is the method set both implementations share.
type store interface {
	Snapshot(ctx context.Context, professionalID string, from, to civil.Date) (model.Snapshot, error)
	SaveTemplate(ctx context.Context, t model.Template, check func([]model.Template) error, evt outbox.Event) error
	GetTemplate(ctx context.Context, id string) (model.Template, error)
	DeleteTemplate(ctx context.Context, id string, evt outbox.Event) error
	CreateBlock(ctx context.Context, b model.Block, evt outbox.Event) error
	ListBlocks(ctx context.Context, professionalID string, from, to civil.Date) ([]model.Block, error)
	DeleteBlock(ctx context.Context, id string, evt outbox.Event) error
	BookAppointment(ctx context.Context, a model.Appointment, check func(model.Snapshot) error, evt outbox.Event) error
	UpdateAppointment(ctx context.Context, id string, fn func(model.Appointment, model.SnapshotLoader) (model.Appointment, outbox.Event, error)) (model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error)
	CountByStatus(ctx context.Context, professionalID string, from, to civil.Date) (map[model.Status]int, error)
	Relay(ctx context.Context, limit int, fn func(context.Context, []outbox.Record) error) (int, error)
}

var _ store = (*Memory)(nil)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemory())
}

// Postgres tests need a disposable database with btree_gist available.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.Options{MaxConns: 4})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	runStoreContract(t, pgStore{NewPostgres(pool)})
}

type pgStore struct{ *Postgres }

func (s pgStore) Relay(ctx context.Context, limit int, fn func(context.Context, []outbox.Record) error) (int, error) {
	return s.Outbox().Relay(ctx, limit, fn)
}

func event(t *testing.T, typ, id string) outbox.Event {
	t.Helper()
	evt, err := outbox.NewEvent(typ, outbox.AggregateAppointment, id, map[string]string{"id": id}, time.Now())
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	return evt
}

func runStoreContract(t *testing.T, s store) {
	ctx := context.Background()
	prof := "prof-" + uuid.NewString()
	day := civil.Date{Year: 2024, Month: 1, Day: 1}
	now := time.Now().UTC().Truncate(time.Second)

	tpl := model.Template{
		ID: uuid.NewString(), ProfessionalID: prof, DayOfWeek: time.Monday,
		StartTime: clock.MustParse("09:00"), EndTime: clock.MustParse("13:00"), SlotDuration: 30,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.SaveTemplate(ctx, tpl, nil, event(t, outbox.TypeAvailabilityChanged, tpl.ID)); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}
	got, err := s.GetTemplate(ctx, tpl.ID)
	if err != nil || got.StartTime != tpl.StartTime || got.DayOfWeek != time.Monday {
		t.Fatalf("GetTemplate: %+v %v", got, err)
	}
	rejected := errors.New("rejected")
	if err := s.SaveTemplate(ctx, tpl, func([]model.Template) error { return rejected }, outbox.Event{}); !errors.Is(err, rejected) {
		t.Fatalf("expected check error to surface, got %v", err)
	}

	start, end := clock.MustParse("11:00"), clock.MustParse("11:30")
	block := model.Block{ID: uuid.NewString(), ProfessionalID: prof, Date: day, StartTime: &start, EndTime: &end, Reason: "meeting", CreatedAt: now}
	if err := s.CreateBlock(ctx, block, event(t, outbox.TypeAvailabilityChanged, block.ID)); err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	blocks, err := s.ListBlocks(ctx, prof, day, day)
	if err != nil || len(blocks) != 1 || blocks[0].EndTime == nil || *blocks[0].EndTime != end {
		t.Fatalf("ListBlocks: %+v %v", blocks, err)
	}

	appt := model.Appointment{
		ID: uuid.NewString(), ProfessionalID: prof, PatientID: "patient-1", Date: day,
		StartTime: clock.MustParse("10:00"), Duration: 30, Status: model.StatusScheduled,
		Type: model.TypeFirstVisit, CreatedAt: now, UpdatedAt: now,
	}
	var seen model.Snapshot
	err = s.BookAppointment(ctx, appt, func(snap model.Snapshot) error {
		seen = snap
		return nil
	}, event(t, outbox.TypeAppointmentBooked, appt.ID))
	if err != nil {
		t.Fatalf("BookAppointment: %v", err)
	}
	if len(seen.Templates) != 1 || len(seen.Blocks) != 1 {
		t.Fatalf("booking check saw %d templates, %d blocks", len(seen.Templates), len(seen.Blocks))
	}

	snap, err := s.Snapshot(ctx, prof, day, day)
	if err != nil || len(snap.Appointments) != 1 || snap.Appointments[0].ID != appt.ID {
		t.Fatalf("Snapshot: %+v %v", snap, err)
	}

	cancelled, err := s.UpdateAppointment(ctx, appt.ID, func(cur model.Appointment, load model.SnapshotLoader) (model.Appointment, outbox.Event, error) {
		if _, err := load(cur.ProfessionalID, cur.Date); err != nil {
			return model.Appointment{}, outbox.Event{}, err
		}
		at := now
		cur.Status, cur.CancelledAt, cur.CancelledBy = model.StatusCancelled, &at, "reception"
		return cur, event(t, outbox.TypeAppointmentStatus, cur.ID), nil
	})
	if err != nil || cancelled.Status != model.StatusCancelled {
		t.Fatalf("UpdateAppointment: %+v %v", cancelled, err)
	}
	if snap, _ := s.Snapshot(ctx, prof, day, day); len(snap.Appointments) != 0 {
		t.Fatalf("cancelled appointment must not appear in the occupancy snapshot")
	}
	stats, err := s.CountByStatus(ctx, prof, day, day)
	if err != nil || stats[model.StatusCancelled] != 1 {
		t.Fatalf("CountByStatus: %v %v", stats, err)
	}
	list, err := s.ListAppointments(ctx, model.AppointmentFilter{ProfessionalID: prof, Status: model.StatusCancelled})
	if err != nil || len(list) != 1 || list[0].CancelledBy != "reception" {
		t.Fatalf("ListAppointments: %+v %v", list, err)
	}

	if _, err := s.GetAppointment(ctx, uuid.NewString()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteBlock(ctx, block.ID, event(t, outbox.TypeAvailabilityChanged, block.ID)); err != nil {
		t.Fatalf("DeleteBlock: %v", err)
	}
	if err := s.DeleteTemplate(ctx, uuid.NewString(), outbox.Event{}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting unknown template, got %v", err)
	}

	relayed := map[string]bool{}
	for {
		n, err := s.Relay(ctx, 10, func(_ context.Context, recs []outbox.Record) error {
			for _, r := range recs {
				relayed[r.EventType] = true
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Relay: %v", err)
		}
		if n == 0 {
			break
		}
	}
	for _, typ := range []string{outbox.TypeAvailabilityChanged, outbox.TypeAppointmentBooked, outbox.TypeAppointmentStatus} {
		if !relayed[typ] {
			t.Fatalf("expected %s to be relayed", typ)
		}
	}
}

func TestMemory_BlocksRange(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	end := civil.Date{Year: 2024, Month: 1, Day: 10}
	_ = m.CreateBlock(ctx, model.Block{ID: "span", ProfessionalID: "p", Date: civil.Date{Year: 2024, Month: 1, Day: 5}, EndDate: &end, Reason: "x"}, outbox.Event{})
	_ = m.CreateBlock(ctx, model.Block{ID: "yearly", ProfessionalID: "p", Date: civil.Date{Year: 2020, Month: 1, Day: 8}, Reason: "x", RecurringYearly: true}, outbox.Event{})
	_ = m.CreateBlock(ctx, model.Block{ID: "old", ProfessionalID: "p", Date: civil.Date{Year: 2020, Month: 1, Day: 8}, Reason: "x"}, outbox.Event{})

	got, _ := m.ListBlocks(ctx, "p", civil.Date{Year: 2024, Month: 1, Day: 8}, civil.Date{Year: 2024, Month: 1, Day: 8})
	if len(got) != 2 || got[0].ID != "yearly" || got[1].ID != "span" {
		t.Fatalf("unexpected blocks %+v", got)
	}
}

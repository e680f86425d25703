package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
)

// Memory is a process-local store for tests and single-instance runs. One
// mutex serialises every write, which gives the same guarantees the Postgres
// store gets from its advisory locks.
type Memory struct {
	mu           sync.Mutex
	templates    map[string]model.Template
	blocks       map[string]model.Block
	appointments map[string]model.Appointment
	events       []outbox.Record
	nextEventID  int64
	published    map[int64]bool
	now          func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		templates:    map[string]model.Template{},
		blocks:       map[string]model.Block{},
		appointments: map[string]model.Appointment{},
		published:    map[int64]bool{},
		now:          time.Now,
	}
}

func (m *Memory) Snapshot(_ context.Context, professionalID string, from, to civil.Date) (model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(professionalID, from, to, true), nil
}

func (m *Memory) snapshotLocked(professionalID string, from, to civil.Date, occupyingOnly bool) model.Snapshot {
	snap := model.Snapshot{ProfessionalID: professionalID, From: from, To: to}
	for _, t := range m.templates {
		if t.ProfessionalID == professionalID {
			snap.Templates = append(snap.Templates, t)
		}
	}
	snap.Blocks = m.blocksLocked(professionalID, from, to)
	f := model.AppointmentFilter{ProfessionalID: professionalID, From: &from, To: &to}
	for _, a := range m.appointments {
		if f.Matches(a) && (!occupyingOnly || a.Occupies()) {
			snap.Appointments = append(snap.Appointments, a)
		}
	}
	sortTemplates(snap.Templates)
	sortAppointments(snap.Appointments)
	return snap
}

func (m *Memory) ListTemplates(_ context.Context, professionalID string) ([]model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Template
	for _, t := range m.templates {
		if t.ProfessionalID == professionalID {
			out = append(out, t)
		}
	}
	sortTemplates(out)
	return out, nil
}

func (m *Memory) GetTemplate(_ context.Context, id string) (model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return model.Template{}, model.ErrNotFound
	}
	return t, nil
}

func (m *Memory) SaveTemplate(_ context.Context, t model.Template, check func(existing []model.Template) error, evt outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if check != nil {
		var existing []model.Template
		for _, o := range m.templates {
			if o.ProfessionalID == t.ProfessionalID {
				existing = append(existing, o)
			}
		}
		sortTemplates(existing)
		if err := check(existing); err != nil {
			return err
		}
	}
	m.templates[t.ID] = t
	m.appendEventLocked(evt)
	return nil
}

func (m *Memory) DeleteTemplate(_ context.Context, id string, evt outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.templates, id)
	m.appendEventLocked(evt)
	return nil
}

func (m *Memory) blocksLocked(professionalID string, from, to civil.Date) []model.Block {
	var out []model.Block
	for _, b := range m.blocks {
		if b.ProfessionalID != professionalID || b.Date.After(to) {
			continue
		}
		if b.LastDate().Before(from) && !b.RecurringYearly {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) ListBlocks(_ context.Context, professionalID string, from, to civil.Date) ([]model.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocksLocked(professionalID, from, to), nil
}

func (m *Memory) GetBlock(_ context.Context, id string) (model.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blocks[id]
	if !ok {
		return model.Block{}, model.ErrNotFound
	}
	return b, nil
}

func (m *Memory) CreateBlock(_ context.Context, b model.Block, evt outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[b.ID] = b
	m.appendEventLocked(evt)
	return nil
}

func (m *Memory) DeleteBlock(_ context.Context, id string, evt outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocks[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.blocks, id)
	m.appendEventLocked(evt)
	return nil
}

func (m *Memory) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (m *Memory) ListAppointments(_ context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appointments {
		if f.Matches(a) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) CountByStatus(_ context.Context, professionalID string, from, to civil.Date) (map[model.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := model.AppointmentFilter{ProfessionalID: professionalID, From: &from, To: &to}
	out := map[model.Status]int{}
	for _, a := range m.appointments {
		if f.Matches(a) {
			out[a.Status]++
		}
	}
	return out, nil
}

func (m *Memory) BookAppointment(_ context.Context, a model.Appointment, check func(model.Snapshot) error, evt outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := check(m.snapshotLocked(a.ProfessionalID, a.Date, a.Date, true)); err != nil {
		return err
	}
	m.appointments[a.ID] = a
	m.appendEventLocked(evt)
	return nil
}

func (m *Memory) UpdateAppointment(_ context.Context, id string, fn func(current model.Appointment, load model.SnapshotLoader) (model.Appointment, outbox.Event, error)) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	load := func(professionalID string, date civil.Date) (model.Snapshot, error) {
		return m.snapshotLocked(professionalID, date, date, true), nil
	}
	next, evt, err := fn(current, load)
	if err != nil {
		return model.Appointment{}, err
	}
	m.appointments[id] = next
	m.appendEventLocked(evt)
	return next, nil
}

func (m *Memory) appendEventLocked(evt outbox.Event) {
	if evt.EventType == "" {
		return
	}
	m.nextEventID++
	m.events = append(m.events, outbox.Record{
		ID:            m.nextEventID,
		EventID:       evt.EventID,
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Payload:       evt.Payload,
		CreatedAt:     m.now(),
	})
}

// Relay implements outbox.Source. fn runs under the store lock, so it must
// not call back into the store.
func (m *Memory) Relay(ctx context.Context, limit int, fn func(context.Context, []outbox.Record) error) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var batch []outbox.Record
	for _, r := range m.events {
		if len(batch) >= limit {
			break
		}
		if !m.published[r.ID] {
			batch = append(batch, r)
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}
	for _, r := range batch {
		m.published[r.ID] = true
	}
	return len(batch), nil
}

// Events returns every recorded outbox event in write order.
func (m *Memory) Events() []outbox.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outbox.Record(nil), m.events...)
}

func sortTemplates(ts []model.Template) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].DayOfWeek != ts[j].DayOfWeek {
			return ts[i].DayOfWeek < ts[j].DayOfWeek
		}
		if ts[i].StartTime != ts[j].StartTime {
			return ts[i].StartTime < ts[j].StartTime
		}
		return ts[i].ID < ts[j].ID
	})
}

func sortAppointments(as []model.Appointment) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].Date != as[j].Date {
			return as[i].Date.Before(as[j].Date)
		}
		if as[i].StartTime != as[j].StartTime {
			return as[i].StartTime < as[j].StartTime
		}
		return as[i].ID < as[j].ID
	})
}

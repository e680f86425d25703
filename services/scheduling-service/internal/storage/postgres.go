package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
)

const sqlStateExclusionViolation = "23P01"

var occupyingStatuses = []string{
	string(model.StatusScheduled),
	string(model.StatusConfirmed),
	string(model.StatusInProgress),
}

// Postgres is the pgx-backed store. Reads that feed the resolver run in one
// REPEATABLE READ transaction; writes that must pass the booking guard take a
// per-professional-per-day advisory lock before re-reading the day.
type Postgres struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool, outbox: outbox.NewRepository(pool)}
}

// Outbox exposes the relay source for the publisher.
func (s *Postgres) Outbox() *outbox.Repository { return s.outbox }

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Postgres) Snapshot(ctx context.Context, professionalID string, from, to civil.Date) (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.pool.InTx(ctx, db.SnapshotTx, func(tx pgx.Tx) error {
		var err error
		snap, err = loadSnapshot(ctx, tx, professionalID, from, to)
		return err
	})
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return snap, nil
}

func loadSnapshot(ctx context.Context, q querier, professionalID string, from, to civil.Date) (model.Snapshot, error) {
	snap := model.Snapshot{ProfessionalID: professionalID, From: from, To: to}
	var err error
	if snap.Templates, err = listTemplates(ctx, q, professionalID); err != nil {
		return snap, err
	}
	if snap.Blocks, err = listBlocks(ctx, q, professionalID, from, to); err != nil {
		return snap, err
	}
	f := model.AppointmentFilter{ProfessionalID: professionalID, From: &from, To: &to}
	if snap.Appointments, err = listAppointments(ctx, q, f, true); err != nil {
		return snap, err
	}
	return snap, nil
}

func lockDay(ctx context.Context, tx pgx.Tx, professionalID string, date civil.Date) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, professionalID+"|"+date.String())
	return err
}

func lockProfessional(ctx context.Context, tx pgx.Tx, professionalID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "templates|"+professionalID)
	return err
}

// Templates

const templateColumns = `id, professional_id, day_of_week, start_minute, end_minute, slot_duration,
	is_active, valid_from, valid_until, notes, created_at, updated_at`

func scanTemplate(row pgx.Row) (model.Template, error) {
	var t model.Template
	var day, start, end int
	var validFrom, validUntil *time.Time
	err := row.Scan(&t.ID, &t.ProfessionalID, &day, &start, &end, &t.SlotDuration,
		&t.IsActive, &validFrom, &validUntil, &t.Notes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Template{}, err
	}
	t.DayOfWeek = time.Weekday(day)
	t.StartTime, t.EndTime = clock.Time(start), clock.Time(end)
	t.ValidFrom, t.ValidUntil = datePtr(validFrom), datePtr(validUntil)
	return t, nil
}

func listTemplates(ctx context.Context, q querier, professionalID string) ([]model.Template, error) {
	rows, err := q.Query(ctx, `
		SELECT `+templateColumns+`
		FROM schedule_templates
		WHERE professional_id = $1
		ORDER BY day_of_week, start_minute, id
	`, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Postgres) ListTemplates(ctx context.Context, professionalID string) ([]model.Template, error) {
	return listTemplates(ctx, s.pool, professionalID)
}

func (s *Postgres) GetTemplate(ctx context.Context, id string) (model.Template, error) {
	t, err := scanTemplate(s.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM schedule_templates WHERE id = $1`, id))
	return t, mapErr(err)
}

// SaveTemplate inserts or replaces t. check sees every other template of the
// professional while the professional's template lock is held.
func (s *Postgres) SaveTemplate(ctx context.Context, t model.Template, check func(existing []model.Template) error, evt outbox.Event) error {
	err := s.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := lockProfessional(ctx, tx, t.ProfessionalID); err != nil {
			return err
		}
		existing, err := listTemplates(ctx, tx, t.ProfessionalID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(existing); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO schedule_templates (`+templateColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				day_of_week = EXCLUDED.day_of_week,
				start_minute = EXCLUDED.start_minute,
				end_minute = EXCLUDED.end_minute,
				slot_duration = EXCLUDED.slot_duration,
				is_active = EXCLUDED.is_active,
				valid_from = EXCLUDED.valid_from,
				valid_until = EXCLUDED.valid_until,
				notes = EXCLUDED.notes,
				updated_at = EXCLUDED.updated_at
		`, t.ID, t.ProfessionalID, int(t.DayOfWeek), t.StartTime.Minutes(), t.EndTime.Minutes(), t.SlotDuration,
			t.IsActive, dateArg(t.ValidFrom), dateArg(t.ValidUntil), t.Notes, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
	return mapErr(err)
}

func (s *Postgres) DeleteTemplate(ctx context.Context, id string, evt outbox.Event) error {
	err := s.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM schedule_templates WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return model.ErrNotFound
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
	return mapErr(err)
}

// Blocks

const blockColumns = `id, professional_id, block_date, end_date, start_minute, end_minute, reason, recurring_yearly, created_at`

func scanBlock(row pgx.Row) (model.Block, error) {
	var b model.Block
	var date time.Time
	var endDate *time.Time
	var start, end *int
	err := row.Scan(&b.ID, &b.ProfessionalID, &date, &endDate, &start, &end, &b.Reason, &b.RecurringYearly, &b.CreatedAt)
	if err != nil {
		return model.Block{}, err
	}
	b.Date = civil.DateOf(date)
	b.EndDate = datePtr(endDate)
	if start != nil && end != nil {
		st, en := clock.Time(*start), clock.Time(*end)
		b.StartTime, b.EndTime = &st, &en
	}
	return b, nil
}

// listBlocks returns blocks that may cover a date in [from, to]. Yearly
// blocks that started before to are always included; Covers decides.
func listBlocks(ctx context.Context, q querier, professionalID string, from, to civil.Date) ([]model.Block, error) {
	rows, err := q.Query(ctx, `
		SELECT `+blockColumns+`
		FROM schedule_blocks
		WHERE professional_id = $1
			AND block_date <= $3
			AND (COALESCE(end_date, block_date) >= $2 OR recurring_yearly)
		ORDER BY block_date, start_minute NULLS FIRST, id
	`, professionalID, dateArg(&from), dateArg(&to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Postgres) ListBlocks(ctx context.Context, professionalID string, from, to civil.Date) ([]model.Block, error) {
	return listBlocks(ctx, s.pool, professionalID, from, to)
}

func (s *Postgres) GetBlock(ctx context.Context, id string) (model.Block, error) {
	b, err := scanBlock(s.pool.QueryRow(ctx, `SELECT `+blockColumns+` FROM schedule_blocks WHERE id = $1`, id))
	return b, mapErr(err)
}

func (s *Postgres) CreateBlock(ctx context.Context, b model.Block, evt outbox.Event) error {
	var start, end *int
	if iv, ok := b.Interval(); ok {
		st, en := iv.Start.Minutes(), iv.End.Minutes()
		start, end = &st, &en
	}
	err := s.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO schedule_blocks (`+blockColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, b.ID, b.ProfessionalID, dateArg(&b.Date), dateArg(b.EndDate), start, end, b.Reason, b.RecurringYearly, b.CreatedAt); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
	return mapErr(err)
}

func (s *Postgres) DeleteBlock(ctx context.Context, id string, evt outbox.Event) error {
	err := s.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM schedule_blocks WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return model.ErrNotFound
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
	return mapErr(err)
}

// Appointments

const appointmentColumns = `id, professional_id, patient_id, appt_date, start_minute, duration_minutes, status,
	appt_type, reason, notes, observations, created_by, created_at, updated_at, cancelled_at, cancelled_by, cancellation_reason`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var date time.Time
	var start int
	var status, typ string
	err := row.Scan(&a.ID, &a.ProfessionalID, &a.PatientID, &date, &start, &a.Duration, &status,
		&typ, &a.Reason, &a.Notes, &a.Observations, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt, &a.CancelledAt, &a.CancelledBy, &a.CancellationReason)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Date = civil.DateOf(date)
	a.StartTime = clock.Time(start)
	a.Status = model.Status(status)
	a.Type = model.AppointmentType(typ)
	return a, nil
}

func listAppointments(ctx context.Context, q querier, f model.AppointmentFilter, occupyingOnly bool) ([]model.Appointment, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.ProfessionalID != "" {
		add("professional_id = ?", f.ProfessionalID)
	}
	if f.PatientID != "" {
		add("patient_id = ?", f.PatientID)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.Type != "" {
		add("appt_type = ?", string(f.Type))
	}
	if f.From != nil {
		add("appt_date >= ?", dateArg(f.From))
	}
	if f.To != nil {
		add("appt_date <= ?", dateArg(f.To))
	}
	if occupyingOnly {
		add("status = ANY(?)", occupyingStatuses)
	}
	sql := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY appt_date, start_minute, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Postgres) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
	return listAppointments(ctx, s.pool, f, false)
}

func (s *Postgres) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	return a, mapErr(err)
}

func (s *Postgres) CountByStatus(ctx context.Context, professionalID string, from, to civil.Date) (map[model.Status]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, count(*)
		FROM appointments
		WHERE professional_id = $1 AND appt_date BETWEEN $2 AND $3
		GROUP BY status
	`, professionalID, dateArg(&from), dateArg(&to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[model.Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[model.Status(status)] = n
	}
	return out, rows.Err()
}

// BookAppointment serialises bookings for the professional's day, re-reads
// the day, runs check and inserts a. The exclusion constraint backs this up.
func (s *Postgres) BookAppointment(ctx context.Context, a model.Appointment, check func(model.Snapshot) error, evt outbox.Event) error {
	err := s.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := lockDay(ctx, tx, a.ProfessionalID, a.Date); err != nil {
			return err
		}
		snap, err := loadSnapshot(ctx, tx, a.ProfessionalID, a.Date, a.Date)
		if err != nil {
			return err
		}
		if err := check(snap); err != nil {
			return err
		}
		if err := insertAppointment(ctx, tx, a); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
	return mapConflict(err, a)
}

// UpdateAppointment locks the row and hands it to fn. The loader passed to fn
// takes the day lock before reading, so fn can run the guard for a new time.
func (s *Postgres) UpdateAppointment(ctx context.Context, id string, fn func(current model.Appointment, load model.SnapshotLoader) (model.Appointment, outbox.Event, error)) (model.Appointment, error) {
	var updated model.Appointment
	err := s.pool.InTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		current, err := scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		load := func(professionalID string, date civil.Date) (model.Snapshot, error) {
			if err := lockDay(ctx, tx, professionalID, date); err != nil {
				return model.Snapshot{}, err
			}
			return loadSnapshot(ctx, tx, professionalID, date, date)
		}
		next, evt, err := fn(current, load)
		if err != nil {
			return err
		}
		updated = next
		if _, err := tx.Exec(ctx, `
			UPDATE appointments SET
				appt_date = $2, start_minute = $3, duration_minutes = $4, starts_at = $5, ends_at = $6,
				status = $7, notes = $8, updated_at = $9, cancelled_at = $10, cancelled_by = $11,
				cancellation_reason = $12, appt_type = $13, reason = $14, observations = $15
			WHERE id = $1
		`, next.ID, dateArg(&next.Date), next.StartTime.Minutes(), next.Duration, startsAt(next), endsAt(next),
			string(next.Status), next.Notes, next.UpdatedAt, next.CancelledAt, next.CancelledBy, next.CancellationReason,
			string(next.Type), next.Reason, next.Observations); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		return model.Appointment{}, mapConflict(err, updated)
	}
	return updated, nil
}

func insertAppointment(ctx context.Context, tx pgx.Tx, a model.Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, a.ID, a.ProfessionalID, a.PatientID, dateArg(&a.Date), a.StartTime.Minutes(), a.Duration, string(a.Status),
		string(a.Type), a.Reason, a.Notes, a.Observations, a.CreatedBy, a.CreatedAt, a.UpdatedAt, a.CancelledAt, a.CancelledBy, a.CancellationReason,
		startsAt(a), endsAt(a))
	return err
}

func startsAt(a model.Appointment) time.Time {
	return a.Date.In(time.UTC).Add(time.Duration(a.StartTime.Minutes()) * time.Minute)
}

func endsAt(a model.Appointment) time.Time {
	return startsAt(a).Add(time.Duration(a.Duration) * time.Minute)
}

func dateArg(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}

func datePtr(t *time.Time) *civil.Date {
	if t == nil {
		return nil
	}
	d := civil.DateOf(*t)
	return &d
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

// mapConflict turns an exclusion violation into the same ConflictError the
// guard would have returned.
func mapConflict(err error, a model.Appointment) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlStateExclusionViolation {
		return &model.ConflictError{
			Date:   a.Date,
			Time:   a.StartTime,
			Status: model.SlotBusy,
			Reason: "overlaps another appointment",
		}
	}
	return mapErr(err)
}

package model

import (
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
)

func date(y int, m time.Month, d int) civil.Date { return civil.Date{Year: y, Month: m, Day: d} }

func timePtr(s string) *clock.Time {
	t := clock.MustParse(s)
	return &t
}

func TestStatusMachine(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusScheduled, StatusConfirmed}:  true,
		{StatusConfirmed, StatusInProgress}: true,
		{StatusInProgress, StatusCompleted}: true,
		{StatusScheduled, StatusCancelled}:  true,
		{StatusConfirmed, StatusCancelled}:  true,
		{StatusScheduled, StatusNoShow}:     true,
		{StatusConfirmed, StatusNoShow}:     true,
	}
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			err := CheckTransition(from, to)
			if allowed[[2]Status{from, to}] {
				if err != nil {
					t.Fatalf("%s -> %s should be allowed: %v", from, to, err)
				}
				continue
			}
			var ite *InvalidTransitionError
			if !errors.As(err, &ite) || !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s -> %s should be rejected, got %v", from, to, err)
			}
		}
	}
}

func TestCompletedToScheduledRejected(t *testing.T) {
	err := CheckTransition(StatusCompleted, StatusScheduled)
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) || ite.From != StatusCompleted || ite.To != StatusScheduled {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestOccupyingStatuses(t *testing.T) {
	for _, s := range AllStatuses {
		want := s == StatusScheduled || s == StatusConfirmed || s == StatusInProgress
		if s.Occupies() != want {
			t.Fatalf("%s.Occupies() = %v", s, s.Occupies())
		}
		if s.Terminal() == want {
			t.Fatalf("%s terminal/occupying mismatch", s)
		}
	}
}

func TestTemplateValidate(t *testing.T) {
	base := Template{
		ProfessionalID: "p1",
		DayOfWeek:      time.Monday,
		StartTime:      clock.MustParse("09:00"),
		EndTime:        clock.MustParse("13:00"),
		SlotDuration:   30,
		IsActive:       true,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid template: %v", err)
	}

	bad := base
	bad.EndTime = base.StartTime
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty window, got %v", err)
	}
	bad = base
	bad.SlotDuration = 0
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for zero slot, got %v", err)
	}
	bad = base
	bad.DayOfWeek = 7
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for day 7, got %v", err)
	}
}

func TestTemplateAppliesOnAndCollides(t *testing.T) {
	from := date(2024, 1, 8)
	tpl := Template{ID: "a", ProfessionalID: "p1", DayOfWeek: time.Monday, StartTime: clock.MustParse("09:00"), EndTime: clock.MustParse("13:00"), SlotDuration: 30, IsActive: true, ValidFrom: &from}

	if tpl.AppliesOn(date(2024, 1, 1)) {
		t.Fatalf("template must not apply before valid_from")
	}
	if !tpl.AppliesOn(date(2024, 1, 8)) || tpl.AppliesOn(date(2024, 1, 9)) {
		t.Fatalf("template must apply on Mondays only")
	}

	other := tpl
	other.ID = "b"
	other.StartTime, other.EndTime = clock.MustParse("12:00"), clock.MustParse("14:00")
	if !tpl.Collides(other) {
		t.Fatalf("expected overlapping windows to collide")
	}
	other.StartTime = clock.MustParse("13:00")
	if tpl.Collides(other) {
		t.Fatalf("adjacent windows must not collide")
	}
	until := date(2024, 1, 1)
	other.StartTime, other.ValidFrom, other.ValidUntil = clock.MustParse("10:00"), nil, &until
	if tpl.Collides(other) {
		t.Fatalf("disjoint validity must not collide")
	}
}

func TestBlockValidateAndCovers(t *testing.T) {
	b := Block{ProfessionalID: "p1", Date: date(2024, 1, 1), Reason: "meeting", StartTime: timePtr("11:00")}
	if err := b.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("start without end must be rejected, got %v", err)
	}
	b.EndTime = timePtr("10:00")
	if err := b.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("end before start must be rejected, got %v", err)
	}
	b.EndTime = timePtr("11:30")
	if err := b.Validate(); err != nil {
		t.Fatalf("expected valid partial block: %v", err)
	}
	if b.IsFullDay() {
		t.Fatalf("partial block reported as full day")
	}

	end := date(2024, 12, 31)
	vacation := Block{ProfessionalID: "p1", Date: date(2024, 12, 24), EndDate: &end, Reason: "holidays", RecurringYearly: true}
	for _, d := range []civil.Date{date(2024, 12, 24), date(2024, 12, 31), date(2025, 12, 26), date(2030, 12, 24)} {
		if !vacation.Covers(d) {
			t.Fatalf("expected %s covered", d)
		}
	}
	for _, d := range []civil.Date{date(2024, 12, 23), date(2025, 1, 1), date(2023, 12, 25)} {
		if vacation.Covers(d) {
			t.Fatalf("expected %s not covered", d)
		}
	}

	newYear := date(2025, 1, 2)
	span := Block{ProfessionalID: "p1", Date: date(2024, 12, 30), EndDate: &newYear, Reason: "x", RecurringYearly: true}
	if !span.Covers(date(2026, 1, 1)) || !span.Covers(date(2025, 12, 31)) || span.Covers(date(2025, 1, 3)) {
		t.Fatalf("year-crossing yearly block coverage wrong")
	}
}

func TestAppointmentValidate(t *testing.T) {
	a := Appointment{ProfessionalID: "p1", PatientID: "pt1", Date: date(2024, 1, 1), StartTime: clock.MustParse("23:30"), Duration: 45}
	var ve *ValidationError
	if err := a.Validate(); !errors.As(err, &ve) || ve.Field != "duration_minutes" {
		t.Fatalf("expected duration validation error, got %v", err)
	}
	a.Duration = 29
	if err := a.Validate(); err != nil {
		t.Fatalf("expected valid appointment: %v", err)
	}
	if a.EndTime() != clock.MustParse("23:59") {
		t.Fatalf("unexpected end %s", a.EndTime())
	}
}

func TestConflictErrorIs(t *testing.T) {
	err := error(&ConflictError{Date: date(2024, 1, 1), Time: clock.MustParse("10:00"), Status: SlotBusy, OccupantRef: "a1"})
	if !errors.Is(err, ErrConflict) || errors.Is(err, ErrValidation) {
		t.Fatalf("errors.Is mismatch for %v", err)
	}
}

func TestYearlyLeapDayBlockFallsOnFeb28(t *testing.T) {
	b := Block{ProfessionalID: "p1", Date: date(2024, 2, 29), Reason: "anniversary", RecurringYearly: true}
	if !b.Covers(date(2025, 2, 28)) || !b.Covers(date(2028, 2, 29)) {
		t.Fatalf("expected Feb 28 in common years and Feb 29 in leap years")
	}
	if b.Covers(date(2025, 3, 1)) || b.Covers(date(2028, 2, 28)) {
		t.Fatalf("leap-day block spilled onto a neighbouring day")
	}
}

func TestBlockCoversAny(t *testing.T) {
	end := date(2020, 7, 14)
	summer := Block{ProfessionalID: "p1", Date: date(2020, 7, 1), EndDate: &end, Reason: "summer", RecurringYearly: true}
	if summer.CoversAny(date(2025, 1, 1), date(2025, 1, 31)) {
		t.Fatalf("July block must not apply to January")
	}
	if !summer.CoversAny(date(2025, 6, 25), date(2025, 7, 2)) {
		t.Fatalf("expected overlap with 2025 occurrence")
	}
	if !summer.CoversAny(date(2025, 8, 1), date(2026, 8, 1)) {
		t.Fatalf("a full-year window holds an occurrence")
	}
	if summer.CoversAny(date(2019, 7, 1), date(2019, 7, 31)) {
		t.Fatalf("no occurrence before the first year")
	}

	once := Block{ProfessionalID: "p1", Date: date(2024, 3, 1), Reason: "x"}
	if once.CoversAny(date(2025, 3, 1), date(2025, 3, 1)) || !once.CoversAny(date(2024, 2, 1), date(2024, 3, 1)) {
		t.Fatalf("one-off block coverage wrong")
	}
}

package availability

import (
	"fmt"
	"testing"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

func TestOccupantAt(t *testing.T) {
	idx := NewOccupancy([]model.Appointment{
		appt("late", "11:00", 30, model.StatusScheduled),
		appt("early", "09:00", 30, model.StatusConfirmed),
		appt("gone", "10:00", 30, model.StatusCancelled),
	})
	cases := map[string]string{
		"09:00": "early",
		"09:29": "early",
		"09:30": "",
		"10:00": "",
		"11:15": "late",
		"11:30": "",
	}
	for at, want := range cases {
		got, ok := idx.OccupantAt(prof, monday, clock.MustParse(at))
		if (want == "") == ok || got.ID != want {
			t.Fatalf("OccupantAt(%s) = %q, %v; want %q", at, got.ID, ok, want)
		}
	}
	if _, ok := idx.OccupantAt("other", monday, clock.MustParse("09:00")); ok {
		t.Fatalf("other professional must not see prof-1 appointments")
	}
}

func TestOccupancy_LongRowBehindShortOnes(t *testing.T) {
	// A long legacy row is followed by short ones that end earlier; the
	// running max end must still find it.
	idx := NewOccupancy([]model.Appointment{
		appt("long", "09:00", 180, model.StatusScheduled),
		appt("s1", "09:30", 10, model.StatusScheduled),
		appt("s2", "10:00", 10, model.StatusScheduled),
	})
	got, ok := idx.OccupantAt(prof, monday, clock.MustParse("11:00"))
	if !ok || got.ID != "long" {
		t.Fatalf("expected long, got %q %v", got.ID, ok)
	}
	over := idx.Overlapping(prof, monday, clock.Interval{Start: clock.MustParse("09:35"), End: clock.MustParse("10:05")}, "long")
	if len(over) != 2 || over[0].ID != "s1" || over[1].ID != "s2" {
		t.Fatalf("unexpected overlap %v", over)
	}
}

func TestOccupancy_ManyAppointments(t *testing.T) {
	var appts []model.Appointment
	for i := 0; i < 96; i++ {
		appts = append(appts, appt(fmt.Sprintf("a%02d", i), clock.Time(i*15).String(), 15, model.StatusScheduled))
	}
	idx := NewOccupancy(appts)
	for i := 0; i < 96; i++ {
		at := clock.Time(i*15 + 7)
		got, ok := idx.OccupantAt(prof, monday, at)
		if !ok || got.ID != fmt.Sprintf("a%02d", i) {
			t.Fatalf("OccupantAt(%s) = %q", at, got.ID)
		}
	}
}

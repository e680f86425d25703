package availability

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

// Occupancy indexes occupying appointments per professional and date. Each
// day is sorted by start time and carries a running maximum of end times, so
// a point or range lookup is a binary search plus a short backwards walk
// that stops as soon as no earlier appointment can reach the query.
type Occupancy struct {
	days map[dayKey]*dayIndex
}

type dayKey struct {
	professionalID string
	date           civil.Date
}

type dayIndex struct {
	appts  []model.Appointment
	ends   []clock.Time
	maxEnd []clock.Time
}

// NewOccupancy ignores non-occupying appointments and any id in exclude.
func NewOccupancy(appts []model.Appointment, exclude ...string) *Occupancy {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		if id != "" {
			skip[id] = struct{}{}
		}
	}
	o := &Occupancy{days: map[dayKey]*dayIndex{}}
	for _, a := range appts {
		if !a.Occupies() {
			continue
		}
		if _, ok := skip[a.ID]; ok {
			continue
		}
		k := dayKey{a.ProfessionalID, a.Date}
		d := o.days[k]
		if d == nil {
			d = &dayIndex{}
			o.days[k] = d
		}
		d.appts = append(d.appts, a)
	}
	for _, d := range o.days {
		d.build()
	}
	return o
}

func (d *dayIndex) build() {
	sort.SliceStable(d.appts, func(i, j int) bool {
		if d.appts[i].StartTime != d.appts[j].StartTime {
			return d.appts[i].StartTime < d.appts[j].StartTime
		}
		return d.appts[i].ID < d.appts[j].ID
	})
	d.ends = make([]clock.Time, len(d.appts))
	d.maxEnd = make([]clock.Time, len(d.appts))
	for i, a := range d.appts {
		d.ends[i] = a.EndTime()
		d.maxEnd[i] = d.ends[i]
		if i > 0 && d.maxEnd[i-1] > d.maxEnd[i] {
			d.maxEnd[i] = d.maxEnd[i-1]
		}
	}
}

// OccupantAt returns the occupying appointment whose interval contains at.
// When legacy rows overlap, the earliest-starting one wins.
func (o *Occupancy) OccupantAt(professionalID string, date civil.Date, at clock.Time) (model.Appointment, bool) {
	found := o.scan(professionalID, date, clock.Interval{Start: at, End: at + 1})
	if len(found) == 0 {
		return model.Appointment{}, false
	}
	return found[0], true
}

// Overlapping returns occupying appointments intersecting window, by start
// time. excludeID is skipped.
func (o *Occupancy) Overlapping(professionalID string, date civil.Date, window clock.Interval, excludeID string) []model.Appointment {
	found := o.scan(professionalID, date, window)
	if excludeID == "" {
		return found
	}
	out := found[:0]
	for _, a := range found {
		if a.ID != excludeID {
			out = append(out, a)
		}
	}
	return out
}

// OnDate returns the occupying appointments of a day in start order.
func (o *Occupancy) OnDate(professionalID string, date civil.Date) []model.Appointment {
	d := o.days[dayKey{professionalID, date}]
	if d == nil {
		return nil
	}
	return append([]model.Appointment(nil), d.appts...)
}

func (o *Occupancy) scan(professionalID string, date civil.Date, window clock.Interval) []model.Appointment {
	d := o.days[dayKey{professionalID, date}]
	if d == nil || window.Empty() {
		return nil
	}
	// Candidates start before window.End.
	hi := sort.Search(len(d.appts), func(i int) bool { return d.appts[i].StartTime >= window.End })

	var found []model.Appointment
	for j := hi - 1; j >= 0 && d.maxEnd[j] > window.Start; j-- {
		if d.ends[j] > window.Start {
			found = append(found, d.appts[j])
		}
	}
	for i, k := 0, len(found)-1; i < k; i, k = i+1, k-1 {
		found[i], found[k] = found[k], found[i]
	}
	return found
}

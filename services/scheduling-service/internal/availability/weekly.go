package availability

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

// Weekly indexes active templates by professional and weekday.
type Weekly struct {
	byDay map[weeklyKey][]model.Template
}

type weeklyKey struct {
	professionalID string
	day            time.Weekday
}

func NewWeekly(templates []model.Template) *Weekly {
	w := &Weekly{byDay: map[weeklyKey][]model.Template{}}
	for _, t := range templates {
		if !t.IsActive {
			continue
		}
		k := weeklyKey{t.ProfessionalID, t.DayOfWeek}
		w.byDay[k] = append(w.byDay[k], t)
	}
	for _, list := range w.byDay {
		sortTemplates(list)
	}
	return w
}

// TemplatesFor returns the active templates for a weekday ordered by start
// time, then id.
func (w *Weekly) TemplatesFor(professionalID string, day time.Weekday) []model.Template {
	return w.byDay[weeklyKey{professionalID, day}]
}

// TemplatesOn narrows TemplatesFor to the templates in effect on date.
func (w *Weekly) TemplatesOn(professionalID string, date civil.Date) []model.Template {
	var out []model.Template
	for _, t := range w.TemplatesFor(professionalID, clock.Weekday(date)) {
		if t.AppliesOn(date) {
			out = append(out, t)
		}
	}
	return out
}

// Windows returns the merged working hours for date.
func (w *Weekly) Windows(professionalID string, date civil.Date) []clock.Interval {
	tpls := w.TemplatesOn(professionalID, date)
	ivs := make([]clock.Interval, 0, len(tpls))
	for _, t := range tpls {
		ivs = append(ivs, t.Window())
	}
	return clock.Merge(ivs)
}

// SlotStarts walks a template window: emit start, advance by SlotDuration,
// and stop before a slot would end past EndTime. The trailing partial slot
// is dropped.
func SlotStarts(t model.Template) []clock.Time {
	if t.SlotDuration <= 0 || !t.StartTime.Before(t.EndTime) {
		return nil
	}
	starts := make([]clock.Time, 0, t.EndTime.Sub(t.StartTime)/t.SlotDuration)
	for cur := t.StartTime.Minutes(); cur+t.SlotDuration <= t.EndTime.Minutes(); cur += t.SlotDuration {
		starts = append(starts, clock.Time(cur))
	}
	return starts
}

func sortTemplates(ts []model.Template) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].StartTime != ts[j].StartTime {
			return ts[i].StartTime < ts[j].StartTime
		}
		return ts[i].ID < ts[j].ID
	})
}

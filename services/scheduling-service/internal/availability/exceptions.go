package availability

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

// Exceptions answers block queries for one or more professionals. Blocks are
// few per professional, so lookups scan the professional's list.
type Exceptions struct {
	byProfessional map[string][]model.Block
}

func NewExceptions(blocks []model.Block) *Exceptions {
	e := &Exceptions{byProfessional: map[string][]model.Block{}}
	for _, b := range blocks {
		e.byProfessional[b.ProfessionalID] = append(e.byProfessional[b.ProfessionalID], b)
	}
	for _, list := range e.byProfessional {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].IsFullDay() != list[j].IsFullDay() {
				return list[i].IsFullDay()
			}
			si, sj := startOf(list[i]), startOf(list[j])
			if si != sj {
				return si < sj
			}
			return list[i].ID < list[j].ID
		})
	}
	return e
}

func startOf(b model.Block) clock.Time {
	if b.StartTime == nil {
		return 0
	}
	return *b.StartTime
}

// BlocksFor returns every block covering date: full-day blocks first, then
// partial blocks by start time.
func (e *Exceptions) BlocksFor(professionalID string, date civil.Date) []model.Block {
	var out []model.Block
	for _, b := range e.byProfessional[professionalID] {
		if b.Covers(date) {
			out = append(out, b)
		}
	}
	return out
}

func (e *Exceptions) IsDateFullyBlocked(professionalID string, date civil.Date) bool {
	_, ok := e.FullDayBlock(professionalID, date)
	return ok
}

func (e *Exceptions) FullDayBlock(professionalID string, date civil.Date) (model.Block, bool) {
	for _, b := range e.byProfessional[professionalID] {
		if b.IsFullDay() && b.Covers(date) {
			return b, true
		}
	}
	return model.Block{}, false
}

func (e *Exceptions) IsTimeBlocked(professionalID string, date civil.Date, at clock.Time, durationMinutes int) bool {
	_, ok := e.BlockAt(professionalID, date, at, durationMinutes)
	return ok
}

// BlockAt returns the block that makes [at, at+durationMinutes) unavailable.
func (e *Exceptions) BlockAt(professionalID string, date civil.Date, at clock.Time, durationMinutes int) (model.Block, bool) {
	window := clock.Interval{Start: at, End: clock.Time(at.Minutes() + durationMinutes)}
	blocks := e.Overlapping(professionalID, date, window)
	if len(blocks) == 0 {
		return model.Block{}, false
	}
	return blocks[0], true
}

// Overlapping lists blocks on date that intersect window; a full-day block
// intersects everything.
func (e *Exceptions) Overlapping(professionalID string, date civil.Date, window clock.Interval) []model.Block {
	var out []model.Block
	for _, b := range e.BlocksFor(professionalID, date) {
		iv, partial := b.Interval()
		if !partial || iv.Overlaps(window) {
			out = append(out, b)
		}
	}
	return out
}

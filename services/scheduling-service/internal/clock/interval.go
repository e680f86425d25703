package clock

import (
	"fmt"
	"sort"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start Time
	End   Time
}

// NewInterval builds [start, start+minutes). minutes must be positive and the
// interval must end within the day.
func NewInterval(start Time, minutes int) (Interval, error) {
	if minutes <= 0 {
		return Interval{}, fmt.Errorf("clock: duration must be positive, got %d", minutes)
	}
	end, err := start.AddMinutes(minutes)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: start, End: end}, nil
}

func (iv Interval) Minutes() int { return iv.End.Sub(iv.Start) }

func (iv Interval) Empty() bool { return iv.End <= iv.Start }

func (iv Interval) Contains(t Time) bool { return iv.Start <= t && t < iv.End }

// Covers reports whether other lies entirely inside iv.
func (iv Interval) Covers(other Interval) bool {
	return iv.Start <= other.Start && other.End <= iv.End
}

func (iv Interval) Overlaps(other Interval) bool {
	return Overlaps(iv.Start, iv.End, other.Start, other.End)
}

func (iv Interval) String() string { return iv.Start.String() + "-" + iv.End.String() }

// Merge returns the union of ivs as sorted, disjoint intervals. Touching
// intervals ([09:00,12:00) and [12:00,13:00)) are joined.
func Merge(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if !iv.Empty() {
			sorted = append(sorted, iv)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []Interval
	for _, iv := range sorted {
		if n := len(out); n > 0 && iv.Start <= out[n-1].End {
			if iv.End > out[n-1].End {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract removes every interval in cut from iv and returns what remains.
func Subtract(iv Interval, cut []Interval) []Interval {
	remaining := []Interval{iv}
	for _, c := range Merge(cut) {
		var next []Interval
		for _, r := range remaining {
			if !r.Overlaps(c) {
				next = append(next, r)
				continue
			}
			if r.Start < c.Start {
				next = append(next, Interval{Start: r.Start, End: c.Start})
			}
			if c.End < r.End {
				next = append(next, Interval{Start: c.End, End: r.End})
			}
		}
		remaining = next
	}
	return remaining
}

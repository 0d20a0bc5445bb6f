package schedule

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps is the single overlap rule used everywhere in the engine:
// [aStart,aEnd) overlaps [bStart,bEnd) iff aStart < bEnd && bStart < aEnd.
// Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func (iv Interval) Overlaps(other Interval) bool {
	return Overlaps(iv.Start, iv.End, other.Start, other.End)
}

// Window is a provider's weekly availability template for one weekday.
// Minutes are counted from local midnight; at most one window per weekday.
type Window struct {
	Weekday     time.Weekday
	Enabled     bool
	StartMinute int
	EndMinute   int
}

// Expand resolves the window onto a concrete date. It returns false when the
// window is disabled, malformed, or the date falls on a different weekday.
func (w Window) Expand(date time.Time) (Interval, bool) {
	if !w.Enabled || w.StartMinute >= w.EndMinute {
		return Interval{}, false
	}
	if date.Weekday() != w.Weekday {
		return Interval{}, false
	}
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return Interval{
		Start: midnight.Add(time.Duration(w.StartMinute) * time.Minute),
		End:   midnight.Add(time.Duration(w.EndMinute) * time.Minute),
	}, true
}

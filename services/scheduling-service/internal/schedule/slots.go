package schedule

import "time"

// Slots returns the bookable intervals of width granularity inside
// [windowStart, windowEnd), in chronological order.
//
// A candidate [t, t+granularity) survives when it fits fully before the
// window end, its start is strictly in the future relative to now, and it
// does not overlap any busy interval. Busy intervals keep their real
// lengths, so an appointment spanning several grid steps suppresses each of
// them. All times are expected to be in the same location.
func Slots(windowStart, windowEnd time.Time, granularity time.Duration, busy []Interval, now time.Time) []Interval {
	if granularity <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}

	var slots []Interval
	for t := windowStart; !t.Add(granularity).After(windowEnd); t = t.Add(granularity) {
		if !t.After(now) {
			continue
		}
		candidate := Interval{Start: t, End: t.Add(granularity)}
		if overlapsAny(candidate, busy) {
			continue
		}
		slots = append(slots, candidate)
	}
	return slots
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

package schedule

import (
	"testing"
	"time"
)

func TestOverlaps(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	if !Overlaps(at(10, 0), at(10, 30), at(10, 15), at(10, 45)) {
		t.Fatal("partial overlap should conflict")
	}
	if !Overlaps(at(10, 0), at(11, 0), at(10, 15), at(10, 30)) {
		t.Fatal("containment should conflict")
	}
	if Overlaps(at(10, 0), at(10, 30), at(10, 30), at(11, 0)) {
		t.Fatal("touching endpoints should not conflict")
	}
	if Overlaps(at(9, 0), at(9, 30), at(10, 0), at(10, 30)) {
		t.Fatal("disjoint intervals should not conflict")
	}
}

func TestWindowExpand(t *testing.T) {
	// Monday 2026-03-02, 09:00-12:00.
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	w := Window{Weekday: time.Monday, Enabled: true, StartMinute: 540, EndMinute: 720}

	iv, ok := w.Expand(monday)
	if !ok {
		t.Fatal("expected window to expand on its weekday")
	}
	if !iv.Start.Equal(monday.Add(9 * time.Hour)) || !iv.End.Equal(monday.Add(12 * time.Hour)) {
		t.Fatalf("unexpected interval: %s - %s", iv.Start, iv.End)
	}

	if _, ok := w.Expand(monday.AddDate(0, 0, 1)); ok {
		t.Fatal("expanding on a different weekday should fail")
	}
	w.Enabled = false
	if _, ok := w.Expand(monday); ok {
		t.Fatal("disabled window should not expand")
	}
}

func TestSlots_FullGridMinusPast(t *testing.T) {
	// Monday window 09:00-12:00, 30 min grid, no bookings, now = 08:00.
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	slots := Slots(monday.Add(9*time.Hour), monday.Add(12*time.Hour), 30*time.Minute, nil, monday.Add(8*time.Hour))
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(monday.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Start.Format(time.RFC3339))
	}
	if !slots[5].Start.Equal(monday.Add(11*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected last slot 11:30, got %s", slots[5].Start.Format(time.RFC3339))
	}
}

func TestSlots_BookedStepSuppressed(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	busy := []Interval{{Start: monday.Add(10 * time.Hour), End: monday.Add(10*time.Hour + 30*time.Minute)}}
	slots := Slots(monday.Add(9*time.Hour), monday.Add(12*time.Hour), 30*time.Minute, busy, monday.Add(8*time.Hour))
	if len(slots) != 5 {
		t.Fatalf("expected 5 slots, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Start.Equal(monday.Add(10 * time.Hour)) {
			t.Fatal("10:00 slot should have been suppressed")
		}
	}
}

func TestSlots_LongAppointmentSuppressesEveryStep(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	// A 90-minute appointment starting 09:45 crosses the 09:30, 10:00, 10:30
	// and 11:00 grid steps.
	busy := []Interval{{Start: monday.Add(9*time.Hour + 45*time.Minute), End: monday.Add(11*time.Hour + 15*time.Minute)}}
	slots := Slots(monday.Add(9*time.Hour), monday.Add(12*time.Hour), 30*time.Minute, busy, monday.Add(8*time.Hour))
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(monday.Add(9 * time.Hour)) {
		t.Fatalf("expected 09:00, got %s", slots[0].Start.Format(time.RFC3339))
	}
	if !slots[1].Start.Equal(monday.Add(11*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected 11:30, got %s", slots[1].Start.Format(time.RFC3339))
	}
}

func TestSlots_PartialFinalStepDiscarded(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	// 09:00-10:45 with a 30 min grid: the 10:30 candidate would run past the
	// window end and must be dropped.
	slots := Slots(monday.Add(9*time.Hour), monday.Add(10*time.Hour+45*time.Minute), 30*time.Minute, nil, monday.Add(8*time.Hour))
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	last := slots[len(slots)-1]
	if !last.Start.Equal(monday.Add(10 * time.Hour)) {
		t.Fatalf("expected last slot 10:00, got %s", last.Start.Format(time.RFC3339))
	}
}

func TestSlots_StrictlyFutureOnly(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	// now exactly at 09:00: the 09:00 slot is not strictly future.
	slots := Slots(monday.Add(9*time.Hour), monday.Add(10*time.Hour), 30*time.Minute, nil, monday.Add(9*time.Hour))
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Start.Equal(monday.Add(9*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected 09:30, got %s", slots[0].Start.Format(time.RFC3339))
	}
}

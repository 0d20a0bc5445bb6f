package reminder

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestFireTimes(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	offsets := []time.Duration{24 * time.Hour, 2 * time.Hour}

	// Booked well in advance: both reminders fire.
	now := start.Add(-48 * time.Hour)
	times := FireTimes(start, offsets, now)
	if len(times) != 2 {
		t.Fatalf("expected 2 fire times, got %d", len(times))
	}
	if !times[0].Equal(start.Add(-24 * time.Hour)) || !times[1].Equal(start.Add(-2 * time.Hour)) {
		t.Fatalf("unexpected fire times: %v", times)
	}

	// Booked 3 hours before start: the 24h reminder is already in the past.
	times = FireTimes(start, offsets, start.Add(-3*time.Hour))
	if len(times) != 1 {
		t.Fatalf("expected 1 fire time, got %d", len(times))
	}
	if !times[0].Equal(start.Add(-2 * time.Hour)) {
		t.Fatalf("expected the 2h reminder, got %v", times[0])
	}

	// A fire time exactly at now is not strictly future.
	times = FireTimes(start, []time.Duration{2 * time.Hour}, start.Add(-2*time.Hour))
	if len(times) != 0 {
		t.Fatalf("expected no fire times, got %v", times)
	}
}

func TestParseOffsets(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	offsets := ParseOffsets("1440, 120", logger)
	if len(offsets) != 2 || offsets[0] != 24*time.Hour || offsets[1] != 2*time.Hour {
		t.Fatalf("unexpected offsets: %v", offsets)
	}

	offsets = ParseOffsets("abc,-5,", logger)
	if len(offsets) != 1 || offsets[0] != 24*time.Hour {
		t.Fatalf("expected default offset, got %v", offsets)
	}
}

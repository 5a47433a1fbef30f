package window

import (
	"testing"
	"time"

	"fabcal/internal/model"
)

func TestFilterBounds(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	past := 30 * 24 * time.Hour
	future := 180 * 24 * time.Hour

	day := 24 * time.Hour
	events := []model.CanonicalEvent{
		{Title: "too old", Start: now.Add(-31 * day)},
		{Title: "lower bound", Start: now.Add(-30 * day)},
		{Title: "recent past", Start: now.Add(-day)},
		{Title: "now", Start: now},
		{Title: "upper bound", Start: now.Add(180 * day)},
		{Title: "too far", Start: now.Add(181 * day)},
	}

	got := Filter(events, now, past, future)

	want := []string{"lower bound", "recent past", "now", "upper bound"}
	if len(got) != len(want) {
		t.Fatalf("survivors = %d, want %d", len(got), len(want))
	}
	for i, e := range got {
		if e.Title != want[i] {
			t.Errorf("survivor %d = %q, want %q", i, e.Title, want[i])
		}
		if e.Start.Before(now.Add(-past)) || e.Start.After(now.Add(future)) {
			t.Errorf("survivor %q outside window: %v", e.Title, e.Start)
		}
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	events := []model.CanonicalEvent{
		{Title: "keep", Start: now},
		{Title: "drop", Start: now.Add(-365 * 24 * time.Hour)},
	}

	_ = Filter(events, now, 30*24*time.Hour, 180*24*time.Hour)

	if events[0].Title != "keep" || events[1].Title != "drop" {
		t.Error("input slice was modified")
	}
}

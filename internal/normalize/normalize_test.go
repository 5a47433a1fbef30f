package normalize

import (
	"testing"
	"time"

	"fabcal/internal/feed"
	"fabcal/internal/locator"
	"fabcal/internal/model"
)

var testOpts = Options{
	MaxDistanceKM:   50,
	ExcludeKeywords: []string{"grand archive", "定休日"},
	Zone:            time.UTC,
}

func TestClassify(t *testing.T) {
	tests := []struct {
		title string
		want  model.Category
	}{
		{"Project Blue 体験会", model.CategoryProjectBlue},
		{"PB night", model.CategoryProjectBlue},
		{"Weekly CC", model.CategoryClassic},
		{"Classic Constructed 大会", model.CategoryClassic},
		{"Friday Blitz", model.CategoryBlitz},
		{"ブリッツ大会", model.CategoryBlitz},
		{"Living Legend Showdown", model.CategoryLivingLegend},
		{"Board game night", model.CategoryExternal},
		// Rule order: "classic" wins over "blitz" because the CC rule
		// comes first in the table.
		{"Classic Blitz", model.CategoryClassic},
	}

	for _, tt := range tests {
		if got := Classify(tt.title); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestFromFeedComposesTitleAndFormat(t *testing.T) {
	raw := feed.RawEvent{
		Summary:     "Friday Blitz",
		Location:    "Fable Akihabara",
		Description: "casual",
		Start:       time.Date(2026, 4, 3, 19, 0, 0, 0, time.UTC),
	}

	ev, err := FromFeed(raw, model.SourceFable, testOpts)
	if err != nil {
		t.Fatalf("FromFeed: %v", err)
	}
	if ev.Title != "Friday Blitz@Fable" {
		t.Errorf("Title = %q", ev.Title)
	}
	if ev.Category != model.CategoryBlitz || ev.Format != "Blitz" {
		t.Errorf("Category/Format = %q/%q", ev.Category, ev.Format)
	}
	if ev.Source != model.SourceFable {
		t.Errorf("Source = %q", ev.Source)
	}
}

func TestFromFeedExternalFormat(t *testing.T) {
	raw := feed.RawEvent{
		Summary: "Board game night",
		Start:   time.Date(2026, 4, 3, 19, 0, 0, 0, time.UTC),
	}

	ev, err := FromFeed(raw, model.SourceTokyoFAB, testOpts)
	if err != nil {
		t.Fatalf("FromFeed: %v", err)
	}
	if ev.Category != model.CategoryExternal {
		t.Errorf("Category = %q", ev.Category)
	}
	// External events display as plain "External", not "External Event".
	if ev.Format != "External" {
		t.Errorf("Format = %q", ev.Format)
	}
	if ev.Title != "Board game night@Tokyo FAB" {
		t.Errorf("Title = %q", ev.Title)
	}
}

func TestFeedClockCorrection(t *testing.T) {
	start := time.Date(2026, 4, 3, 19, 0, 0, 0, time.UTC)
	raw := feed.RawEvent{Summary: "Friday Blitz", Start: start}

	local, err := FromFeed(raw, model.SourceFable, testOpts)
	if err != nil {
		t.Fatalf("FromFeed: %v", err)
	}
	if !local.Start.Equal(start) {
		t.Errorf("local mode shifted the start: %v", local.Start)
	}

	cf := testOpts
	cf.FeedClockOffset = 9 * time.Hour
	hosted, err := FromFeed(raw, model.SourceFable, cf)
	if err != nil {
		t.Fatalf("FromFeed: %v", err)
	}
	if !hosted.Start.Equal(start.Add(9 * time.Hour)) {
		t.Errorf("cloudflare mode start = %v, want %v", hosted.Start, start.Add(9*time.Hour))
	}
}

func TestFromFeedRejections(t *testing.T) {
	start := time.Date(2026, 4, 3, 19, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  feed.RawEvent
		kind RejectKind
	}{
		{"missing summary", feed.RawEvent{Start: start}, RejectParse},
		{"missing start", feed.RawEvent{Summary: "Blitz"}, RejectParse},
		{"closed-day keyword in title", feed.RawEvent{Summary: "本日定休日", Start: start}, RejectExcluded},
		{"excluded keyword in description", feed.RawEvent{Summary: "TCG night", Description: "Grand Archive tournament", Start: start}, RejectExcluded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromFeed(tt.raw, model.SourceFable, testOpts)
			if err == nil {
				t.Fatal("expected rejection")
			}
			kind, ok := KindOf(err)
			if !ok || kind != tt.kind {
				t.Errorf("rejection kind = %v (ok=%v), want %v", kind, ok, tt.kind)
			}
		})
	}
}

func TestFromLocator(t *testing.T) {
	raw := locator.RawEvent{
		Nickname:     "Pro Quest Tokyo",
		Organiser:    "Cardon Shop",
		Address:      "Tokyo, Shinagawa",
		Format:       "Pro Quest",
		Description:  "invite qualifier",
		Start:        "2026-04-05T10:00:00+09:00",
		Distance:     12,
		DistanceUnit: "km",
	}

	ev, err := FromLocator(raw, testOpts)
	if err != nil {
		t.Fatalf("FromLocator: %v", err)
	}
	if ev.Title != "Pro Quest Tokyo@Cardon Shop" {
		t.Errorf("Title = %q", ev.Title)
	}
	if ev.Format != "Pro Quest" || ev.Category != model.Category("Pro Quest") {
		t.Errorf("Format/Category = %q/%q", ev.Format, ev.Category)
	}
	want := time.Date(2026, 4, 5, 1, 0, 0, 0, time.UTC)
	if !ev.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", ev.Start, want)
	}
	if ev.Source != model.SourceOfficial {
		t.Errorf("Source = %q", ev.Source)
	}
}

func TestFromLocatorDistanceGate(t *testing.T) {
	base := locator.RawEvent{
		Nickname: "Armory",
		Format:   "Armory",
		Start:    "2026-04-05T10:00:00Z",
	}

	tests := []struct {
		name     string
		distance float64
		unit     string
		rejected bool
	}{
		{"within range km", 49, "km", false},
		{"beyond range km", 51, "km", true},
		// 40 miles is about 64 km, beyond the 50 km limit.
		{"beyond range in miles", 40, "miles", true},
		{"within range in miles", 30, "mi", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := base
			raw.Distance = tt.distance
			raw.DistanceUnit = tt.unit

			_, err := FromLocator(raw, testOpts)
			if tt.rejected {
				kind, ok := KindOf(err)
				if err == nil || !ok || kind != RejectOutOfRange {
					t.Fatalf("want OutOfRange rejection, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
		})
	}
}

func TestFromLocatorParseFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  locator.RawEvent
	}{
		{"missing nickname", locator.RawEvent{Start: "2026-04-05T10:00:00Z"}},
		{"empty start", locator.RawEvent{Nickname: "Armory"}},
		{"garbled start", locator.RawEvent{Nickname: "Armory", Start: "Sun 21st Sep, 3:30 PM"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLocator(tt.raw, testOpts)
			kind, ok := KindOf(err)
			if err == nil || !ok || kind != RejectParse {
				t.Fatalf("want parse rejection, got %v", err)
			}
		})
	}
}

func TestFromLocatorWithoutOrganiser(t *testing.T) {
	raw := locator.RawEvent{
		Nickname: "Armory",
		Start:    "2026-04-05T10:00:00Z",
	}
	ev, err := FromLocator(raw, testOpts)
	if err != nil {
		t.Fatalf("FromLocator: %v", err)
	}
	if ev.Title != "Armory" {
		t.Errorf("Title = %q, want bare event name", ev.Title)
	}
}

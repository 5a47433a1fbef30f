package model

import "time"

// Category is the coarse event classification. Feed-sourced events are
// classified from their title keywords (internal/normalize); locator events
// carry whatever label the API supplied, so values outside the constants
// below are legal.
type Category string

const (
	CategoryProjectBlue  Category = "Project Blue"
	CategoryClassic      Category = "Classic Constructed"
	CategoryBlitz        Category = "Blitz"
	CategoryLivingLegend Category = "Living Legend"
	CategoryExternal     Category = "External Event"
)

// SourceKind identifies the logical origin of an event. It is carried for
// logging and encoding only; merge precedence is decided by which collection
// an event travels in, not by this field.
type SourceKind string

const (
	SourceOfficial     SourceKind = "official"
	SourceFable        SourceKind = "fable"
	SourceTokyoFAB     SourceKind = "tokyofab"
	SourceExternalFeed SourceKind = "external"
)

// DisplayName returns the venue/source label used when composing event
// titles from feed summaries.
func (k SourceKind) DisplayName() string {
	switch k {
	case SourceFable:
		return "Fable"
	case SourceTokyoFAB:
		return "Tokyo FAB"
	case SourceExternalFeed:
		return "External"
	default:
		return string(k)
	}
}

// CanonicalEvent is the unified event representation produced by
// normalization. Values are never mutated after construction; every later
// stage (window filter, dedup, merge) builds new slices instead of editing
// events in place.
type CanonicalEvent struct {
	// Title is composed as "{eventName}@{venueOrSource}".
	Title    string
	Category Category

	// Start is an absolute instant, never a naive wall-clock value.
	Start time.Time

	Location string
	Format   string
	Details  string

	Source SourceKind
}

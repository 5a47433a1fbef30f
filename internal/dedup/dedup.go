package dedup

import (
	"strings"
	"time"

	"fabcal/internal/config"
	"fabcal/internal/model"
)

// Matcher decides whether two canonical events describe the same real-world
// occurrence. All matching data (venue tokens, keyword lists, thresholds)
// comes from configuration; the gate sequence itself is fixed.
type Matcher struct {
	venueTokens    []string
	closedKeywords []string
	sharedKeywords []string
	timeTolerance  time.Duration
	simThreshold   float64
}

// NewMatcher builds a Matcher from the configured matching data.
func NewMatcher(mc config.MatchConfig) *Matcher {
	return &Matcher{
		venueTokens:    lowered(mc.VenueTokens),
		closedKeywords: lowered(mc.ClosedKeywords),
		sharedKeywords: lowered(mc.SharedKeywords),
		timeTolerance:  time.Duration(mc.TimeToleranceMinutes) * time.Minute,
		simThreshold:   mc.SimilarityThreshold,
	}
}

// Stats reports what a dedup pass kept and dropped. Returned alongside the
// result so callers can log it without the matcher keeping any state.
type Stats struct {
	Kept    int
	Dropped int
}

// SameOccurrence reports whether a and b describe the same occurrence,
// using the full cross-source gate sequence (format identity included).
// It is symmetric in its arguments.
func (m *Matcher) SameOccurrence(a, b model.CanonicalEvent) bool {
	return m.match(a, b, true)
}

// match runs the gate sequence, short-circuiting at the first failing gate.
// requireFormat toggles the format-identity gate, which intra-feed dedup
// omits (one feed labels the same series inconsistently).
func (m *Matcher) match(a, b model.CanonicalEvent, requireFormat bool) bool {
	// Gate 1: closed-day notices never merge with anything.
	if m.closedDay(a) || m.closedDay(b) {
		return false
	}

	// Gate 2: start instants within tolerance.
	if absDiff(a.Start, b.Start) > m.timeTolerance {
		return false
	}

	// Gate 3: both events anchored to the same recognized venue.
	ta, ok := m.venueToken(a)
	if !ok {
		return false
	}
	tb, ok := m.venueToken(b)
	if !ok || ta != tb {
		return false
	}

	// Gate 4: same format or same category (cross-source only).
	if requireFormat && !strings.EqualFold(a.Format, b.Format) &&
		!strings.EqualFold(string(a.Category), string(b.Category)) {
		return false
	}

	// Gate 5: content similarity.
	return m.similarContent(a, b)
}

// Merge merges the secondary collection (official-site events) against the
// preferred one (feed events). Every preferred event is kept; a secondary
// event is dropped when any preferred event matches it, so preferred
// strictly wins ties. Neither input is modified.
func (m *Matcher) Merge(preferred, secondary []model.CanonicalEvent) ([]model.CanonicalEvent, Stats) {
	out := make([]model.CanonicalEvent, 0, len(preferred)+len(secondary))
	out = append(out, preferred...)
	stats := Stats{Kept: len(preferred)}

	for _, s := range secondary {
		dup := false
		for _, p := range preferred {
			if m.match(p, s, true) {
				dup = true
				break
			}
		}
		if dup {
			stats.Dropped++
			continue
		}
		out = append(out, s)
		stats.Kept++
	}

	return out, stats
}

// Intra removes duplicates within a single source, keeping the first-seen
// event of each duplicate group. The format-identity gate is skipped here.
func (m *Matcher) Intra(events []model.CanonicalEvent) ([]model.CanonicalEvent, Stats) {
	out := make([]model.CanonicalEvent, 0, len(events))
	var stats Stats

	for _, e := range events {
		dup := false
		for _, kept := range out {
			if m.match(kept, e, false) {
				dup = true
				break
			}
		}
		if dup {
			stats.Dropped++
			continue
		}
		out = append(out, e)
		stats.Kept++
	}

	return out, stats
}

// closedDay reports whether the event is a closed-day notice (定休日 etc.)
// by keyword match on title or format.
func (m *Matcher) closedDay(e model.CanonicalEvent) bool {
	title := strings.ToLower(e.Title)
	format := strings.ToLower(e.Format)
	for _, kw := range m.closedKeywords {
		if strings.Contains(title, kw) || strings.Contains(format, kw) {
			return true
		}
	}
	return false
}

// venueToken finds the recognized venue token in the event's location,
// falling back to the title when the location is empty.
func (m *Matcher) venueToken(e model.CanonicalEvent) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(e.Location))
	if s == "" {
		s = strings.ToLower(e.Title)
	}
	for _, tok := range m.venueTokens {
		if strings.Contains(s, tok) {
			return tok, true
		}
	}
	return "", false
}

// similarContent passes when a shared keyword appears in both events'
// title-or-format, or either the titles or the formats are similar enough.
func (m *Matcher) similarContent(a, b model.CanonicalEvent) bool {
	for _, kw := range m.sharedKeywords {
		if containsInTitleOrFormat(a, kw) && containsInTitleOrFormat(b, kw) {
			return true
		}
	}
	if Similarity(strings.ToLower(a.Title), strings.ToLower(b.Title)) > m.simThreshold {
		return true
	}
	return Similarity(strings.ToLower(a.Format), strings.ToLower(b.Format)) > m.simThreshold
}

func containsInTitleOrFormat(e model.CanonicalEvent, kw string) bool {
	return strings.Contains(strings.ToLower(e.Title), kw) ||
		strings.Contains(strings.ToLower(e.Format), kw)
}

func absDiff(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

func lowered(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

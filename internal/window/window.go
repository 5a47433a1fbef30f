// Package window restricts event collections to a retention window around
// "now". It is applied to feed-sourced events only; the locator source is
// trusted to return forward-looking, in-range events already.
package window

import (
	"time"

	"fabcal/internal/model"
)

// Filter keeps events whose start instant lies in [now-past, now+future],
// bounds inclusive. The input slice is not modified.
func Filter(events []model.CanonicalEvent, now time.Time, past, future time.Duration) []model.CanonicalEvent {
	lo := now.Add(-past)
	hi := now.Add(future)

	out := make([]model.CanonicalEvent, 0, len(events))
	for _, e := range events {
		if e.Start.Before(lo) || e.Start.After(hi) {
			continue
		}
		out = append(out, e)
	}
	return out
}

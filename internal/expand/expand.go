package expand

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "fabcal/internal/log"
)

const (
	defaultMaxSteps    = 50
	defaultHorizonDays = 180
)

// Next yields successive occurrence instants; ok is false when the sequence
// is exhausted. The shape mirrors rrule.Next so callers can range over
// either interchangeably.
type Next func() (time.Time, bool)

// Options controls how recurrence expansion is bounded.
type Options struct {
	// Horizon is how far past now occurrences are generated. Zero means
	// 180 days.
	Horizon time.Duration

	// MaxSteps caps how many occurrences the rule is advanced through,
	// whether or not they are yielded. Zero means 50.
	MaxSteps int
}

func (o Options) withDefaults() Options {
	if o.Horizon <= 0 {
		o.Horizon = defaultHorizonDays * 24 * time.Hour
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = defaultMaxSteps
	}
	return o
}

// Expand returns a lazy, finite, forward-only sequence of occurrence
// instants for the given recurrence rule anchored at anchor.
//
// Stop conditions, first to trigger wins:
//   - the rule has been advanced MaxSteps times
//   - the next occurrence lies past now+Horizon
//   - the rule itself is exhausted (COUNT/UNTIL)
//
// Occurrences before now are advanced through (they consume steps, keeping
// the rule state and the cap accounting consistent) but are not yielded.
//
// A rule that cannot be parsed at all degrades to a single occurrence at
// anchor: losing the series is worse than over-reporting one date.
func Expand(rule string, anchor, now time.Time, opts Options) Next {
	opts = opts.withDefaults()

	r, err := rrule.StrToRRule(rule)
	if err != nil {
		appLog.Error("unparseable recurrence rule, falling back to anchor", err, "rrule", rule)
		return single(anchor)
	}
	r.DTStart(anchor)

	iter := r.Iterator()
	horizon := now.Add(opts.Horizon)
	steps := 0

	return func() (time.Time, bool) {
		for steps < opts.MaxSteps {
			t, ok := iter()
			if !ok {
				return time.Time{}, false
			}
			steps++
			if t.After(horizon) {
				return time.Time{}, false
			}
			if t.Before(now) {
				continue
			}
			return t, true
		}
		return time.Time{}, false
	}
}

// single returns a sequence that yields t exactly once.
func single(t time.Time) Next {
	done := false
	return func() (time.Time, bool) {
		if done {
			return time.Time{}, false
		}
		done = true
		return t, true
	}
}

// Collect drains a sequence into a slice. Mostly a convenience for callers
// that want the whole series at once.
func Collect(next Next) []time.Time {
	var out []time.Time
	for t, ok := next(); ok; t, ok = next() {
		out = append(out, t)
	}
	return out
}

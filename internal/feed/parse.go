package feed

import (
	"bytes"
	"errors"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "fabcal/internal/log"
)

// RawEvent is a single VEVENT as extracted from a feed, before
// normalization. Start is the feed-parsed instant as the library reports it;
// the deployment-mode clock correction is applied later, in
// internal/normalize. RRule, when non-empty, is the raw recurrence rule to
// be expanded.
type RawEvent struct {
	Summary     string
	Description string
	Location    string

	Start time.Time
	RRule string
}

// ParseICS parses one ICS payload into raw feed events.
//
// Individual malformed VEVENTs are logged and skipped; only a payload that
// fails to parse at the calendar level is a source-level failure, reported
// upward so the caller can exclude this source from the run.
func ParseICS(src Source, body []byte) ([]RawEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("feed parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]RawEvent, 0)

	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			appLog.Error("feed vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("feed parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (RawEvent, error) {
	var out RawEvent

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	// DTSTART via the library's timezone-aware helper. A VEVENT without a
	// usable start cannot become an occurrence.
	start, err := ve.GetStartAt()
	if err != nil {
		return out, errors.New("missing or unparseable DTSTART")
	}
	out.Start = start

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}

	return out, nil
}

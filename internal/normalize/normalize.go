package normalize

import (
	"errors"
	"strings"
	"time"

	"fabcal/internal/feed"
	"fabcal/internal/locator"
	"fabcal/internal/model"
)

// milesToKM converts locator distances reported in miles.
const milesToKM = 1.60934

// RejectKind classifies why a raw event did not normalize.
type RejectKind int

const (
	// RejectParse: malformed date/time or missing required field.
	RejectParse RejectKind = iota
	// RejectExcluded: matched an exclusion keyword. Not an error condition;
	// the record is skipped silently.
	RejectExcluded
	// RejectOutOfRange: locator event beyond the distance limit.
	RejectOutOfRange
)

func (k RejectKind) String() string {
	switch k {
	case RejectParse:
		return "parse_failure"
	case RejectExcluded:
		return "excluded"
	case RejectOutOfRange:
		return "out_of_range"
	default:
		return "unknown"
	}
}

// RejectError is returned when a raw event is dropped during normalization.
// Callers skip the record and continue with the rest of the batch.
type RejectError struct {
	Kind   RejectKind
	Reason string
}

func (e *RejectError) Error() string {
	return e.Kind.String() + ": " + e.Reason
}

// KindOf extracts the rejection kind from a normalization error.
func KindOf(err error) (RejectKind, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return 0, false
}

func reject(kind RejectKind, reason string) error {
	return &RejectError{Kind: kind, Reason: reason}
}

// Options carries the configuration slice normalization depends on.
type Options struct {
	// FeedClockOffset is the deployment-mode correction added to feed-parsed
	// start instants (see config.FeedClockOffset). Zero in local mode.
	FeedClockOffset time.Duration

	// MaxDistanceKM rejects locator events reported farther than this from
	// the reference point. Zero disables the gate.
	MaxDistanceKM float64

	// ExcludeKeywords reject any event whose title or description contains
	// one of them, case-insensitively.
	ExcludeKeywords []string

	// Zone, if set, is the display timezone the start instant is carried in.
	// The instant itself is unaffected.
	Zone *time.Location
}

// categoryRules classifies feed-sourced events from their lowercased title.
// Evaluated top to bottom; the first matching keyword wins. Anything that
// falls through is an external (non-FAB-format) event.
var categoryRules = []struct {
	keywords []string
	category model.Category
}{
	{[]string{"project blue", "pb"}, model.CategoryProjectBlue},
	{[]string{"cc", "classic"}, model.CategoryClassic},
	{[]string{"blitz", "ブリッツ"}, model.CategoryBlitz},
	{[]string{"living legend", "ll"}, model.CategoryLivingLegend},
}

// Classify maps a feed event title onto a Category.
func Classify(title string) model.Category {
	t := strings.ToLower(title)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(t, kw) {
				return rule.category
			}
		}
	}
	return model.CategoryExternal
}

// FormatFor returns the display format label for a category.
func FormatFor(cat model.Category) string {
	if cat == model.CategoryExternal {
		return "External"
	}
	return string(cat)
}

// FeedStart applies the single-occurrence clock correction to a feed-parsed
// start instant. Recurrence expansion routes every yielded instant through
// this as well, so the correction is applied exactly once per occurrence.
func FeedStart(t time.Time, opts Options) time.Time {
	t = t.Add(opts.FeedClockOffset)
	if opts.Zone != nil {
		t = t.In(opts.Zone)
	}
	return t
}

// FromLocator normalizes one structured-locator API record.
//
// The API timestamp is taken as an absolute instant with no correction; the
// locator is trusted to report proper offsets. The category is whatever
// label the API supplied.
func FromLocator(raw locator.RawEvent, opts Options) (model.CanonicalEvent, error) {
	name := strings.TrimSpace(raw.Nickname)
	if name == "" {
		return model.CanonicalEvent{}, reject(RejectParse, "missing event name")
	}
	if kw, ok := excludedBy(opts.ExcludeKeywords, name, raw.Description); ok {
		return model.CanonicalEvent{}, reject(RejectExcluded, "matched keyword "+kw)
	}

	start, err := parseInstant(raw.Start, opts.Zone)
	if err != nil {
		return model.CanonicalEvent{}, reject(RejectParse, "bad start_time "+raw.Start)
	}

	if opts.MaxDistanceKM > 0 {
		km := raw.Distance
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw.DistanceUnit)), "mi") {
			km *= milesToKM
		}
		if km > opts.MaxDistanceKM {
			return model.CanonicalEvent{}, reject(RejectOutOfRange, "distance beyond limit")
		}
	}

	title := name
	if org := strings.TrimSpace(raw.Organiser); org != "" {
		title = name + "@" + org
	}

	format := strings.TrimSpace(raw.Format)
	return model.CanonicalEvent{
		Title:    title,
		Category: model.Category(format),
		Start:    start,
		Location: strings.TrimSpace(raw.Address),
		Format:   format,
		Details:  strings.TrimSpace(raw.Description),
		Source:   model.SourceOfficial,
	}, nil
}

// FromFeed normalizes one feed-sourced occurrence. The caller passes a
// concrete start instant: either the VEVENT's own DTSTART or one occurrence
// produced by recurrence expansion.
func FromFeed(raw feed.RawEvent, kind model.SourceKind, opts Options) (model.CanonicalEvent, error) {
	summary := strings.TrimSpace(raw.Summary)
	if summary == "" {
		return model.CanonicalEvent{}, reject(RejectParse, "missing summary")
	}
	if kw, ok := excludedBy(opts.ExcludeKeywords, summary, raw.Description); ok {
		return model.CanonicalEvent{}, reject(RejectExcluded, "matched keyword "+kw)
	}
	if raw.Start.IsZero() {
		return model.CanonicalEvent{}, reject(RejectParse, "missing start")
	}

	cat := Classify(summary)
	return model.CanonicalEvent{
		Title:    summary + "@" + kind.DisplayName(),
		Category: cat,
		Start:    FeedStart(raw.Start, opts),
		Location: strings.TrimSpace(raw.Location),
		Format:   FormatFor(cat),
		Details:  strings.TrimSpace(raw.Description),
		Source:   kind,
	}, nil
}

// excludedBy reports the first exclusion keyword found in any of the given
// strings, case-insensitively.
func excludedBy(keywords []string, texts ...string) (string, bool) {
	for _, text := range texts {
		t := strings.ToLower(text)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(t, strings.ToLower(kw)) {
				return kw, true
			}
		}
	}
	return "", false
}

// instantLayouts are tried in order for locator start_time values.
var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseInstant(v string, zone *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty instant")
	}
	loc := zone
	if loc == nil {
		loc = time.Local
	}
	var lastErr error
	for _, layout := range instantLayouts {
		t, err := time.ParseInLocation(layout, v, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

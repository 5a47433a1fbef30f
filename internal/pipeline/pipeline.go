// Package pipeline wires one aggregation run: retrieve every source,
// normalize and expand the raw records, deduplicate within and across
// sources, and encode the surviving canonical set.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"fabcal/internal/config"
	"fabcal/internal/dedup"
	"fabcal/internal/expand"
	"fabcal/internal/feed"
	"fabcal/internal/ical"
	"fabcal/internal/locator"
	appLog "fabcal/internal/log"
	"fabcal/internal/model"
	"fabcal/internal/normalize"
	"fabcal/internal/window"
)

// Batch is one retrieved feed's raw events, tagged with the feed identity.
type Batch struct {
	Kind   model.SourceKind
	Events []feed.RawEvent
}

// RunStats summarizes what one aggregation run did. Returned alongside the
// result instead of being accumulated in package state.
type RunStats struct {
	LocatorRecords int
	FeedRecords    int

	ParseFailures int
	Excluded      int
	OutOfRange    int

	IntraDropped int
	MergeDropped int

	SourcesFailed int
	Final         int
}

// Pipeline holds the per-process collaborators for aggregation runs.
type Pipeline struct {
	cfg     *config.Config
	display *time.Location
	fetcher *feed.Fetcher
	locator *locator.Client
	matcher *dedup.Matcher
}

// New builds a Pipeline from configuration.
func New(cfg *config.Config) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	display, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:     cfg,
		display: display,
		fetcher: feed.NewFetcher(cfg.CacheDir),
		locator: locator.NewClient(cfg.Locator.URL, cfg.Locator.Query, cfg.Locator.MaxPages),
		matcher: dedup.NewMatcher(cfg.Match),
	}, nil
}

// Aggregate is the pure core of a run: already-retrieved raw data in,
// duplicate-free canonical events out. It never touches the network and is
// deterministic for a given now.
//
// Order of operations: normalize each source, expand feed recurrences,
// intra-feed dedup, retention window (feed events only), then the
// cross-source merge with feed events preferred over official ones.
func (p *Pipeline) Aggregate(official []locator.RawEvent, batches []Batch, now time.Time) ([]model.CanonicalEvent, RunStats) {
	var stats RunStats

	locatorOpts := normalize.Options{
		MaxDistanceKM:   p.cfg.Locator.MaxDistanceKM,
		ExcludeKeywords: p.cfg.Match.ExcludeKeywords,
		Zone:            p.display,
	}
	feedOpts := normalize.Options{
		FeedClockOffset: p.cfg.FeedClockOffset(),
		ExcludeKeywords: p.cfg.Match.ExcludeKeywords,
		Zone:            p.display,
	}
	expandOpts := expand.Options{
		Horizon:  time.Duration(p.cfg.HorizonDays) * 24 * time.Hour,
		MaxSteps: p.cfg.MaxOccurrences,
	}

	officialEvents := make([]model.CanonicalEvent, 0, len(official))
	for _, raw := range official {
		stats.LocatorRecords++
		ev, err := normalize.FromLocator(raw, locatorOpts)
		if err != nil {
			stats.countReject(err)
			continue
		}
		officialEvents = append(officialEvents, ev)
	}

	feedEvents := make([]model.CanonicalEvent, 0)
	for _, batch := range batches {
		for _, raw := range batch.Events {
			stats.FeedRecords++

			if raw.RRule == "" {
				ev, err := normalize.FromFeed(raw, batch.Kind, feedOpts)
				if err != nil {
					stats.countReject(err)
					continue
				}
				feedEvents = append(feedEvents, ev)
				continue
			}

			next := expand.Expand(raw.RRule, raw.Start, now, expandOpts)
			for start, ok := next(); ok; start, ok = next() {
				occ := raw
				occ.Start = start
				occ.RRule = ""
				ev, err := normalize.FromFeed(occ, batch.Kind, feedOpts)
				if err != nil {
					stats.countReject(err)
					continue
				}
				feedEvents = append(feedEvents, ev)
			}
		}
	}

	// A recurring feed repeats its own occurrences across the export, so
	// dedup within the feed output before anything else.
	feedEvents, intraStats := p.matcher.Intra(feedEvents)
	stats.IntraDropped = intraStats.Dropped

	past := time.Duration(p.cfg.PastDays) * 24 * time.Hour
	future := time.Duration(p.cfg.FutureDays) * 24 * time.Hour
	feedEvents = window.Filter(feedEvents, now, past, future)

	merged, mergeStats := p.matcher.Merge(feedEvents, officialEvents)
	stats.MergeDropped = mergeStats.Dropped

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Start.Before(merged[j].Start)
	})

	stats.Final = len(merged)
	return merged, stats
}

// Run retrieves every configured source and aggregates the results.
// Individual source failures are collected, never fatal; the returned error
// slice carries them for logging.
func (p *Pipeline) Run(ctx context.Context, now time.Time) ([]model.CanonicalEvent, RunStats, []error) {
	var errs []error

	var official []locator.RawEvent
	sourcesOK := 0
	if p.cfg.Locator.URL != "" {
		records, err := p.locator.FetchAll(ctx)
		if err != nil {
			errs = append(errs, err)
		} else {
			official = records
			sourcesOK++
		}
	}

	sources := make([]feed.Source, 0, len(p.cfg.Feeds))
	for _, fc := range p.cfg.Feeds {
		sources = append(sources, feed.Source{ID: fc.ID, Name: fc.Name, URL: fc.URL})
	}

	results, fetchErrs := p.fetcher.FetchAll(ctx, sources)
	errs = append(errs, fetchErrs...)

	batches := make([]Batch, 0, len(results))
	for _, res := range results {
		raw, err := feed.ParseICS(res.Source, res.Body)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		batches = append(batches, Batch{Kind: res.Source.Kind(), Events: raw})
		sourcesOK++
	}

	events, stats := p.Aggregate(official, batches, now)
	stats.SourcesFailed = len(errs)

	if sourcesOK == 0 && len(errs) > 0 {
		// Nothing usable this run; the caller must not overwrite the
		// previous output with an empty document.
		return nil, stats, errs
	}
	return events, stats, errs
}

// Execute performs a full run and writes the encoded document to the
// configured output path.
func (p *Pipeline) Execute(ctx context.Context) error {
	now := time.Now()
	events, stats, errs := p.Run(ctx, now)

	for _, err := range errs {
		appLog.Error("source failed this run", err)
	}
	appLog.Info("aggregation run completed",
		"locator_records", stats.LocatorRecords,
		"feed_records", stats.FeedRecords,
		"parse_failures", stats.ParseFailures,
		"excluded", stats.Excluded,
		"out_of_range", stats.OutOfRange,
		"intra_dropped", stats.IntraDropped,
		"merge_dropped", stats.MergeDropped,
		"sources_failed", stats.SourcesFailed,
		"final", stats.Final,
	)

	if events == nil && len(errs) > 0 {
		return errors.New("all sources failed; keeping previous output")
	}

	doc := ical.Encode(events, p.display)
	if err := ical.WriteFile(p.cfg.OutputPath, doc); err != nil {
		return err
	}
	appLog.Info("calendar written", "path", p.cfg.OutputPath, "event_count", len(events))
	return nil
}

func (s *RunStats) countReject(err error) {
	kind, ok := normalize.KindOf(err)
	if !ok {
		s.ParseFailures++
		return
	}
	switch kind {
	case normalize.RejectExcluded:
		s.Excluded++
	case normalize.RejectOutOfRange:
		s.OutOfRange++
	default:
		s.ParseFailures++
	}
}

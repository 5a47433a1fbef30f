// Package ical encodes the aggregated canonical events into a single ICS
// document for calendar publication.
package ical

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"time"

	ics "github.com/arran4/golang-ical"

	"fabcal/internal/model"
)

// Encode serializes events into an ICS document. Summaries follow the
// 【format】title template; start instants are rendered in the given display
// timezone (nil falls back to UTC).
func Encode(events []model.CanonicalEvent, display *time.Location) string {
	if display == nil {
		display = time.UTC
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//fabcal//aggregated events//JA")

	stamp := time.Now().UTC()
	for _, e := range events {
		ev := cal.AddEvent(eventUID(e))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(e.Start.In(display))
		ev.SetSummary("【" + e.Format + "】" + e.Title)
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if e.Details != "" {
			ev.SetDescription(e.Details)
		}
	}

	return cal.Serialize()
}

// eventUID derives a deterministic UID from the event's start instant and
// title, so re-running the aggregation yields stable identifiers for
// unchanged events.
func eventUID(e model.CanonicalEvent) string {
	sum := sha256.Sum256([]byte(e.Start.UTC().Format(time.RFC3339) + "/" + e.Title))
	return hex.EncodeToString(sum[:8]) + "@fabcal"
}

// WriteFile writes the document atomically (temp file + rename, 0600), so a
// crashed run never leaves a truncated calendar behind.
func WriteFile(path, document string) error {
	if path == "" {
		return errors.New("output path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".fabcal-ics-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(document); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

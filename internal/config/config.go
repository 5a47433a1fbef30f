package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Deployment modes. The feed clock correction (see FeedClockOffset) is gated
// on the mode because the hosted scheduled environment parses naive feed
// times differently from a local run. This is an environment workaround, not
// timezone math, and must stay a fixed additive offset.
const (
	ModeLocal      = "local"
	ModeCloudflare = "cloudflare"
)

// cloudflareFeedOffset is the fixed correction added to feed-parsed start
// instants when running in cloudflare mode.
const cloudflareFeedOffset = 9 * time.Hour

// FeedConfig describes a single ICS subscription source.
type FeedConfig struct {
	// URL is the ICS subscription endpoint. Its origin string also decides
	// the feed identity (fable.fabtcg / tokyofab.info / external).
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// LocatorConfig describes the official event-locator API source.
type LocatorConfig struct {
	URL   string `yaml:"url" json:"url"`
	Query string `yaml:"query" json:"query"`
	// MaxDistanceKM rejects locator events reported farther than this from
	// the reference point.
	MaxDistanceKM float64 `yaml:"max_distance_km" json:"max_distance_km"`
	// MaxPages bounds pagination so a broken paginator cannot loop forever.
	MaxPages int `yaml:"max_pages" json:"max_pages"`
}

// MatchConfig holds the fixed matching data used by normalization and
// deduplication. These lists are configuration, not logic: adding a venue or
// keyword must never require touching the matching algorithm.
type MatchConfig struct {
	// VenueTokens are the recognized venue substrings; two events can only
	// be duplicates when both carry the same token.
	VenueTokens []string `yaml:"venue_tokens" json:"venue_tokens"`
	// ExcludeKeywords reject a raw event outright during normalization.
	ExcludeKeywords []string `yaml:"exclude_keywords" json:"exclude_keywords"`
	// ClosedKeywords mark closed-day notices, which never merge with anything.
	ClosedKeywords []string `yaml:"closed_keywords" json:"closed_keywords"`
	// SharedKeywords satisfy the content-similarity gate when present in
	// both events' title or format.
	SharedKeywords []string `yaml:"shared_keywords" json:"shared_keywords"`
	// TimeToleranceMinutes is the maximum start-instant gap for a duplicate pair.
	TimeToleranceMinutes int `yaml:"time_tolerance_minutes" json:"time_tolerance_minutes"`
	// SimilarityThreshold is the edit-distance similarity cutoff (exclusive).
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
}

// Config is the top-level application configuration.
type Config struct {
	// Mode is the deployment mode: "local" or "cloudflare".
	Mode string `yaml:"mode" json:"mode"`

	// Timezone is the IANA display timezone for the encoded calendar.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string for periodic aggregation
	// runs (ignored under --once).
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// PastDays / FutureDays bound the retention window applied to
	// feed-sourced events: [now - PastDays, now + FutureDays].
	PastDays   int `yaml:"past_days" json:"past_days"`
	FutureDays int `yaml:"future_days" json:"future_days"`

	// HorizonDays bounds recurrence expansion; MaxOccurrences caps the
	// number of advanced steps per recurring event.
	HorizonDays    int `yaml:"horizon_days" json:"horizon_days"`
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	// CacheDir is the base directory for the feed HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// OutputPath is where the aggregated ICS document is written.
	OutputPath string `yaml:"output_path" json:"output_path"`

	Locator LocatorConfig `yaml:"locator" json:"locator"`
	Feeds   []FeedConfig  `yaml:"feeds" json:"feeds"`
	Match   MatchConfig   `yaml:"match" json:"match"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode:           ModeLocal,
		Timezone:       "Asia/Tokyo",
		RefreshCron:    "0 */6 * * *",
		PastDays:       30,
		FutureDays:     180,
		HorizonDays:    180,
		MaxOccurrences: 50,
		CacheDir:       "./var/feed-cache",
		OutputPath:     "./events.ics",
		Locator: LocatorConfig{
			URL:           "https://fabtcg.com/ja/events/",
			Query:         "日本、東京都品川区上大崎２丁目１６ 目黒駅",
			MaxDistanceKM: 50,
			MaxPages:      20,
		},
		Feeds: []FeedConfig{},
		Match: MatchConfig{
			VenueTokens:     []string{"fable", "tokyo fab", "cardon", "amenity dream"},
			ExcludeKeywords: []string{"grand archive", "定休日"},
			ClosedKeywords:  []string{"定休日", "休み", "休業", "closed"},
			SharedKeywords: []string{
				"learn to play", "armory", "blitz", "classic constructed",
				"pro quest", "draft", "on demand", "cc", "ll", "pb",
			},
			TimeToleranceMinutes: 30,
			SimilarityThreshold:  0.5,
		},
	}
}

// FeedClockOffset returns the additive correction applied to feed-parsed
// start instants under the active deployment mode.
func (c *Config) FeedClockOffset() time.Duration {
	if c.Mode == ModeCloudflare {
		return cloudflareFeedOffset
	}
	return 0
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	switch c.Mode {
	case ModeLocal, ModeCloudflare:
		// ok
	default:
		// Unknown mode; run without the clock correction rather than guess.
		c.Mode = ModeLocal
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.PastDays <= 0 {
		c.PastDays = def.PastDays
	}
	if c.FutureDays <= 0 {
		c.FutureDays = def.FutureDays
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = def.MaxOccurrences
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.OutputPath == "" {
		c.OutputPath = def.OutputPath
	}

	if c.Locator.URL == "" {
		c.Locator.URL = def.Locator.URL
	}
	if c.Locator.Query == "" {
		c.Locator.Query = def.Locator.Query
	}
	if c.Locator.MaxDistanceKM <= 0 {
		c.Locator.MaxDistanceKM = def.Locator.MaxDistanceKM
	}
	if c.Locator.MaxPages <= 0 {
		c.Locator.MaxPages = def.Locator.MaxPages
	}

	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}

	if c.Match.VenueTokens == nil {
		c.Match.VenueTokens = def.Match.VenueTokens
	}
	if c.Match.ExcludeKeywords == nil {
		c.Match.ExcludeKeywords = def.Match.ExcludeKeywords
	}
	if c.Match.ClosedKeywords == nil {
		c.Match.ClosedKeywords = def.Match.ClosedKeywords
	}
	if c.Match.SharedKeywords == nil {
		c.Match.SharedKeywords = def.Match.SharedKeywords
	}
	if c.Match.TimeToleranceMinutes <= 0 {
		c.Match.TimeToleranceMinutes = def.Match.TimeToleranceMinutes
	}
	if c.Match.SimilarityThreshold <= 0 {
		c.Match.SimilarityThreshold = def.Match.SimilarityThreshold
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".fabcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
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

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

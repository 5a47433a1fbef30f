package locator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	appLog "fabcal/internal/log"
)

// RawEvent is one structured event-locator API record, field-extracted but
// otherwise untouched. Normalization (title composition, instant parsing,
// the distance gate) happens in internal/normalize.
type RawEvent struct {
	Nickname    string
	Organiser   string
	Address     string
	Format      string
	Description string

	// Start is the ISO-8601 instant string as supplied by the API.
	Start string

	Distance     float64
	DistanceUnit string
}

// Client fetches event pages from the official locator API.
type Client struct {
	http     *http.Client
	baseURL  string
	query    string
	maxPages int
}

// NewClient builds a locator client for the given endpoint and search query.
// maxPages bounds pagination; values <= 0 default to 20.
func NewClient(baseURL, query string, maxPages int) *Client {
	if maxPages <= 0 {
		maxPages = 20
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	rc.HTTPClient.Timeout = 15 * time.Second

	return &Client{
		http:     rc.StandardClient(),
		baseURL:  baseURL,
		query:    query,
		maxPages: maxPages,
	}
}

// FetchAll walks the paginated result set and returns every record.
//
// A failure on the first page is a source-level failure (the whole locator
// source is unusable this run). A failure on a later page returns the pages
// already collected, favoring a partial result over none.
func (c *Client) FetchAll(ctx context.Context) ([]RawEvent, error) {
	out := make([]RawEvent, 0)

	for page := 1; page <= c.maxPages; page++ {
		events, more, err := c.fetchPage(ctx, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			appLog.Error("locator page fetch failed, keeping earlier pages", err, "page", page, "collected", len(out))
			break
		}
		out = append(out, events...)
		if !more {
			break
		}
	}

	appLog.Info("locator fetch completed", "event_count", len(out))
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, page int) ([]RawEvent, bool, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, false, err
	}
	q := u.Query()
	q.Set("query", c.query)
	q.Set("mode", "event")
	q.Set("sort", "date")
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, errors.New(resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}

	// A top-level payload that is not even JSON is an unrecoverable
	// structural failure for this source.
	if !gjson.ValidBytes(body) {
		return nil, false, fmt.Errorf("locator page %d: payload is not valid JSON", page)
	}
	results := gjson.GetBytes(body, "results")
	if !results.IsArray() {
		return nil, false, fmt.Errorf("locator page %d: missing results array", page)
	}

	events := make([]RawEvent, 0, len(results.Array()))
	for _, r := range results.Array() {
		events = append(events, recordFromJSON(r))
	}

	// The API reports the next page URL, or null on the last page.
	more := gjson.GetBytes(body, "next").String() != ""
	return events, more, nil
}

func recordFromJSON(r gjson.Result) RawEvent {
	// Older API responses label the format "tournament_type".
	format := r.Get("format_name")
	if !format.Exists() {
		format = r.Get("tournament_type")
	}

	return RawEvent{
		Nickname:     r.Get("nickname").String(),
		Organiser:    r.Get("organiser_name").String(),
		Address:      r.Get("address").String(),
		Format:       format.String(),
		Description:  r.Get("description").String(),
		Start:        r.Get("start_time").String(),
		Distance:     r.Get("distance").Float(),
		DistanceUnit: r.Get("distance_unit").String(),
	}
}

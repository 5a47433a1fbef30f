package locator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchAllPaginates(t *testing.T) {
	var pagesServed []string

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pagesServed = append(pagesServed, page)

		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "1":
			fmt.Fprintf(w, `{
				"next": "%s?page=2",
				"results": [
					{
						"nickname": "Pro Quest Tokyo",
						"organiser_name": "Cardon Shop",
						"address": "Tokyo, Shinagawa",
						"format_name": "Pro Quest",
						"description": "qualifier",
						"start_time": "2026-04-05T10:00:00+09:00",
						"distance": 12.5,
						"distance_unit": "km"
					},
					{
						"nickname": "Armory",
						"organiser_name": "Fable",
						"format_name": "Armory",
						"start_time": "2026-04-06T18:00:00+09:00",
						"distance": 3,
						"distance_unit": "km"
					}
				]
			}`, srv.URL)
		default:
			fmt.Fprint(w, `{
				"next": null,
				"results": [
					{
						"nickname": "Legacy Cup",
						"tournament_type": "Classic Constructed",
						"start_time": "2026-04-07T11:00:00+09:00",
						"distance": 20,
						"distance_unit": "miles"
					}
				]
			}`)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "目黒駅", 10)
	events, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	if len(pagesServed) != 2 {
		t.Fatalf("pages served = %v, want 2 pages", pagesServed)
	}
	if len(events) != 3 {
		t.Fatalf("event count = %d, want 3", len(events))
	}

	first := events[0]
	if first.Nickname != "Pro Quest Tokyo" || first.Organiser != "Cardon Shop" {
		t.Errorf("first record = %+v", first)
	}
	if first.Format != "Pro Quest" {
		t.Errorf("Format = %q", first.Format)
	}
	if first.Start != "2026-04-05T10:00:00+09:00" {
		t.Errorf("Start = %q", first.Start)
	}
	if first.Distance != 12.5 || first.DistanceUnit != "km" {
		t.Errorf("distance = %v %q", first.Distance, first.DistanceUnit)
	}

	// Older payloads label the format "tournament_type".
	last := events[2]
	if last.Format != "Classic Constructed" {
		t.Errorf("tournament_type fallback: Format = %q", last.Format)
	}
	if last.DistanceUnit != "miles" {
		t.Errorf("DistanceUnit = %q", last.DistanceUnit)
	}
}

func TestFetchAllRespectsPageCap(t *testing.T) {
	var served int
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		// Always advertise another page.
		fmt.Fprintf(w, `{"next": "%s?page=%d", "results": []}`, srv.URL, served+1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "q", 3)
	if _, err := c.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if served != 3 {
		t.Errorf("pages served = %d, want the cap of 3", served)
	}
}

func TestFetchAllStructuralFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>maintenance</html>")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "q", 3)
	if _, err := c.FetchAll(context.Background()); err == nil {
		t.Error("non-JSON first page must fail the whole source")
	}
}

func TestFetchAllKeepsEarlierPagesOnLateFailure(t *testing.T) {
	var served int
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		if served == 1 {
			fmt.Fprintf(w, `{"next": "%s?page=2", "results": [{"nickname": "Armory", "start_time": "2026-04-06T18:00:00+09:00"}]}`, srv.URL)
			return
		}
		fmt.Fprint(w, "not json")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "q", 5)
	events, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("event count = %d, want the page-1 result", len(events))
	}
}

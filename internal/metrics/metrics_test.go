package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"places api", "https://places.googleapis.com/v1/places:searchText", "places.googleapis.com"},
		{"mixed case", "https://Maps.Google.com/maps", "maps.google.com"},
		{"no scheme", "places.googleapis.com/v1", "places.googleapis.com"},
		{"host with port", "localhost:8080", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if candidatesTotal == nil || upsertsTotal == nil ||
		httpRequestsTotal == nil || browserRunsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObservers(t *testing.T) {
	ObserveCandidate("places_api", "HAS_WEBSITE")
	if val := testutil.ToFloat64(candidatesTotal.WithLabelValues("places_api", "has_website")); val != 1 {
		t.Errorf("expected has_website candidate count 1, got %f", val)
	}

	ObserveWrites("unit", 2, 0, 1)
	if val := testutil.ToFloat64(upsertsTotal.WithLabelValues("unit", "inserted")); val != 2 {
		t.Errorf("expected 2 inserts, got %f", val)
	}
	if val := testutil.ToFloat64(upsertsTotal.WithLabelValues("unit", "failed")); val != 1 {
		t.Errorf("expected 1 failed write, got %f", val)
	}

	SetQueueDepth(3)
	if val := testutil.ToFloat64(browserRunQueueDepth); val != 3 {
		t.Errorf("expected queue depth 3, got %f", val)
	}
	ObserveQueueRejection("full")
	if val := testutil.ToFloat64(browserRunRejectionsTotal.WithLabelValues("full")); val != 1 {
		t.Errorf("expected one full rejection, got %f", val)
	}

	ObservePlacesRequest(429, 150*time.Millisecond)
	if val := testutil.ToFloat64(placesRequestsTotal.WithLabelValues("429")); val != 1 {
		t.Errorf("expected one 429 request, got %f", val)
	}

	ObserveBrowserRun("DONE")
	ObserveScroll("keyboard")
	ObserveScanPage()
	if val := testutil.ToFloat64(scanPagesTotal); val != 1 {
		t.Errorf("expected one scan page, got %f", val)
	}

	IncActiveBrowserRuns()
	IncActiveBrowserRuns()
	DecActiveBrowserRuns()
	if val := testutil.ToFloat64(activeBrowserRuns); val != 1 {
		t.Errorf("expected one active browser run, got %f", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://places.googleapis.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}

package argo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rewired-gh/oceanoracle/internal/models"
)

var arabianSea = models.RegionDescriptor{
	Key:         "arabian_sea",
	DisplayName: "Arabian Sea",
	BoundingBox: models.BoundingBox{LonMin: 50, LonMax: 80, LatMin: 5, LatMax: 25},
}

func fixedNow() time.Time {
	return time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
}

func tableBody(rows [][]interface{}) []byte {
	var body erddapTable
	body.Table.ColumnNames = []string{"platform_number", "cycle_number", "time", "latitude", "longitude", "pres", "temp", "psal"}
	body.Table.Rows = rows
	data, _ := json.Marshal(body)
	return data
}

func testOptions(baseURL string) Options {
	return Options{
		BaseURL:        baseURL,
		DatasetID:      "ArgoFloats",
		Timeout:        5 * time.Second,
		MaxRetries:     3,
		RetryDelayBase: time.Millisecond,
		Years:          []int{2024},
		Months:         []int{7},
		MaxDepth:       2000,
		Now:            fixedNow,
		Seed:           42,
	}
}

func TestFetch_ParsesTabledapResponse(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tabledap/ArgoFloats.json" {
			t.Errorf("Expected path /tabledap/ArgoFloats.json, got %s", r.URL.Path)
		}
		query, _ := urlUnescape(r.URL.RawQuery)
		for _, want := range []string{"platform_number,cycle_number", "longitude>=50", "latitude<=25", "pres<=2000", "time>=2024-07-01T00:00:00Z", "time<2024-08-01T00:00:00Z"} {
			if !strings.Contains(query, want) {
				t.Errorf("Expected query to contain %q, got %s", want, query)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(tableBody([][]interface{}{
			{"2902746", 12, "2024-07-03T05:00:00Z", 15.2, 65.1, 5.0, 28.4, 36.1},
			{"2902746", 12, "2024-07-03T05:00:00Z", 15.2, 65.1, 100.0, 24.0, 35.9},
			// Missing temperature
			{"2902746", 12, "2024-07-03T05:00:00Z", 15.2, 65.1, 200.0, nil, 35.7},
			// Outside the bounding box
			{"2902999", 3, "2024-07-10T00:00:00Z", 40.0, 65.0, 10.0, 27.0, 35.0},
		}))
	}))
	defer mockServer.Close()

	client := NewClient(testOptions(mockServer.URL))
	ds, err := client.Fetch(context.Background(), arabianSea)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(ds.Records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(ds.Records))
	}
	rec := ds.Records[1]
	if rec.FloatID != "2902746" || rec.CycleNumber != 12 || rec.Depth != 100 || rec.Temperature != 24.0 {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if ds.Source.Synthetic {
		t.Error("Expected real data")
	}
	if ds.RegionKey != "arabian_sea" {
		t.Errorf("Unexpected region key: %s", ds.RegionKey)
	}
	if err := (&models.RawDataset{RegionKey: ds.RegionKey, FetchedAt: fixedNow(), Records: ds.Records}).Validate(arabianSea); err != nil {
		t.Errorf("Fetched dataset violates region invariant: %v", err)
	}
}

func TestFetch_FallsBackToWholeYear(t *testing.T) {
	var calls int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		query, _ := urlUnescape(r.URL.RawQuery)
		if strings.Contains(query, "time>=2024-07-01") {
			// ERDDAP reports an empty result as 404
			http.Error(w, "Your query produced no matching results.", http.StatusNotFound)
			return
		}
		if !strings.Contains(query, "time>=2024-01-01") || !strings.Contains(query, "time<2024-10-01") {
			t.Errorf("Expected whole year clipped to now, got %s", query)
		}
		w.Write(tableBody([][]interface{}{
			{"2902746", 1, "2024-02-01T00:00:00Z", 10.0, 60.0, 0.0, 27.0, 35.3},
		}))
	}))
	defer mockServer.Close()

	ds, err := NewClient(testOptions(mockServer.URL)).Fetch(context.Background(), arabianSea)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(ds.Records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(ds.Records))
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected 2 requests, got %d", calls)
	}
}

func TestFetch_SyntheticFallback(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no matching results", http.StatusNotFound)
	}))
	defer mockServer.Close()

	opts := testOptions(mockServer.URL)
	opts.SyntheticFallback = true
	ds, err := NewClient(opts).Fetch(context.Background(), arabianSea)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if !ds.Source.Synthetic {
		t.Error("Expected synthetic source")
	}
	if n := len(ds.Records); n < 20*len(standardDepths) || n >= 50*len(standardDepths) {
		t.Errorf("Unexpected synthetic record count %d", n)
	}
	for _, rec := range ds.Records {
		if !arabianSea.BoundingBox.Contains(rec.Latitude, rec.Longitude) {
			t.Fatalf("Synthetic record outside region: %+v", rec)
		}
		if rec.Temperature < 2 || rec.Salinity < 30 {
			t.Fatalf("Synthetic record below floor: %+v", rec)
		}
		if rec.Time.Month() != time.July {
			t.Fatalf("Synthetic record outside configured months: %v", rec.Time)
		}
	}
}

func TestFetch_FailureWithoutFallback(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer mockServer.Close()

	_, err := NewClient(testOptions(mockServer.URL)).Fetch(context.Background(), arabianSea)
	var fetchErr *models.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got %v", err)
	}
	if models.KindOf(err) != models.KindFetch {
		t.Errorf("Unexpected kind: %s", models.KindOf(err))
	}
}

func TestFetch_EmptyWithoutFallback(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no matching results", http.StatusNotFound)
	}))
	defer mockServer.Close()

	_, err := NewClient(testOptions(mockServer.URL)).Fetch(context.Background(), arabianSea)
	var fetchErr *models.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError for empty result, got %v", err)
	}
}

func TestDoRequest_RetriesServerErrors(t *testing.T) {
	var calls int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(tableBody([][]interface{}{
			{"1", 1, "2024-07-01T00:00:00Z", 10.0, 60.0, 0.0, 27.0, 35.3},
		}))
	}))
	defer mockServer.Close()

	ds, err := NewClient(testOptions(mockServer.URL)).Fetch(context.Background(), arabianSea)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(ds.Records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(ds.Records))
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
}

func TestFetch_ContextCancelled(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer mockServer.Close()

	opts := testOptions(mockServer.URL)
	opts.SyntheticFallback = true
	opts.RetryDelayBase = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(opts).Fetch(ctx, arabianSea)
	if err == nil {
		t.Fatal("Expected error after cancellation")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded in chain, got %v", err)
	}
}

func TestFetch_SkipsFutureWindows(t *testing.T) {
	var calls int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no matching results", http.StatusNotFound)
	}))
	defer mockServer.Close()

	opts := testOptions(mockServer.URL)
	opts.Years = []int{2025}
	opts.SyntheticFallback = true
	ds, err := NewClient(opts).Fetch(context.Background(), arabianSea)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("Expected no requests for a future year, got %d", calls)
	}
	if !ds.Source.Synthetic {
		t.Error("Expected synthetic fallback for a future year")
	}
}

func urlUnescape(s string) (string, error) {
	return url.QueryUnescape(s)
}

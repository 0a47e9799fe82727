package datacache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rewired-gh/oceanoracle/internal/models"
)

const ttl = 7 * 24 * time.Hour

func testDataset(key string, fetchedAt time.Time, n int) *models.RawDataset {
	records := make([]models.RawDataRecord, n)
	for i := range records {
		records[i] = models.RawDataRecord{
			FloatID:     "2902746",
			CycleNumber: i / 10,
			Time:        fetchedAt.Add(-time.Duration(i) * time.Hour),
			Latitude:    15,
			Longitude:   65,
			Depth:       float64(i % 10 * 100),
			Temperature: 28 - float64(i%10),
			Salinity:    35.1,
		}
	}
	return &models.RawDataset{
		RegionKey: key,
		FetchedAt: fetchedAt,
		Records:   records,
		Source:    models.SourceMetadata{Provider: "test"},
	}
}

func newCache(t *testing.T, compress bool) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := New(dir, ttl, compress, 0o644, 0o755)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, dir
}

func TestCache_Freshness(t *testing.T) {
	for _, compress := range []bool{true, false} {
		c, _ := newCache(t, compress)
		t0 := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

		if got := c.Get("arabian_sea", t0); got.Freshness != Absent {
			t.Fatalf("Expected Absent before put, got %v", got.Freshness)
		}

		expiresAt, err := c.Put("arabian_sea", testDataset("arabian_sea", t0, 25), t0)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !expiresAt.Equal(t0.Add(ttl)) {
			t.Errorf("Expected expires_at %v, got %v", t0.Add(ttl), expiresAt)
		}

		tests := []struct {
			name string
			at   time.Time
			want Freshness
		}{
			{"just after put", t0, Fresh},
			{"ttl minus one", t0.Add(ttl - time.Second), Fresh},
			{"exactly ttl", t0.Add(ttl), Fresh},
			{"ttl plus one", t0.Add(ttl + time.Second), Stale},
		}
		for _, tt := range tests {
			got := c.Get("arabian_sea", tt.at)
			if got.Freshness != tt.want {
				t.Errorf("compress=%v %s: expected %v, got %v", compress, tt.name, tt.want, got.Freshness)
			}
			if got.Dataset == nil || len(got.Dataset.Records) != 25 {
				t.Errorf("compress=%v %s: expected dataset with 25 records", compress, tt.name)
			}
		}
	}
}

func TestCache_RoundTripPreservesRecords(t *testing.T) {
	c, _ := newCache(t, true)
	t0 := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	ds := testDataset("bay_of_bengal", t0, 12)
	ds.Source.Synthetic = true

	if _, err := c.Put("bay_of_bengal", ds, t0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got := c.Get("bay_of_bengal", t0).Dataset
	if !got.FetchedAt.Equal(t0) {
		t.Errorf("FetchedAt changed: %v", got.FetchedAt)
	}
	if got.Records[11] != ds.Records[11] {
		t.Errorf("Record mismatch: %+v vs %+v", got.Records[11], ds.Records[11])
	}
	if !got.Source.Synthetic {
		t.Error("Source metadata lost")
	}
}

func TestCache_GetDoesNotMutate(t *testing.T) {
	c, dir := newCache(t, true)
	t0 := time.Now()
	if _, err := c.Put("arabian_sea", testDataset("arabian_sea", t0, 5), t0); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "arabian_sea.json")
	before, _ := os.ReadFile(path)

	c.Get("arabian_sea", t0.Add(30*24*time.Hour)) // stale read

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("Stale Get modified the entry")
	}
}

func TestCache_ClearIdempotent(t *testing.T) {
	c, _ := newCache(t, true)
	t0 := time.Now()
	if _, err := c.Put("arabian_sea", testDataset("arabian_sea", t0, 5), t0); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := c.Clear("arabian_sea"); err != nil {
			t.Fatalf("Clear #%d failed: %v", i+1, err)
		}
		if got := c.Get("arabian_sea", t0); got.Freshness != Absent {
			t.Errorf("Expected Absent after clear #%d, got %v", i+1, got.Freshness)
		}
	}
}

func TestCache_CorruptEntryIsAbsent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{{{"},
		{"wrong version", `{"version":99,"region_key":"arabian_sea","encoding":"json"}`},
		{"bad snappy", `{"version":1,"region_key":"arabian_sea","encoding":"snappy","payload":"AAAA","record_count":1}`},
		{"count mismatch", `{"version":1,"region_key":"arabian_sea","encoding":"json","record_count":3,"records":[]}`},
		{"foreign region", `{"version":1,"region_key":"bay_of_bengal","encoding":"json","record_count":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, dir := newCache(t, true)
			if err := os.WriteFile(filepath.Join(dir, "arabian_sea.json"), []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if got := c.Get("arabian_sea", time.Now()); got.Freshness != Absent {
				t.Errorf("Expected Absent, got %v", got.Freshness)
			}
		})
	}
}

func TestCache_Info(t *testing.T) {
	c, _ := newCache(t, true)
	t0 := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	if info := c.Info("arabian_sea", t0); info.Cached {
		t.Error("Expected no info before put")
	}

	if _, err := c.Put("arabian_sea", testDataset("arabian_sea", t0, 40), t0); err != nil {
		t.Fatal(err)
	}
	info := c.Info("arabian_sea", t0.Add(8*24*time.Hour))
	if !info.Cached || info.RecordCount != 40 || info.Freshness != Stale {
		t.Errorf("Unexpected info: %+v", info)
	}
}

func TestCache_PutRejectsForeignDataset(t *testing.T) {
	c, _ := newCache(t, true)
	if _, err := c.Put("arabian_sea", testDataset("bay_of_bengal", time.Now(), 1), time.Now()); err == nil {
		t.Error("Expected error for dataset of another region")
	}
}

func TestCache_RemovesStaleTempOnOpen(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "arabian_sea.json.tmp")
	if err := os.WriteFile(tmp, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(dir, ttl, true, 0o644, 0o755); err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("Expected stale temp file to be removed")
	}
}

func TestCache_ConcurrentPutAndGet(t *testing.T) {
	c, _ := newCache(t, true)
	t0 := time.Now()
	if _, err := c.Put("arabian_sea", testDataset("arabian_sea", t0, 10), t0); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			if _, err := c.Put("arabian_sea", testDataset("arabian_sea", t0, 10+n), t0); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			// Readers see a whole entry or nothing, never a torn one
			if got := c.Get("arabian_sea", t0); got.Freshness != Fresh {
				t.Errorf("Expected Fresh during concurrent writes, got %v", got.Freshness)
			}
		}()
	}
	wg.Wait()
}

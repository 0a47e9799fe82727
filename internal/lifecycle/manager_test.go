package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rewired-gh/oceanoracle/internal/datacache"
	"github.com/rewired-gh/oceanoracle/internal/models"
	"github.com/rewired-gh/oceanoracle/internal/modelstore"
	"github.com/rewired-gh/oceanoracle/internal/regions"
)

const testKey = "arabian_sea"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeFetcher returns a small in-bounds dataset. When gate is set, Fetch
// signals started and blocks until gate is closed.
type fakeFetcher struct {
	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
	err       error
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Fetch(ctx context.Context, region models.RegionDescriptor) (*models.RawDataset, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.maxActive.Load()
		if n <= peak || f.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.gate != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}

	lat, lon := region.BoundingBox.Center()
	records := make([]models.RawDataRecord, 0, 20)
	for i := 0; i < 20; i++ {
		records = append(records, models.RawDataRecord{
			FloatID:     "2902746",
			CycleNumber: i / 5,
			Time:        time.Date(2024, 7, 1+i, 0, 0, 0, 0, time.UTC),
			Latitude:    lat,
			Longitude:   lon,
			Depth:       float64(i * 50),
			Temperature: 28 - float64(i),
			Salinity:    35.5,
		})
	}
	return &models.RawDataset{Records: records, Source: models.SourceMetadata{Provider: "fake"}}, nil
}

type constPredictor float64

func (p constPredictor) Predict(lat, lon, depth float64, month int) float64 { return float64(p) }

// fakeTrainer fails on failOn when it is set
type fakeTrainer struct {
	calls  atomic.Int32
	failOn models.Parameter
}

func (t *fakeTrainer) Train(ctx context.Context, records []models.RawDataRecord, p models.Parameter) (*models.TrainedModel, error) {
	t.calls.Add(1)
	if t.failOn != "" && p == t.failOn {
		return nil, errors.New("singular matrix")
	}
	return &models.TrainedModel{
		Artifact:           json.RawMessage(`{"value":1}`),
		Metrics:            models.Metrics{R2: 0.8, MAE: 0.5},
		ModelType:          "fake",
		InputSchemaVersion: 1,
		TrainingRecords:    len(records),
	}, nil
}

func (t *fakeTrainer) Load(m *models.TrainedModel) (models.Predictor, error) {
	var a struct {
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(m.Artifact, &a); err != nil {
		return nil, err
	}
	return constPredictor(a.Value), nil
}

type recordingNotifier struct {
	ready  chan string
	failed chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ready: make(chan string, 8), failed: make(chan string, 8)}
}

func (n *recordingNotifier) RegionReady(b *models.RegionModelBundle) { n.ready <- b.RegionKey }
func (n *recordingNotifier) RegionFailed(key string, err error)      { n.failed <- key }

type harness struct {
	m        *Manager
	clock    *fakeClock
	fetcher  *fakeFetcher
	trainer  *fakeTrainer
	cache    *datacache.Cache
	store    *modelstore.Store
	notifier *recordingNotifier
	cacheDir string
	modelDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	return newHarnessAt(t, filepath.Join(root, "cache"), filepath.Join(root, "models"), &fakeClock{now: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)})
}

func newHarnessAt(t *testing.T, cacheDir, modelDir string, clock *fakeClock) *harness {
	t.Helper()
	reg, err := regions.New([]models.RegionDescriptor{{
		Key:         testKey,
		DisplayName: "Arabian Sea",
		BoundingBox: models.BoundingBox{LonMin: 50, LonMax: 80, LatMin: 5, LatMax: 25},
	}})
	if err != nil {
		t.Fatalf("regions.New failed: %v", err)
	}
	cache, err := datacache.New(cacheDir, 7*24*time.Hour, true, 0o644, 0o755)
	if err != nil {
		t.Fatalf("datacache.New failed: %v", err)
	}
	store, err := modelstore.New(modelstore.Options{Dir: modelDir, MaxHistory: 2, SchemaVersion: 1})
	if err != nil {
		t.Fatalf("modelstore.New failed: %v", err)
	}

	h := &harness{
		clock:    clock,
		fetcher:  &fakeFetcher{},
		trainer:  &fakeTrainer{},
		cache:    cache,
		store:    store,
		notifier: newRecordingNotifier(),
		cacheDir: cacheDir,
		modelDir: modelDir,
	}
	h.m, err = New(Options{
		Registry:         reg,
		Cache:            cache,
		Store:            store,
		Fetcher:          h.fetcher,
		Trainer:          h.trainer,
		Notifier:         h.notifier,
		Clock:            clock.Now,
		OperationTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return h
}

func (h *harness) gate() chan struct{} {
	h.fetcher.gate = make(chan struct{})
	h.fetcher.started = make(chan struct{}, 1)
	return h.fetcher.gate
}

func waitStarted(t *testing.T, h *harness) {
	t.Helper()
	select {
	case <-h.fetcher.started:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch never started")
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("Expected error for missing dependencies")
	}
}

func TestEnsureReady_CacheLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bundle, err := h.m.EnsureReady(ctx, testKey)
	if err != nil {
		t.Fatalf("EnsureReady failed: %v", err)
	}
	if !bundle.Ready || len(bundle.Models) != 2 {
		t.Fatalf("Expected ready bundle with 2 models, got %+v", bundle)
	}
	if got := h.fetcher.calls.Load(); got != 1 {
		t.Errorf("Expected 1 fetch, got %d", got)
	}
	if got := h.trainer.calls.Load(); got != 2 {
		t.Errorf("Expected 2 trainings, got %d", got)
	}
	if bundle.Summary.NumProfiles != 4 {
		t.Errorf("Expected 4 profiles, got %d", bundle.Summary.NumProfiles)
	}
	if bundle.Summary.RecordCount != 20 {
		t.Errorf("Expected 20 records, got %d", bundle.Summary.RecordCount)
	}
	firstID := bundle.Models[models.Temperature].ID
	if firstID == "" {
		t.Error("Expected model ID to be assigned")
	}

	// One hour later everything is served from memory
	h.clock.Advance(time.Hour)
	if _, err := h.m.EnsureReady(ctx, testKey); err != nil {
		t.Fatalf("EnsureReady failed: %v", err)
	}
	if h.fetcher.calls.Load() != 1 || h.trainer.calls.Load() != 2 {
		t.Errorf("Expected no new calls, got fetch=%d train=%d", h.fetcher.calls.Load(), h.trainer.calls.Load())
	}

	// Past the TTL the dataset is refetched and both models retrained
	h.clock.Advance(8 * 24 * time.Hour)
	bundle, err = h.m.EnsureReady(ctx, testKey)
	if err != nil {
		t.Fatalf("EnsureReady failed: %v", err)
	}
	if h.fetcher.calls.Load() != 2 || h.trainer.calls.Load() != 4 {
		t.Errorf("Expected refetch and retrain, got fetch=%d train=%d", h.fetcher.calls.Load(), h.trainer.calls.Load())
	}
	if bundle.Models[models.Temperature].ID == firstID {
		t.Error("Expected a new temperature model")
	}
	for p, m := range bundle.Models {
		if m.TrainedAt.Before(bundle.DatasetFetchedAt) {
			t.Errorf("%s model is stale", p)
		}
	}

	select {
	case key := <-h.notifier.ready:
		if key != testKey {
			t.Errorf("Unexpected notification for %s", key)
		}
	case <-time.After(5 * time.Second):
		t.Error("Expected a ready notification")
	}
}

func TestEnsureReady_SingleFlight(t *testing.T) {
	h := newHarness(t)
	gate := h.gate()

	const callers = 10
	var wg sync.WaitGroup
	results := make(chan *models.RegionModelBundle, callers)
	errs := make(chan error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		b, err := h.m.EnsureReady(context.Background(), testKey)
		results <- b
		errs <- err
	}()
	waitStarted(t, h)

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := h.m.EnsureReady(context.Background(), testKey)
			results <- b
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Caller failed: %v", err)
		}
	}
	var first *models.RegionModelBundle
	for b := range results {
		if first == nil {
			first = b
		}
		if b != first {
			t.Error("Expected every caller to receive the same bundle")
		}
	}
	if got := h.fetcher.calls.Load(); got != 1 {
		t.Errorf("Expected 1 fetch, got %d", got)
	}
	if got := h.trainer.calls.Load(); got != 2 {
		t.Errorf("Expected 2 trainings, got %d", got)
	}
}

func TestEnsureReady_FetchFailureReachesAllWaiters(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = errors.New("erddap unreachable")
	gate := h.gate()

	const callers = 4
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := h.m.EnsureReady(context.Background(), testKey)
			errs <- err
		}()
	}
	waitStarted(t, h)
	time.Sleep(20 * time.Millisecond)
	close(gate)

	for i := 0; i < callers; i++ {
		err := <-errs
		if models.KindOf(err) != models.KindFetch {
			t.Errorf("Expected fetch_error, got %v", err)
		}
	}

	s, err := h.m.Status(testKey)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if s.State != Unloaded || s.InFlight {
		t.Errorf("Expected idle unloaded region, got %s (in flight %v)", s.State, s.InFlight)
	}
	if s.LastError == nil || s.LastError.Kind != models.KindFetch {
		t.Errorf("Expected recorded fetch error, got %+v", s.LastError)
	}
	if h.trainer.calls.Load() != 0 {
		t.Error("Expected no training after a failed fetch")
	}

	select {
	case <-h.notifier.failed:
	case <-time.After(5 * time.Second):
		t.Error("Expected a failure notification")
	}
}

func TestEnsureReady_TrainingFailureReachesAllWaiters(t *testing.T) {
	h := newHarness(t)
	h.trainer.failOn = models.Salinity
	gate := h.gate()

	const callers = 4
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := h.m.EnsureReady(context.Background(), testKey)
			errs <- err
		}()
	}
	waitStarted(t, h)
	time.Sleep(20 * time.Millisecond)
	close(gate)

	for i := 0; i < callers; i++ {
		err := <-errs
		if models.KindOf(err) != models.KindTraining {
			t.Errorf("Expected training_error, got %v", err)
		}
	}

	s, err := h.m.Status(testKey)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if s.State != Unloaded || s.InFlight {
		t.Errorf("Expected idle unloaded region, got %s (in flight %v)", s.State, s.InFlight)
	}
	if s.LastError == nil || s.LastError.Kind != models.KindTraining {
		t.Errorf("Expected recorded training error, got %+v", s.LastError)
	}
	if _, err := h.m.Current(testKey); models.KindOf(err) != models.KindNotReady {
		t.Errorf("Expected no committed bundle, got %v", err)
	}
	if got := h.trainer.calls.Load(); got != 2 {
		t.Fatalf("Expected 2 training attempts, got %d", got)
	}

	// The retry reuses the cached dataset and the saved temperature model
	h.trainer.failOn = ""
	bundle, err := h.m.EnsureReady(context.Background(), testKey)
	if err != nil {
		t.Fatalf("EnsureReady after failure failed: %v", err)
	}
	if !bundle.Ready {
		t.Error("Expected ready bundle")
	}
	if got := h.trainer.calls.Load(); got != 3 {
		t.Errorf("Expected only salinity to be trained again, got %d calls", got)
	}
	if got := h.fetcher.calls.Load(); got != 1 {
		t.Errorf("Expected cached dataset to be reused, got %d fetches", got)
	}
	if s, _ := h.m.Status(testKey); s.LastError != nil {
		t.Errorf("Expected last error cleared, got %+v", s.LastError)
	}
}

func TestEnsureReady_TimeoutLeavesFlightRunning(t *testing.T) {
	h := newHarness(t)
	gate := h.gate()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.m.EnsureReady(ctx, testKey)
	var te *models.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TimeoutError, got %v", err)
	}
	waitStarted(t, h)

	s, _ := h.m.Status(testKey)
	if !s.InFlight || s.State != Fetching {
		t.Errorf("Expected flight to continue, got %s (in flight %v)", s.State, s.InFlight)
	}

	close(gate)
	bundle, err := h.m.Wait(context.Background(), testKey)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if !bundle.Ready {
		t.Error("Expected ready bundle after the flight finished")
	}
	if h.fetcher.calls.Load() != 1 {
		t.Errorf("Expected 1 fetch, got %d", h.fetcher.calls.Load())
	}
}

func TestRefresh_Retrains(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.m.EnsureReady(ctx, testKey)
	if err != nil {
		t.Fatalf("EnsureReady failed: %v", err)
	}

	h.clock.Advance(time.Hour)
	second, err := h.m.Refresh(ctx, testKey)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if h.fetcher.calls.Load() != 2 || h.trainer.calls.Load() != 4 {
		t.Errorf("Expected refetch and retrain, got fetch=%d train=%d", h.fetcher.calls.Load(), h.trainer.calls.Load())
	}
	if !second.DatasetFetchedAt.After(first.DatasetFetchedAt) {
		t.Error("Expected a newer dataset")
	}

	history, err := h.store.History(testKey, models.Temperature)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected archived model, got %v", history)
	}
}

func TestEnsureReady_RecoversFromCorruptArtifact(t *testing.T) {
	h := newHarness(t)
	if _, err := h.m.EnsureReady(context.Background(), testKey); err != nil {
		t.Fatalf("EnsureReady failed: %v", err)
	}

	path := filepath.Join(h.modelDir, testKey, "temperature.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	// A fresh process sees the cached dataset and one unusable model
	h2 := newHarnessAt(t, h.cacheDir, h.modelDir, h.clock)
	bundle, err := h2.m.EnsureReady(context.Background(), testKey)
	if err != nil {
		t.Fatalf("EnsureReady failed: %v", err)
	}
	if !bundle.Ready {
		t.Fatal("Expected ready bundle")
	}
	if got := h2.fetcher.calls.Load(); got != 0 {
		t.Errorf("Expected cached dataset to be reused, got %d fetches", got)
	}
	if got := h2.trainer.calls.Load(); got != 1 {
		t.Errorf("Expected only temperature to be retrained, got %d", got)
	}
}

func TestClear(t *testing.T) {
	h := newHarness(t)
	if _, err := h.m.EnsureReady(context.Background(), testKey); err != nil {
		t.Fatalf("EnsureReady failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := h.m.Clear(testKey); err != nil {
			t.Fatalf("Clear #%d failed: %v", i+1, err)
		}
	}

	if _, err := h.m.Current(testKey); models.KindOf(err) != models.KindNotReady {
		t.Errorf("Expected not_ready after clear, got %v", err)
	}
	if info := h.cache.Info(testKey, h.clock.Now()); info.Cached {
		t.Error("Expected cache entry to be gone")
	}
	if _, found := h.store.Get(testKey); found {
		t.Error("Expected models to be gone")
	}

	if err := h.m.Clear("atlantis"); models.KindOf(err) != models.KindUnknownRegion {
		t.Errorf("Expected unknown_region, got %v", err)
	}
}

func TestClear_DuringFlightDiscardsResult(t *testing.T) {
	h := newHarness(t)
	gate := h.gate()

	errs := make(chan error, 1)
	go func() {
		_, err := h.m.EnsureReady(context.Background(), testKey)
		errs <- err
	}()
	waitStarted(t, h)

	if err := h.m.Clear(testKey); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	close(gate)

	err := <-errs
	if models.KindOf(err) != models.KindCleared {
		t.Fatalf("Expected cleared error, got %v", err)
	}
	if info := h.cache.Info(testKey, h.clock.Now()); info.Cached {
		t.Error("Expected nothing cached by the discarded flight")
	}
	if _, found := h.store.Get(testKey); found {
		t.Error("Expected nothing stored by the discarded flight")
	}
	if h.trainer.calls.Load() != 0 {
		t.Error("Expected no training for a discarded flight")
	}

	// The next caller starts a new flight
	h.fetcher.gate = nil
	if _, err := h.m.EnsureReady(context.Background(), testKey); err != nil {
		t.Fatalf("EnsureReady after clear failed: %v", err)
	}
	if got := h.fetcher.calls.Load(); got != 2 {
		t.Errorf("Expected 2 fetches, got %d", got)
	}
}

func TestClear_NextFlightWaitsForDiscardedFetch(t *testing.T) {
	h := newHarness(t)
	gate := h.gate()

	first := make(chan error, 1)
	go func() {
		_, err := h.m.EnsureReady(context.Background(), testKey)
		first <- err
	}()
	waitStarted(t, h)

	if err := h.m.Clear(testKey); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if s, _ := h.m.Status(testKey); !s.InFlight {
		t.Error("Expected the discarded flight to be reported in flight")
	}

	second := make(chan error, 1)
	go func() {
		_, err := h.m.EnsureReady(context.Background(), testKey)
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if got := h.fetcher.calls.Load(); got != 1 {
		t.Errorf("Expected the new flight to wait, got %d fetches", got)
	}
	close(gate)

	if err := <-first; models.KindOf(err) != models.KindCleared {
		t.Errorf("Expected cleared error, got %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("EnsureReady after clear failed: %v", err)
	}
	if got := h.fetcher.maxActive.Load(); got != 1 {
		t.Errorf("Expected at most 1 concurrent fetch, got %d", got)
	}
	if got := h.fetcher.calls.Load(); got != 2 {
		t.Errorf("Expected 2 fetches, got %d", got)
	}
	if got := h.trainer.calls.Load(); got != 2 {
		t.Errorf("Expected 2 trainings, got %d", got)
	}
}

func TestWait(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.m.Wait(ctx, testKey); models.KindOf(err) != models.KindNotReady {
		t.Errorf("Expected not_ready for idle region, got %v", err)
	}
	if _, err := h.m.Wait(ctx, "atlantis"); models.KindOf(err) != models.KindUnknownRegion {
		t.Errorf("Expected unknown_region, got %v", err)
	}

	gate := h.gate()
	go h.m.EnsureReady(ctx, testKey)
	waitStarted(t, h)

	done := make(chan error, 1)
	go func() {
		_, err := h.m.Wait(ctx, testKey)
		done <- err
	}()
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	b, err := h.m.Wait(ctx, testKey)
	if err != nil || !b.Ready {
		t.Errorf("Expected ready bundle, got %v, %v", b, err)
	}
	if h.fetcher.calls.Load() != 1 {
		t.Errorf("Wait must not start flights, got %d fetches", h.fetcher.calls.Load())
	}
}

func TestLoad_ReportsAlreadyLoaded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, already, err := h.m.Load(ctx, testKey); err != nil || already {
		t.Fatalf("First Load: already=%v err=%v", already, err)
	}
	if _, already, err := h.m.Load(ctx, testKey); err != nil || !already {
		t.Errorf("Second Load: already=%v err=%v", already, err)
	}
}

func TestJoin_AfterFlightCommittedReusesBundle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.m.EnsureReady(ctx, testKey)
	if err != nil {
		t.Fatalf("EnsureReady failed: %v", err)
	}

	// A caller that missed the fast path joins after the flight has committed
	bundle, loaded, err := h.m.join(ctx, testKey, false)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if !loaded || bundle != first {
		t.Errorf("Expected committed bundle reported as loaded, got loaded=%v", loaded)
	}
	if h.fetcher.calls.Load() != 1 || h.trainer.calls.Load() != 2 {
		t.Errorf("Expected no new work, got fetch=%d train=%d", h.fetcher.calls.Load(), h.trainer.calls.Load())
	}
	if s, _ := h.m.Status(testKey); s.State != Ready {
		t.Errorf("Expected region to stay ready, got %s", s.State)
	}
}

func TestWarm(t *testing.T) {
	h := newHarness(t)
	if _, err := h.m.EnsureReady(context.Background(), testKey); err != nil {
		t.Fatalf("EnsureReady failed: %v", err)
	}

	h2 := newHarnessAt(t, h.cacheDir, h.modelDir, h.clock)
	warmed := h2.m.Warm(context.Background())
	if len(warmed) != 1 || warmed[0] != testKey {
		t.Fatalf("Expected %s to be warmed, got %v", testKey, warmed)
	}
	if _, err := h2.m.Current(testKey); err != nil {
		t.Errorf("Current failed after warm: %v", err)
	}
	if h2.fetcher.calls.Load() != 0 || h2.trainer.calls.Load() != 0 {
		t.Error("Warm must not fetch or train")
	}

	// An expired cache is not warmed
	h.clock.Advance(8 * 24 * time.Hour)
	h3 := newHarnessAt(t, h.cacheDir, h.modelDir, h.clock)
	if warmed := h3.m.Warm(context.Background()); len(warmed) != 0 {
		t.Errorf("Expected nothing warmed from an expired cache, got %v", warmed)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)

	s, err := h.m.Status(testKey)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if s.State != Unloaded || s.Ready || s.Cache.Cached {
		t.Errorf("Unexpected initial status: %+v", s)
	}

	if _, err := h.m.EnsureReady(context.Background(), testKey); err != nil {
		t.Fatalf("EnsureReady failed: %v", err)
	}
	h.clock.Advance(2 * time.Hour)

	s, err = h.m.Status(testKey)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !s.Ready || s.State != Ready {
		t.Errorf("Expected ready, got %s", s.State)
	}
	if len(s.Models) != 2 {
		t.Errorf("Expected 2 models, got %d", len(s.Models))
	}
	for p, ms := range s.Models {
		if ms.Stale {
			t.Errorf("%s model reported stale", p)
		}
	}
	if s.CacheAge != "2 hours ago" {
		t.Errorf("Unexpected cache age %q", s.CacheAge)
	}
	if s.Summary == nil || s.Summary.RecordCount != 20 {
		t.Errorf("Unexpected summary: %+v", s.Summary)
	}

	if all := h.m.StatusAll(); len(all) != 1 {
		t.Errorf("Expected 1 status, got %d", len(all))
	}
	if _, err := h.m.Status("atlantis"); models.KindOf(err) != models.KindUnknownRegion {
		t.Errorf("Expected unknown_region, got %v", err)
	}
}

// Package lifecycle coordinates fetching, caching, training and serving of
// per-region model bundles.
//
// Each region moves through Unloaded, Fetching, Training and Ready. Concurrent
// requests for the same region share one in-flight operation and all receive
// its outcome. Clear bumps a per-region generation; an operation that started
// under an older generation persists nothing and reports ClearedError.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rewired-gh/oceanoracle/internal/datacache"
	"github.com/rewired-gh/oceanoracle/internal/logger"
	"github.com/rewired-gh/oceanoracle/internal/models"
	"github.com/rewired-gh/oceanoracle/internal/projector"
)

// DefaultOperationTimeout bounds one fetch-and-train cycle when unset
const DefaultOperationTimeout = 15 * time.Minute

// Options configures a Manager
type Options struct {
	Registry   Registry
	Cache      Cache
	Store      Store
	Fetcher    Fetcher
	Trainer    Trainer
	Parameters []models.Parameter
	Notifier   Notifier
	// Clock stamps fetched_at, trained_at and cache lookups; defaults to time.Now
	Clock            func() time.Time
	OperationTimeout time.Duration
}

// Manager owns the lifecycle state of every region
type Manager struct {
	registry   Registry
	cache      Cache
	store      Store
	fetcher    Fetcher
	trainer    Trainer
	parameters []models.Parameter
	notifier   Notifier
	clock      func() time.Time
	timeout    time.Duration

	group singleflight.Group

	mu      sync.Mutex
	regions map[string]*regionState
}

// New creates a Manager
func New(opts Options) (*Manager, error) {
	if opts.Registry == nil || opts.Cache == nil || opts.Store == nil || opts.Fetcher == nil || opts.Trainer == nil {
		return nil, errors.New("registry, cache, store, fetcher and trainer are required")
	}
	params := opts.Parameters
	if len(params) == 0 {
		params = models.TargetParameters
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	timeout := opts.OperationTimeout
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}

	return &Manager{
		registry:   opts.Registry,
		cache:      opts.Cache,
		store:      opts.Store,
		fetcher:    opts.Fetcher,
		trainer:    opts.Trainer,
		parameters: params,
		notifier:   opts.Notifier,
		clock:      clock,
		timeout:    timeout,
		regions:    make(map[string]*regionState),
	}, nil
}

// Parameters returns the target parameters every Ready bundle carries
func (m *Manager) Parameters() []models.Parameter {
	return append([]models.Parameter(nil), m.parameters...)
}

func (m *Manager) state(key string) *regionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.regions[key]
	if !ok {
		st = &regionState{state: Unloaded}
		m.regions[key] = st
	}
	return st
}

// fastPath returns the Ready bundle when its dataset is still fresh
func (m *Manager) fastPath(st *regionState) (*models.RegionModelBundle, uint64, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if st.state == Ready && st.bundle != nil && !m.clock().After(st.bundle.DataExpiresAt) {
		return st.bundle, st.generation, true
	}
	return nil, st.generation, false
}

// EnsureReady returns a Ready bundle for key, fetching and training as needed.
// If ctx ends first the caller gets a TimeoutError and the operation continues.
func (m *Manager) EnsureReady(ctx context.Context, key string) (*models.RegionModelBundle, error) {
	bundle, _, err := m.Load(ctx, key)
	return bundle, err
}

// Load is EnsureReady that also reports whether the bundle was already loaded
func (m *Manager) Load(ctx context.Context, key string) (*models.RegionModelBundle, bool, error) {
	if _, err := m.registry.Get(key); err != nil {
		return nil, false, err
	}

	st := m.state(key)
	if bundle, _, ok := m.fastPath(st); ok {
		return bundle, true, nil
	}

	return m.join(ctx, key, false)
}

// Refresh reloads key ignoring cache freshness. It joins an operation that is
// already in flight instead of starting a second one.
func (m *Manager) Refresh(ctx context.Context, key string) (*models.RegionModelBundle, error) {
	if _, err := m.registry.Get(key); err != nil {
		return nil, err
	}
	bundle, _, err := m.join(ctx, key, true)
	return bundle, err
}

// outcome is the shared result of one flight
type outcome struct {
	bundle *models.RegionModelBundle
	// loaded is set when the flight found the region already Ready
	loaded bool
}

// join starts or joins the flight of the current generation and waits for it
func (m *Manager) join(ctx context.Context, key string, force bool) (*models.RegionModelBundle, bool, error) {
	st := m.state(key)
	st.mu.RLock()
	gen := st.generation
	st.mu.RUnlock()

	start := time.Now()
	ch := m.group.DoChan(key+"@"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return m.execute(st, key, gen, force)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		out, _ := res.Val.(*outcome)
		if out == nil {
			return nil, false, nil
		}
		return out.bundle, out.loaded, nil
	case <-ctx.Done():
		return nil, false, &models.TimeoutError{RegionKey: key, Waited: time.Since(start), Err: ctx.Err()}
	}
}

// Wait joins the in-flight operation for key without starting one. A Ready
// region returns immediately; an idle one returns NotReadyError.
func (m *Manager) Wait(ctx context.Context, key string) (*models.RegionModelBundle, error) {
	if _, err := m.registry.Get(key); err != nil {
		return nil, err
	}

	st := m.state(key)
	st.mu.RLock()
	if st.state == Ready && st.bundle != nil {
		b := st.bundle
		st.mu.RUnlock()
		return b, nil
	}
	f, state := st.flight, st.state
	st.mu.RUnlock()

	if f == nil {
		return nil, &models.NotReadyError{RegionKey: key, State: string(state)}
	}

	start := time.Now()
	select {
	case <-f.done:
		return f.bundle, f.err
	case <-ctx.Done():
		return nil, &models.TimeoutError{RegionKey: key, Waited: time.Since(start), Err: ctx.Err()}
	}
}

// Current returns the last committed bundle of key, or NotReadyError
func (m *Manager) Current(key string) (*models.RegionModelBundle, error) {
	if _, err := m.registry.Get(key); err != nil {
		return nil, err
	}

	st := m.state(key)
	st.mu.RLock()
	defer st.mu.RUnlock()

	if st.bundle == nil {
		return nil, &models.NotReadyError{RegionKey: key, State: string(st.state)}
	}
	return st.bundle, nil
}

// Clear drops the cached dataset, the stored models and the in-memory bundle
// of key. An in-flight operation keeps running but its result is discarded,
// and the next operation for key starts only once it has finished.
func (m *Manager) Clear(key string) error {
	if _, err := m.registry.Get(key); err != nil {
		return err
	}

	st := m.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.generation++
	if st.flight != nil {
		st.draining = st.flight.done
		st.flight = nil
	}
	st.state = Unloaded
	st.bundle = nil
	st.lastErr = nil
	st.lastErrAt = time.Time{}
	st.updatedAt = m.clock()

	cacheErr := m.cache.Clear(key)
	storeErr := m.store.Clear(key)
	if err := errors.Join(cacheErr, storeErr); err != nil {
		return fmt.Errorf("failed to clear %s: %w", key, err)
	}

	logger.Info("Cleared cache and models for %s", key)
	return nil
}

// guard runs fn only while key is still at generation gen
func (m *Manager) guard(st *regionState, key string, gen uint64, fn func() error) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.generation != gen {
		return &models.ClearedError{RegionKey: key}
	}
	return fn()
}

func (m *Manager) transition(st *regionState, key string, gen uint64, to State) error {
	return m.guard(st, key, gen, func() error {
		logger.Debug("Region %s: %s -> %s", key, st.state, to)
		st.state = to
		st.updatedAt = m.clock()
		return nil
	})
}

// drain blocks until a flight discarded by Clear has finished, so a region
// never runs two fetches or trainings at once
func (m *Manager) drain(st *regionState) {
	for {
		st.mu.RLock()
		d := st.draining
		st.mu.RUnlock()
		if d == nil {
			return
		}
		<-d
	}
}

// execute is the body of one flight. It runs detached from any caller context.
func (m *Manager) execute(st *regionState, key string, gen uint64, force bool) (*outcome, error) {
	m.drain(st)

	f := &flight{generation: gen, started: time.Now(), done: make(chan struct{})}
	var committed *models.RegionModelBundle
	err := m.guard(st, key, gen, func() error {
		// a flight that finished after the caller missed the fast path
		if !force && st.state == Ready && st.bundle != nil && !m.clock().After(st.bundle.DataExpiresAt) {
			committed = st.bundle
			return nil
		}
		st.flight = f
		st.state = Fetching
		st.updatedAt = m.clock()
		return nil
	})
	if err != nil || committed != nil {
		close(f.done)
		if err != nil {
			return nil, err
		}
		return &outcome{bundle: committed, loaded: true}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	bundle, err := m.cycle(ctx, st, key, gen, force)

	st.mu.Lock()
	cleared := st.generation != gen
	failed := false
	if cleared {
		bundle, err = nil, &models.ClearedError{RegionKey: key}
	} else if err != nil {
		logger.Error("Region %s failed: %v", key, err)
		failed = true
		st.state = Failed
		st.bundle = nil
		st.lastErr = err
		st.lastErrAt = m.clock()
	} else {
		st.state = Ready
		st.bundle = bundle
		st.lastErr = nil
		st.lastErrAt = time.Time{}
		logger.Info("Region %s ready after %v (%d records)", key, time.Since(f.started).Round(time.Millisecond), bundle.Summary.RecordCount)
	}
	if !cleared {
		st.updatedAt = m.clock()
	}
	if st.flight == f {
		st.flight = nil
	}
	if st.draining == f.done {
		st.draining = nil
	}
	f.bundle, f.err = bundle, err
	close(f.done)
	st.mu.Unlock()

	if !cleared && m.notifier != nil {
		if err != nil {
			go m.notifier.RegionFailed(key, err)
		} else {
			go m.notifier.RegionReady(bundle)
		}
	}

	if failed {
		// Failed is terminal for this flight only; the next call starts over
		_ = m.guard(st, key, gen, func() error {
			if st.state == Failed && st.flight == nil {
				logger.Debug("Region %s: %s -> %s", key, Failed, Unloaded)
				st.state = Unloaded
				st.updatedAt = m.clock()
			}
			return nil
		})
	}
	if err != nil {
		return nil, err
	}
	return &outcome{bundle: bundle}, nil
}

// cycle fetches or reuses the dataset and trains or reuses each model
func (m *Manager) cycle(ctx context.Context, st *regionState, key string, gen uint64, force bool) (*models.RegionModelBundle, error) {
	region, err := m.registry.Get(key)
	if err != nil {
		return nil, err
	}

	dataset, expiresAt, err := m.dataset(ctx, st, region, gen, force)
	if err != nil {
		return nil, err
	}

	if err := m.transition(st, key, gen, Training); err != nil {
		return nil, err
	}

	bundle := models.NewBundle(key)
	stored, _ := m.store.Get(key)
	for _, p := range m.parameters {
		if stored != nil {
			if model, ok := stored.Models[p]; ok && !model.StaleFor(dataset) {
				pred, err := m.trainer.Load(model)
				if err == nil {
					logger.Debug("Reusing %s model %s for %s", p, model.ID, key)
					bundle.Models[p] = model
					bundle.Predictors[p] = pred
					continue
				}
				logger.Warn("Stored %s model for %s unusable, retraining: %v", p, key, err)
			}
		}

		model, pred, err := m.train(ctx, st, key, gen, dataset, p)
		if err != nil {
			return nil, err
		}
		bundle.Models[p] = model
		bundle.Predictors[p] = pred
	}

	bundle.Summary = projector.Summarize(region, dataset)
	bundle.Dataset = dataset
	bundle.DatasetFetchedAt = dataset.FetchedAt
	bundle.DataExpiresAt = expiresAt
	bundle.Ready = bundle.Complete(m.parameters)
	return bundle, nil
}

// dataset returns a Fresh cached dataset or fetches and caches a new one
func (m *Manager) dataset(ctx context.Context, st *regionState, region models.RegionDescriptor, gen uint64, force bool) (*models.RawDataset, time.Time, error) {
	key := region.Key
	if !force {
		lookup := m.cache.Get(key, m.clock())
		if lookup.Freshness == datacache.Fresh {
			err := lookup.Dataset.Validate(region)
			if err == nil {
				logger.Debug("Using cached dataset for %s (%d records)", key, len(lookup.Dataset.Records))
				return lookup.Dataset, lookup.ExpiresAt, nil
			}
			logger.Warn("Cached dataset for %s invalid, refetching: %v", key, err)
		}
	}

	logger.Info("Fetching %s from %s", key, m.fetcher.Name())
	dataset, err := m.fetcher.Fetch(ctx, region)
	if err != nil {
		var fe *models.FetchError
		if !errors.As(err, &fe) {
			err = &models.FetchError{RegionKey: key, Err: err}
		}
		return nil, time.Time{}, err
	}

	dataset.RegionKey = key
	dataset.FetchedAt = m.clock()
	if err := dataset.Validate(region); err != nil {
		return nil, time.Time{}, &models.FetchError{RegionKey: key, Err: err}
	}

	var expiresAt time.Time
	err = m.guard(st, key, gen, func() error {
		var err error
		expiresAt, err = m.cache.Put(key, dataset, dataset.FetchedAt)
		return err
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	return dataset, expiresAt, nil
}

// train fits, loads and persists one model
func (m *Manager) train(ctx context.Context, st *regionState, key string, gen uint64, dataset *models.RawDataset, p models.Parameter) (*models.TrainedModel, models.Predictor, error) {
	logger.Info("Training %s model for %s on %d records", p, key, len(dataset.Records))
	model, err := m.trainer.Train(ctx, dataset.Records, p)
	if err != nil {
		return nil, nil, &models.TrainingError{RegionKey: key, Parameter: p, Err: err}
	}
	model.RegionKey = key
	model.Parameter = p
	model.TrainedAt = m.clock()

	pred, err := m.trainer.Load(model)
	if err != nil {
		return nil, nil, &models.TrainingError{RegionKey: key, Parameter: p, Err: err}
	}

	err = m.guard(st, key, gen, func() error {
		return m.store.Put(key, model)
	})
	if err != nil {
		var cleared *models.ClearedError
		if errors.As(err, &cleared) {
			return nil, nil, err
		}
		return nil, nil, &models.TrainingError{RegionKey: key, Parameter: p, Err: err}
	}
	return model, pred, nil
}

package lifecycle

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rewired-gh/oceanoracle/internal/datacache"
	"github.com/rewired-gh/oceanoracle/internal/logger"
	"github.com/rewired-gh/oceanoracle/internal/models"
	"github.com/rewired-gh/oceanoracle/internal/projector"
)

// ErrorInfo is the last failure of a region
type ErrorInfo struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ModelStatus describes one stored or loaded model
type ModelStatus struct {
	ID        string         `json:"id"`
	Metrics   models.Metrics `json:"metrics"`
	ModelType string         `json:"model_type"`
	TrainedAt time.Time      `json:"trained_at"`
	Stale     bool           `json:"stale"`
}

// Status is a point-in-time view of a region
type Status struct {
	RegionKey   string                           `json:"region_key"`
	DisplayName string                           `json:"display_name"`
	State       State                            `json:"state"`
	Ready       bool                             `json:"ready"`
	InFlight    bool                             `json:"in_flight"`
	UpdatedAt   time.Time                        `json:"updated_at,omitempty"`
	LastError   *ErrorInfo                       `json:"last_error,omitempty"`
	Summary     *models.Summary                  `json:"summary,omitempty"`
	Models      map[models.Parameter]ModelStatus `json:"models,omitempty"`
	Cache       datacache.Info                   `json:"cache"`
	CacheAge    string                           `json:"cache_age,omitempty"`
	ExpiresIn   string                           `json:"expires_in,omitempty"`
}

// Status reports the state of key. Models come from the loaded bundle when
// Ready and from the model store otherwise.
func (m *Manager) Status(key string) (Status, error) {
	region, err := m.registry.Get(key)
	if err != nil {
		return Status{}, err
	}

	st := m.state(key)
	st.mu.RLock()
	s := Status{
		RegionKey:   key,
		DisplayName: region.DisplayName,
		State:       st.state,
		Ready:       st.state == Ready,
		InFlight:    st.flight != nil || st.draining != nil,
		UpdatedAt:   st.updatedAt,
	}
	if st.lastErr != nil {
		s.LastError = &ErrorInfo{Kind: models.KindOf(st.lastErr), Message: st.lastErr.Error(), At: st.lastErrAt}
	}
	bundle := st.bundle
	st.mu.RUnlock()

	now := m.clock()
	s.Cache = m.cache.Info(key, now)
	if s.Cache.Cached {
		s.CacheAge = humanize.RelTime(s.Cache.FetchedAt, now, "ago", "from now")
		s.ExpiresIn = humanize.RelTime(s.Cache.ExpiresAt, now, "ago", "from now")
	}

	if bundle == nil {
		bundle, _ = m.store.Get(key)
	} else {
		summary := bundle.Summary
		s.Summary = &summary
	}
	if bundle != nil {
		s.Models = make(map[models.Parameter]ModelStatus, len(bundle.Models))
		for p, model := range bundle.Models {
			s.Models[p] = ModelStatus{
				ID:        model.ID,
				Metrics:   model.Metrics,
				ModelType: model.ModelType,
				TrainedAt: model.TrainedAt,
				Stale:     s.Cache.Cached && model.TrainedAt.Before(s.Cache.FetchedAt),
			}
		}
	}
	return s, nil
}

// StatusAll reports every registered region in key order
func (m *Manager) StatusAll() []Status {
	keys := m.registry.Keys()
	out := make([]Status, 0, len(keys))
	for _, key := range keys {
		s, err := m.Status(key)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Warm restores Ready regions from disk without fetching or training. A region
// is restored only when its cached dataset is Fresh and every target model is
// stored, loadable and not stale. It returns the restored keys.
func (m *Manager) Warm(ctx context.Context) []string {
	var warmed []string
	for _, key := range m.registry.Keys() {
		if ctx.Err() != nil {
			break
		}
		if m.warm(key) {
			warmed = append(warmed, key)
		}
	}
	return warmed
}

func (m *Manager) warm(key string) bool {
	region, err := m.registry.Get(key)
	if err != nil {
		return false
	}

	lookup := m.cache.Get(key, m.clock())
	if lookup.Freshness != datacache.Fresh {
		return false
	}
	if err := lookup.Dataset.Validate(region); err != nil {
		logger.Warn("Not warming %s: cached dataset invalid: %v", key, err)
		return false
	}

	stored, found := m.store.Get(key)
	if !found || !stored.Complete(m.parameters) {
		return false
	}

	bundle := models.NewBundle(key)
	for _, p := range m.parameters {
		model := stored.Models[p]
		if model.StaleFor(lookup.Dataset) {
			logger.Info("Not warming %s: %s model is stale", key, p)
			return false
		}
		pred, err := m.trainer.Load(model)
		if err != nil {
			logger.Warn("Not warming %s: %s model unusable: %v", key, p, err)
			return false
		}
		bundle.Models[p] = model
		bundle.Predictors[p] = pred
	}
	bundle.Summary = projector.Summarize(region, lookup.Dataset)
	bundle.Dataset = lookup.Dataset
	bundle.DatasetFetchedAt = lookup.Dataset.FetchedAt
	bundle.DataExpiresAt = lookup.ExpiresAt
	bundle.Ready = true

	st := m.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state != Unloaded || st.flight != nil || st.draining != nil {
		return false
	}
	st.state = Ready
	st.bundle = bundle
	st.updatedAt = m.clock()
	logger.Info("Restored %s from disk (%d records)", key, bundle.Summary.RecordCount)
	return true
}

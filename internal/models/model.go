package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Metrics holds hold-out evaluation scores of a trained model.
type Metrics struct {
	R2  float64 `json:"r2"`
	MAE float64 `json:"mae"`
}

// TrainedModel is a persisted regression model for one (region, parameter) pair.
// Only the most recent model per pair is served; older ones are history.
type TrainedModel struct {
	ID                 string          `json:"id"`
	RegionKey          string          `json:"region_key"`
	Parameter          Parameter       `json:"target_parameter"`
	Artifact           json.RawMessage `json:"artifact"` // Opaque to everything but the trainer
	Metrics            Metrics         `json:"metrics"`
	ModelType          string          `json:"model_type"`
	TrainedAt          time.Time       `json:"trained_at"`
	InputSchemaVersion int             `json:"input_schema_version"`
	TrainingRecords    int             `json:"training_records"`
}

// Validate checks that all model fields are valid.
func (m *TrainedModel) Validate() error {
	if m.ID == "" {
		return errors.New("model ID must not be empty")
	}
	if m.RegionKey == "" {
		return errors.New("model region key must not be empty")
	}
	if _, err := ParseParameter(string(m.Parameter)); err != nil {
		return err
	}
	if len(m.Artifact) == 0 {
		return errors.New("model artifact must not be empty")
	}
	if m.ModelType == "" {
		return errors.New("model type must not be empty")
	}
	if m.TrainedAt.IsZero() {
		return errors.New("model trained at must be set")
	}
	if m.InputSchemaVersion < 1 {
		return fmt.Errorf("invalid input schema version %d", m.InputSchemaVersion)
	}
	return nil
}

// StaleFor reports whether the model predates the dataset currently backing its
// region. This is the only staleness rule; models have no TTL of their own.
func (m *TrainedModel) StaleFor(dataset *RawDataset) bool {
	return m.TrainedAt.Before(dataset.FetchedAt)
}

// Predictor evaluates a loaded model at a location, depth and month.
type Predictor interface {
	Predict(lat, lon, depth float64, month int) float64
}

// FeatureImportance is the relative weight of one model input.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Explainer is implemented by predictors that can rank their inputs.
type Explainer interface {
	Importances() []FeatureImportance
}

// DateRange is an inclusive span of measurement dates.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Summary is the human-readable digest of a region's dataset.
type Summary struct {
	Region                string    `json:"region"`
	RecordCount           int       `json:"record_count"`
	NumProfiles           int       `json:"num_profiles"`
	NumFloats             int       `json:"num_floats"`
	DateRange             DateRange `json:"date_range"`
	AvgSurfaceTempC       *float64  `json:"avg_surface_temp_c,omitempty"`
	AvgSurfaceSalinityPSU *float64  `json:"avg_surface_salinity_psu,omitempty"`
	DeepestPointM         float64   `json:"deepest_point_m"`
	Synthetic             bool      `json:"synthetic"`
}

// RegionModelBundle is the per-region unit returned to callers: the current model
// of every target parameter plus the summary of the dataset they were trained on.
// Ready is true only when every target parameter has a model.
type RegionModelBundle struct {
	RegionKey        string                      `json:"region_key"`
	Models           map[Parameter]*TrainedModel `json:"models"`
	Summary          Summary                     `json:"summary"`
	Ready            bool                        `json:"ready"`
	DatasetFetchedAt time.Time                   `json:"dataset_fetched_at"`
	DataExpiresAt    time.Time                   `json:"data_expires_at"`
	Dataset          *RawDataset                 `json:"-"`
	Predictors       map[Parameter]Predictor     `json:"-"`
}

// NewBundle creates an empty, not ready bundle for a region.
func NewBundle(regionKey string) *RegionModelBundle {
	return &RegionModelBundle{
		RegionKey:  regionKey,
		Models:     make(map[Parameter]*TrainedModel),
		Predictors: make(map[Parameter]Predictor),
	}
}

// Complete reports whether every given parameter has a model.
func (b *RegionModelBundle) Complete(params []Parameter) bool {
	for _, p := range params {
		if _, ok := b.Models[p]; !ok {
			return false
		}
	}
	return true
}

// Predictor returns the loaded predictor of a parameter.
func (b *RegionModelBundle) Predictor(p Parameter) (Predictor, bool) {
	pr, ok := b.Predictors[p]
	return pr, ok
}

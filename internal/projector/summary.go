// Package projector turns region datasets and bundles into API payloads:
// summaries, model metrics, feature importances and chart descriptions.
package projector

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/oceanoracle/internal/models"
)

// SurfaceDepth is the deepest level, in metres, counted as surface
const SurfaceDepth = 10

// Summarize digests a dataset
func Summarize(region models.RegionDescriptor, dataset *models.RawDataset) models.Summary {
	s := models.Summary{Region: region.DisplayName}
	if dataset == nil || len(dataset.Records) == 0 {
		return s
	}
	s.RecordCount = len(dataset.Records)
	s.Synthetic = dataset.Source.Synthetic

	profiles := make(map[string]struct{})
	floats := make(map[string]struct{})
	var surfaceTemp, surfaceSal []float64
	var first, last time.Time

	for i := range dataset.Records {
		rec := &dataset.Records[i]
		profiles[rec.ProfileID()] = struct{}{}
		floats[rec.FloatID] = struct{}{}

		if first.IsZero() || rec.Time.Before(first) {
			first = rec.Time
		}
		if rec.Time.After(last) {
			last = rec.Time
		}
		if rec.Depth > s.DeepestPointM {
			s.DeepestPointM = rec.Depth
		}
		if rec.Depth <= SurfaceDepth {
			surfaceTemp = append(surfaceTemp, rec.Temperature)
			surfaceSal = append(surfaceSal, rec.Salinity)
		}
	}

	s.NumProfiles = len(profiles)
	s.NumFloats = len(floats)
	s.DateRange = models.DateRange{Start: first, End: last}
	s.DeepestPointM = math.Round(s.DeepestPointM)
	if len(surfaceTemp) > 0 {
		t := round2(stat.Mean(surfaceTemp, nil))
		sal := round2(stat.Mean(surfaceSal, nil))
		s.AvgSurfaceTempC = &t
		s.AvgSurfaceSalinityPSU = &sal
	}
	return s
}

// ModelMetrics is the API view of one model's evaluation
type ModelMetrics struct {
	R2        float64   `json:"r2"`
	MAE       float64   `json:"mae"`
	ModelType string    `json:"model_type"`
	TrainedAt time.Time `json:"trained_at"`
}

// Metrics reports the evaluation of every model in the bundle
func Metrics(bundle *models.RegionModelBundle) map[models.Parameter]ModelMetrics {
	out := make(map[models.Parameter]ModelMetrics, len(bundle.Models))
	for p, m := range bundle.Models {
		out[p] = ModelMetrics{
			R2:        m.Metrics.R2,
			MAE:       m.Metrics.MAE,
			ModelType: m.ModelType,
			TrainedAt: m.TrainedAt,
		}
	}
	return out
}

// FeatureImportance ranks the inputs of every predictor that can explain itself
func FeatureImportance(bundle *models.RegionModelBundle) map[models.Parameter][]models.FeatureImportance {
	out := make(map[models.Parameter][]models.FeatureImportance)
	for p, pred := range bundle.Predictors {
		if e, ok := pred.(models.Explainer); ok {
			out[p] = e.Importances()
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Package trainer fits per-parameter regression models on raw Argo records.
//
// Models are ordinary least squares fits over standardized cyclic features,
// evaluated on a seeded hold-out split.
package trainer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/oceanoracle/internal/models"
)

// ModelType labels models produced by this package
const ModelType = "linear_ols"

// minStd is the spread below which a feature is treated as constant
const minStd = 1e-9

// Options configures a Trainer
type Options struct {
	TestFraction float64
	RandomSeed   int64
	MinRecords   int
}

// Trainer fits linear models
type Trainer struct {
	opts Options
}

// New creates a Trainer
func New(opts Options) *Trainer {
	if opts.TestFraction <= 0 || opts.TestFraction >= 1 {
		opts.TestFraction = 0.2
	}
	if opts.MinRecords < 1 {
		opts.MinRecords = 50
	}
	return &Trainer{opts: opts}
}

// artifact is the serialized form of a fitted model
type artifact struct {
	Features     []string  `json:"features"`
	Means        []float64 `json:"means"`
	Stds         []float64 `json:"stds"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// Train fits a model for parameter. The returned model has no ID, region key or
// trained-at time; the caller stamps those.
func (t *Trainer) Train(ctx context.Context, records []models.RawDataRecord, parameter models.Parameter) (*models.TrainedModel, error) {
	x, y := design(records, parameter)
	if len(y) < t.opts.MinRecords {
		return nil, fmt.Errorf("not enough data to train %s model: %d usable records, need %d", parameter, len(y), t.opts.MinRecords)
	}

	nFeat := len(FeatureNames)
	a := artifact{
		Features:     append([]string(nil), FeatureNames...),
		Means:        make([]float64, nFeat),
		Stds:         make([]float64, nFeat),
		Coefficients: make([]float64, nFeat),
	}

	// Standardize on all usable rows; constant columns carry no signal
	var active []int
	col := make([]float64, len(y))
	for j := 0; j < nFeat; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		a.Means[j] = mean
		if std < minStd || math.IsNaN(std) {
			a.Stds[j] = 1
			continue
		}
		a.Stds[j] = std
		active = append(active, j)
	}

	// Seeded hold-out split
	rnd := rand.New(rand.NewSource(t.opts.RandomSeed))
	perm := rnd.Perm(len(y))
	nTest := int(math.Round(float64(len(y)) * t.opts.TestFraction))
	if nTest < 1 {
		nTest = 1
	}
	testIdx, trainIdx := perm[:nTest], perm[nTest:]
	if len(trainIdx) <= len(active)+1 {
		return nil, fmt.Errorf("not enough training rows for %d features", len(active))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cols := len(active) + 1
	data := make([]float64, 0, len(trainIdx)*cols)
	target := make([]float64, 0, len(trainIdx))
	for _, i := range trainIdx {
		data = append(data, 1)
		for _, j := range active {
			data = append(data, (x[i][j]-a.Means[j])/a.Stds[j])
		}
		target = append(target, y[i])
	}

	X := mat.NewDense(len(trainIdx), cols, data)
	Y := mat.NewVecDense(len(target), target)
	var beta mat.VecDense
	if err := beta.SolveVec(X, Y); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, fmt.Errorf("design matrix is singular (condition %g)", float64(cond))
		}
		return nil, fmt.Errorf("least squares failed: %w", err)
	}

	a.Intercept = beta.AtVec(0)
	for k, j := range active {
		a.Coefficients[j] = beta.AtVec(k + 1)
	}

	// Hold-out evaluation
	p := &predictor{a: a}
	estimates := make([]float64, len(testIdx))
	values := make([]float64, len(testIdx))
	var absErr float64
	for k, i := range testIdx {
		estimates[k] = p.predictFeatures(x[i])
		values[k] = y[i]
		absErr += math.Abs(estimates[k] - values[k])
	}
	r2 := 0.0
	if len(testIdx) > 1 {
		r2 = stat.RSquaredFrom(estimates, values, nil)
	}
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}

	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact: %w", err)
	}

	return &models.TrainedModel{
		Parameter: parameter,
		Artifact:  raw,
		Metrics: models.Metrics{
			R2:  roundThousandth(r2),
			MAE: roundThousandth(absErr / float64(len(testIdx))),
		},
		ModelType:          ModelType,
		InputSchemaVersion: SchemaVersion,
		TrainingRecords:    len(trainIdx),
	}, nil
}

// Load decodes a model produced by Train
func (t *Trainer) Load(model *models.TrainedModel) (models.Predictor, error) {
	if model.ModelType != ModelType {
		return nil, fmt.Errorf("unsupported model type %q", model.ModelType)
	}
	if model.InputSchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported input schema version %d", model.InputSchemaVersion)
	}

	var a artifact
	if err := json.Unmarshal(model.Artifact, &a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	n := len(FeatureNames)
	if len(a.Features) != n || len(a.Means) != n || len(a.Stds) != n || len(a.Coefficients) != n {
		return nil, errors.New("artifact does not match the feature schema")
	}
	for i, name := range FeatureNames {
		if a.Features[i] != name {
			return nil, fmt.Errorf("artifact feature %d is %s, expected %s", i, a.Features[i], name)
		}
		if a.Stds[i] == 0 {
			return nil, fmt.Errorf("artifact feature %s has zero spread", name)
		}
	}

	return &predictor{a: a}, nil
}

// SchemaVersion returns the feature schema version of newly trained models
func (t *Trainer) SchemaVersion() int {
	return SchemaVersion
}

// design extracts the feature matrix and target of usable records
func design(records []models.RawDataRecord, parameter models.Parameter) ([][]float64, []float64) {
	var x [][]float64
	var y []float64
	for i := range records {
		rec := &records[i]
		if !rec.Usable() {
			continue
		}
		v, ok := rec.Value(parameter)
		if !ok {
			continue
		}
		x = append(x, features(rec.Latitude, rec.Longitude, rec.Depth, rec.Month()))
		y = append(y, v)
	}
	return x, y
}

// predictor evaluates a fitted artifact
type predictor struct {
	a artifact
}

func (p *predictor) predictFeatures(f []float64) float64 {
	out := p.a.Intercept
	for j, v := range f {
		out += p.a.Coefficients[j] * (v - p.a.Means[j]) / p.a.Stds[j]
	}
	return out
}

// Predict evaluates the model
func (p *predictor) Predict(lat, lon, depth float64, month int) float64 {
	return p.predictFeatures(features(lat, lon, depth, month))
}

// Importances returns each feature's share of the absolute standardized
// coefficients, largest first
func (p *predictor) Importances() []models.FeatureImportance {
	var total float64
	for _, c := range p.a.Coefficients {
		total += math.Abs(c)
	}

	out := make([]models.FeatureImportance, len(p.a.Features))
	for i, name := range p.a.Features {
		share := 0.0
		if total > 0 {
			share = math.Abs(p.a.Coefficients[i]) / total
		}
		out[i] = models.FeatureImportance{Feature: name, Importance: roundThousandth(share)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance > out[j].Importance
	})
	return out
}

func roundThousandth(v float64) float64 {
	return math.Round(v*1000) / 1000
}

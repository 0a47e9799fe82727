// Package advisor derives fishing and research guidance from a region's
// models and measurements.
package advisor

import (
	"fmt"
	"math"
	"strings"

	"github.com/rewired-gh/oceanoracle/internal/models"
)

// FishingDepths are the levels, in metres, a fishing report covers
var FishingDepths = []float64{10, 50, 100, 200}

// GeneralTip closes every fishing report
const GeneralTip = "Best fishing times are often early morning and late evening."

// PredictedValue is one model output at a point
type PredictedValue struct {
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"` // hold-out R² of the model
}

// Predict evaluates every loaded model of the bundle at a point
func Predict(bundle *models.RegionModelBundle, lat, lon, depth float64, month int) map[models.Parameter]PredictedValue {
	out := make(map[models.Parameter]PredictedValue, len(bundle.Predictors))
	for p, pred := range bundle.Predictors {
		v := PredictedValue{
			Value: round2(pred.Predict(lat, lon, depth, month)),
			Unit:  p.Unit(),
		}
		if m, ok := bundle.Models[p]; ok {
			v.Confidence = m.Metrics.R2
		}
		out[p] = v
	}
	return out
}

// DepthAdvice is the outlook at one depth
type DepthAdvice struct {
	Depth                float64 `json:"depth_m"`
	PredictedTemperature float64 `json:"predicted_temperature_c"`
	Species              string  `json:"good_for"`
	Conditions           string  `json:"conditions"`
	Recommended          bool    `json:"recommended"`
}

// FishingReport is the fishing outlook at a location and month
type FishingReport struct {
	Latitude  float64       `json:"lat"`
	Longitude float64       `json:"lon"`
	Month     int           `json:"month"`
	Depths    []DepthAdvice `json:"depths"`
	Tip       string        `json:"tip"`
}

// classify maps a water temperature to target species
func classify(temp float64) DepthAdvice {
	switch {
	case temp > 24 && temp < 30:
		return DepthAdvice{Species: "Tuna, Marlin, Dolphinfish", Conditions: "Recommended fishing depth", Recommended: true}
	case temp > 20 && temp <= 24:
		return DepthAdvice{Species: "Mackerel, Sardines, Anchovies", Conditions: "Moderate conditions"}
	default:
		return DepthAdvice{Species: "Deep-water species", Conditions: "Cool water fishing"}
	}
}

// FishingAdvice predicts temperature at the standard fishing depths
func FishingAdvice(temperature models.Predictor, lat, lon float64, month int) FishingReport {
	r := FishingReport{Latitude: lat, Longitude: lon, Month: month, Tip: GeneralTip}
	for _, depth := range FishingDepths {
		temp := round2(temperature.Predict(lat, lon, depth, month))
		a := classify(temp)
		a.Depth = depth
		a.PredictedTemperature = temp
		r.Depths = append(r.Depths, a)
	}
	return r
}

// Text renders the report for chat and CLI output
func (r FishingReport) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fishing Conditions Report for %.2f°N, %.2f°E in Month %d:\n\n", r.Latitude, r.Longitude, r.Month)
	for _, d := range r.Depths {
		fmt.Fprintf(&b, "Depth %.0fm:\n", d.Depth)
		fmt.Fprintf(&b, "   Predicted Temperature: %.2f°C\n", d.PredictedTemperature)
		fmt.Fprintf(&b, "   Good for: %s. %s.\n\n", d.Species, d.Conditions)
	}
	b.WriteString("General Tip: " + r.Tip)
	return b.String()
}

// WaterMass summarizes measurements within a depth band
type WaterMass struct {
	Name           string  `json:"name"`
	MinDepth       float64 `json:"min_depth_m"`
	MaxDepth       float64 `json:"max_depth_m,omitempty"` // zero means unbounded
	AvgTemperature float64 `json:"avg_temperature_c"`
	AvgSalinity    float64 `json:"avg_salinity_psu"`
	DataPoints     int     `json:"data_points"`
}

type band struct {
	name     string
	min, max float64 // (min, max], max zero means unbounded
	lowerInc bool
}

var bands = []band{
	{name: "Surface Water (0-100m)", min: 0, max: 100, lowerInc: true},
	{name: "Intermediate Water (100-1000m)", min: 100, max: 1000},
	{name: "Deep Water (>1000m)", min: 1000},
}

func (b band) contains(depth float64) bool {
	if b.lowerInc {
		if depth < b.min {
			return false
		}
	} else if depth <= b.min {
		return false
	}
	return b.max == 0 || depth <= b.max
}

// WaterMasses groups a dataset into surface, intermediate and deep water.
// Empty bands are omitted.
func WaterMasses(dataset *models.RawDataset) []WaterMass {
	if dataset == nil {
		return nil
	}
	var out []WaterMass
	for _, b := range bands {
		var temp, sal float64
		n := 0
		for i := range dataset.Records {
			rec := &dataset.Records[i]
			if !b.contains(rec.Depth) {
				continue
			}
			temp += rec.Temperature
			sal += rec.Salinity
			n++
		}
		if n == 0 {
			continue
		}
		out = append(out, WaterMass{
			Name:           b.name,
			MinDepth:       b.min,
			MaxDepth:       b.max,
			AvgTemperature: round2(temp / float64(n)),
			AvgSalinity:    round2(sal / float64(n)),
			DataPoints:     n,
		})
	}
	return out
}

// WaterMassText renders a water mass analysis
func WaterMassText(masses []WaterMass) string {
	if len(masses) == 0 {
		return "No data available for water mass analysis."
	}
	var b strings.Builder
	b.WriteString("Water Mass Analysis:\n\n")
	for _, m := range masses {
		fmt.Fprintf(&b, "%s:\n", m.Name)
		fmt.Fprintf(&b, "   Avg Temp: %.2f°C\n", m.AvgTemperature)
		fmt.Fprintf(&b, "   Avg Salinity: %.2f PSU\n", m.AvgSalinity)
		fmt.Fprintf(&b, "   Data Points: %d\n\n", m.DataPoints)
	}
	return strings.TrimRight(b.String(), "\n")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

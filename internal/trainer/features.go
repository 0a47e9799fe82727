package trainer

import "math"

// SchemaVersion identifies the feature layout below. Models trained with a
// different version cannot be loaded.
const SchemaVersion = 1

// FeatureNames lists the model inputs in column order
var FeatureNames = []string{
	"lat_sin", "lat_cos",
	"lon_sin", "lon_cos",
	"depth_log", "depth_log_sq",
	"month_sin", "month_cos",
}

// features encodes a location, depth and month as model inputs. Angles and
// months are cyclic, depth is log-scaled.
func features(lat, lon, depth float64, month int) []float64 {
	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180
	monthAngle := 2 * math.Pi * float64(month) / 12
	depthLog := math.Log1p(math.Max(depth, 0))

	return []float64{
		math.Sin(latRad), math.Cos(latRad),
		math.Sin(lonRad), math.Cos(lonRad),
		depthLog, depthLog * depthLog,
		math.Sin(monthAngle), math.Cos(monthAngle),
	}
}

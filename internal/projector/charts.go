package projector

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rewired-gh/oceanoracle/internal/models"
)

const (
	sampleSeed        = 42
	maxDepthProfiles  = 8
	minProfilePoints  = 4
	minDailyPoints    = 5
	minGeoPoints      = 10
	fallbackGeoPoints = 100
	min3DPoints       = 20
	fallback3DPoints  = 200
)

// GeoPoint is one measurement placed on a map
type GeoPoint struct {
	Latitude    float64   `json:"lat"`
	Longitude   float64   `json:"lon"`
	Depth       float64   `json:"depth"`
	Temperature float64   `json:"temperature"`
	Salinity    float64   `json:"salinity"`
	ProfileID   string    `json:"profile_id"`
	Date        time.Time `json:"date"`
}

// GeoMap is a scatter map of float positions coloured by temperature
type GeoMap struct {
	Title     string     `json:"title"`
	CenterLat float64    `json:"center_lat"`
	CenterLon float64    `json:"center_lon"`
	ColorBy   string     `json:"color_by"`
	SizeBy    string     `json:"size_by"`
	Points    []GeoPoint `json:"points"`
}

// DepthPoint is a temperature reading at a depth
type DepthPoint struct {
	Depth       float64 `json:"depth"`
	Temperature float64 `json:"temperature"`
}

// ProfileSeries is one vertical profile
type ProfileSeries struct {
	Name   string       `json:"name"`
	Points []DepthPoint `json:"points"`
}

// DepthProfile plots temperature against depth for a few profiles
type DepthProfile struct {
	Title        string          `json:"title"`
	XAxis        string          `json:"x_axis"`
	YAxis        string          `json:"y_axis"`
	YAxisReverse bool            `json:"y_axis_reversed"`
	Profiles     []ProfileSeries `json:"profiles"`
}

// TimePoint is a mean surface reading for a day or month
type TimePoint struct {
	Date        time.Time `json:"date"`
	Temperature float64   `json:"temperature"`
	Salinity    float64   `json:"salinity"`
	Count       int       `json:"count"`
}

// TimeSeries tracks surface conditions over time
type TimeSeries struct {
	Title      string      `json:"title"`
	Resolution string      `json:"resolution"` // daily or monthly
	Points     []TimePoint `json:"points"`
}

// Point3D is a measurement in lon, lat, depth space
type Point3D struct {
	Longitude   float64 `json:"lon"`
	Latitude    float64 `json:"lat"`
	Depth       float64 `json:"depth"`
	Temperature float64 `json:"temperature"`
	Salinity    float64 `json:"salinity"`
}

// Scatter3D is a 3D scatter of measurements
type Scatter3D struct {
	Title  string    `json:"title"`
	Points []Point3D `json:"points"`
}

// Visualizations holds every chart description of a region
type Visualizations struct {
	GeoMap       GeoMap       `json:"geo_map"`
	DepthProfile DepthProfile `json:"depth_profile"`
	TimeSeries   TimeSeries   `json:"time_series"`
	Scatter3D    Scatter3D    `json:"scatter_3d"`
}

// sample returns up to n record indices chosen with a fixed seed, in
// selection order
func sample(total, n int) []int {
	if n > total {
		n = total
	}
	rnd := rand.New(rand.NewSource(sampleSeed))
	return rnd.Perm(total)[:n]
}

// BuildVisualizations describes the charts of a dataset. sampleSize caps the
// points sent per chart.
func BuildVisualizations(region models.RegionDescriptor, dataset *models.RawDataset, sampleSize int) Visualizations {
	v := Visualizations{
		GeoMap:       GeoMap{Title: "ARGO Float Distribution - " + region.DisplayName, ColorBy: "temperature", SizeBy: "depth"},
		DepthProfile: DepthProfile{Title: "Temperature Depth Profiles", XAxis: "Temperature (°C)", YAxis: "Depth (m)", YAxisReverse: true},
		TimeSeries:   TimeSeries{Title: "Surface Conditions Time Series", Resolution: "daily"},
		Scatter3D:    Scatter3D{Title: "3D Ocean Data Visualization"},
	}
	if dataset == nil || len(dataset.Records) == 0 {
		v.GeoMap.CenterLat, v.GeoMap.CenterLon = region.BoundingBox.Center()
		return v
	}
	records := dataset.Records
	idx := sample(len(records), sampleSize)

	v.GeoMap = geoMap(v.GeoMap, records, idx)
	v.DepthProfile.Profiles = depthProfiles(records, idx)
	v.TimeSeries = timeSeries(v.TimeSeries, records)
	v.Scatter3D = scatter3D(v.Scatter3D, records, idx)
	return v
}

func geoMap(m GeoMap, records []models.RawDataRecord, idx []int) GeoMap {
	if len(idx) < minGeoPoints {
		idx = sample(len(records), fallbackGeoPoints)
	}
	var sumLat, sumLon float64
	m.Points = make([]GeoPoint, 0, len(idx))
	for _, i := range idx {
		rec := &records[i]
		sumLat += rec.Latitude
		sumLon += rec.Longitude
		m.Points = append(m.Points, GeoPoint{
			Latitude:    rec.Latitude,
			Longitude:   rec.Longitude,
			Depth:       rec.Depth,
			Temperature: rec.Temperature,
			Salinity:    rec.Salinity,
			ProfileID:   rec.ProfileID(),
			Date:        rec.Time,
		})
	}
	if n := float64(len(idx)); n > 0 {
		m.CenterLat = sumLat / n
		m.CenterLon = sumLon / n
	}
	return m
}

// depthProfiles picks the first profiles seen in the sample and plots each
// in full, skipping profiles with too few levels
func depthProfiles(records []models.RawDataRecord, idx []int) []ProfileSeries {
	byProfile := make(map[string][]DepthPoint)
	for i := range records {
		rec := &records[i]
		id := rec.ProfileID()
		byProfile[id] = append(byProfile[id], DepthPoint{Depth: rec.Depth, Temperature: rec.Temperature})
	}

	seen := make(map[string]bool)
	var picked []string
	for _, i := range idx {
		id := records[i].ProfileID()
		if seen[id] {
			continue
		}
		seen[id] = true
		picked = append(picked, id)
		if len(picked) == maxDepthProfiles {
			break
		}
	}

	out := make([]ProfileSeries, 0, len(picked))
	for _, id := range picked {
		points := byProfile[id]
		if len(points) < minProfilePoints {
			continue
		}
		sort.Slice(points, func(a, b int) bool { return points[a].Depth < points[b].Depth })
		out = append(out, ProfileSeries{Name: "Profile " + cycleLabel(id), Points: points})
	}
	return out
}

func cycleLabel(profileID string) string {
	for i := len(profileID) - 1; i >= 0; i-- {
		if profileID[i] == '_' {
			return profileID[i+1:]
		}
	}
	return profileID
}

// timeSeries averages surface readings per day, or per month when fewer
// than five days have data
func timeSeries(ts TimeSeries, records []models.RawDataRecord) TimeSeries {
	daily := bucket(records, func(t time.Time) time.Time {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	})
	if len(daily) >= minDailyPoints {
		ts.Points = daily
		return ts
	}
	ts.Resolution = "monthly"
	ts.Points = bucket(records, func(t time.Time) time.Time {
		y, m, _ := t.UTC().Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	})
	return ts
}

func bucket(records []models.RawDataRecord, key func(time.Time) time.Time) []TimePoint {
	type acc struct {
		temp, sal float64
		n         int
	}
	groups := make(map[time.Time]*acc)
	for i := range records {
		rec := &records[i]
		if rec.Depth > SurfaceDepth {
			continue
		}
		k := key(rec.Time)
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		a.temp += rec.Temperature
		a.sal += rec.Salinity
		a.n++
	}

	out := make([]TimePoint, 0, len(groups))
	for k, a := range groups {
		out = append(out, TimePoint{
			Date:        k,
			Temperature: round2(a.temp / float64(a.n)),
			Salinity:    round2(a.sal / float64(a.n)),
			Count:       a.n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func scatter3D(s Scatter3D, records []models.RawDataRecord, idx []int) Scatter3D {
	if len(idx) < min3DPoints {
		idx = sample(len(records), fallback3DPoints)
	}
	s.Points = make([]Point3D, 0, len(idx))
	for _, i := range idx {
		rec := &records[i]
		s.Points = append(s.Points, Point3D{
			Longitude:   rec.Longitude,
			Latitude:    rec.Latitude,
			Depth:       rec.Depth,
			Temperature: rec.Temperature,
			Salinity:    rec.Salinity,
		})
	}
	return s
}

// String describes the payload sizes, for logging
func (v Visualizations) String() string {
	return fmt.Sprintf("geo_map=%d depth_profile=%d time_series=%d scatter_3d=%d",
		len(v.GeoMap.Points), len(v.DepthProfile.Profiles), len(v.TimeSeries.Points), len(v.Scatter3D.Points))
}

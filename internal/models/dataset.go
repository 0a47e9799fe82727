package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// RawDataRecord is a single Argo float measurement at one depth level of one profile.
type RawDataRecord struct {
	FloatID     string    `json:"float_id"`     // Argo platform number
	CycleNumber int       `json:"cycle_number"` // Profile cycle of the float
	Time        time.Time `json:"time"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Depth       float64   `json:"depth"`       // Pressure in dbar, used as depth in metres
	Temperature float64   `json:"temperature"` // Degrees Celsius
	Salinity    float64   `json:"salinity"`    // PSU
}

// ProfileID identifies the vertical profile the record belongs to.
func (r *RawDataRecord) ProfileID() string {
	return fmt.Sprintf("%s_%d", r.FloatID, r.CycleNumber)
}

// Month returns the calendar month of the measurement (1-12).
func (r *RawDataRecord) Month() int {
	return int(r.Time.Month())
}

// Value returns the measured value of a target parameter.
func (r *RawDataRecord) Value(p Parameter) (float64, bool) {
	switch p {
	case Temperature:
		return r.Temperature, true
	case Salinity:
		return r.Salinity, true
	default:
		return 0, false
	}
}

// Usable reports whether every field needed for training is a finite number.
func (r *RawDataRecord) Usable() bool {
	for _, v := range []float64{r.Latitude, r.Longitude, r.Depth, r.Temperature, r.Salinity} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !r.Time.IsZero()
}

// SourceMetadata describes where a dataset came from.
type SourceMetadata struct {
	Provider  string `json:"provider"`
	URL       string `json:"url,omitempty"`
	Years     []int  `json:"years,omitempty"`
	Months    []int  `json:"months,omitempty"`
	MaxDepth  int    `json:"max_depth,omitempty"`
	Synthetic bool   `json:"synthetic"` // true if any part was generated instead of fetched
}

// RawDataset is the set of measurements fetched for a region at FetchedAt.
// All records belong to RegionKey and lie within the region's bounding box.
type RawDataset struct {
	RegionKey string          `json:"region_key"`
	FetchedAt time.Time       `json:"fetched_at"`
	Records   []RawDataRecord `json:"records"`
	Source    SourceMetadata  `json:"source"`
}

// Validate checks the dataset against the region it claims to belong to.
func (d *RawDataset) Validate(region RegionDescriptor) error {
	if d.RegionKey == "" {
		return errors.New("dataset region key must not be empty")
	}
	if d.RegionKey != region.Key {
		return fmt.Errorf("dataset belongs to region %s, expected %s", d.RegionKey, region.Key)
	}
	if d.FetchedAt.IsZero() {
		return errors.New("dataset fetched at must be set")
	}
	if len(d.Records) == 0 {
		return errors.New("dataset has no records")
	}
	for i := range d.Records {
		rec := &d.Records[i]
		if !region.BoundingBox.Contains(rec.Latitude, rec.Longitude) {
			return fmt.Errorf("record %d (%.3f, %.3f) outside region %s", i, rec.Latitude, rec.Longitude, region.Key)
		}
	}
	return nil
}

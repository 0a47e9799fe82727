// Package models defines the core domain entities for the ocean oracle service.
// These models describe ocean regions, Argo float measurements cached per region,
// regression models trained on those measurements and the per-region bundle
// served to API callers.
//
// Terminology:
//   - Region: a named ocean area identified by a stable key and a bounding box.
//   - Dataset: the measurements fetched for one region at one point in time.
//   - Bundle: the current trained models of a region plus its derived summary.
package models

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-geom"
)

// BoundingBox is a geographic rectangle in degrees. Longitude is the X axis and
// latitude the Y axis, matching the layout of the region configuration
// ([lon_min, lon_max, lat_min, lat_max]).
type BoundingBox struct {
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
}

// NewBoundingBox builds a box from the [lon_min, lon_max, lat_min, lat_max] form.
func NewBoundingBox(bounds []float64) (BoundingBox, error) {
	if len(bounds) != 4 {
		return BoundingBox{}, fmt.Errorf("bounds must have 4 components, got %d", len(bounds))
	}
	box := BoundingBox{LonMin: bounds[0], LonMax: bounds[1], LatMin: bounds[2], LatMax: bounds[3]}
	return box, box.Validate()
}

// Validate checks coordinate ranges and ordering.
func (b BoundingBox) Validate() error {
	if b.LatMin < -90 || b.LatMax > 90 {
		return errors.New("latitude out of range [-90, 90]")
	}
	if b.LonMin < -180 || b.LonMax > 180 {
		return errors.New("longitude out of range [-180, 180]")
	}
	if b.LatMin >= b.LatMax || b.LonMin >= b.LonMax {
		return errors.New("min bounds must be below max bounds")
	}
	return nil
}

// Bounds returns the box as a go-geom XY bounds.
func (b BoundingBox) Bounds() *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(b.LonMin, b.LatMin, b.LonMax, b.LatMax)
}

// Contains reports whether the point lies inside the box or on its border.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return b.Bounds().OverlapsPoint(geom.XY, geom.Coord{lon, lat})
}

// Center returns the midpoint of the box as (lat, lon).
func (b BoundingBox) Center() (float64, float64) {
	return (b.LatMin + b.LatMax) / 2, (b.LonMin + b.LonMax) / 2
}

// Zone is a named potential fishing zone inside a region.
type Zone struct {
	Name   string  `json:"name"`
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

// RegionDescriptor identifies an ocean region. Descriptors are immutable once the
// registry is built.
type RegionDescriptor struct {
	Key          string      `json:"key"`
	DisplayName  string      `json:"display_name"`
	BoundingBox  BoundingBox `json:"bounding_box"`
	FishingZones []Zone      `json:"fishing_zones,omitempty"`
}

// Validate checks that all descriptor fields are valid.
func (r *RegionDescriptor) Validate() error {
	if r.Key == "" {
		return errors.New("region key must not be empty")
	}
	if r.DisplayName == "" {
		return errors.New("region display name must not be empty")
	}
	if err := r.BoundingBox.Validate(); err != nil {
		return fmt.Errorf("region %s: %w", r.Key, err)
	}
	return nil
}

// Package regions holds the immutable set of ocean regions the service knows about.
package regions

import (
	"fmt"
	"sort"

	"github.com/rewired-gh/oceanoracle/internal/config"
	"github.com/rewired-gh/oceanoracle/internal/models"
)

// Registry maps region keys to descriptors. It is read-only after New.
type Registry struct {
	byKey map[string]models.RegionDescriptor
	keys  []string
}

// New validates the descriptors and builds a registry.
func New(descriptors []models.RegionDescriptor) (*Registry, error) {
	r := &Registry{byKey: make(map[string]models.RegionDescriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("invalid region: %w", err)
		}
		if _, dup := r.byKey[d.Key]; dup {
			return nil, fmt.Errorf("duplicate region key: %s", d.Key)
		}
		r.byKey[d.Key] = d
		r.keys = append(r.keys, d.Key)
	}
	if len(r.keys) == 0 {
		return nil, fmt.Errorf("at least one region is required")
	}
	sort.Strings(r.keys)
	return r, nil
}

// FromConfig builds a registry from the regions section of the configuration.
func FromConfig(cfg map[string]config.RegionConfig) (*Registry, error) {
	descriptors := make([]models.RegionDescriptor, 0, len(cfg))
	for key, rc := range cfg {
		box, err := models.NewBoundingBox(rc.Bounds)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", key, err)
		}
		d := models.RegionDescriptor{
			Key:         key,
			DisplayName: rc.Name,
			BoundingBox: box,
		}
		for _, z := range rc.PFZZones {
			if len(z.Lat) != 2 || len(z.Lon) != 2 {
				return nil, fmt.Errorf("region %s: zone %s needs 2 lat and 2 lon values", key, z.Name)
			}
			d.FishingZones = append(d.FishingZones, models.Zone{
				Name:   z.Name,
				LatMin: z.Lat[0],
				LatMax: z.Lat[1],
				LonMin: z.Lon[0],
				LonMax: z.Lon[1],
			})
		}
		descriptors = append(descriptors, d)
	}
	return New(descriptors)
}

// Get returns the descriptor for key or an UnknownRegionError.
func (r *Registry) Get(key string) (models.RegionDescriptor, error) {
	d, ok := r.byKey[key]
	if !ok {
		return models.RegionDescriptor{}, &models.UnknownRegionError{RegionKey: key}
	}
	return d, nil
}

// Keys returns all region keys in sorted order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// All returns all descriptors sorted by key.
func (r *Registry) All() []models.RegionDescriptor {
	out := make([]models.RegionDescriptor, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.byKey[k])
	}
	return out
}

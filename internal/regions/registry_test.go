package regions

import (
	"errors"
	"testing"

	"github.com/rewired-gh/oceanoracle/internal/config"
	"github.com/rewired-gh/oceanoracle/internal/models"
)

func TestFromConfigDefaults(t *testing.T) {
	reg, err := FromConfig(config.DefaultRegions())
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}

	keys := reg.Keys()
	if len(keys) != 3 || keys[0] != "arabian_sea" || keys[2] != "north_indian_ocean" {
		t.Errorf("Unexpected keys: %v", keys)
	}

	d, err := reg.Get("arabian_sea")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := models.BoundingBox{LonMin: 50, LonMax: 80, LatMin: 5, LatMax: 25}
	if d.BoundingBox != want {
		t.Errorf("Unexpected bounding box: %+v", d.BoundingBox)
	}
	if d.DisplayName != "Arabian Sea" {
		t.Errorf("Unexpected name: %s", d.DisplayName)
	}
	if len(d.FishingZones) != 2 || d.FishingZones[0].Name != "Gujarat Coast" {
		t.Errorf("Unexpected zones: %+v", d.FishingZones)
	}
}

func TestGetUnknown(t *testing.T) {
	reg, err := FromConfig(config.DefaultRegions())
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}

	_, err = reg.Get("atlantis")
	var unknown *models.UnknownRegionError
	if !errors.As(err, &unknown) {
		t.Fatalf("Expected UnknownRegionError, got %v", err)
	}
	if unknown.RegionKey != "atlantis" {
		t.Errorf("Unexpected key in error: %s", unknown.RegionKey)
	}
}

func TestNewValidation(t *testing.T) {
	good := models.RegionDescriptor{
		Key:         "a",
		DisplayName: "A",
		BoundingBox: models.BoundingBox{LonMin: 0, LonMax: 10, LatMin: 0, LatMax: 10},
	}
	inverted := good
	inverted.Key = "b"
	inverted.BoundingBox = models.BoundingBox{LonMin: 10, LonMax: 0, LatMin: 0, LatMax: 10}

	tests := []struct {
		name    string
		in      []models.RegionDescriptor
		wantErr bool
	}{
		{"valid", []models.RegionDescriptor{good}, false},
		{"empty", nil, true},
		{"duplicate", []models.RegionDescriptor{good, good}, true},
		{"inverted box", []models.RegionDescriptor{inverted}, true},
		{"missing name", []models.RegionDescriptor{{Key: "c", BoundingBox: good.BoundingBox}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAllSorted(t *testing.T) {
	reg, err := FromConfig(config.DefaultRegions())
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	all := reg.All()
	for i := 1; i < len(all); i++ {
		if all[i-1].Key >= all[i].Key {
			t.Errorf("All() not sorted: %s before %s", all[i-1].Key, all[i].Key)
		}
	}
}

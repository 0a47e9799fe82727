package argo

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/oceanoracle/internal/models"
)

// standardDepths are the sample levels of a generated profile, in metres
var standardDepths = []float64{0, 10, 20, 50, 100, 200, 500, 1000, 1500, 2000}

// generateSample produces 20 to 49 plausible profiles for a year. Mixed-layer
// temperature cools slowly to 100 m and then follows a thermocline gradient.
func (c *Client) generateSample(region models.RegionDescriptor, year int) []models.RawDataRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	box := region.BoundingBox
	months := c.opts.Months
	if len(months) == 0 {
		months = []int{1}
	}

	nProfiles := 20 + c.rnd.Intn(30)
	records := make([]models.RawDataRecord, 0, nProfiles*len(standardDepths))

	for i := 0; i < nProfiles; i++ {
		lat := box.LatMin + c.rnd.Float64()*(box.LatMax-box.LatMin)
		lon := box.LonMin + c.rnd.Float64()*(box.LonMax-box.LonMin)
		month := months[c.rnd.Intn(len(months))]
		day := 1 + c.rnd.Intn(27)
		date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		floatID := "SAMPLE-" + uuid.NewString()[:8]

		for _, depth := range standardDepths {
			if c.opts.MaxDepth > 0 && depth > float64(c.opts.MaxDepth) {
				break
			}
			var temp float64
			if depth <= 100 {
				temp = 28 - depth*0.05 + c.rnd.NormFloat64()
			} else {
				temp = 23 - (depth-100)*0.005 + c.rnd.NormFloat64()*0.5
			}
			salinity := 34.5 + c.rnd.NormFloat64()*0.3

			records = append(records, models.RawDataRecord{
				FloatID:     floatID,
				CycleNumber: 1,
				Time:        date,
				Latitude:    lat,
				Longitude:   lon,
				Depth:       depth,
				Temperature: math.Max(temp, 2),
				Salinity:    math.Max(salinity, 30),
			})
		}
	}
	return records
}

package argo

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rewired-gh/oceanoracle/internal/logger"
	"github.com/rewired-gh/oceanoracle/internal/models"
)

var requiredColumns = []string{
	"platform_number", "cycle_number", "time", "latitude", "longitude", "pres", "temp", "psal",
}

// parseRows converts a tabledap table into records. Rows with a missing value
// or outside the region's bounding box are dropped.
func parseRows(table erddapTable, region models.RegionDescriptor) ([]models.RawDataRecord, error) {
	idx := make(map[string]int, len(table.Table.ColumnNames))
	for i, name := range table.Table.ColumnNames {
		idx[name] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("response is missing column %s", col)
		}
	}

	records := make([]models.RawDataRecord, 0, len(table.Table.Rows))
	dropped := 0
	for _, row := range table.Table.Rows {
		rec, ok := parseRow(row, idx)
		if !ok || !region.BoundingBox.Contains(rec.Latitude, rec.Longitude) {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	if dropped > 0 {
		logger.Debug("Dropped %d incomplete or out-of-region rows for %s", dropped, region.Key)
	}
	return records, nil
}

func parseRow(row []interface{}, idx map[string]int) (models.RawDataRecord, bool) {
	get := func(col string) interface{} {
		i := idx[col]
		if i >= len(row) {
			return nil
		}
		return row[i]
	}

	floatID, ok := asString(get("platform_number"))
	if !ok {
		return models.RawDataRecord{}, false
	}
	cycle, ok := asFloat(get("cycle_number"))
	if !ok {
		return models.RawDataRecord{}, false
	}
	ts, ok := asString(get("time"))
	if !ok {
		return models.RawDataRecord{}, false
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return models.RawDataRecord{}, false
	}

	rec := models.RawDataRecord{
		FloatID:     floatID,
		CycleNumber: int(cycle),
		Time:        t.UTC(),
	}
	for col, dst := range map[string]*float64{
		"latitude":  &rec.Latitude,
		"longitude": &rec.Longitude,
		"pres":      &rec.Depth,
		"temp":      &rec.Temperature,
		"psal":      &rec.Salinity,
	} {
		v, ok := asFloat(get(col))
		if !ok {
			return models.RawDataRecord{}, false
		}
		*dst = v
	}

	return rec, rec.Usable()
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

func asString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, x != ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return "", false
	}
}

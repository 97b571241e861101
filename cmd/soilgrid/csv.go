package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"soilgrid/pkg/models"
)

// loadSensorsCSV reads sensor observations from a headered CSV file.
// Required columns: x, y, moisture_surface. Optional: id,
// moisture_root, temperature, elevation.
func loadSensorsCSV(path string) ([]models.SensorObservation, error) {
	rows, cols, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	for _, required := range []string{"x", "y", "moisture_surface"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, required)
		}
	}

	out := make([]models.SensorObservation, 0, len(rows))
	for i, row := range rows {
		o := models.SensorObservation{}
		if idx, ok := cols["id"]; ok {
			o.ID = row[idx]
		}
		fields := []fieldSpec{
			{"x", &o.X},
			{"y", &o.Y},
			{"moisture_surface", &o.MoistureSurface},
			{"moisture_root", &o.MoistureRoot},
			{"temperature", &o.Temperature},
			{"elevation", &o.Elevation},
		}
		if err := parseFields(row, cols, fields); err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// loadCovariatesCSV reads covariate samples from a headered CSV file.
// Required columns: x, y, ndvi, ndwi, lst, elevation, slope.
func loadCovariatesCSV(path string) ([]models.CovariateSample, error) {
	rows, cols, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	required := append([]string{"x", "y"}, models.CovariateNames[:]...)
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, name)
		}
	}

	out := make([]models.CovariateSample, 0, len(rows))
	for i, row := range rows {
		c := models.CovariateSample{}
		fields := []fieldSpec{
			{"x", &c.X},
			{"y", &c.Y},
			{"ndvi", &c.NDVI},
			{"ndwi", &c.NDWI},
			{"lst", &c.LST},
			{"elevation", &c.Elevation},
			{"slope", &c.Slope},
		}
		if err := parseFields(row, cols, fields); err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// readCSV returns the data rows and a lower-cased header→index map.
func readCSV(path string) ([][]string, map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%s: empty file", path)
	}

	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return records[1:], cols, nil
}

// fieldSpec binds a CSV column name to its destination field.
type fieldSpec struct {
	name string
	dst  *float64
}

func parseFields(row []string, cols map[string]int, fields []fieldSpec) error {
	for _, f := range fields {
		idx, ok := cols[f.name]
		if !ok {
			continue
		}
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return fmt.Errorf("column %q: %w", f.name, err)
		}
		*f.dst = v
	}
	return nil
}

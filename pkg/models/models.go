// Package models defines the data types shared by the soilgrid
// interpolation pipeline: ground-sensor observations, remote-sensing
// covariate samples, bounding boxes, and the error taxonomy.
package models

// CovariateDim is the number of covariate channels carried by a
// CovariateSample. The trend model requires at least CovariateDim+2
// usable observations for a non-degenerate fit.
const CovariateDim = 5

// Covariate channel names, in the order returned by
// CovariateSample.Vector.
var CovariateNames = [CovariateDim]string{"ndvi", "ndwi", "lst", "elevation", "slope"}

// SensorObservation is a single ground-sensor reading at a point.
// X is longitude and Y is latitude, in the same reference system as
// the covariate samples and the requested bounds. Values are treated
// as immutable once read; a fresh snapshot is supplied per
// interpolation call.
type SensorObservation struct {
	ID string

	X float64
	Y float64

	// MoistureSurface is the observed volumetric surface moisture
	// fraction, expected in [0,1] but never clamped.
	MoistureSurface float64

	// Secondary readings. Optional; zero when the probe does not
	// report them.
	MoistureRoot float64
	Temperature  float64
	Elevation    float64
}

// CovariateSample is a remote-sensing derived sample at a point:
// vegetation and water indices, land-surface temperature, and terrain
// attributes used as trend-model predictors.
type CovariateSample struct {
	X float64
	Y float64

	NDVI      float64
	NDWI      float64
	LST       float64
	Elevation float64
	Slope     float64
}

// Vector returns the covariate channels as a slice in CovariateNames
// order.
func (c CovariateSample) Vector() []float64 {
	return []float64{c.NDVI, c.NDWI, c.LST, c.Elevation, c.Slope}
}

// Bounds is an axis-aligned bounding box in the input coordinate
// reference system.
type Bounds struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// Valid reports whether the box spans a positive area on both axes.
func (b Bounds) Valid() bool {
	return b.MaxX > b.MinX && b.MaxY > b.MinY
}

// Target selects which sensor quantity the engine interpolates.
type Target int

const (
	TargetMoistureSurface Target = iota
	TargetMoistureRoot
	TargetTemperature
)

// Value extracts the target quantity from an observation.
func (t Target) Value(o SensorObservation) float64 {
	switch t {
	case TargetMoistureRoot:
		return o.MoistureRoot
	case TargetTemperature:
		return o.Temperature
	default:
		return o.MoistureSurface
	}
}

func (t Target) String() string {
	switch t {
	case TargetMoistureRoot:
		return "moisture_root"
	case TargetTemperature:
		return "temperature"
	default:
		return "moisture_surface"
	}
}

// ParseTarget maps a target name ("surface", "root", "temperature" and
// their long forms) to a Target. Unknown names fall back to the
// surface-moisture target, ok=false.
func ParseTarget(s string) (Target, bool) {
	switch s {
	case "surface", "moisture_surface", "":
		return TargetMoistureSurface, true
	case "root", "moisture_root":
		return TargetMoistureRoot, true
	case "temperature":
		return TargetTemperature, true
	}
	return TargetMoistureSurface, false
}

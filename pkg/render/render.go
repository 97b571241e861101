// Package render turns prediction and variance grids into PNG
// heatmaps for quick visual inspection of an interpolation run.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
)

// Renderer rasterizes a single 2-D value grid into an image. Values
// are normalized over the grid's own finite min/max; an all-equal grid
// renders as the low end of the ramp.
type Renderer struct {
	// scale is the edge length of the square of pixels drawn per grid
	// cell, so small lattices still produce an inspectable image.
	scale int
}

// NewRenderer creates a Renderer. Scale values < 1 fall back to 1.
func NewRenderer(scale int) *Renderer {
	if scale < 1 {
		scale = 1
	}
	return &Renderer{scale: scale}
}

// Heatmap renders the grid with a blue→green→red ramp, low to high.
// Non-finite cells render black. Grid rows are drawn bottom-up so the
// image's vertical axis matches increasing latitude.
func (r *Renderer) Heatmap(grid [][]float64) (image.Image, error) {
	rows, cols, err := dims(grid)
	if err != nil {
		return nil, err
	}
	lo, hi := finiteRange(grid)

	img := image.NewRGBA(image.Rect(0, 0, cols*r.scale, rows*r.scale))
	for gy := 0; gy < rows; gy++ {
		for gx := 0; gx < cols; gx++ {
			c := rampColor(normalize(grid[gy][gx], lo, hi))
			fillCell(img, gx, rows-1-gy, r.scale, c)
		}
	}
	return img, nil
}

// Grayscale renders the grid with a black→white ramp, low to high.
// Used for variance surfaces, where lighter means less certain.
func (r *Renderer) Grayscale(grid [][]float64) (image.Image, error) {
	rows, cols, err := dims(grid)
	if err != nil {
		return nil, err
	}
	lo, hi := finiteRange(grid)

	img := image.NewRGBA(image.Rect(0, 0, cols*r.scale, rows*r.scale))
	for gy := 0; gy < rows; gy++ {
		for gx := 0; gx < cols; gx++ {
			t := normalize(grid[gy][gx], lo, hi)
			v := uint8(math.Round(255 * t))
			fillCell(img, gx, rows-1-gy, r.scale, color.RGBA{v, v, v, 255})
		}
	}
	return img, nil
}

// SavePNG writes an image as PNG, creating the directory if needed.
func SavePNG(img image.Image, filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

func dims(grid [][]float64) (rows, cols int, err error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return 0, 0, fmt.Errorf("empty grid")
	}
	cols = len(grid[0])
	for i, row := range grid {
		if len(row) != cols {
			return 0, 0, fmt.Errorf("ragged grid: row %d has %d cells, want %d", i, len(row), cols)
		}
	}
	return len(grid), cols, nil
}

func finiteRange(grid [][]float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range grid {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi
}

// normalize maps v into [0,1] over [lo,hi]; NaN stays NaN and a
// degenerate range maps everything to 0.
func normalize(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN()
	}
	if hi <= lo {
		return 0
	}
	return (v - lo) / (hi - lo)
}

// rampColor maps t in [0,1] through blue→green→red. NaN is black.
func rampColor(t float64) color.RGBA {
	if math.IsNaN(t) {
		return color.RGBA{0, 0, 0, 255}
	}
	if t < 0.5 {
		u := t * 2
		return color.RGBA{0, uint8(math.Round(255 * u)), uint8(math.Round(255 * (1 - u))), 255}
	}
	u := (t - 0.5) * 2
	return color.RGBA{uint8(math.Round(255 * u)), uint8(math.Round(255 * (1 - u))), 0, 255}
}

func fillCell(img *image.RGBA, gx, gy, scale int, c color.RGBA) {
	for dy := 0; dy < scale; dy++ {
		for dx := 0; dx < scale; dx++ {
			img.SetRGBA(gx*scale+dx, gy*scale+dy, c)
		}
	}
}

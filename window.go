package ndvi

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultMaxSize is the default maximum width and height of a window read.
const DefaultMaxSize = 512

// densifyPoints is the number of points along each edge of a bounding box
// used when reprojecting it.
const densifyPoints = 21

// A BBox is a bounding box in EPSG:4326.
type BBox struct {
	West  float64
	South float64
	East  float64
	North float64
}

// A Window is a fractional rectangle in pixel space.
type Window struct {
	ColOff float64
	RowOff float64
	Width  float64
	Height float64
}

// ParseBBox parses a bounding box of the form west,south,east,north.
func ParseBBox(s string) (BBox, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return BBox{}, fmt.Errorf("%s: expected west,south,east,north", s)
	}
	var values [4]float64
	for i, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("%s: %w", s, err)
		}
		values[i] = value
	}
	bbox := BBox{
		West:  values[0],
		South: values[1],
		East:  values[2],
		North: values[3],
	}
	if err := bbox.Validate(); err != nil {
		return BBox{}, err
	}
	return bbox, nil
}

// Validate returns an error if b is empty, inverted, or not finite.
func (b BBox) Validate() error {
	for _, value := range []float64{b.West, b.South, b.East, b.North} {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%v: non-finite bounding box", b)
		}
	}
	if b.West >= b.East || b.South >= b.North {
		return fmt.Errorf("%v: empty bounding box", b)
	}
	return nil
}

// Densify returns points along the edges of b as longitude, latitude pairs,
// with n points per edge including the corners.
func (b BBox) Densify(n int) [][]float64 {
	n = max(n, 2)
	coords := make([][]float64, 0, 4*n)
	for i := range n {
		t := float64(i) / float64(n-1)
		x := b.West + t*(b.East-b.West)
		y := b.South + t*(b.North-b.South)
		coords = append(coords,
			[]float64{x, b.South},
			[]float64{x, b.North},
			[]float64{b.West, y},
			[]float64{b.East, y},
		)
	}
	return coords
}

// ClampShape returns the output shape of a read of win limited to maxWidth by
// maxHeight. Each dimension is the rounded window size if it is smaller than
// the limit and the limit otherwise, and is never less than one.
func ClampShape(win Window, maxWidth, maxHeight int) (int, int) {
	return clampDimension(win.Width, maxWidth), clampDimension(win.Height, maxHeight)
}

func clampDimension(size float64, maxSize int) int {
	if size < float64(maxSize) {
		return max(int(math.Round(size)), 1)
	}
	return max(maxSize, 1)
}

// nativeBounds returns the bounding box of the projected points in coords.
func nativeBounds(coords [][]float64) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, coord := range coords {
		if math.IsNaN(coord[0]) || math.IsNaN(coord[1]) || math.IsInf(coord[0], 0) || math.IsInf(coord[1], 0) {
			continue
		}
		minX = min(minX, coord[0])
		minY = min(minY, coord[1])
		maxX = max(maxX, coord[0])
		maxY = max(maxY, coord[1])
	}
	return
}

package ndvi

import "context"

// A Coord is a pixel coordinate.
type Coord struct {
	X int
	Y int
}

// A TileCoord is a tile coordinate.
type TileCoord struct {
	C int // Column.
	R int // Row.
}

// A Raster is a single band of pixels. Pixels returns NaN for pixels that are
// outside the raster or that hold its nodata value.
type Raster interface {
	Pixels(ctx context.Context, coords []Coord) ([]float64, error)
}

// A Grid is a dense, row-major array of float64 values.
type Grid struct {
	Width  int
	Height int
	Data   []float64
}

// NewGrid returns a new Grid of the given size filled with zeros.
func NewGrid(width, height int) *Grid {
	return &Grid{
		Width:  width,
		Height: height,
		Data:   make([]float64, width*height),
	}
}

// At returns the value at x, y.
func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

// Set sets the value at x, y.
func (g *Grid) Set(x, y int, value float64) {
	g.Data[y*g.Width+x] = value
}

// SameShape returns whether g and other have the same dimensions.
func (g *Grid) SameShape(other *Grid) bool {
	return g.Width == other.Width && g.Height == other.Height
}

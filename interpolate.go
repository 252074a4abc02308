package ndvi

import (
	"context"
	"math"
)

// ResampleBilinear resamples win of raster to a width by height grid. The
// center of each output pixel is mapped into win and interpolated from the
// four nearest source pixel centers. Neighbours that are NaN, because they are
// outside the raster or nodata, are excluded and the remaining weights are
// renormalised. Output pixels with no valid neighbour are NaN.
func ResampleBilinear(ctx context.Context, raster Raster, win Window, width, height int) (*Grid, error) {
	scaleX := win.Width / float64(width)
	scaleY := win.Height / float64(height)

	rasterCoords := make([]Coord, 4*width*height)
	weights := make([]float64, 4*width*height)
	for j := range height {
		// Pixel centers are at half-integer coordinates.
		y := win.RowOff + (float64(j)+0.5)*scaleY - 0.5
		y0 := math.Floor(y)
		dy := y - y0
		for i := range width {
			x := win.ColOff + (float64(i)+0.5)*scaleX - 0.5
			x0 := math.Floor(x)
			dx := x - x0
			k := 4 * (j*width + i)
			rasterCoords[k+0] = Coord{X: int(x0), Y: int(y0)}
			rasterCoords[k+1] = Coord{X: int(x0) + 1, Y: int(y0)}
			rasterCoords[k+2] = Coord{X: int(x0), Y: int(y0) + 1}
			rasterCoords[k+3] = Coord{X: int(x0) + 1, Y: int(y0) + 1}
			weights[k+0] = (1 - dx) * (1 - dy)
			weights[k+1] = dx * (1 - dy)
			weights[k+2] = (1 - dx) * dy
			weights[k+3] = dx * dy
		}
	}

	samples, err := raster.Pixels(ctx, rasterCoords)
	if err != nil {
		return nil, err
	}

	grid := NewGrid(width, height)
	for index := range grid.Data {
		grid.Data[index] = interpolate(samples[4*index:4*index+4], weights[4*index:4*index+4])
	}
	return grid, nil
}

// interpolate returns the weighted mean of the non-NaN samples.
func interpolate(samples, weights []float64) float64 {
	sum, totalWeight := 0.0, 0.0
	for i, sample := range samples {
		if math.IsNaN(sample) || weights[i] == 0 {
			continue
		}
		sum += sample * weights[i]
		totalWeight += weights[i]
	}
	if totalWeight == 0 {
		return math.NaN()
	}
	return sum / totalWeight
}

// Package ndvi computes the Normalized Difference Vegetation Index of
// Landsat-8 scenes stored as GeoTIFFs.
package ndvi

import (
	"fmt"
	"math"
)

// Sentinel is the ratio value of area pixels that have no valid NDVI.
const Sentinel = -9999

// Ratio returns the NDVI of a single point. If nir*red is not positive then
// it returns zero.
func Ratio(nir, red float64) float64 {
	if nir*red <= 0 {
		return 0
	}
	return safeDivide(nir-red, nir+red, 0)
}

// RatioGrid returns the NDVI of every pixel. Pixels where nir*red is not
// positive are set to Sentinel.
func RatioGrid(nir, red *Grid) (*Grid, error) {
	if !nir.SameShape(red) {
		return nil, fmt.Errorf("%w: NIR is %dx%d, red is %dx%d", ErrComputation, nir.Width, nir.Height, red.Width, red.Height)
	}
	ratio := NewGrid(nir.Width, nir.Height)
	for i := range ratio.Data {
		n, r := nir.Data[i], red.Data[i]
		if n*r <= 0 {
			ratio.Data[i] = Sentinel
			continue
		}
		ratio.Data[i] = safeDivide(n-r, n+r, Sentinel)
	}
	return ratio, nil
}

// LinearRescale maps x, clipped to [inMin, inMax], linearly onto [outMin,
// outMax].
func LinearRescale(x, inMin, inMax, outMin, outMax float64) float64 {
	x = min(max(x, inMin), inMax)
	return safeDivide(x-inMin, inMax-inMin, 0)*(outMax-outMin) + outMin
}

// An IndexGrid is a grid of 8-bit palette indices.
type IndexGrid struct {
	Width  int
	Height int
	Pix    []uint8
}

// RescaleGrid maps the valid ratios in [-1, 1] to palette indices in [1, 255].
// Sentinel pixels map to index zero.
func RescaleGrid(ratio *Grid) *IndexGrid {
	indexGrid := &IndexGrid{
		Width:  ratio.Width,
		Height: ratio.Height,
		Pix:    make([]uint8, len(ratio.Data)),
	}
	for i, value := range ratio.Data {
		if value == Sentinel || math.IsNaN(value) {
			continue
		}
		indexGrid.Pix[i] = uint8(LinearRescale(value, -1, 1, 1, 255))
	}
	return indexGrid
}

// safeDivide returns numerator/denominator, or fallback if the denominator is
// zero or the result is not finite.
func safeDivide(numerator, denominator, fallback float64) float64 {
	if denominator == 0 {
		return fallback
	}
	quotient := numerator / denominator
	if math.IsNaN(quotient) || math.IsInf(quotient, 0) {
		return fallback
	}
	return quotient
}

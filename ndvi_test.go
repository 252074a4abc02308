package ndvi_test

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-ndvi"
)

func TestRatio(t *testing.T) {
	for _, tc := range []struct {
		name     string
		nir      float64
		red      float64
		expected float64
	}{
		{name: "vegetation", nir: 0.5, red: 0.1, expected: 0.4 / 0.6},
		{name: "water", nir: 0.05, red: 0.15, expected: -0.5},
		{name: "equal", nir: 0.2, red: 0.2, expected: 0},
		{name: "both_zero", nir: 0, red: 0, expected: 0},
		{name: "red_zero", nir: 0.3, red: 0, expected: 0},
		{name: "opposite_signs", nir: 0.3, red: -0.1, expected: 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			actual := ndvi.Ratio(tc.nir, tc.red)
			assert.True(t, math.Abs(tc.expected-actual) < 1e-12, "%v", actual)
			assert.True(t, -1 <= actual && actual <= 1)
		})
	}
}

func TestRatioGrid(t *testing.T) {
	nir := &ndvi.Grid{Width: 4, Height: 1, Data: []float64{0.5, 0, 0.3, 0.2}}
	red := &ndvi.Grid{Width: 4, Height: 1, Data: []float64{0.1, 0, -0.1, 0.2}}
	actual, err := ndvi.RatioGrid(nir, red)
	assert.NoError(t, err)
	assert.True(t, math.Abs(0.4/0.6-actual.Data[0]) < 1e-12)
	assert.Equal(t, float64(ndvi.Sentinel), actual.Data[1])
	assert.Equal(t, float64(ndvi.Sentinel), actual.Data[2])
	assert.Equal(t, 0.0, actual.Data[3])

	_, err = ndvi.RatioGrid(nir, &ndvi.Grid{Width: 2, Height: 2, Data: make([]float64, 4)})
	assert.IsError(t, err, ndvi.ErrComputation)
}

func TestDegeneratePixel(t *testing.T) {
	assert.Equal(t, 0.0, ndvi.Ratio(0, 0))

	zero := &ndvi.Grid{Width: 1, Height: 1, Data: []float64{0}}
	ratio, err := ndvi.RatioGrid(zero, zero)
	assert.NoError(t, err)
	assert.Equal(t, -9999.0, ratio.Data[0])
	assert.Equal(t, []uint8{0}, ndvi.RescaleGrid(ratio).Pix)
}

func TestLinearRescale(t *testing.T) {
	for _, tc := range []struct {
		x        float64
		expected float64
	}{
		{x: -1, expected: 1},
		{x: 0, expected: 128},
		{x: 1, expected: 255},
		{x: -2, expected: 1},
		{x: 2, expected: 255},
	} {
		assert.Equal(t, tc.expected, ndvi.LinearRescale(tc.x, -1, 1, 1, 255))
	}
	assert.Equal(t, 5.0, ndvi.LinearRescale(3, 1, 1, 5, 10))
}

func TestRescaleGrid(t *testing.T) {
	ratio := &ndvi.Grid{
		Width:  3,
		Height: 2,
		Data:   []float64{-1, 0, 1, ndvi.Sentinel, 0.5, -0.5},
	}
	actual := ndvi.RescaleGrid(ratio)
	assert.Equal(t, 3, actual.Width)
	assert.Equal(t, 2, actual.Height)
	assert.Equal(t, []uint8{1, 128, 255, 0, 191, 64}, actual.Pix)
}

package ndvi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/twpayne/go-proj/v10"
)

// transforms caches EPSG:4326 to band CRS transformations by EPSG code.
var transforms sync.Map

// transform4326To returns a transformation from EPSG:4326 to epsg.
func transform4326To(epsg int) (*proj.PJ, error) {
	if pj, ok := transforms.Load(epsg); ok {
		return pj.(*proj.PJ), nil
	}
	pj, err := proj.NewCRSToCRS("epsg:4326", fmt.Sprintf("epsg:%d", epsg), nil)
	if err != nil {
		return nil, err
	}
	actual, _ := transforms.LoadOrStore(epsg, pj)
	return actual.(*proj.PJ), nil
}

// A BandReader reads pixels of a single band addressed in EPSG:4326.
type BandReader struct {
	band   *GeoTIFFBand
	pj     *proj.PJ
	noData float64
}

// OpenBandReader opens the GeoTIFF at key in source. Pixels that are outside
// the band or that hold noData are reported as noData.
func OpenBandReader(ctx context.Context, source Source, key string, noData float64) (*BandReader, error) {
	object, err := source.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRasterIO, key, err)
	}
	if _, ok := object.(*stagedObject); !ok {
		blockCachedObject, err := newBlockCachedObject(object, defaultBlockSize, defaultBlockCacheSize)
		if err != nil {
			_ = object.Close()
			return nil, err
		}
		object = blockCachedObject
	}
	band, err := NewGeoTIFFBand(object, WithNoData(noData))
	if err != nil {
		_ = object.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrRasterIO, key, err)
	}
	pj, err := transform4326To(band.EPSG())
	if err != nil {
		_ = band.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrRasterIO, key, err)
	}
	return &BandReader{
		band:   band,
		pj:     pj,
		noData: noData,
	}, nil
}

// Close closes r.
func (r *BandReader) Close() error {
	return r.band.Close()
}

// Band returns r's underlying band.
func (r *BandReader) Band() *GeoTIFFBand {
	return r.band
}

// project transforms coords, longitude, latitude pairs, in place into r's
// band CRS.
func (r *BandReader) project(coords [][]float64) error {
	flipCoords(coords)
	if err := r.pj.ForwardFloat64Slices(coords); err != nil {
		return fmt.Errorf("%w: %w", ErrRasterIO, err)
	}
	if r.band.Geographic() {
		flipCoords(coords)
	}
	return nil
}

// Sample returns the value of the pixel containing lon, lat.
func (r *BandReader) Sample(ctx context.Context, lon, lat float64) (float64, error) {
	coords := [][]float64{{lon, lat}}
	if err := r.project(coords); err != nil {
		return 0, err
	}
	col, row := r.band.PixelCoord(coords[0][0], coords[0][1])
	if math.IsNaN(col) || math.IsNaN(row) || math.IsInf(col, 0) || math.IsInf(row, 0) {
		return r.noData, nil
	}
	pixels, err := r.band.Pixels(ctx, []Coord{{X: int(math.Floor(col)), Y: int(math.Floor(row))}})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRasterIO, err)
	}
	return r.valueOrNoData(pixels[0]), nil
}

// Window returns the pixel window covering bbox.
func (r *BandReader) Window(bbox BBox) (Window, error) {
	coords := bbox.Densify(densifyPoints)
	if err := r.project(coords); err != nil {
		return Window{}, err
	}
	minX, minY, maxX, maxY := nativeBounds(coords)
	if minX > maxX || minY > maxY {
		return Window{}, fmt.Errorf("%w: %v: cannot be projected", ErrRasterIO, bbox)
	}
	colOff, rowOff := r.band.PixelCoord(minX, maxY)
	colEnd, rowEnd := r.band.PixelCoord(maxX, minY)
	return Window{
		ColOff: colOff,
		RowOff: rowOff,
		Width:  colEnd - colOff,
		Height: rowEnd - rowOff,
	}, nil
}

// ReadWindow returns the pixels covering bbox resampled to at most maxWidth
// by maxHeight. Areas outside the band are filled with nodata.
func (r *BandReader) ReadWindow(ctx context.Context, bbox BBox, maxWidth, maxHeight int) (*Grid, error) {
	win, err := r.Window(bbox)
	if err != nil {
		return nil, err
	}
	width, height := ClampShape(win, maxWidth, maxHeight)
	return r.resample(ctx, win, width, height)
}

// Overview resamples the full extent of r's band to width by height pixels.
func (r *BandReader) Overview(ctx context.Context, width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d: invalid overview size", ErrComputation, width, height)
	}
	bandWidth, bandHeight := r.band.Size()
	win := Window{
		Width:  float64(bandWidth),
		Height: float64(bandHeight),
	}
	return r.resample(ctx, win, width, height)
}

// resample resamples win of r's band to width by height pixels, reporting
// missing pixels as nodata.
func (r *BandReader) resample(ctx context.Context, win Window, width, height int) (*Grid, error) {
	grid, err := ResampleBilinear(ctx, r.band, win, width, height)
	if err != nil {
		if errors.Is(err, ErrRasterIO) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRasterIO, err)
	}
	for i, value := range grid.Data {
		grid.Data[i] = r.valueOrNoData(value)
	}
	return grid, nil
}

func (r *BandReader) valueOrNoData(value float64) float64 {
	if math.IsNaN(value) {
		return r.noData
	}
	return value
}

func flipCoords(coords [][]float64) {
	for i, coord := range coords {
		coords[i][0], coords[i][1] = coord[1], coord[0]
	}
}

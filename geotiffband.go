package ndvi

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	"github.com/klauspost/compress/zlib"
	"github.com/maypok86/otter/v2"
	"golang.org/x/image/tiff/lzw"
)

// TIFF compression schemes.
const (
	compressionNone         = 1
	compressionLZW          = 5
	compressionDeflate      = 8
	compressionDeflateAdobe = 32946
)

// TIFF predictors.
const (
	predictorNone       = 1
	predictorHorizontal = 2
)

// TIFF sample formats.
const (
	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

// GeoTIFF raster types.
const (
	rasterTypePixelIsArea  = 1
	rasterTypePixelIsPoint = 2
)

// A GeoTIFFBand is an open single-band GeoTIFF.
type GeoTIFFBand struct {
	object                    Object
	byteOrder                 binary.ByteOrder
	imageWidth                int
	imageLength               int
	tileWidth                 int
	tileLength                int
	tilesAcross               int
	tilesDown                 int
	tiled                     bool
	tileOffsets               []uint64
	tileByteCounts            []uint64
	bitsPerSample             int
	sampleFormat              int
	compression               int
	predictor                 int
	tileSampleCount           int
	tileByteCountUncompressed int
	tileCacheSizeBytes        int
	tileSamplesCache          *otter.Cache[TileCoord, []float32]
	noData                    float64
	hasNoData                 bool
	epsg                      int
	geographic                bool
	originX                   float64
	originY                   float64
	scaleX                    float64
	scaleY                    float64
}

// A GeoTIFFBandOption sets an option on a GeoTIFFBand.
type GeoTIFFBandOption func(*GeoTIFFBand)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth                uint32    `tiff:"field,tag=256"`
	ImageLength               uint32    `tiff:"field,tag=257"`
	BitsPerSample             uint16    `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	StripOffsets              []uint64  `tiff:"field,tag=273"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	RowsPerStrip              uint32    `tiff:"field,tag=278"`
	StripByteCounts           []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint32    `tiff:"field,tag=322"`
	TileLength                uint32    `tiff:"field,tag=323"`
	TileOffsets               []uint64  `tiff:"field,tag=324"`
	TileByteCounts            []uint64  `tiff:"field,tag=325"`
	SampleFormat              uint16    `tiff:"field,tag=339"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag        []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag         string    `tiff:"field,tag=34737"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

// WithTileCacheSize sets the size in bytes of the decoded tile cache.
func WithTileCacheSize(tileCacheSize int) GeoTIFFBandOption {
	return func(b *GeoTIFFBand) {
		b.tileCacheSizeBytes = tileCacheSize
	}
}

// WithNoData sets the nodata value of the band, overriding any GDAL_NODATA
// tag.
func WithNoData(noData float64) GeoTIFFBandOption {
	return func(b *GeoTIFFBand) {
		b.noData = noData
		b.hasNoData = true
	}
}

// NewGeoTIFFBand returns a new GeoTIFFBand that reads from object. Only the
// first (full resolution) IFD is used.
func NewGeoTIFFBand(object Object, options ...GeoTIFFBandOption) (*GeoTIFFBand, error) {
	b := &GeoTIFFBand{
		object:             object,
		tileCacheSizeBytes: 32 << 20, // 32MB.
	}

	var header [2]byte
	if _, err := object.ReadAt(header[:], 0); err != nil {
		return nil, err
	}
	switch string(header[:]) {
	case "II":
		b.byteOrder = binary.LittleEndian
	case "MM":
		b.byteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: not a TIFF", errParse)
	}

	tiffTIFF, err := tiff.Parse(io.NewSectionReader(object, 0, object.Size()), tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, err
	}
	if len(tiffTIFF.IFDs()) == 0 {
		return nil, fmt.Errorf("%w: no IFDs", errParse)
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return nil, err
	}

	b.bitsPerSample = int(ifd.BitsPerSample)
	b.sampleFormat = orDefault(int(ifd.SampleFormat), sampleFormatUint)
	b.compression = orDefault(int(ifd.Compression), compressionNone)
	b.predictor = orDefault(int(ifd.Predictor), predictorNone)
	switch {
	case orDefault(int(ifd.SamplesPerPixel), 1) != 1:
		return nil, fmt.Errorf("%d samples per pixel: %w", ifd.SamplesPerPixel, errors.ErrUnsupported)
	case !slices.Contains([]int{compressionNone, compressionLZW, compressionDeflate, compressionDeflateAdobe}, b.compression):
		return nil, fmt.Errorf("compression %d: %w", b.compression, errors.ErrUnsupported)
	case b.predictor != predictorNone && b.predictor != predictorHorizontal:
		return nil, fmt.Errorf("predictor %d: %w", b.predictor, errors.ErrUnsupported)
	case b.sampleFormat == sampleFormatFloat && (b.bitsPerSample != 32 || b.predictor != predictorNone):
		return nil, fmt.Errorf("%d-bit floating point samples with predictor %d: %w", b.bitsPerSample, b.predictor, errors.ErrUnsupported)
	case b.sampleFormat != sampleFormatFloat && b.bitsPerSample != 8 && b.bitsPerSample != 16:
		return nil, fmt.Errorf("%d-bit integer samples: %w", b.bitsPerSample, errors.ErrUnsupported)
	case b.sampleFormat != sampleFormatUint && b.sampleFormat != sampleFormatInt && b.sampleFormat != sampleFormatFloat:
		return nil, fmt.Errorf("sample format %d: %w", b.sampleFormat, errors.ErrUnsupported)
	}

	b.imageWidth = int(ifd.ImageWidth)
	b.imageLength = int(ifd.ImageLength)
	if b.imageWidth == 0 || b.imageLength == 0 {
		return nil, fmt.Errorf("%w: empty image", errParse)
	}
	if ifd.TileWidth != 0 && ifd.TileLength != 0 {
		b.tiled = true
		b.tileWidth = int(ifd.TileWidth)
		b.tileLength = int(ifd.TileLength)
		b.tileOffsets = ifd.TileOffsets
		b.tileByteCounts = ifd.TileByteCounts
	} else {
		// Strips are treated as tiles that span the full image width.
		b.tileWidth = b.imageWidth
		b.tileLength = min(orDefault(int(ifd.RowsPerStrip), b.imageLength), b.imageLength)
		b.tileOffsets = ifd.StripOffsets
		b.tileByteCounts = ifd.StripByteCounts
	}
	b.tilesAcross = (b.imageWidth + b.tileWidth - 1) / b.tileWidth
	b.tilesDown = (b.imageLength + b.tileLength - 1) / b.tileLength
	tilesPerImage := b.tilesAcross * b.tilesDown
	if len(b.tileByteCounts) != tilesPerImage || len(b.tileOffsets) != tilesPerImage {
		return nil, errors.New("incorrect number of tile byte counts or offsets")
	}
	b.tileSampleCount = b.tileWidth * b.tileLength
	b.tileByteCountUncompressed = b.tileSampleCount * b.bitsPerSample / 8

	if len(ifd.ModelPixelScaleTag) < 2 || len(ifd.ModelTiepointTag) < 6 {
		return nil, fmt.Errorf("missing georeferencing: %w", errors.ErrUnsupported)
	}
	b.scaleX, b.scaleY = ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
	if b.scaleX <= 0 || b.scaleY <= 0 {
		return nil, fmt.Errorf("%w: invalid pixel scale", errParse)
	}
	i, j := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1]
	x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]
	b.originX = x - i*b.scaleX
	b.originY = y + j*b.scaleY

	parsedGeoKeys, err := ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
	if err != nil {
		return nil, err
	}
	if parsedGeoKeys.Params[GeoKeyGTRasterType] == rasterTypePixelIsPoint {
		// Follow GDAL and move the origin to the corner of the first pixel.
		b.originX -= b.scaleX / 2
		b.originY += b.scaleY / 2
	}
	if b.epsg, err = parsedGeoKeys.EPSG(); err != nil {
		return nil, err
	}
	b.geographic = parsedGeoKeys.Params[GeoKeyGTModelType] == ModelTypeGeographic

	if noData := strings.TrimRight(ifd.GDALNoData, "\x00 "); noData != "" {
		if b.noData, err = strconv.ParseFloat(noData, 64); err != nil {
			return nil, fmt.Errorf("GDAL_NODATA: %w", err)
		}
		b.hasNoData = true
	}

	for _, option := range options {
		option(b)
	}

	tileCacheCount := max(b.tileCacheSizeBytes/(4*b.tileSampleCount), 1)
	b.tileSamplesCache, err = otter.New(&otter.Options[TileCoord, []float32]{
		MaximumSize: tileCacheCount,
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// Close closes b's underlying object.
func (b *GeoTIFFBand) Close() error {
	return b.object.Close()
}

// EPSG returns the EPSG code of b's coordinate reference system.
func (b *GeoTIFFBand) EPSG() int {
	return b.epsg
}

// Geographic returns whether b's coordinate reference system is geographic,
// in which case its axis order is latitude, longitude.
func (b *GeoTIFFBand) Geographic() bool {
	return b.geographic
}

// Size returns the width and height of b in pixels.
func (b *GeoTIFFBand) Size() (int, int) {
	return b.imageWidth, b.imageLength
}

// NoData returns b's nodata value and whether it has one.
func (b *GeoTIFFBand) NoData() (float64, bool) {
	return b.noData, b.hasNoData
}

// PixelCoord returns the fractional pixel coordinate of the point x, y in b's
// coordinate reference system. Integer values are pixel corners.
func (b *GeoTIFFBand) PixelCoord(x, y float64) (float64, float64) {
	return (x - b.originX) / b.scaleX, (b.originY - y) / b.scaleY
}

// Pixel returns a single pixel from b.
func (b *GeoTIFFBand) Pixel(ctx context.Context, coord Coord) (float64, error) {
	localTileCoord, ok := b.localTileCoord(coord)
	if !ok {
		return math.NaN(), nil
	}
	switch tileSamples, err := b.getTileSamplesCached(ctx, localTileCoord); {
	case errors.Is(err, otter.ErrNotFound):
		return math.NaN(), nil
	case err != nil:
		return 0, err
	default:
		return b.tileSample(tileSamples, coord), nil
	}
}

// Pixels returns multiple pixels from b. It is significantly faster than
// calling [Pixel] for each coordinate.
func (b *GeoTIFFBand) Pixels(ctx context.Context, coords []Coord) ([]float64, error) {
	samples := make([]float64, len(coords))

	// Group indexes by local tile coord.
	indexesByLocalTileCoord := make(map[TileCoord][]int)
	for index, coord := range coords {
		localTileCoord, ok := b.localTileCoord(coord)
		if !ok {
			samples[index] = math.NaN()
			continue
		}
		indexesByLocalTileCoord[localTileCoord] = append(indexesByLocalTileCoord[localTileCoord], index)
	}

	// Populate samples one local tile at a time.
	for localTileCoord, indexes := range indexesByLocalTileCoord {
		switch tileSamples, err := b.getTileSamplesCached(ctx, localTileCoord); {
		case errors.Is(err, otter.ErrNotFound):
			for _, index := range indexes {
				samples[index] = math.NaN()
			}
		case err != nil:
			return nil, err
		default:
			for _, index := range indexes {
				samples[index] = b.tileSample(tileSamples, coords[index])
			}
		}
	}

	return samples, nil
}

// tileRows returns the number of rows of image data in the tile at
// localTileCoord. The last strip of a stripped image may be short.
func (b *GeoTIFFBand) tileRows(localTileCoord TileCoord) int {
	if b.tiled {
		return b.tileLength
	}
	return min(b.tileLength, b.imageLength-localTileCoord.R*b.tileLength)
}

// getCompressedTileData returns the compressed tile data for the data at
// localTileCoord. If the tile is sparse, it returns the error
// otter.ErrNotFound.
func (b *GeoTIFFBand) getCompressedTileData(localTileCoord TileCoord) ([]byte, error) {
	tileIndex := localTileCoord.C + b.tilesAcross*localTileCoord.R
	tileByteCount := b.tileByteCounts[tileIndex]
	tileOffset := b.tileOffsets[tileIndex]
	if tileByteCount == 0 {
		return nil, otter.ErrNotFound
	}
	compressedData := make([]byte, tileByteCount)
	switch n, err := b.object.ReadAt(compressedData, int64(tileOffset)); {
	case errors.Is(err, io.EOF) && n == int(tileByteCount):
		return compressedData, nil
	case err != nil:
		return nil, err
	case n != int(tileByteCount):
		return nil, errShortRead
	default:
		return compressedData, nil
	}
}

// decompressTileData decompresses the tile data in compressedData.
func (b *GeoTIFFBand) decompressTileData(compressedData []byte, rows int) ([]byte, error) {
	var r io.Reader
	switch b.compression {
	case compressionNone:
		r = bytes.NewReader(compressedData)
	case compressionLZW:
		lzwReader := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
		defer lzwReader.Close()
		r = lzwReader
	case compressionDeflate, compressionDeflateAdobe:
		zlibReader, err := zlib.NewReader(bytes.NewReader(compressedData))
		if err != nil {
			return nil, err
		}
		defer zlibReader.Close()
		r = zlibReader
	}
	tileData := make([]byte, b.tileByteCountUncompressed)
	if _, err := io.ReadFull(r, tileData[:rows*b.tileWidth*b.bitsPerSample/8]); err != nil {
		return nil, err
	}
	return tileData, nil
}

// decodeTileData decodes tileData, undoing any horizontal differencing.
func (b *GeoTIFFBand) decodeTileData(tileData []byte) []float32 {
	tileSamples := make([]float32, b.tileSampleCount)
	switch {
	case b.sampleFormat == sampleFormatFloat:
		for i := range b.tileSampleCount {
			tileSamples[i] = math.Float32frombits(b.byteOrder.Uint32(tileData[4*i : 4*(i+1)]))
		}
	case b.bitsPerSample == 8:
		values := slices.Clone(tileData)
		b.undoHorizontalDifferencing8(values)
		for i, value := range values {
			if b.sampleFormat == sampleFormatInt {
				tileSamples[i] = float32(int8(value))
			} else {
				tileSamples[i] = float32(value)
			}
		}
	case b.bitsPerSample == 16:
		values := make([]uint16, b.tileSampleCount)
		for i := range values {
			values[i] = b.byteOrder.Uint16(tileData[2*i : 2*(i+1)])
		}
		b.undoHorizontalDifferencing16(values)
		for i, value := range values {
			if b.sampleFormat == sampleFormatInt {
				tileSamples[i] = float32(int16(value))
			} else {
				tileSamples[i] = float32(value)
			}
		}
	}
	return tileSamples
}

func (b *GeoTIFFBand) undoHorizontalDifferencing8(values []uint8) {
	if b.predictor != predictorHorizontal {
		return
	}
	for row := 0; row < len(values); row += b.tileWidth {
		for i := row + 1; i < row+b.tileWidth; i++ {
			values[i] += values[i-1]
		}
	}
}

func (b *GeoTIFFBand) undoHorizontalDifferencing16(values []uint16) {
	if b.predictor != predictorHorizontal {
		return
	}
	for row := 0; row < len(values); row += b.tileWidth {
		for i := row + 1; i < row+b.tileWidth; i++ {
			values[i] += values[i-1]
		}
	}
}

// getTileSamples returns the tile samples at localTileCoord.
func (b *GeoTIFFBand) getTileSamples(ctx context.Context, localTileCoord TileCoord) ([]float32, error) {
	compressedTileData, err := b.getCompressedTileData(localTileCoord)
	if err != nil {
		return nil, err
	}
	tileData, err := b.decompressTileData(compressedTileData, b.tileRows(localTileCoord))
	if err != nil {
		return nil, err
	}
	tileDecodes.Inc()
	return b.decodeTileData(tileData), nil
}

// getTileSamplesCached returns the tile at localTileCoord using b's cache.
func (b *GeoTIFFBand) getTileSamplesCached(ctx context.Context, localTileCoord TileCoord) ([]float32, error) {
	return b.tileSamplesCache.Get(ctx, localTileCoord, otter.LoaderFunc[TileCoord, []float32](b.getTileSamples))
}

// localTileCoord returns the local tile coord for a given pixel coordinate.
func (b *GeoTIFFBand) localTileCoord(coord Coord) (TileCoord, bool) {
	if coord.X < 0 || b.imageWidth <= coord.X || coord.Y < 0 || b.imageLength <= coord.Y {
		return TileCoord{}, false
	}
	return TileCoord{
		C: coord.X / b.tileWidth,
		R: coord.Y / b.tileLength,
	}, true
}

// tileSample returns the sample from tileSamples at coord.
func (b *GeoTIFFBand) tileSample(tileSamples []float32, coord Coord) float64 {
	sample := float64(tileSamples[coord.X%b.tileWidth+(coord.Y%b.tileLength)*b.tileWidth])
	if b.hasNoData && sample == b.noData {
		return math.NaN()
	}
	return sample
}

// orDefault returns value, or defaultValue if value is zero.
func orDefault(value, defaultValue int) int {
	if value == 0 {
		return defaultValue
	}
	return value
}

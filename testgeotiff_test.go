package ndvi

import (
	"bytes"
	"encoding/binary"
	"math"
	"slices"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/klauspost/compress/zlib"
)

// A testGeoTIFF describes a synthetic single-band GeoTIFF.
type testGeoTIFF struct {
	width         int
	height        int
	tileWidth     int // Zero for a stripped image.
	tileLength    int
	rowsPerStrip  int
	bitsPerSample int
	sampleFormat  int
	compression   int
	predictor     int
	originX       float64
	originY       float64
	scaleX        float64
	scaleY        float64
	epsg          int
	geographic    bool
	pixelIsPoint  bool
	noData        string
	sparseTiles   []int
	pixel         func(x, y int) float64
}

// A bytesObject is an in-memory Object.
type bytesObject struct {
	*bytes.Reader
}

func (o bytesObject) Close() error { return nil }

func newBytesObject(data []byte) bytesObject {
	return bytesObject{Reader: bytes.NewReader(data)}
}

type testIFDEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// TIFF field types.
const (
	tiffASCII  = 2
	tiffShort  = 3
	tiffLong   = 4
	tiffDouble = 12
)

func shortEntry(tag uint16, values ...uint16) testIFDEntry {
	data := make([]byte, 2*len(values))
	for i, value := range values {
		binary.LittleEndian.PutUint16(data[2*i:], value)
	}
	return testIFDEntry{tag: tag, typ: tiffShort, count: uint32(len(values)), data: data}
}

func longEntry(tag uint16, values ...uint32) testIFDEntry {
	data := make([]byte, 4*len(values))
	for i, value := range values {
		binary.LittleEndian.PutUint32(data[4*i:], value)
	}
	return testIFDEntry{tag: tag, typ: tiffLong, count: uint32(len(values)), data: data}
}

func doubleEntry(tag uint16, values ...float64) testIFDEntry {
	data := make([]byte, 8*len(values))
	for i, value := range values {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(value))
	}
	return testIFDEntry{tag: tag, typ: tiffDouble, count: uint32(len(values)), data: data}
}

func asciiEntry(tag uint16, value string) testIFDEntry {
	data := append([]byte(value), 0)
	return testIFDEntry{tag: tag, typ: tiffASCII, count: uint32(len(data)), data: data}
}

// encode returns g as a little-endian classic TIFF.
func (g *testGeoTIFF) encode(t *testing.T) []byte {
	t.Helper()

	bitsPerSample := orDefault(g.bitsPerSample, 16)
	sampleFormat := orDefault(g.sampleFormat, sampleFormatUint)
	compression := orDefault(g.compression, compressionNone)
	predictor := orDefault(g.predictor, predictorNone)

	tileWidth, tileLength := g.tileWidth, g.tileLength
	if tileWidth == 0 {
		tileWidth = g.width
		tileLength = min(orDefault(g.rowsPerStrip, g.height), g.height)
	}
	tilesAcross := (g.width + tileWidth - 1) / tileWidth
	tilesDown := (g.height + tileLength - 1) / tileLength

	var tiles [][]byte
	for r := range tilesDown {
		for c := range tilesAcross {
			if slices.Contains(g.sparseTiles, len(tiles)) {
				tiles = append(tiles, nil)
				continue
			}
			rows := tileLength
			if g.tileWidth == 0 {
				rows = min(tileLength, g.height-r*tileLength)
			}
			raw := g.encodeTile(c*tileWidth, r*tileLength, tileWidth, rows, bitsPerSample, sampleFormat, predictor)
			tiles = append(tiles, compressTestTile(t, raw, compression))
		}
	}

	byteCounts := make([]uint32, len(tiles))
	for i, tile := range tiles {
		byteCounts[i] = uint32(len(tile))
	}
	offsetsTag, byteCountsTag := uint16(324), uint16(325)
	if g.tileWidth == 0 {
		offsetsTag, byteCountsTag = 273, 279
	}

	modelType, crsKey, rasterType := uint16(ModelTypeProjected), uint16(GeoKeyProjectedCRS), uint16(rasterTypePixelIsArea)
	if g.geographic {
		modelType, crsKey = ModelTypeGeographic, uint16(GeoKeyGeodeticCRS)
	}
	tiepointX, tiepointY := g.originX, g.originY
	if g.pixelIsPoint {
		rasterType = rasterTypePixelIsPoint
		tiepointX += g.scaleX / 2
		tiepointY -= g.scaleY / 2
	}

	entries := []testIFDEntry{
		shortEntry(256, uint16(g.width)),
		shortEntry(257, uint16(g.height)),
		shortEntry(258, uint16(bitsPerSample)),
		shortEntry(259, uint16(compression)),
		shortEntry(262, 1),
		longEntry(offsetsTag, make([]uint32, len(tiles))...),
		shortEntry(277, 1),
		longEntry(byteCountsTag, byteCounts...),
		shortEntry(284, 1),
		shortEntry(317, uint16(predictor)),
		shortEntry(339, uint16(sampleFormat)),
		doubleEntry(33550, g.scaleX, g.scaleY, 0),
		doubleEntry(33922, 0, 0, 0, tiepointX, tiepointY, 0),
		shortEntry(34735,
			1, 1, 0, 3,
			uint16(GeoKeyGTModelType), 0, 1, modelType,
			uint16(GeoKeyGTRasterType), 0, 1, rasterType,
			crsKey, 0, 1, uint16(g.epsg),
		),
	}
	if g.tileWidth == 0 {
		entries = append(entries, longEntry(278, uint32(tileLength)))
	} else {
		entries = append(entries,
			shortEntry(322, uint16(tileWidth)),
			shortEntry(323, uint16(tileLength)),
		)
	}
	if g.noData != "" {
		entries = append(entries, asciiEntry(42113, g.noData))
	}
	slices.SortFunc(entries, func(a, b testIFDEntry) int {
		return int(a.tag) - int(b.tag)
	})

	// Lay out the IFD, then out-of-line values, then tiles.
	ifdSize := 2 + 12*len(entries) + 4
	offset := 8 + ifdSize
	valueOffsets := make([]int, len(entries))
	for i, entry := range entries {
		if len(entry.data) > 4 {
			offset += offset % 2
			valueOffsets[i] = offset
			offset += len(entry.data)
		}
	}
	tileOffsets := make([]uint32, len(tiles))
	for i, tile := range tiles {
		if tile != nil {
			tileOffsets[i] = uint32(offset)
		}
		offset += len(tile)
	}
	for i, entry := range entries {
		if entry.tag == offsetsTag {
			entries[i] = longEntry(offsetsTag, tileOffsets...)
		}
	}

	data := make([]byte, offset)
	copy(data, "II")
	binary.LittleEndian.PutUint16(data[2:], 42)
	binary.LittleEndian.PutUint32(data[4:], 8)
	binary.LittleEndian.PutUint16(data[8:], uint16(len(entries)))
	for i, entry := range entries {
		p := data[10+12*i:]
		binary.LittleEndian.PutUint16(p[0:], entry.tag)
		binary.LittleEndian.PutUint16(p[2:], entry.typ)
		binary.LittleEndian.PutUint32(p[4:], entry.count)
		if len(entry.data) > 4 {
			binary.LittleEndian.PutUint32(p[8:], uint32(valueOffsets[i]))
			copy(data[valueOffsets[i]:], entry.data)
		} else {
			copy(p[8:12], entry.data)
		}
	}
	for i, tile := range tiles {
		copy(data[tileOffsets[i]:], tile)
	}
	return data
}

// encodeTile returns the uncompressed samples of the tile with top left pixel
// x0, y0.
func (g *testGeoTIFF) encodeTile(x0, y0, width, rows, bitsPerSample, sampleFormat, predictor int) []byte {
	bytesPerSample := bitsPerSample / 8
	data := make([]byte, width*rows*bytesPerSample)
	for j := range rows {
		var previous uint64
		for i := range width {
			value := 0.0
			if x0+i < g.width && y0+j < g.height {
				value = g.pixel(x0+i, y0+j)
			}
			p := data[(j*width+i)*bytesPerSample:]
			switch {
			case sampleFormat == sampleFormatFloat:
				binary.LittleEndian.PutUint32(p, math.Float32bits(float32(value)))
			default:
				var bits uint64
				if sampleFormat == sampleFormatInt {
					bits = uint64(int64(value))
				} else {
					bits = uint64(value)
				}
				stored := bits
				if predictor == predictorHorizontal && i > 0 {
					stored = bits - previous
				}
				previous = bits
				if bytesPerSample == 1 {
					p[0] = uint8(stored)
				} else {
					binary.LittleEndian.PutUint16(p, uint16(stored))
				}
			}
		}
	}
	return data
}

func compressTestTile(t *testing.T, data []byte, compression int) []byte {
	t.Helper()
	switch compression {
	case compressionDeflate, compressionDeflateAdobe:
		var buffer bytes.Buffer
		w := zlib.NewWriter(&buffer)
		_, err := w.Write(data)
		assert.NoError(t, err)
		assert.NoError(t, w.Close())
		return buffer.Bytes()
	case compressionLZW:
		return lzwLiteralEncode(data)
	default:
		return data
	}
}

// lzwLiteralEncode returns data encoded as a TIFF LZW stream of 9-bit literal
// codes. A clear code is emitted often enough that the code width never
// changes.
func lzwLiteralEncode(data []byte) []byte {
	const (
		clearCode = 256
		eoiCode   = 257
	)
	var out []byte
	var bits uint32
	var nBits uint
	writeCode := func(code uint32) {
		bits = bits<<9 | code
		nBits += 9
		for nBits >= 8 {
			out = append(out, byte(bits>>(nBits-8)))
			nBits -= 8
		}
	}
	writeCode(clearCode)
	for i, b := range data {
		if i > 0 && i%128 == 0 {
			writeCode(clearCode)
		}
		writeCode(uint32(b))
	}
	writeCode(eoiCode)
	if nBits > 0 {
		out = append(out, byte(bits<<(8-nBits)))
	}
	return out
}

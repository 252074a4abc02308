package ndvi

import (
	"bytes"
	"encoding/base64"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/alecthomas/assert/v2"
)

const (
	testSceneID           = "LC08_L1TP_139045_20170304_20170316_01_T1"
	testPrecollectionID   = "LC81390452014295LGN00"
	testSunElevation      = 45.5
	testCloudCover        = 12.5
	testReflectanceMult   = 2e-5
	testReflectanceAdd    = -0.1
	testMissingMTLSceneID = "LC80060522017107LGN00"
)

func redPixel(x, y int) float64 {
	return float64(6000 + 10*x + y)
}

func nirPixel(x, y int) float64 {
	if x < 8 {
		return NoData
	}
	return float64(20000 + x + 10*y)
}

// testSceneFS returns a filesystem holding the metadata and red and NIR bands
// of sceneID.
func testSceneFS(t *testing.T, sceneIDs ...string) fstest.MapFS {
	t.Helper()
	fsys := make(fstest.MapFS)
	for _, sceneID := range sceneIDs {
		parsedSceneID, err := ParseSceneID(sceneID)
		assert.NoError(t, err)
		red, nir := utmTestGeoTIFF(redPixel), utmTestGeoTIFF(nirPixel)
		fsys[parsedSceneID.MTLKey()] = &fstest.MapFile{Data: []byte(testMTL(testSunElevation, testCloudCover))}
		fsys[parsedSceneID.BandKey(BandRed)] = &fstest.MapFile{Data: red.encode(t)}
		fsys[parsedSceneID.BandKey(BandNIR)] = &fstest.MapFile{Data: nir.encode(t)}
	}
	return fsys
}

func newTestService(t *testing.T, options ...ServiceOption) *Service {
	t.Helper()
	service, err := NewService(append([]ServiceOption{
		WithSource(NewFSSource(testSceneFS(t, testSceneID, testPrecollectionID))),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, options...)...)
	assert.NoError(t, err)
	return service
}

func decodeTestJPEG(t *testing.T, encoded string) (int, int) {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(encoded)
	assert.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestService_Thumb(t *testing.T) {
	service := newTestService(t)

	for _, tc := range []struct {
		sceneID  string
		expected string
	}{
		{
			sceneID:  testSceneID,
			expected: "http://landsat-pds.s3.amazonaws.com/c1/L8/139/045/LC08_L1TP_139045_20170304_20170316_01_T1/LC08_L1TP_139045_20170304_20170316_01_T1_thumb_small.jpg",
		},
		{
			sceneID:  testPrecollectionID,
			expected: "http://landsat-pds.s3.amazonaws.com/L8/139/045/LC81390452014295LGN00/LC81390452014295LGN00_thumb_small.jpg",
		},
	} {
		t.Run(tc.sceneID, func(t *testing.T) {
			actual, err := service.Thumb(t.Context(), tc.sceneID)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}

	_, err := service.Thumb(t.Context(), "not-a-scene")
	assert.IsError(t, err, ErrInvalidSceneID)
}

func TestService_Point(t *testing.T) {
	service := newTestService(t)

	actual, err := service.Point(t.Context(), testSceneID, testLon, testLat)
	assert.NoError(t, err)
	red := Reflectance(redPixel(32, 32), testReflectanceMult, testReflectanceAdd, testSunElevation, NoData)
	nir := Reflectance(nirPixel(32, 32), testReflectanceMult, testReflectanceAdd, testSunElevation, NoData)
	assert.Equal(t, &PointResult{
		Scene: testSceneID,
		NDVI:  Ratio(nir, red),
		Date:  "2017-03-04",
		Cloud: testCloudCover,
	}, actual)
	assert.True(t, 0.8 < actual.NDVI && actual.NDVI < 0.9)

	// Outside the scene both bands are nodata.
	actual, err = service.Point(t.Context(), testSceneID, testLon+1, testLat)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, actual.NDVI)

	_, err = service.Point(t.Context(), "not-a-scene", testLon, testLat)
	assert.IsError(t, err, ErrInvalidSceneID)

	_, err = service.Point(t.Context(), testMissingMTLSceneID, testLon, testLat)
	assert.IsError(t, err, ErrMetadataUnavailable)
}

func TestService_Area(t *testing.T) {
	for _, tc := range []struct {
		name string
		bbox BBox
	}{
		{
			name: "small",
			bbox: BBox{West: testLon - 0.01, South: testLat - 0.01, East: testLon + 0.01, North: testLat + 0.01},
		},
		{
			name: "large",
			bbox: BBox{West: testLon - 2, South: testLat - 2, East: testLon + 2, North: testLat + 2},
		},
		{
			name: "outside",
			bbox: BBox{West: testLon + 1, South: testLat, East: testLon + 1.01, North: testLat + 0.01},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			service := newTestService(t)
			encoded, err := service.Area(t.Context(), testSceneID, tc.bbox)
			assert.NoError(t, err)
			width, height := decodeTestJPEG(t, encoded)
			assert.True(t, 0 < width && width <= DefaultMaxSize)
			assert.True(t, 0 < height && height <= DefaultMaxSize)
		})
	}

	t.Run("max_size", func(t *testing.T) {
		service := newTestService(t, WithMaxSize(16, 8))
		encoded, err := service.Area(t.Context(), testSceneID, BBox{West: testLon - 0.01, South: testLat - 0.01, East: testLon + 0.01, North: testLat + 0.01})
		assert.NoError(t, err)
		width, height := decodeTestJPEG(t, encoded)
		assert.Equal(t, 16, width)
		assert.Equal(t, 8, height)
	})

	t.Run("errors", func(t *testing.T) {
		service := newTestService(t)
		bbox := BBox{West: testLon - 0.01, South: testLat - 0.01, East: testLon + 0.01, North: testLat + 0.01}

		_, err := service.Area(t.Context(), "not-a-scene", bbox)
		assert.IsError(t, err, ErrInvalidSceneID)

		_, err = service.Area(t.Context(), testMissingMTLSceneID, bbox)
		assert.IsError(t, err, ErrMetadataUnavailable)

		_, err = service.Area(t.Context(), testSceneID, BBox{West: 1, South: 1, East: 0, North: 2})
		assert.IsError(t, err, ErrComputation)
	})

	t.Run("missing_band", func(t *testing.T) {
		fsys := testSceneFS(t, testSceneID)
		parsedSceneID, err := ParseSceneID(testSceneID)
		assert.NoError(t, err)
		delete(fsys, parsedSceneID.BandKey(BandNIR))
		service, err := NewService(WithSource(NewFSSource(fsys)))
		assert.NoError(t, err)
		_, err = service.Area(t.Context(), testSceneID, BBox{West: testLon - 0.01, South: testLat - 0.01, East: testLon + 0.01, North: testLat + 0.01})
		assert.IsError(t, err, ErrRasterIO)
	})
}

func TestService_Staging(t *testing.T) {
	dir := t.TempDir()
	service := newTestService(t, WithStagingDir(dir))

	_, err := service.Point(t.Context(), testSceneID, testLon, testLat)
	assert.NoError(t, err)
	_, err = service.Area(t.Context(), testSceneID, BBox{West: testLon - 0.01, South: testLat - 0.01, East: testLon + 0.01, North: testLat + 0.01})
	assert.NoError(t, err)

	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(entries))
}

func TestService_StagingSkipsMetadata(t *testing.T) {
	service := newTestService(t, WithStagingDir(filepath.Join(t.TempDir(), "missing")))

	_, err := service.Point(t.Context(), testSceneID, testLon, testLat)
	assert.IsError(t, err, ErrRasterIO)
	assert.NotIsError(t, err, ErrMetadataUnavailable)
}

func TestNewService_Errors(t *testing.T) {
	_, err := NewService(WithMaxSize(0, 512))
	assert.Error(t, err)
}

func TestService_BandCache(t *testing.T) {
	source := &countingSource{Source: NewFSSource(testSceneFS(t, testSceneID))}
	service, err := NewService(
		WithSource(source),
		WithMetadataCache(4),
		WithBandCache(4),
	)
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, service.Close())
	}()

	for range 3 {
		actual, err := service.Point(t.Context(), testSceneID, testLon, testLat)
		assert.NoError(t, err)
		assert.True(t, 0.8 < actual.NDVI && actual.NDVI < 0.9)
	}
	_, err = service.Area(t.Context(), testSceneID, BBox{West: testLon - 0.01, South: testLat - 0.01, East: testLon + 0.01, North: testLat + 0.01})
	assert.NoError(t, err)

	// One metadata document and two bands.
	assert.Equal(t, int64(3), source.count.Load())
}

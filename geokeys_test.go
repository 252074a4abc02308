package ndvi

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
)

// TestParseGeoKeys parses the GeoKeys of a Landsat-8 band in UTM zone 45N.
func TestParseGeoKeys(t *testing.T) {
	directory := []uint16{
		1, 1, 0, 6,
		1024, 0, 1, 1,
		1025, 0, 1, 2,
		1026, 34737, 22, 0,
		2054, 0, 1, 9102,
		3072, 0, 1, 32645,
		3076, 0, 1, 9001,
	}
	asciiParams := []byte("WGS 84 / UTM zone 45N|")

	actual, err := ParseGeoKeys(directory, nil, asciiParams)
	assert.NoError(t, err)
	assert.Equal(t, &ParsedGeoKeys{
		Params: map[GeoKey]int{
			GeoKeyGTModelType:  ModelTypeProjected,
			GeoKeyGTRasterType: rasterTypePixelIsPoint,
			GeoKeyAngularUnits: 9102,
			GeoKeyProjectedCRS: 32645,
			GeoKeyLinearUnits2: 9001,
		},
		DoubleParams: map[GeoKey]float64{},
		ASCIIParams: map[GeoKey]string{
			GeoKeyGTCitation: "WGS 84 / UTM zone 45N|",
		},
	}, actual)

	epsg, err := actual.EPSG()
	assert.NoError(t, err)
	assert.Equal(t, 32645, epsg)
}

func TestParseGeoKeys_DoubleParams(t *testing.T) {
	directory := []uint16{
		1, 1, 1, 2,
		2057, 34736, 1, 0,
		2059, 34736, 1, 1,
	}
	actual, err := ParseGeoKeys(directory, []float64{6378137, 298.257223563}, nil)
	assert.NoError(t, err)
	assert.Equal(t, map[GeoKey]float64{
		GeoKeyEllipsoidSemiMajorAxis: 6378137,
		GeoKeyEllipsoidInvFlattening: 298.257223563,
	}, actual.DoubleParams)

	_, err = ParseGeoKeys([]uint16{1, 1, 0, 1, 2057, 34736, 2, 0}, []float64{1, 2}, nil)
	assert.IsError(t, err, errors.ErrUnsupported)
	_, err = ParseGeoKeys([]uint16{1, 1, 0, 1, 2057, 33550, 1, 0}, nil, nil)
	assert.IsError(t, err, errors.ErrUnsupported)
}

func TestParsedGeoKeys_EPSG(t *testing.T) {
	for _, tc := range []struct {
		name        string
		directory   []uint16
		expected    int
		expectedErr error
	}{
		{
			name: "utm_33n",
			directory: []uint16{
				1, 1, 0, 3,
				1024, 0, 1, 1,
				1025, 0, 1, 1,
				3072, 0, 1, 32633,
			},
			expected: 32633,
		},
		{
			name: "wgs84",
			directory: []uint16{
				1, 1, 0, 2,
				1024, 0, 1, 2,
				2048, 0, 1, 4326,
			},
			expected: 4326,
		},
		{
			name: "utm_45s_pixel_is_point",
			directory: []uint16{
				1, 1, 0, 3,
				1024, 0, 1, 1,
				1025, 0, 1, 2,
				3072, 0, 1, 32745,
			},
			expected: 32745,
		},
		{
			name: "geographic_ignores_projected_crs",
			directory: []uint16{
				1, 1, 0, 3,
				1024, 0, 1, 2,
				2048, 0, 1, 4269,
				3072, 0, 1, 32633,
			},
			expected: 4269,
		},
		{
			name: "user_defined_projected",
			directory: []uint16{
				1, 1, 0, 2,
				1024, 0, 1, 1,
				3072, 0, 1, 32767,
			},
			expectedErr: errors.ErrUnsupported,
		},
		{
			name: "user_defined_geographic",
			directory: []uint16{
				1, 1, 0, 2,
				1024, 0, 1, 2,
				2048, 0, 1, 32767,
			},
			expectedErr: errors.ErrUnsupported,
		},
		{
			name: "missing_model_type",
			directory: []uint16{
				1, 1, 0, 1,
				3072, 0, 1, 32633,
			},
			expectedErr: errors.ErrUnsupported,
		},
		{
			name: "missing_geodetic_crs",
			directory: []uint16{
				1, 1, 0, 1,
				1024, 0, 1, 2,
			},
			expectedErr: errParse,
		},
		{
			name: "geocentric",
			directory: []uint16{
				1, 1, 0, 1,
				1024, 0, 1, 3,
			},
			expectedErr: errors.ErrUnsupported,
		},
		{
			name: "missing_projected_crs",
			directory: []uint16{
				1, 1, 0, 1,
				1024, 0, 1, 1,
			},
			expectedErr: errParse,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			parsedGeoKeys, err := ParseGeoKeys(tc.directory, nil, nil)
			assert.NoError(t, err)
			actual, err := parsedGeoKeys.EPSG()
			if tc.expectedErr != nil {
				assert.IsError(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expected, actual)
			}
		})
	}
}

func TestParseGeoKeys_Errors(t *testing.T) {
	for _, tc := range []struct {
		name         string
		directory    []uint16
		doubleParams []float64
		asciiParams  []byte
	}{
		{
			name:      "short",
			directory: []uint16{1, 1, 0},
		},
		{
			name:      "bad_version",
			directory: []uint16{2, 1, 0, 0},
		},
		{
			name:      "wrong_key_count",
			directory: []uint16{1, 1, 0, 2, 1024, 0, 1, 1},
		},
		{
			name:      "double_param_out_of_range",
			directory: []uint16{1, 1, 0, 1, 2057, 34736, 1, 3},
		},
		{
			name:        "ascii_param_out_of_range",
			directory:   []uint16{1, 1, 0, 1, 1026, 34737, 10, 0},
			asciiParams: []byte("short|"),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseGeoKeys(tc.directory, tc.doubleParams, tc.asciiParams)
			assert.IsError(t, err, errParse)
		})
	}
}

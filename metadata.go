package ndvi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/maypok86/otter/v2"
)

// A Calibration holds the linear DN to TOA reflectance rescaling constants of
// a band.
type Calibration struct {
	Mult float64
	Add  float64
}

// SceneMetadata is the calibration-relevant subset of a scene's MTL document.
type SceneMetadata struct {
	SunElevation float64
	CloudCover   float64
	Reflectance  map[int]Calibration
	MTL          MTL
}

// Group names used by pre-collection and collection 1 MTL documents, and by
// collection 2 MTL documents, respectively.
var mtlLayouts = []struct {
	root       string
	rescaling  string
	attributes string
}{
	{root: "L1_METADATA_FILE", rescaling: "RADIOMETRIC_RESCALING", attributes: "IMAGE_ATTRIBUTES"},
	{root: "LANDSAT_METADATA_FILE", rescaling: "LEVEL1_RADIOMETRIC_RESCALING", attributes: "IMAGE_ATTRIBUTES"},
}

// NewSceneMetadata extracts SceneMetadata from mtl.
func NewSceneMetadata(mtl MTL) (*SceneMetadata, error) {
	for _, layout := range mtlLayouts {
		attributes, ok := mtl.Group(layout.root, layout.attributes)
		if !ok {
			continue
		}
		rescaling, ok := mtl.Group(layout.root, layout.rescaling)
		if !ok {
			return nil, fmt.Errorf("%s: missing %s group", layout.root, layout.rescaling)
		}

		sunElevation, err := attributes.Float("SUN_ELEVATION")
		if err != nil {
			return nil, err
		}
		cloudCover, err := attributes.Float("CLOUD_COVER")
		if err != nil {
			return nil, err
		}

		reflectance := make(map[int]Calibration)
		for band := 1; band <= 11; band++ {
			suffix := "_BAND_" + strconv.Itoa(band)
			mult, multErr := rescaling.Float("REFLECTANCE_MULT" + suffix)
			add, addErr := rescaling.Float("REFLECTANCE_ADD" + suffix)
			if multErr == nil && addErr == nil {
				reflectance[band] = Calibration{Mult: mult, Add: add}
			}
		}

		return &SceneMetadata{
			SunElevation: sunElevation,
			CloudCover:   cloudCover,
			Reflectance:  reflectance,
			MTL:          mtl,
		}, nil
	}
	return nil, errors.New("no recognized metadata group")
}

// BandCalibration returns the reflectance calibration of band.
func (m *SceneMetadata) BandCalibration(band int) (Calibration, error) {
	calibration, ok := m.Reflectance[band]
	if !ok {
		return Calibration{}, fmt.Errorf("%w: band %d: no reflectance calibration", ErrMetadataUnavailable, band)
	}
	return calibration, nil
}

// A MetadataClient fetches scene metadata from a Source.
type MetadataClient struct {
	source Source
	cache  *otter.Cache[string, *SceneMetadata]
}

// A MetadataClientOption sets an option on a MetadataClient.
type MetadataClientOption func(*MetadataClient) error

// WithMetadataCacheSize enables a cache of at most size parsed metadata
// documents, keyed by scene id. A size of zero disables caching.
func WithMetadataCacheSize(size int) MetadataClientOption {
	return func(c *MetadataClient) error {
		if size <= 0 {
			c.cache = nil
			return nil
		}
		cache, err := otter.New(&otter.Options[string, *SceneMetadata]{
			MaximumSize: size,
		})
		if err != nil {
			return err
		}
		c.cache = cache
		return nil
	}
}

// NewMetadataClient returns a new MetadataClient that reads from source.
func NewMetadataClient(source Source, options ...MetadataClientOption) (*MetadataClient, error) {
	c := &MetadataClient{
		source: source,
	}
	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Fetch returns the metadata of sceneID.
func (c *MetadataClient) Fetch(ctx context.Context, sceneID *SceneID) (*SceneMetadata, error) {
	if c.cache == nil {
		return c.fetch(ctx, sceneID)
	}
	metadata, err := c.cache.Get(ctx, sceneID.Raw, otter.LoaderFunc[string, *SceneMetadata](func(ctx context.Context, _ string) (*SceneMetadata, error) {
		metadataCacheMisses.Inc()
		return c.fetch(ctx, sceneID)
	}))
	if err != nil {
		return nil, err
	}
	return metadata, nil
}

func (c *MetadataClient) fetch(ctx context.Context, sceneID *SceneID) (*SceneMetadata, error) {
	data, err := ReadObject(ctx, c.source, sceneID.MTLKey())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMetadataUnavailable, sceneID, err)
	}
	mtl, err := ParseMTL(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMetadataUnavailable, sceneID, err)
	}
	metadata, err := NewSceneMetadata(mtl)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMetadataUnavailable, sceneID, err)
	}
	return metadata, nil
}

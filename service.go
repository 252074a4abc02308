package ndvi

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// Landsat-8 OLI bands.
const (
	BandRed = 4
	BandNIR = 5
)

// NoData is the digital number of Landsat-8 fill pixels.
const NoData = 0

// A PointResult is the NDVI of a single point in a scene.
type PointResult struct {
	Scene string  `json:"scene"`
	NDVI  float64 `json:"ndvi"`
	Date  string  `json:"date"`
	Cloud float64 `json:"cloud"`
}

// A Service computes NDVI products of Landsat-8 scenes.
type Service struct {
	source            Source
	thumbBaseURL      string
	logger            *slog.Logger
	metadataCacheSize int
	metadataClient    *MetadataClient
	bandCacheSize     int
	bandCache         *BandCache
	stagingDir        string
	staging           bool
	maxWidth          int
	maxHeight         int
	palette           *Palette
}

// A ServiceOption sets an option on a Service.
type ServiceOption func(*Service)

// WithSource sets the source of scene objects. The default reads from
// DefaultBaseURL over HTTP.
func WithSource(source Source) ServiceOption {
	return func(s *Service) {
		s.source = source
	}
}

// WithThumbBaseURL sets the base URL of thumbnail URLs.
func WithThumbBaseURL(thumbBaseURL string) ServiceOption {
	return func(s *Service) {
		s.thumbBaseURL = thumbBaseURL
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetadataCache caches up to size scene metadata documents across
// requests. By default metadata is fetched for every request.
func WithMetadataCache(size int) ServiceOption {
	return func(s *Service) {
		s.metadataCacheSize = size
	}
}

// WithBandCache keeps up to size bands open across requests. Call Close to
// release them.
func WithBandCache(size int) ServiceOption {
	return func(s *Service) {
		s.bandCacheSize = size
	}
}

// WithStagingDir downloads each band into a temporary file in dir instead of
// reading it with range requests.
func WithStagingDir(dir string) ServiceOption {
	return func(s *Service) {
		s.stagingDir = dir
		s.staging = true
	}
}

// WithMaxSize sets the maximum size of area images.
func WithMaxSize(maxWidth, maxHeight int) ServiceOption {
	return func(s *Service) {
		s.maxWidth = maxWidth
		s.maxHeight = maxHeight
	}
}

// WithPalette sets the palette of area images.
func WithPalette(palette *Palette) ServiceOption {
	return func(s *Service) {
		s.palette = palette
	}
}

// NewService returns a new Service.
func NewService(options ...ServiceOption) (*Service, error) {
	s := &Service{
		thumbBaseURL: DefaultBaseURL,
		logger:       slog.Default(),
		maxWidth:     DefaultMaxSize,
		maxHeight:    DefaultMaxSize,
	}
	for _, option := range options {
		option(s)
	}
	if s.maxWidth <= 0 || s.maxHeight <= 0 {
		return nil, fmt.Errorf("%dx%d: invalid maximum size", s.maxWidth, s.maxHeight)
	}
	if s.source == nil {
		s.source = NewHTTPSource(DefaultBaseURL, nil)
	}
	metadataSource := s.source
	if s.staging {
		s.source = NewStagingSource(s.source, s.stagingDir)
	}
	if s.palette == nil {
		palette, err := DefaultPalette()
		if err != nil {
			return nil, err
		}
		s.palette = &palette
	}
	metadataClient, err := NewMetadataClient(metadataSource, WithMetadataCacheSize(s.metadataCacheSize))
	if err != nil {
		return nil, err
	}
	s.metadataClient = metadataClient
	if s.bandCacheSize > 0 {
		s.bandCache, err = NewBandCache(s.source, NoData, s.bandCacheSize)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close releases the bands held open by s.
func (s *Service) Close() error {
	if s.bandCache != nil {
		s.bandCache.Purge()
	}
	return nil
}

// Logger returns s's logger.
func (s *Service) Logger() *slog.Logger {
	return s.logger
}

// Thumb returns the URL of the small thumbnail of sceneID.
func (s *Service) Thumb(ctx context.Context, sceneID string) (string, error) {
	parsedSceneID, err := ParseSceneID(sceneID)
	if err != nil {
		return "", err
	}
	thumbURL, err := url.JoinPath(s.thumbBaseURL, parsedSceneID.ThumbKey())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrComputation, err)
	}
	return thumbURL, nil
}

// Point returns the NDVI of the pixel containing lon, lat in sceneID.
func (s *Service) Point(ctx context.Context, sceneID string, lon, lat float64) (*PointResult, error) {
	parsedSceneID, metadata, err := s.sceneMetadata(ctx, sceneID)
	if err != nil {
		return nil, err
	}

	var reflectances [2]float64
	for i, band := range []int{BandRed, BandNIR} {
		calibration, err := metadata.BandCalibration(band)
		if err != nil {
			return nil, err
		}
		dn, err := s.sample(ctx, parsedSceneID.BandKey(band), lon, lat)
		if err != nil {
			return nil, err
		}
		reflectances[i] = Reflectance(dn, calibration.Mult, calibration.Add, metadata.SunElevation, NoData)
	}

	return &PointResult{
		Scene: sceneID,
		NDVI:  Ratio(reflectances[1], reflectances[0]),
		Date:  parsedSceneID.Date(),
		Cloud: metadata.CloudCover,
	}, nil
}

// Area returns the NDVI of bbox in sceneID as a base64-encoded JPEG.
func (s *Service) Area(ctx context.Context, sceneID string, bbox BBox) (string, error) {
	if err := bbox.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrComputation, err)
	}
	parsedSceneID, metadata, err := s.sceneMetadata(ctx, sceneID)
	if err != nil {
		return "", err
	}

	var reflectances [2]*Grid
	for i, band := range []int{BandRed, BandNIR} {
		calibration, err := metadata.BandCalibration(band)
		if err != nil {
			return "", err
		}
		dn, err := s.readWindow(ctx, parsedSceneID.BandKey(band), bbox)
		if err != nil {
			return "", err
		}
		reflectances[i] = ReflectanceGrid(dn, calibration, metadata.SunElevation, NoData)
	}

	ratio, err := RatioGrid(reflectances[1], reflectances[0])
	if err != nil {
		return "", err
	}
	return s.palette.Render(RescaleGrid(ratio))
}

func (s *Service) sceneMetadata(ctx context.Context, sceneID string) (*SceneID, *SceneMetadata, error) {
	parsedSceneID, err := ParseSceneID(sceneID)
	if err != nil {
		return nil, nil, err
	}
	metadata, err := s.metadataClient.Fetch(ctx, parsedSceneID)
	if err != nil {
		return nil, nil, err
	}
	return parsedSceneID, metadata, nil
}

// openBand returns the BandReader for key and a function to release it.
func (s *Service) openBand(ctx context.Context, key string) (*BandReader, func() error, error) {
	if s.bandCache != nil {
		return s.bandCache.Acquire(ctx, key)
	}
	bandReader, err := OpenBandReader(ctx, s.source, key, NoData)
	if err != nil {
		return nil, nil, err
	}
	return bandReader, bandReader.Close, nil
}

func (s *Service) sample(ctx context.Context, key string, lon, lat float64) (_ float64, err error) {
	bandReader, release, err := s.openBand(ctx, key)
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := release(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: %w", ErrRasterIO, closeErr)
		}
	}()
	return bandReader.Sample(ctx, lon, lat)
}

func (s *Service) readWindow(ctx context.Context, key string, bbox BBox) (_ *Grid, err error) {
	bandReader, release, err := s.openBand(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := release(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: %w", ErrRasterIO, closeErr)
		}
	}()
	return bandReader.ReadWindow(ctx, bbox, s.maxWidth, s.maxHeight)
}

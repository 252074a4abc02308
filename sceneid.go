package ndvi

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Object key suffixes for the artefacts of a Landsat-8 scene.
const (
	MTLSuffix        = "_MTL.txt"
	ThumbSmallSuffix = "_thumb_small.jpg"
)

var (
	landsat8SceneIDRx = regexp.MustCompile(`^(?:` +
		`L[COTEM]8\d{6}\d{7}[A-Z]{3}\d{2}` +
		`|` +
		`L[COTEM]08_L\d[A-Z]{2}_\d{6}_\d{8}_\d{8}_\d{2}_(?:T1|T2|RT)` +
		`)$`)

	// Grammars are tried in order, the first match wins.
	landsat8Grammars = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^L` +
			`(?P<sensor>\w)` +
			`(?P<satellite>\w{2})` +
			`_` +
			`(?P<correctionLevel>\w{4})` +
			`_` +
			`(?P<path>[0-9]{3})` +
			`(?P<row>[0-9]{3})` +
			`_` +
			`(?P<acquisitionYear>[0-9]{4})` +
			`(?P<acquisitionMonth>[0-9]{2})` +
			`(?P<acquisitionDay>[0-9]{2})` +
			`_` +
			`(?P<processingYear>[0-9]{4})` +
			`(?P<processingMonth>[0-9]{2})` +
			`(?P<processingDay>[0-9]{2})` +
			`_` +
			`(?P<collectionNumber>\w{2})` +
			`_` +
			`(?P<collectionCategory>\w{2})$`),
		regexp.MustCompile(`(?i)^L` +
			`(?P<sensor>\w)` +
			`(?P<satellite>\w)` +
			`(?P<path>[0-9]{3})` +
			`(?P<row>[0-9]{3})` +
			`(?P<acquisitionYear>[0-9]{4})` +
			`(?P<acquisitionJulianDay>[0-9]{3})` +
			`(?P<groundStation>\w{3})` +
			`(?P<archiveVersion>[0-9]{2})$`),
	}

	sentinel2TileIDRx      = regexp.MustCompile(`^S2[AB]_tile_[0-9]{8}_[0-9]{2}[A-Z]{3}_[0-9]$`)
	sentinel2TileIDGrammar = regexp.MustCompile(`(?i)^S` +
		`(?P<sensor>\w)` +
		`(?P<satellite>[AB])` +
		`_tile_` +
		`(?P<acquisitionYear>[0-9]{4})` +
		`(?P<acquisitionMonth>[0-9]{2})` +
		`(?P<acquisitionDay>[0-9]{2})` +
		`_` +
		`(?P<utm>[0-9]{2})` +
		`(?P<latitudeBand>\w)` +
		`(?P<square>\w{2})` +
		`_` +
		`(?P<num>[0-9])$`)
)

// A SceneID is a parsed Landsat-8 scene identifier, in either the collection
// (e.g. LC08_L1TP_139045_20170304_20170316_01_T1) or the pre-collection (e.g.
// LC80060522017107LGN00) naming convention.
type SceneID struct {
	Raw                string
	Sensor             string
	Satellite          string
	CorrectionLevel    string
	Path               string
	Row                string
	AcquisitionDate    time.Time
	JulianDay          int
	ProcessingDate     time.Time
	GroundStation      string
	ArchiveVersion     string
	HasCollection      bool
	CollectionNumber   int
	CollectionCategory string
	Key                string
}

// ParseSceneID parses raw as a Landsat-8 scene identifier.
func ParseSceneID(raw string) (*SceneID, error) {
	if !landsat8SceneIDRx.MatchString(raw) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSceneID, raw)
	}

	var fields map[string]string
	for _, grammar := range landsat8Grammars {
		if fields = matchFields(grammar, raw); fields != nil {
			break
		}
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSceneID, raw)
	}

	s := &SceneID{
		Raw:                raw,
		Sensor:             fields["sensor"],
		Satellite:          fields["satellite"],
		CorrectionLevel:    fields["correctionLevel"],
		Path:               fields["path"],
		Row:                fields["row"],
		GroundStation:      fields["groundStation"],
		ArchiveVersion:     fields["archiveVersion"],
		CollectionCategory: fields["collectionCategory"],
	}

	var err error
	if julianDay := fields["acquisitionJulianDay"]; julianDay != "" {
		year, _ := strconv.Atoi(fields["acquisitionYear"])
		s.JulianDay, _ = strconv.Atoi(julianDay)
		s.AcquisitionDate = julianDate(year, s.JulianDay)
	} else {
		s.AcquisitionDate, err = parseDate(fields["acquisitionYear"], fields["acquisitionMonth"], fields["acquisitionDay"])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: acquisition date: %w", ErrInvalidSceneID, raw, err)
		}
	}

	if fields["processingYear"] != "" {
		s.ProcessingDate, err = parseDate(fields["processingYear"], fields["processingMonth"], fields["processingDay"])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: processing date: %w", ErrInvalidSceneID, raw, err)
		}
	}

	collectionPrefix := ""
	if collectionNumber := fields["collectionNumber"]; collectionNumber != "" {
		s.CollectionNumber, err = strconv.Atoi(collectionNumber)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: collection number: %w", ErrInvalidSceneID, raw, err)
		}
		s.HasCollection = true
		collectionPrefix = "c" + strconv.Itoa(s.CollectionNumber)
	}

	s.Key = path.Join(collectionPrefix, "L8", s.Path, s.Row, raw, raw)
	return s, nil
}

// Date returns the acquisition date of s formatted as YYYY-MM-DD.
func (s *SceneID) Date() string {
	return s.AcquisitionDate.Format(time.DateOnly)
}

// BandKey returns the object key of band's GeoTIFF.
func (s *SceneID) BandKey(band int) string {
	return fmt.Sprintf("%s_B%d.TIF", s.Key, band)
}

// MTLKey returns the object key of s's MTL metadata document.
func (s *SceneID) MTLKey() string {
	return s.Key + MTLSuffix
}

// ThumbKey returns the object key of s's small thumbnail.
func (s *SceneID) ThumbKey() string {
	return s.Key + ThumbSmallSuffix
}

func (s *SceneID) String() string {
	return s.Raw
}

// A Sentinel2TileID is a parsed Sentinel-2 tile identifier, e.g.
// S2A_tile_20170105_33UUP_0.
type Sentinel2TileID struct {
	Raw             string
	Sensor          string
	Satellite       string
	AcquisitionDate time.Time
	UTMZone         string
	LatitudeBand    string
	Square          string
	Number          string
	Key             string
}

// ParseSentinel2TileID parses raw as a Sentinel-2 tile identifier.
func ParseSentinel2TileID(raw string) (*Sentinel2TileID, error) {
	if !sentinel2TileIDRx.MatchString(raw) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSceneID, raw)
	}
	fields := matchFields(sentinel2TileIDGrammar, raw)
	if fields == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSceneID, raw)
	}

	acquisitionDate, err := parseDate(fields["acquisitionYear"], fields["acquisitionMonth"], fields["acquisitionDay"])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: acquisition date: %w", ErrInvalidSceneID, raw, err)
	}

	t := &Sentinel2TileID{
		Raw:             raw,
		Sensor:          fields["sensor"],
		Satellite:       fields["satellite"],
		AcquisitionDate: acquisitionDate,
		UTMZone:         fields["utm"],
		LatitudeBand:    fields["latitudeBand"],
		Square:          fields["square"],
		Number:          fields["num"],
	}
	t.Key = strings.Join([]string{
		"tiles",
		t.UTMZone,
		t.LatitudeBand,
		t.Square,
		fields["acquisitionYear"],
		strings.TrimLeft(fields["acquisitionMonth"], "0"),
		strings.TrimLeft(fields["acquisitionDay"], "0"),
		t.Number,
	}, "/")
	return t, nil
}

// matchFields returns the named submatches of rx in s, or nil if rx does not
// match.
func matchFields(rx *regexp.Regexp, s string) map[string]string {
	match := rx.FindStringSubmatch(s)
	if match == nil {
		return nil
	}
	fields := make(map[string]string)
	for i, name := range rx.SubexpNames() {
		if name != "" {
			fields[name] = match[i]
		}
	}
	return fields
}

// julianDate returns January 1st of year plus julianDay-1 days.
func julianDate(year, julianDay int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, julianDay-1)
}

func parseDate(year, month, day string) (time.Time, error) {
	return time.Parse("20060102", year+month+day)
}

package ndvi

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by a Service operation wraps exactly
// one of these, so callers can classify failures with [errors.Is].
var (
	ErrInvalidSceneID      = errors.New("invalid scene id")
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	ErrRasterIO            = errors.New("raster i/o error")
	ErrComputation         = errors.New("computation error")
)

var (
	errParse     = errors.New("parse error")
	errShortRead = errors.New("short read")
)

// categorize wraps err in category unless it already carries a category.
func categorize(category, err error) error {
	if err == nil {
		return nil
	}
	for _, c := range []error{ErrInvalidSceneID, ErrMetadataUnavailable, ErrRasterIO, ErrComputation} {
		if errors.Is(err, c) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", category, err)
}

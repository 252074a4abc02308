package ndvi

import (
	"context"
	"fmt"
	"log/slog"
)

// A Mode is a kind of query.
type Mode string

// Modes.
const (
	ModeThumb Mode = "thumb"
	ModePoint Mode = "point"
	ModeArea  Mode = "area"
)

// ParseMode parses a Mode.
func ParseMode(s string) (Mode, error) {
	switch mode := Mode(s); mode {
	case ModeThumb, ModePoint, ModeArea:
		return mode, nil
	default:
		return "", fmt.Errorf("%s: unknown mode", s)
	}
}

// A Policy determines what happens when a query fails.
type Policy int

// Policies.
const (
	// PolicyDegrade replaces a failed result with an empty value and logs the
	// error.
	PolicyDegrade Policy = iota
	// PolicyStrict returns the error.
	PolicyStrict
)

// DefaultPolicy returns the policy used for mode when none is requested.
// Thumb and point queries degrade and area queries are strict.
func DefaultPolicy(mode Mode) Policy {
	if mode == ModeArea {
		return PolicyStrict
	}
	return PolicyDegrade
}

// A Request is a query of any mode.
type Request struct {
	Mode    Mode
	SceneID string
	Lon     float64
	Lat     float64
	BBox    BBox
	Policy  *Policy
}

// A Response is the result of a Request. At most one of Thumb, Point, and
// Area is set. Err is set only if the request failed under PolicyStrict.
type Response struct {
	Mode  Mode
	Thumb string
	Point *PointResult
	Area  string
	Err   error
}

// Do executes req and applies its failure policy.
func (s *Service) Do(ctx context.Context, req Request) Response {
	policy := DefaultPolicy(req.Mode)
	if req.Policy != nil {
		policy = *req.Policy
	}

	resp := Response{Mode: req.Mode}
	var err error
	switch req.Mode {
	case ModeThumb:
		resp.Thumb, err = s.Thumb(ctx, req.SceneID)
	case ModePoint:
		resp.Point, err = s.Point(ctx, req.SceneID, req.Lon, req.Lat)
	case ModeArea:
		resp.Area, err = s.Area(ctx, req.SceneID, req.BBox)
	default:
		err = fmt.Errorf("%s: unknown mode", req.Mode)
	}
	if err == nil {
		queries.WithLabelValues(string(req.Mode), "ok").Inc()
		return resp
	}

	err = categorize(ErrComputation, err)
	queries.WithLabelValues(string(req.Mode), "error").Inc()
	s.logger.LogAttrs(ctx, slog.LevelWarn, "query failed",
		slog.String("mode", string(req.Mode)),
		slog.String("scene", req.SceneID),
		slog.Any("err", err),
	)
	if policy == PolicyStrict {
		return Response{Mode: req.Mode, Err: err}
	}
	return Response{Mode: req.Mode}
}

// Value returns the response's value in the form it is serialized: a string
// for thumb and area queries, and a PointResult, or an empty object if there
// is none, for point queries.
func (r Response) Value() any {
	switch r.Mode {
	case ModePoint:
		if r.Point == nil {
			return struct{}{}
		}
		return r.Point
	case ModeArea:
		return r.Area
	default:
		return r.Thumb
	}
}

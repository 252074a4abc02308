package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/twpayne/go-ndvi"
)

// newRouter returns a router that serves queries from service.
func newRouter(service *ndvi.Service) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/thumb/{scene}", queryHandler(service, ndvi.ModeThumb)).Methods(http.MethodGet)
	router.HandleFunc("/point/{scene}", queryHandler(service, ndvi.ModePoint)).Methods(http.MethodGet)
	router.HandleFunc("/area/{scene}", queryHandler(service, ndvi.ModeArea)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return router
}

// newHandler returns the router for service wrapped with CORS and panic
// recovery.
func newHandler(service *ndvi.Service, allowedOrigins []string, logger *slog.Logger) http.Handler {
	handler := handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodHead, http.MethodOptions}),
		handlers.AllowedOrigins(allowedOrigins),
	)(newRouter(service))
	recoveryLogger := slog.NewLogLogger(logger.Handler(), slog.LevelError)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger))(handler)
}

func queryHandler(service *ndvi.Service, mode ndvi.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseRequest(r, mode)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := service.Do(r.Context(), req)
		if resp.Err != nil {
			http.Error(w, resp.Err.Error(), statusCode(resp.Err))
			return
		}
		data, err := json.Marshal(resp.Value())
		if err != nil {
			service.Logger().LogAttrs(r.Context(), slog.LevelError, "encode response",
				slog.String("mode", string(mode)),
				slog.Any("err", err),
			)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(append(data, '\n'))
	}
}

func parseRequest(r *http.Request, mode ndvi.Mode) (ndvi.Request, error) {
	query := r.URL.Query()
	req := ndvi.Request{
		Mode:    mode,
		SceneID: mux.Vars(r)["scene"],
	}

	if strictStr := query.Get("strict"); strictStr != "" {
		strict, err := strconv.ParseBool(strictStr)
		if err != nil {
			return ndvi.Request{}, fmt.Errorf("invalid strict: %s", strictStr)
		}
		policy := ndvi.PolicyDegrade
		if strict {
			policy = ndvi.PolicyStrict
		}
		req.Policy = &policy
	}

	switch mode {
	case ndvi.ModePoint:
		var err error
		if req.Lon, err = strconv.ParseFloat(query.Get("lon"), 64); err != nil {
			return ndvi.Request{}, fmt.Errorf("invalid lon: %q", query.Get("lon"))
		}
		if req.Lat, err = strconv.ParseFloat(query.Get("lat"), 64); err != nil {
			return ndvi.Request{}, fmt.Errorf("invalid lat: %q", query.Get("lat"))
		}
	case ndvi.ModeArea:
		bbox, err := ndvi.ParseBBox(query.Get("bbox"))
		if err != nil {
			return ndvi.Request{}, fmt.Errorf("invalid bbox: %w", err)
		}
		req.BBox = bbox
	}

	return req, nil
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, ndvi.ErrInvalidSceneID):
		return http.StatusBadRequest
	case errors.Is(err, ndvi.ErrMetadataUnavailable), errors.Is(err, ndvi.ErrRasterIO):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/twpayne/go-ndvi"
)

// A config holds environment-driven settings for the server.
type config struct {
	Addr              string
	Source            string
	BaseURL           string
	Bucket            string
	Region            string
	Dir               string
	ThumbBaseURL      string
	StagingDir        string
	MetadataCacheSize int
	BandCacheSize     int
	AllowedOrigins    []string
	MaxSize           int
	LogLevel          slog.Level
}

// loadConfig reads configuration from environment variables, optionally set
// in a .env file.
func loadConfig() (config, error) {
	_ = godotenv.Load()

	cfg := config{
		Addr:           ":8080",
		Source:         "http",
		BaseURL:        ndvi.DefaultBaseURL,
		Bucket:         ndvi.DefaultBucket,
		Region:         "us-west-2",
		ThumbBaseURL:   ndvi.DefaultBaseURL,
		MaxSize:        ndvi.DefaultMaxSize,
		LogLevel:       slog.LevelInfo,
		AllowedOrigins: []string{"*"},
	}

	if addr := os.Getenv("NDVI_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	switch source := os.Getenv("NDVI_SOURCE"); source {
	case "":
	case "http", "s3", "dir":
		cfg.Source = source
	default:
		return cfg, fmt.Errorf("invalid NDVI_SOURCE: %s", source)
	}

	if baseURL := os.Getenv("NDVI_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
		cfg.ThumbBaseURL = baseURL
	}
	if thumbBaseURL := os.Getenv("NDVI_THUMB_BASE_URL"); thumbBaseURL != "" {
		cfg.ThumbBaseURL = thumbBaseURL
	}
	if bucket := os.Getenv("NDVI_BUCKET"); bucket != "" {
		cfg.Bucket = bucket
	}
	if region := os.Getenv("NDVI_REGION"); region != "" {
		cfg.Region = region
	}

	cfg.Dir = os.Getenv("NDVI_DIR")
	if cfg.Source == "dir" && cfg.Dir == "" {
		return cfg, errors.New("NDVI_DIR is required when NDVI_SOURCE is dir")
	}

	cfg.StagingDir = os.Getenv("NDVI_STAGING_DIR")

	if sizeStr := os.Getenv("NDVI_METADATA_CACHE_SIZE"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil && size >= 0 {
			cfg.MetadataCacheSize = size
		} else {
			return cfg, fmt.Errorf("invalid NDVI_METADATA_CACHE_SIZE: %s", sizeStr)
		}
	}

	if sizeStr := os.Getenv("NDVI_BAND_CACHE_SIZE"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil && size >= 0 {
			cfg.BandCacheSize = size
		} else {
			return cfg, fmt.Errorf("invalid NDVI_BAND_CACHE_SIZE: %s", sizeStr)
		}
	}

	if origins := os.Getenv("NDVI_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}

	if sizeStr := os.Getenv("NDVI_MAX_SIZE"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil && size > 0 {
			cfg.MaxSize = size
		} else {
			return cfg, fmt.Errorf("invalid NDVI_MAX_SIZE: %s", sizeStr)
		}
	}

	if levelStr := os.Getenv("NDVI_LOG_LEVEL"); levelStr != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(levelStr)); err != nil {
			return cfg, fmt.Errorf("invalid NDVI_LOG_LEVEL: %s", levelStr)
		}
	}

	return cfg, nil
}

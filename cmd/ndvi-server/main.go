package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/twpayne/go-ndvi"
)

func newSource(cfg config) (ndvi.Source, error) {
	switch cfg.Source {
	case "s3":
		sess, err := session.NewSession(&aws.Config{
			Region:      aws.String(cfg.Region),
			Credentials: credentials.AnonymousCredentials,
		})
		if err != nil {
			return nil, err
		}
		return ndvi.NewS3Source(s3.New(sess), cfg.Bucket), nil
	case "dir":
		return ndvi.NewFSSource(os.DirFS(cfg.Dir)), nil
	default:
		return ndvi.NewHTTPSource(cfg.BaseURL, &http.Client{Timeout: time.Minute}), nil
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	source, err := newSource(cfg)
	if err != nil {
		return err
	}

	options := []ndvi.ServiceOption{
		ndvi.WithSource(source),
		ndvi.WithThumbBaseURL(cfg.ThumbBaseURL),
		ndvi.WithLogger(logger),
		ndvi.WithMetadataCache(cfg.MetadataCacheSize),
		ndvi.WithBandCache(cfg.BandCacheSize),
		ndvi.WithMaxSize(cfg.MaxSize, cfg.MaxSize),
	}
	if cfg.StagingDir != "" {
		options = append(options, ndvi.WithStagingDir(cfg.StagingDir))
	}
	service, err := ndvi.NewService(options...)
	if err != nil {
		return err
	}
	defer service.Close()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(service, cfg.AllowedOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("listening", slog.String("addr", cfg.Addr), slog.String("source", cfg.Source))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

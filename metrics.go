package ndvi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sourceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndvi_source_requests_total",
		Help: "The total number of requests to remote sources",
	}, []string{"source"})
	sourceBytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndvi_source_bytes_read_total",
		Help: "The total number of bytes read from remote sources",
	})
	blockCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndvi_block_cache_hits_total",
		Help: "The total number of hits on the block cache",
	})
	blockCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndvi_block_cache_misses_total",
		Help: "The total number of misses on the block cache",
	})
	bandCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndvi_band_cache_hits_total",
		Help: "The total number of hits on the band cache",
	})
	bandCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndvi_band_cache_misses_total",
		Help: "The total number of misses on the band cache",
	})
	bandCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndvi_band_cache_evictions_total",
		Help: "The total number of evictions from the band cache",
	})
	missingBandCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndvi_missing_band_cache_hits_total",
		Help: "The total number of hits on the missing band cache",
	})
	missingBandCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndvi_missing_band_cache_misses_total",
		Help: "The total number of misses on the missing band cache",
	})
	tileDecodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndvi_tile_decodes_total",
		Help: "The total number of GeoTIFF tiles decoded",
	})
	metadataCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ndvi_metadata_cache_misses_total",
		Help: "The total number of misses on the metadata cache",
	})
	queries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndvi_queries_total",
		Help: "The total number of queries by mode and outcome",
	}, []string{"mode", "outcome"})
)

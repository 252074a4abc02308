package ndvi

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// A BandCache is a bounded cache of open BandReaders keyed by object key.
// Keys that do not exist are remembered.
type BandCache struct {
	mutex       sync.Mutex
	source      Source
	noData      float64
	missingKeys sync.Map
	bandReaders *lru.Cache[string, *bandCacheEntry]
}

// A bandCacheEntry is a reference counted BandReader. The reader is closed
// when it has been evicted and has no remaining references.
type bandCacheEntry struct {
	mutex      sync.Mutex
	bandReader *BandReader
	refs       int
	evicted    bool
}

// NewBandCache returns a new BandCache that holds up to size open bands from
// source.
func NewBandCache(source Source, noData float64, size int) (*BandCache, error) {
	c := &BandCache{
		source: source,
		noData: noData,
	}
	var err error
	c.bandReaders, err = lru.NewWithEvict(size, func(key string, entry *bandCacheEntry) {
		bandCacheEvictions.Inc()
		entry.evict()
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Acquire returns the BandReader for key and a function that must be called
// when the caller has finished with it.
func (c *BandCache) Acquire(ctx context.Context, key string) (*BandReader, func() error, error) {
	for {
		entry, err := c.getEntryCached(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		if entry.acquire() {
			return entry.bandReader, entry.release, nil
		}
		// The entry was evicted between lookup and acquisition, retry.
	}
}

// Purge closes all unreferenced bands and empties c.
func (c *BandCache) Purge() {
	c.bandReaders.Purge()
}

// getEntry opens the band at key.
func (c *BandCache) getEntry(ctx context.Context, key string) (*bandCacheEntry, error) {
	// Cached bands outlive the request that opened them.
	bandReader, err := OpenBandReader(context.WithoutCancel(ctx), c.source, key, c.noData)
	if errors.Is(err, fs.ErrNotExist) {
		c.missingKeys.Store(key, struct{}{})
		missingBandCacheMisses.Inc()
	}
	if err != nil {
		return nil, err
	}
	return &bandCacheEntry{bandReader: bandReader}, nil
}

// getEntryCached returns the entry for key, using the cache if possible.
func (c *BandCache) getEntryCached(ctx context.Context, key string) (*bandCacheEntry, error) {
	if _, ok := c.missingKeys.Load(key); ok {
		missingBandCacheHits.Inc()
		return nil, missingBandError(key)
	}

	if entry, ok := c.bandReaders.Get(key); ok {
		bandCacheHits.Inc()
		return entry, nil
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, ok := c.missingKeys.Load(key); ok {
		missingBandCacheHits.Inc()
		return nil, missingBandError(key)
	}

	if entry, ok := c.bandReaders.Get(key); ok {
		bandCacheHits.Inc()
		return entry, nil
	}

	bandCacheMisses.Inc()

	entry, err := c.getEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	c.bandReaders.Add(key, entry)
	return entry, nil
}

func missingBandError(key string) error {
	return fmt.Errorf("%w: %s: %w", ErrRasterIO, key, fs.ErrNotExist)
}

func (e *bandCacheEntry) acquire() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.evicted {
		return false
	}
	e.refs++
	return true
}

func (e *bandCacheEntry) release() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.refs--
	if e.evicted && e.refs == 0 {
		return e.bandReader.Close()
	}
	return nil
}

func (e *bandCacheEntry) evict() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.evicted {
		return
	}
	e.evicted = true
	if e.refs == 0 {
		_ = e.bandReader.Close()
	}
}

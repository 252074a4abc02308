package ndvi

import (
	"errors"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultBlockSize      = 64 << 10 // 64KB.
	defaultBlockCacheSize = 256      // 16MB with the default block size.
)

// A blockCachedObject is an Object whose reads are rounded out to whole
// blocks, which are cached. Runs of missing blocks are fetched with a single
// read on the underlying Object, so small reads of the TIFF header and IFD
// turn into a few large requests.
type blockCachedObject struct {
	Object
	blockSize int64
	blocks    *lru.Cache[int64, []byte]
}

func newBlockCachedObject(object Object, blockSize, cacheSize int) (*blockCachedObject, error) {
	blocks, err := lru.New[int64, []byte](cacheSize)
	if err != nil {
		return nil, err
	}
	return &blockCachedObject{
		Object:    object,
		blockSize: int64(blockSize),
		blocks:    blocks,
	}, nil
}

func (o *blockCachedObject) ReadAt(p []byte, off int64) (int, error) {
	n, rangeErr := readAtRange(p, off, o.Size())
	if n == 0 {
		return 0, rangeErr
	}

	firstBlock := off / o.blockSize
	lastBlock := (off + int64(n) - 1) / o.blockSize
	blocks := make([][]byte, lastBlock-firstBlock+1)

	// Fetch runs of consecutive missing blocks.
	for index := firstBlock; index <= lastBlock; {
		if block, ok := o.blocks.Get(index); ok {
			blockCacheHits.Inc()
			blocks[index-firstBlock] = block
			index++
			continue
		}
		runEnd := index + 1
		for runEnd <= lastBlock && !o.blocks.Contains(runEnd) {
			runEnd++
		}
		if err := o.fetchBlocks(index, runEnd, blocks[index-firstBlock:runEnd-firstBlock]); err != nil {
			return 0, err
		}
		index = runEnd
	}

	copied := 0
	for i, block := range blocks {
		blockStart := (firstBlock + int64(i)) * o.blockSize
		start := max(off-blockStart, 0)
		end := min(off+int64(n)-blockStart, int64(len(block)))
		if start >= end {
			return copied, errShortRead
		}
		copied += copy(p[copied:n], block[start:end])
	}
	return copied, rangeErr
}

// fetchBlocks reads blocks [startBlock, endBlock) into blocks and the cache.
func (o *blockCachedObject) fetchBlocks(startBlock, endBlock int64, blocks [][]byte) error {
	start := startBlock * o.blockSize
	end := min(endBlock*o.blockSize, o.Size())
	data := make([]byte, end-start)
	switch n, err := o.Object.ReadAt(data, start); {
	case errors.Is(err, io.EOF) && n == len(data):
	case err != nil:
		return err
	case n != len(data):
		return errShortRead
	}
	blockCacheMisses.Add(float64(endBlock - startBlock))
	for i := range blocks {
		blockStart := int64(i) * o.blockSize
		block := data[blockStart:min(blockStart+o.blockSize, int64(len(data)))]
		blocks[i] = block
		o.blocks.Add(startBlock+int64(i), block)
	}
	return nil
}

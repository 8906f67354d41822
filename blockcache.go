// blockcache.go
//
// Decoded-block cache for random-access entry reads.
// ReadEntry decodes only the blocks that overlap the requested entry. Many
// small entries share a block, so the window maps (archive, block index)
// to the block's decompressed bytes and reuses them across reads.
//
// The window is a bounded LRU keyed by block count. Blocks larger than
// maxCachedBlock are never stored so a single oversized block cannot evict
// the whole working set.

package unitypack

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultBlockCacheSize is the number of decoded blocks a Decoder keeps
	// for ReadEntry.
	DefaultBlockCacheSize = 64

	maxCachedBlock = 16 << 20 // 16 MiB
)

// blockKey identifies one block of one archive revision. archive is the
// layout fingerprint, so a rewritten file never hits stale blocks.
type blockKey struct {
	archive uint64
	index   int
}

// blockWindow caches decoded blocks. The wrapped lru.Cache is safe for
// concurrent use, so a blockWindow may be shared between goroutines.
type blockWindow struct {
	entries *lru.Cache[blockKey, []byte]
}

func newBlockWindow(size int) (*blockWindow, error) {
	cache, err := lru.New[blockKey, []byte](size)
	if err != nil {
		return nil, err
	}
	return &blockWindow{entries: cache}, nil
}

// lookup returns the decoded block for k. Callers must not modify it.
func (w *blockWindow) lookup(k blockKey) ([]byte, bool) { return w.entries.Get(k) }

// add stores a decoded block. The slice must not be modified afterwards.
func (w *blockWindow) add(k blockKey, buf []byte) {
	if len(buf) > maxCachedBlock {
		return
	}
	w.entries.Add(k, buf)
}

// len reports the number of cached blocks.
func (w *blockWindow) len() int { return w.entries.Len() }

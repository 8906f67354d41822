package unitypack

import (
	"io"
	"math/bits"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	// DefaultPoolMaxLength is the largest buffer a BufferPool retains.
	// Requests above it are served by a plain allocation that is dropped on
	// Put.
	DefaultPoolMaxLength = 256 << 20

	// DefaultPoolBuffersPerBucket bounds how many buffers of one size class
	// a BufferPool keeps around.
	DefaultPoolBuffersPerBucket = 5

	minBucketShift = 4 // Smallest size class is 16 bytes.
)

// BufferPool reuses large byte slices across block decompressions.
//
// Buffers are grouped into power-of-two size classes from 16 bytes up to
// the pool's maximum length. Get returns a slice of exactly the requested
// length backed by a class-sized array; Put hands it back, optionally
// zeroing it first so decoded payload does not linger in memory.
//
// A BufferPool is safe for concurrent use. It is an explicit service:
// create one with NewBufferPool, share it between decoders, and call Close
// on shutdown to drop every retained buffer.
type BufferPool struct {
	maxLen    int
	perBucket int
	buckets   []bufferBucket
}

// bufferBucket holds the idle buffers of a single size class.
type bufferBucket struct {
	mu   sync.Mutex
	free [][]byte
}

// NewBufferPool creates a pool that retains buffers up to maxLen bytes,
// at most perBucket per size class. Non-positive arguments select the
// defaults.
func NewBufferPool(maxLen, perBucket int) *BufferPool {
	if maxLen <= 0 {
		maxLen = DefaultPoolMaxLength
	}
	if perBucket <= 0 {
		perBucket = DefaultPoolBuffersPerBucket
	}
	n := bucketIndex(maxLen) + 1
	return &BufferPool{
		maxLen:    maxLen,
		perBucket: perBucket,
		buckets:   make([]bufferBucket, n),
	}
}

// bucketIndex maps a length to its size class. Class i holds buffers of
// 1<<(i+minBucketShift) bytes.
func bucketIndex(n int) int {
	if n <= 1<<minBucketShift {
		return 0
	}
	return bits.Len(uint(n-1)) - minBucketShift
}

// Get returns a slice of length n. Its contents are unspecified unless the
// previous holder returned it with clear set.
func (p *BufferPool) Get(n int) []byte {
	if p == nil || n > p.maxLen {
		return make([]byte, n)
	}
	idx := bucketIndex(n)
	b := &p.buckets[idx]
	b.mu.Lock()
	if last := len(b.free) - 1; last >= 0 {
		buf := b.free[last]
		b.free[last] = nil
		b.free = b.free[:last]
		b.mu.Unlock()
		return buf[:n]
	}
	b.mu.Unlock()
	return make([]byte, n, 1<<(idx+minBucketShift))
}

// Put returns buf to the pool. When clear is true the whole backing array
// is zeroed first. Buffers that did not come from Get, or that exceed the
// bucket's retention limit, are dropped.
func (p *BufferPool) Put(buf []byte, clear bool) {
	if p == nil {
		return
	}
	c := cap(buf)
	if c > p.maxLen || c < 1<<minBucketShift || c&(c-1) != 0 {
		return
	}
	if clear {
		full := buf[:c]
		for i := range full {
			full[i] = 0
		}
	}
	b := &p.buckets[bucketIndex(c)]
	b.mu.Lock()
	if len(b.free) < p.perBucket {
		b.free = append(b.free, buf[:c])
	}
	b.mu.Unlock()
}

// Idle returns the number of buffers currently retained.
func (p *BufferPool) Idle() int {
	total := 0
	for i := range p.buckets {
		b := &p.buckets[i]
		b.mu.Lock()
		total += len(b.free)
		b.mu.Unlock()
	}
	return total
}

// Close drops every retained buffer. The pool stays usable afterwards and
// simply starts empty.
func (p *BufferPool) Close() {
	if p == nil {
		return
	}
	for i := range p.buckets {
		b := &p.buckets[i]
		b.mu.Lock()
		clear(b.free)
		b.free = nil
		b.mu.Unlock()
	}
}

// zstdPool reuses synchronous zstd decoders for DecodeAll.
// Decoders are created with concurrency 1 so no background goroutines
// outlive a pooled value.
var zstdPool = sync.Pool{New: func() any {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(false))
	if err != nil {
		return nil
	}
	return dec
}}

// getZstdDecoder obtains a decoder from the pool or creates a new one.
func getZstdDecoder() (*zstd.Decoder, error) {
	if v, ok := zstdPool.Get().(*zstd.Decoder); ok && v != nil {
		return v, nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
}

// putZstdDecoder returns a decoder to the pool for reuse.
func putZstdDecoder(dec *zstd.Decoder) { zstdPool.Put(dec) }

// gzPool reuses gzip.Reader instances. There is no zero-value constructor
// that skips header parsing, so the first Get creates a fresh reader.
var gzPool = sync.Pool{New: func() any { return nil }}

// getGzipReader obtains a gzip.Reader from the pool or creates a new one,
// reset to read from src.
func getGzipReader(src io.Reader) (*gzip.Reader, error) {
	if zr, ok := gzPool.Get().(*gzip.Reader); ok && zr != nil {
		if err := zr.Reset(src); err == nil {
			return zr, nil
		}
		// Could not reset (corrupt header) - fall through to fresh alloc.
	}
	return gzip.NewReader(src)
}

// putGzipReader returns a gzip.Reader to the pool for reuse.
func putGzipReader(zr *gzip.Reader) {
	_ = zr.Close()
	gzPool.Put(zr)
}

package unitypack

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// spillSuffix is appended to the source path to name the on-disk unified
// region of an archive too large for memory.
const spillSuffix = ".temp"

// spillsToDisk reports whether a region or entry of the given size must
// live on disk. Everything at or above the largest signed 32-bit length
// does.
func spillsToDisk(size int64) bool { return size >= math.MaxInt32 }

// Region is a fixed-size random-access byte store holding the unified data
// region of one archive.
type Region interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
	// Close releases the storage. Spill files are deleted.
	Close() error
}

// newRegion creates a region of the given size for the archive at source.
// Small regions are served from pool; large ones spill to "<source>.temp".
func newRegion(source string, size int64, pool *BufferPool) (Region, error) {
	if size < 0 {
		return nil, fmt.Errorf("invalid region size %d", size)
	}
	if !spillsToDisk(size) {
		return &memRegion{buf: pool.Get(int(size)), pool: pool}, nil
	}

	path := source + spillSuffix
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create spill file: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("size spill file: %w", err)
	}
	return &fileRegion{f: f, path: path, size: size}, nil
}

// memRegion keeps the region in a pooled buffer.
type memRegion struct {
	buf  []byte
	pool *BufferPool
}

func (r *memRegion) Size() int64 { return int64(len(r.buf)) }

func (r *memRegion) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("region: negative offset")
	}
	if off >= int64(len(r.buf)) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *memRegion) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(r.buf)) {
		return 0, fmt.Errorf("region: write of %d bytes at %d exceeds size %d", len(p), off, len(r.buf))
	}
	return copy(r.buf[off:], p), nil
}

func (r *memRegion) Close() error {
	if r.buf != nil {
		r.pool.Put(r.buf, true)
		r.buf = nil
	}
	return nil
}

// fileRegion keeps the region in a spill file that is removed on Close.
type fileRegion struct {
	f    *os.File
	path string
	size int64
}

func (r *fileRegion) Size() int64 { return r.size }

func (r *fileRegion) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}
	if rem := r.size - off; int64(len(p)) > rem {
		n, err := r.f.ReadAt(p[:rem], off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return r.f.ReadAt(p, off)
}

func (r *fileRegion) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > r.size {
		return 0, fmt.Errorf("region: write of %d bytes at %d exceeds size %d", len(p), off, r.size)
	}
	return r.f.WriteAt(p, off)
}

func (r *fileRegion) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	if rmErr := os.Remove(r.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

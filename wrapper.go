package unitypack

import (
	"bytes"
	"fmt"
	"io"
	"math"
)

// maxUnwrappedSize bounds the inflated size of a compressed wrapper, which
// is always held in memory.
const maxUnwrappedSize = math.MaxInt32 - 1

// unwrap inflates a compressed wrapper around another file. Only gzip has
// a codec; brotli and zip wrappers are reported as unsupported.
func unwrap(typ FileType, r io.ReaderAt, size int64) ([]byte, error) {
	switch typ {
	case FileTypeGZip:
		return gunzip(r, size)
	default:
		return nil, fmt.Errorf("%w: %s wrapper", ErrUnsupportedFormat, typ)
	}
}

func gunzip(r io.ReaderAt, size int64) ([]byte, error) {
	zr, err := getGzipReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer putGzipReader(zr)

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(zr, maxUnwrappedSize+1))
	if err != nil {
		return nil, fmt.Errorf("inflate gzip: %w", err)
	}
	if n > maxUnwrappedSize {
		return nil, fmt.Errorf("%w: gzip payload exceeds %d bytes", ErrUnsupportedFormat, int64(maxUnwrappedSize))
	}
	return buf.Bytes(), nil
}

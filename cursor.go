// cursor.go
//
// Seekable, endian-aware reader over an io.ReaderAt.
// Archives are read through a single movable position: the bundle header
// is big-endian, web-data containers and most serialized objects are
// little-endian, so the byte order is switchable mid-stream.

package unitypack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxStringLength caps null-terminated strings when the caller does not
// pass a tighter limit.
const maxStringLength = 32767

// Cursor reads fixed-width integers, byte runs and null-terminated strings
// from an io.ReaderAt, tracking its own position.
//
// Cursor implements io.Reader and io.Seeker so it can feed streaming
// decompressors directly. It is not safe for concurrent use.
type Cursor struct {
	r     io.ReaderAt
	size  int64
	pos   int64
	order binary.ByteOrder

	scratch [8]byte
}

// NewCursor returns a cursor at position 0 over the first size bytes of r.
func NewCursor(r io.ReaderAt, size int64, order binary.ByteOrder) *Cursor {
	return &Cursor{r: r, size: size, order: order}
}

// NewBytesCursor returns a cursor over b.
func NewBytesCursor(b []byte, order binary.ByteOrder) *Cursor {
	return NewCursor(bytes.NewReader(b), int64(len(b)), order)
}

// Position returns the current offset.
func (c *Cursor) Position() int64 { return c.pos }

// SetPosition moves the cursor to an absolute offset. Positions past the
// end are allowed; the next read fails.
func (c *Cursor) SetPosition(pos int64) { c.pos = pos }

// Len returns the size of the underlying source.
func (c *Cursor) Len() int64 { return c.size }

// Remaining returns the number of bytes between the cursor and the end.
func (c *Cursor) Remaining() int64 {
	if c.pos >= c.size {
		return 0
	}
	return c.size - c.pos
}

// ByteOrder returns the active byte order.
func (c *Cursor) ByteOrder() binary.ByteOrder { return c.order }

// SetByteOrder switches the byte order used by subsequent integer reads.
func (c *Cursor) SetByteOrder(order binary.ByteOrder) { c.order = order }

// Read implements io.Reader.
func (c *Cursor) Read(p []byte) (int, error) {
	if c.pos >= c.size {
		return 0, io.EOF
	}
	if rem := c.size - c.pos; int64(len(p)) > rem {
		p = p[:rem]
	}
	n, err := c.r.ReadAt(p, c.pos)
	c.pos += int64(n)
	if errors.Is(err, io.EOF) && n > 0 {
		err = nil
	}
	return n, err
}

// Seek implements io.Seeker.
func (c *Cursor) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = c.pos + offset
	case io.SeekEnd:
		abs = c.size + offset
	default:
		return 0, fmt.Errorf("cursor: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("cursor: negative position %d", abs)
	}
	c.pos = abs
	return abs, nil
}

// ReadFull fills p from the current position or fails with ErrTruncated.
func (c *Cursor) ReadFull(p []byte) error {
	if int64(len(p)) > c.Remaining() {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrTruncated, len(p), c.pos, c.Remaining())
	}
	n, err := c.r.ReadAt(p, c.pos)
	c.pos += int64(n)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %v", ErrTruncated, err)
}

// ReadBytes reads n bytes into a fresh slice.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("cursor: negative length %d", n)
	}
	if int64(n) > c.Remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrTruncated, n, c.pos, c.Remaining())
	}
	b := make([]byte, n)
	if err := c.ReadFull(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Skip advances the cursor by n bytes without reading them.
func (c *Cursor) Skip(n int64) error {
	if n > c.Remaining() {
		return fmt.Errorf("%w: cannot skip %d bytes at offset %d", ErrTruncated, n, c.pos)
	}
	c.pos += n
	return nil
}

func (c *Cursor) ReadUint8() (uint8, error) {
	if err := c.ReadFull(c.scratch[:1]); err != nil {
		return 0, err
	}
	return c.scratch[0], nil
}

func (c *Cursor) ReadUint16() (uint16, error) {
	if err := c.ReadFull(c.scratch[:2]); err != nil {
		return 0, err
	}
	return c.order.Uint16(c.scratch[:2]), nil
}

func (c *Cursor) ReadUint32() (uint32, error) {
	if err := c.ReadFull(c.scratch[:4]); err != nil {
		return 0, err
	}
	return c.order.Uint32(c.scratch[:4]), nil
}

func (c *Cursor) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}

func (c *Cursor) ReadUint64() (uint64, error) {
	if err := c.ReadFull(c.scratch[:8]); err != nil {
		return 0, err
	}
	return c.order.Uint64(c.scratch[:8]), nil
}

func (c *Cursor) ReadInt64() (int64, error) {
	v, err := c.ReadUint64()
	return int64(v), err
}

// ReadStringToNull reads bytes up to and including a NUL terminator and
// returns them without the terminator. At most maxLen bytes are consumed
// (maxStringLength when maxLen <= 0); reaching the limit or the end of the
// source without a terminator returns what was read so far.
func (c *Cursor) ReadStringToNull(maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = maxStringLength
	}
	if c.pos >= c.size {
		return "", fmt.Errorf("%w: string at offset %d", ErrTruncated, c.pos)
	}

	var (
		out   []byte
		chunk [64]byte
	)
	for len(out) < maxLen && c.pos < c.size {
		want := min(len(chunk), maxLen-len(out))
		if rem := c.Remaining(); int64(want) > rem {
			want = int(rem)
		}
		n, err := c.r.ReadAt(chunk[:want], c.pos)
		if n == 0 && err != nil {
			return "", fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		if i := bytes.IndexByte(chunk[:n], 0); i >= 0 {
			out = append(out, chunk[:i]...)
			c.pos += int64(i + 1)
			return string(out), nil
		}
		out = append(out, chunk[:n]...)
		c.pos += int64(n)
	}
	return string(out), nil
}

// Align advances the cursor to the next multiple of n.
func (c *Cursor) Align(n int64) {
	if rem := c.pos % n; rem != 0 {
		c.pos += n - rem
	}
}

// TryAlign reads the padding needed to reach the next multiple of n. If
// every padding byte is zero the cursor stays aligned and true is returned;
// otherwise the bytes were real data (or the source ended) and the cursor
// is rewound.
func (c *Cursor) TryAlign(n int64) bool {
	start := c.pos
	pad := (n - start%n) % n
	if pad == 0 {
		return true
	}
	buf, err := c.ReadBytes(int(pad))
	if err != nil {
		c.pos = start
		return false
	}
	for _, b := range buf {
		if b != 0 {
			c.pos = start
			return false
		}
	}
	return true
}

package unitypack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

// CompressionType is the 6-bit codec selector stored in archive and block
// flags.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionLZMA
	CompressionLZ4
	CompressionLZ4HC
	CompressionLZHAM
	CompressionCustom
)

// compressionMask extracts the selector from a flags word.
const compressionMask = 0x3f

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZMA:
		return "lzma"
	case CompressionLZ4:
		return "lz4"
	case CompressionLZ4HC:
		return "lz4hc"
	case CompressionLZHAM:
		return "lzham"
	case CompressionCustom:
		return "custom"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// CustomCodec names the algorithm assumed for blocks tagged with the
// Custom selector. The archive does not record it, so the decoder is told.
type CustomCodec uint8

const (
	CustomLZ4 CustomCodec = iota
	CustomZstd
)

func (c CustomCodec) String() string {
	if c == CustomZstd {
		return "zstd"
	}
	return "lz4"
}

// lzmaPropsSize is the length of the property header that precedes raw
// LZMA data inside an archive.
const lzmaPropsSize = 5

// lzmaReader wraps an archive LZMA stream (5 property bytes followed by raw
// data) into a reader of exactly uncompressedSize bytes.
//
// The classic 13-byte header expected by the lzma package is rebuilt from
// the stored properties and the externally known size. Reads from src are
// bounded by compressedSize so the caller can reposition src afterwards.
func lzmaReader(src io.Reader, compressedSize, uncompressedSize int64) (io.Reader, error) {
	if compressedSize < lzmaPropsSize {
		return nil, fmt.Errorf("%w: lzma stream of %d bytes has no properties", ErrTruncated, compressedSize)
	}
	var hdr [lzmaPropsSize + 8]byte
	if _, err := io.ReadFull(src, hdr[:lzmaPropsSize]); err != nil {
		return nil, fmt.Errorf("read lzma properties: %w", err)
	}
	binary.LittleEndian.PutUint64(hdr[lzmaPropsSize:], uint64(uncompressedSize))

	body := io.LimitReader(src, compressedSize-lzmaPropsSize)
	r, err := lzma.NewReader(io.MultiReader(bytes.NewReader(hdr[:]), body))
	if err != nil {
		return nil, fmt.Errorf("open lzma stream: %w", err)
	}
	return r, nil
}

// decompressLZMA streams one LZMA region from src into dst and verifies
// that exactly uncompressedSize bytes were produced.
func decompressLZMA(dst io.Writer, src io.Reader, compressedSize, uncompressedSize int64, what string) error {
	r, err := lzmaReader(src, compressedSize, uncompressedSize)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := io.CopyN(dst, r, uncompressedSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: lzma decode: %w", what, err)
	}
	if n != uncompressedSize {
		return &SizeMismatchError{What: what, Want: uncompressedSize, Got: n}
	}
	return nil
}

// decompressLZMAAlone inflates a self-describing LZMA "alone" stream (the
// full 13-byte header is present) of at most compressedSize bytes. Legacy
// web archives store their payload this way.
func decompressLZMAAlone(dst io.Writer, src io.Reader, compressedSize, uncompressedSize int64, what string) error {
	r, err := lzma.NewReader(io.LimitReader(src, compressedSize))
	if err != nil {
		return fmt.Errorf("%s: open lzma stream: %w", what, err)
	}
	n, err := io.CopyN(dst, r, uncompressedSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: lzma decode: %w", what, err)
	}
	if n != uncompressedSize {
		return &SizeMismatchError{What: what, Want: uncompressedSize, Got: n}
	}
	return nil
}

// decompressLZ4 decodes an LZ4 block into dst, which must have exactly the
// expected length. LZ4HC shares the block format.
func decompressLZ4(dst, src []byte, what string) error {
	n, err := lz4.UncompressBlock(src, dst)
	if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
		// dst filled up before the block ended, so only a lower bound on
		// the real size is known.
		return &SizeMismatchError{What: what, Want: int64(len(dst)), Got: int64(len(dst)) + 1}
	}
	if err != nil {
		return fmt.Errorf("%s: lz4 decode: %w", what, err)
	}
	if n != len(dst) {
		return &SizeMismatchError{What: what, Want: int64(len(dst)), Got: int64(n)}
	}
	return nil
}

// decompressZstd decodes a single zstd frame into dst, which must have
// exactly the expected length.
func decompressZstd(dst, src []byte, what string) error {
	dec, err := getZstdDecoder()
	if err != nil {
		return fmt.Errorf("%s: zstd decoder: %w", what, err)
	}
	defer putZstdDecoder(dec)

	out, err := dec.DecodeAll(src, dst[:0])
	if err != nil {
		return fmt.Errorf("%s: zstd decode: %w", what, err)
	}
	if len(out) != len(dst) {
		return &SizeMismatchError{What: what, Want: int64(len(dst)), Got: int64(len(out))}
	}
	return nil
}

// decompressBlocksInfo inflates the blocks-info region. Only the selectors
// an archive header may use for it are accepted.
func decompressBlocksInfo(typ CompressionType, src []byte, size int) ([]byte, error) {
	const what = "blocks info"
	switch typ {
	case CompressionNone:
		return src, nil
	case CompressionLZMA:
		var out bytes.Buffer
		out.Grow(size)
		if err := decompressLZMA(&out, bytes.NewReader(src), int64(len(src)), int64(size), what); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	case CompressionLZ4, CompressionLZ4HC:
		out := make([]byte, size)
		if err := decompressLZ4(out, src, what); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: blocks info uses %s", ErrUnsupportedCompression, typ)
	}
}

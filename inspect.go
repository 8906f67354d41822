package unitypack

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	farm "github.com/dgryski/go-farm"
	"go.uber.org/zap"
	"golang.org/x/exp/mmap"
)

// Layout describes an archive without its payload: header, block table,
// directory and where block data starts. Layouts returned by Inspect are
// shared through a cache and must be treated as read-only.
type Layout struct {
	Path string
	// Key fingerprints the file's absolute path, size and modification
	// time.
	Key    uint64
	Header Header
	Blocks []StorageBlock
	Nodes  []Node
	// DataOffset is the file offset of the first block.
	DataOffset int64
}

// UncompressedSize returns the size of the unified data region.
func (l *Layout) UncompressedSize() int64 {
	var total int64
	for _, b := range l.Blocks {
		total += int64(b.UncompressedSize)
	}
	return total
}

// Node returns the directory entry with the given path.
func (l *Layout) Node(path string) (Node, bool) {
	for _, n := range l.Nodes {
		if n.Path == path {
			return n, true
		}
	}
	return Node{}, false
}

// layoutKey fingerprints a file revision.
func layoutKey(absPath string, size int64, modNanos int64) uint64 {
	buf := make([]byte, 0, len(absPath)+1+16)
	buf = append(buf, absPath...)
	buf = append(buf, 0)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(size))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(modNanos))
	return farm.Fingerprint64(buf)
}

// Inspect returns the layout of the bundle at path without decompressing
// any block. Legacy archives keep their directory inside the payload and
// are fully decoded to produce it.
//
// Results are cached by file revision; a file that changes on disk gets a
// new key and is parsed again.
func (d *Decoder) Inspect(path string) (*Layout, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	key := layoutKey(abs, fi.Size(), fi.ModTime().UnixNano())
	if d.layouts != nil {
		if l, ok := d.layouts.Get(key); ok {
			return l, nil
		}
	}

	ra, err := mmap.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	defer ra.Close()

	l, err := d.inspect(ra, int64(ra.Len()), path)
	if err != nil {
		return nil, err
	}
	l.Key = key
	if d.layouts != nil {
		d.layouts.Add(key, l)
	}
	return l, nil
}

func (d *Decoder) inspect(r io.ReaderAt, size int64, path string) (*Layout, error) {
	typ, err := DetectFileType(r, size)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	if typ != FileTypeBundle {
		return nil, fmt.Errorf("inspect %s: %w: %s is not a bundle", path, ErrUnsupportedFormat, typ)
	}

	c := NewCursor(r, size, binary.BigEndian)
	hdr, err := readHeaderPrefix(c)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	log := d.log.With(zap.String("path", path), zap.String("signature", hdr.Signature))

	switch {
	case hdr.Signature == SignatureArchive:
		return nil, fmt.Errorf("inspect %s: %w: %s", path, ErrNotImplemented, hdr.Signature)
	case hdr.IsLegacy():
		b, err := d.decodeLegacy(c, hdr, path, log)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", path, err)
		}
		defer b.Close()
		return &Layout{
			Path:       path,
			Header:     b.Header,
			Blocks:     b.Blocks,
			Nodes:      b.Nodes,
			DataOffset: b.Header.Size,
		}, nil
	default:
		bi, err := d.readModernLayout(c, &hdr, log)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", path, err)
		}
		return &Layout{
			Path:       path,
			Header:     hdr,
			Blocks:     bi.Blocks,
			Nodes:      bi.Nodes,
			DataOffset: c.Position(),
		}, nil
	}
}

// ReadEntry returns the contents of one entry of the bundle at path,
// decoding only the blocks that overlap it. Decoded blocks are kept in the
// decoder's block cache for later reads.
func (d *Decoder) ReadEntry(path, entryPath string) ([]byte, error) {
	l, err := d.Inspect(path)
	if err != nil {
		return nil, err
	}
	node, ok := l.Node(entryPath)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", path, ErrEntryNotFound, entryPath)
	}

	if !l.Header.IsLegacy() {
		if size := l.UncompressedSize(); node.Offset < 0 || node.Size < 0 || node.Offset+node.Size > size {
			return nil, fmt.Errorf("%s: %w: entry %q spans [%d, %d) beyond region of %d bytes",
				path, ErrTruncated, node.Path, node.Offset, node.Offset+node.Size, size)
		}
	}

	if l.Header.IsLegacy() {
		a, err := d.Open(path)
		if err != nil {
			return nil, err
		}
		defer a.Close()
		e, ok := a.Bundle.Entry(entryPath)
		if !ok {
			return nil, fmt.Errorf("%s: %w: %q", path, ErrEntryNotFound, entryPath)
		}
		return e.Bytes()
	}
	if node.Size == 0 {
		return []byte{}, nil
	}

	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer ra.Close()

	out := make([]byte, node.Size)
	end := node.Offset + node.Size
	var uoff, coff int64 = 0, l.DataOffset
	for i, b := range l.Blocks {
		if uoff >= end {
			break
		}
		us := int64(b.UncompressedSize)
		if uoff+us > node.Offset && uoff < end {
			data, err := d.blockData(ra, l, i, coff)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			lo, hi := max(node.Offset, uoff), min(end, uoff+us)
			copy(out[lo-node.Offset:], data[lo-uoff:hi-uoff])
		}
		uoff += us
		coff += int64(b.CompressedSize)
	}
	return out, nil
}

// blockData returns block i of l, decoding it from r at offset off unless
// the block cache already holds it.
func (d *Decoder) blockData(r *mmap.ReaderAt, l *Layout, i int, off int64) ([]byte, error) {
	key := blockKey{archive: l.Key, index: i}
	if d.blocks != nil {
		if b, ok := d.blocks.lookup(key); ok {
			return b, nil
		}
	}

	b := l.Blocks[i]
	region := &memRegion{buf: make([]byte, b.UncompressedSize)}
	c := NewCursor(r, int64(r.Len()), binary.BigEndian)
	c.SetPosition(off)
	log := d.log.With(zap.String("path", l.Path))
	if _, err := d.readBlocks(c, l.Blocks[i:i+1], region, log); err != nil {
		return nil, err
	}

	if d.blocks != nil {
		d.blocks.add(key, region.buf)
	}
	return region.buf, nil
}

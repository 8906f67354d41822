package unitypack

import (
	"bytes"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/exp/mmap"
)

// maxUnwrapDepth bounds nested compressed wrappers.
const maxUnwrapDepth = 4

// Archive is any decoded source file: a bundle, a web-data container or a
// loose file that forms a single entry.
type Archive struct {
	Path string
	// Type is the detected type of the innermost file, after unwrapping.
	Type FileType
	// Wrapped records the compressed wrapper that was removed, if any.
	Wrapped bool
	// Bundle is set when Type is FileTypeBundle.
	Bundle  *Bundle
	Entries []*Entry
}

// Close releases every entry and returns the joined close errors.
func (a *Archive) Close() error {
	return closeEntries(a.Entries)
}

// Open memory-maps the file at path and decodes it.
func (d *Decoder) Open(path string) (*Archive, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer ra.Close()

	return d.Decode(ra, int64(ra.Len()), path)
}

// Decode detects the type of the first size bytes of r and decodes them.
// Entries are copied out, so r may be closed once Decode returns.
func (d *Decoder) Decode(r io.ReaderAt, size int64, path string) (*Archive, error) {
	return d.decode(r, size, path, 0)
}

func (d *Decoder) decode(r io.ReaderAt, size int64, path string, depth int) (*Archive, error) {
	typ, err := DetectFileType(r, size)
	if err != nil {
		return nil, fmt.Errorf("detect %s: %w", path, err)
	}
	d.log.Debug("detected file type", zap.String("path", path), zap.Stringer("type", typ))

	a := &Archive{Path: path, Type: typ, Wrapped: depth > 0}
	switch typ {
	case FileTypeBundle:
		b, err := d.DecodeBundle(r, size, path)
		if err != nil {
			return nil, err
		}
		a.Bundle, a.Entries = b, b.Entries

	case FileTypeWeb:
		if a.Entries, err = d.DecodeWebData(r, size, path); err != nil {
			return nil, err
		}

	case FileTypeGZip, FileTypeBrotli, FileTypeZip:
		if depth >= maxUnwrapDepth {
			return nil, fmt.Errorf("%s: %w: wrappers nested deeper than %d", path, ErrUnsupportedFormat, maxUnwrapDepth)
		}
		data, err := unwrap(typ, r, size)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return d.decode(bytes.NewReader(data), int64(len(data)), path, depth+1)

	default:
		node := Node{Size: size, Path: entryName(path)}
		if a.Entries, err = materialize(r, size, []Node{node}, path); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return a, nil
}

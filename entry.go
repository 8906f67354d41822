package unitypack

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// unpackedSuffix names the sibling directory that receives entries too
// large to keep in memory.
const unpackedSuffix = "_unpacked"

// Stream is the storage behind an Entry.
type Stream interface {
	io.ReadWriteSeeker
	io.ReaderAt
	io.Closer
}

// Entry is one named logical file carved out of an archive.
//
// The entry's stream holds exactly Size bytes and is positioned at 0 when
// the decoder hands it out. Entries at or above 2 GiB are backed by a file
// in "<source>_unpacked/" that is left on disk after Close.
type Entry struct {
	// Path is the directory path recorded in the archive.
	Path string
	// Name is the last path element.
	Name string
	Size int64
	// Flags are the node flags of a modern archive; zero otherwise.
	Flags uint32

	Stream
}

// OnDisk reports whether the entry's bytes live in a file.
func (e *Entry) OnDisk() bool {
	_, ok := e.Stream.(*os.File)
	return ok
}

// Bytes returns the entry's content. It does not move the stream position.
func (e *Entry) Bytes() ([]byte, error) {
	if m, ok := e.Stream.(*memStream); ok {
		return m.buf, nil
	}
	buf := make([]byte, e.Size)
	if _, err := e.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}

// entryName returns the base name of an archive path. Archive paths use
// forward slashes, but legacy tools sometimes wrote backslashes.
func entryName(p string) string {
	return path.Base(strings.ReplaceAll(p, `\`, "/"))
}

// newEntryStream chooses the backing store for an entry of the given size.
func newEntryStream(source, name string, size int64) (Stream, error) {
	if !spillsToDisk(size) {
		return &memStream{buf: make([]byte, size)}, nil
	}
	dir := source + unpackedSuffix
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create unpack directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create unpacked entry: %w", err)
	}
	return f, nil
}

// materialize copies each node's span of region into its own entry, in
// directory order.
func materialize(region io.ReaderAt, regionSize int64, nodes []Node, source string) ([]*Entry, error) {
	entries := make([]*Entry, 0, len(nodes))
	fail := func(err error) ([]*Entry, error) {
		closeEntries(entries)
		return nil, err
	}
	for _, n := range nodes {
		if n.Offset < 0 || n.Size < 0 || n.Offset+n.Size > regionSize {
			return fail(fmt.Errorf("%w: entry %q spans [%d, %d) beyond region of %d bytes",
				ErrTruncated, n.Path, n.Offset, n.Offset+n.Size, regionSize))
		}
		name := entryName(n.Path)
		s, err := newEntryStream(source, name, n.Size)
		if err != nil {
			return fail(err)
		}
		e := &Entry{Path: n.Path, Name: name, Size: n.Size, Flags: n.Flags, Stream: s}
		entries = append(entries, e)

		if _, err := io.Copy(s, io.NewSectionReader(region, n.Offset, n.Size)); err != nil {
			return fail(fmt.Errorf("copy entry %q: %w", n.Path, err))
		}
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return fail(fmt.Errorf("rewind entry %q: %w", n.Path, err))
		}
	}
	return entries, nil
}

// closeEntries closes every entry and joins the failures.
func closeEntries(entries []*Entry) error {
	var errs []error
	for _, e := range entries {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close entry %q: %w", e.Path, err))
		}
	}
	return errors.Join(errs...)
}

// memStream is an in-memory Stream, a growable buffer with a cursor.
type memStream struct {
	buf []byte
	pos int64
}

func (m *memStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memStream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("entry: negative offset")
	}
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memStream) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		if end > int64(cap(m.buf)) {
			grown := make([]byte, end, max(end, 2*int64(cap(m.buf))))
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memStream) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("entry: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("entry: negative position %d", abs)
	}
	m.pos = abs
	return abs, nil
}

func (m *memStream) Close() error { return nil }

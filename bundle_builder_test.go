package unitypack

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"
)

// testNode is one logical file placed in a synthetic archive.
type testNode struct {
	path string
	data []byte
}

// bundleSpec describes a synthetic modern archive.
type bundleSpec struct {
	signature    string // defaults to UnityFS
	format       uint32 // defaults to 6
	unityVersion string // defaults to "5.x.x"
	revision     string // defaults to "2018.4.2f1"

	// flags are OR-ed into the header flags next to infoCompression.
	flags           ArchiveFlags
	infoCompression CompressionType

	// blockCompression applies to every block unless blockCodecs is set.
	blockCompression CompressionType
	blockCodecs      []CompressionType
	// blockSize splits the unified region; zero means a single block.
	blockSize int
	// customZstd compresses Custom blocks with zstd instead of LZ4.
	customZstd bool

	nodes []testNode
	// directory, when set, replaces the directory derived from nodes so
	// entries can point outside the data.
	directory []Node
}

// compressibleData returns n bytes with enough repetition for every codec
// to shrink them.
func compressibleData(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i%13) + byte((i/64)%3)
	}
	return out
}

// compressForTest encodes src with the given codec in the on-disk form an
// archive uses.
func compressForTest(t testing.TB, typ CompressionType, src []byte, customZstd bool) []byte {
	t.Helper()

	switch typ {
	case CompressionNone:
		return append([]byte(nil), src...)

	case CompressionLZMA:
		var buf bytes.Buffer
		w, err := lzma.WriterConfig{SizeInHeader: true, Size: int64(len(src))}.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write(src)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		// Archive LZMA omits the 8-byte size that follows the properties.
		raw := buf.Bytes()
		return append(append([]byte(nil), raw[:lzmaPropsSize]...), raw[lzmaPropsSize+8:]...)

	case CompressionLZ4, CompressionLZ4HC, CompressionCustom:
		if typ == CompressionCustom && customZstd {
			enc, err := zstd.NewWriter(nil)
			require.NoError(t, err)
			defer enc.Close()
			return enc.EncodeAll(src, nil)
		}
		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		var (
			n   int
			err error
		)
		if typ == CompressionLZ4HC {
			n, err = lz4.CompressBlockHC(src, dst, lz4.Level9, nil, nil)
		} else {
			n, err = lz4.CompressBlock(src, dst, nil)
		}
		require.NoError(t, err)
		require.NotZero(t, n, "test data must be compressible")
		return dst[:n]

	default:
		// Unsupported codecs are stored raw; the decoder rejects them on
		// the selector alone.
		return append([]byte(nil), src...)
	}
}

// lzmaAloneForTest encodes src as a self-describing LZMA stream.
func lzmaAloneForTest(t testing.TB, src []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := lzma.WriterConfig{SizeInHeader: true, Size: int64(len(src))}.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(src)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// bundleWriter accumulates big-endian archive fields.
type bundleWriter struct{ bytes.Buffer }

func (w *bundleWriter) cstring(s string) { w.WriteString(s); w.WriteByte(0) }
func (w *bundleWriter) u16(v uint16)     { binary.Write(w, binary.BigEndian, v) }
func (w *bundleWriter) u32(v uint32)     { binary.Write(w, binary.BigEndian, v) }
func (w *bundleWriter) i32(v int32)      { binary.Write(w, binary.BigEndian, v) }
func (w *bundleWriter) i64(v int64)      { binary.Write(w, binary.BigEndian, v) }
func (w *bundleWriter) align(n int) {
	for w.Len()%n != 0 {
		w.WriteByte(0)
	}
}

// unified concatenates node data and returns the directory for it.
func (s *bundleSpec) unified() ([]byte, []Node) {
	var data []byte
	nodes := make([]Node, len(s.nodes))
	for i, n := range s.nodes {
		nodes[i] = Node{Offset: int64(len(data)), Size: int64(len(n.data)), Flags: 4, Path: n.path}
		data = append(data, n.data...)
	}
	if s.directory != nil {
		nodes = s.directory
	}
	return data, nodes
}

// buildBundle produces a modern archive from s.
func buildBundle(t testing.TB, s bundleSpec) []byte {
	t.Helper()

	if s.signature == "" {
		s.signature = SignatureFS
	}
	if s.format == 0 {
		s.format = 6
	}
	if s.unityVersion == "" {
		s.unityVersion = "5.x.x"
	}
	if s.revision == "" {
		s.revision = "2018.4.2f1"
	}

	unified, nodes := s.unified()

	// Split the unified region into blocks.
	var chunks [][]byte
	if s.blockSize <= 0 || len(unified) == 0 {
		chunks = [][]byte{unified}
	} else {
		for off := 0; off < len(unified); off += s.blockSize {
			chunks = append(chunks, unified[off:min(off+s.blockSize, len(unified))])
		}
	}

	var (
		info    bundleWriter
		payload bytes.Buffer
	)
	info.Write(make([]byte, blocksInfoHashSize))
	info.i32(int32(len(chunks)))
	for i, chunk := range chunks {
		typ := s.blockCompression
		if i < len(s.blockCodecs) {
			typ = s.blockCodecs[i]
		}
		comp := compressForTest(t, typ, chunk, s.customZstd)
		info.u32(uint32(len(chunk)))
		info.u32(uint32(len(comp)))
		info.u16(uint16(typ))
		payload.Write(comp)
	}
	info.i32(int32(len(nodes)))
	for _, n := range nodes {
		info.i64(n.Offset)
		info.i64(n.Size)
		info.u32(n.Flags)
		info.cstring(n.Path)
	}
	infoRaw := info.Bytes()
	infoComp := compressForTest(t, s.infoCompression, infoRaw, false)

	var out bundleWriter
	out.cstring(s.signature)
	out.u32(s.format)
	out.cstring(s.unityVersion)
	out.cstring(s.revision)
	sizeAt := out.Len()
	out.i64(0)
	out.u32(uint32(len(infoComp)))
	out.u32(uint32(len(infoRaw)))
	out.u32(uint32(s.flags) | uint32(s.infoCompression))
	if s.signature != SignatureFS {
		out.WriteByte(0)
	}

	if s.format >= 7 {
		out.align(16)
	} else if rev, err := ParseVersion(s.revision); err == nil && !rev.IsStripped() && rev.AtLeast(MajorMinor(2019, 4)) {
		out.align(16)
	}

	atEnd := s.flags.Has(FlagBlocksInfoAtTheEnd)
	if !atEnd {
		out.Write(infoComp)
	}
	if s.flags.Has(FlagBlockInfoNeedPaddingAtStart) {
		out.align(16)
	}
	out.Write(payload.Bytes())
	if atEnd {
		out.Write(infoComp)
	}

	b := out.Bytes()
	binary.BigEndian.PutUint64(b[sizeAt:], uint64(len(b)))
	return b
}

// legacySpec describes a pre-format-6 web or raw archive.
type legacySpec struct {
	signature string // SignatureWeb or SignatureRaw
	format    uint32 // 1..5
	nodes     []testNode
}

// buildLegacyBundle produces a streaming-level archive with a single
// level holding the directory and data.
func buildLegacyBundle(t testing.TB, s legacySpec) []byte {
	t.Helper()

	// Directory first, then data, offsets relative to the payload start.
	dirLen := 4
	for _, n := range s.nodes {
		dirLen += len(n.path) + 1 + 8
	}
	var payload bundleWriter
	payload.i32(int32(len(s.nodes)))
	off := dirLen
	for _, n := range s.nodes {
		payload.cstring(n.path)
		payload.u32(uint32(off))
		payload.u32(uint32(len(n.data)))
		off += len(n.data)
	}
	for _, n := range s.nodes {
		payload.Write(n.data)
	}
	raw := payload.Bytes()

	comp := raw
	if s.signature == SignatureWeb {
		comp = lzmaAloneForTest(t, raw)
	}

	var hdr bundleWriter
	hdr.cstring(s.signature)
	hdr.u32(s.format)
	hdr.cstring("3.x.x")
	hdr.cstring("3.5.7f6")
	if s.format >= 4 {
		hdr.Write(make([]byte, 16))
		hdr.u32(0)
	}
	hdr.u32(uint32(len(comp))) // minimumStreamedBytes
	sizeAt := hdr.Len()
	hdr.u32(0) // header size, patched below
	hdr.u32(1) // levels before streaming
	hdr.i32(1)
	hdr.u32(uint32(len(comp)))
	hdr.u32(uint32(len(raw)))
	if s.format >= 2 {
		hdr.u32(0)
	}
	if s.format >= 3 {
		hdr.u32(0)
	}
	hdr.align(4)

	b := hdr.Bytes()
	binary.BigEndian.PutUint32(b[sizeAt:], uint32(len(b)))
	return append(b, comp...)
}

// writeTestFile writes data to a file named name in a fresh temp dir.
func writeTestFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// newTestDecoder returns a decoder with the given options, failing the
// test on error.
func newTestDecoder(t testing.TB, opts ...Option) *Decoder {
	t.Helper()
	d, err := NewDecoder(opts...)
	require.NoError(t, err)
	return d
}

// decodeBytes decodes an in-memory archive through DecodeBundle.
func decodeBytes(t testing.TB, d *Decoder, data []byte) (*Bundle, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bundle")
	return d.DecodeBundle(bytes.NewReader(data), int64(len(data)), path)
}

// entryData reads an entry's full content.
func entryData(t testing.TB, e *Entry) []byte {
	t.Helper()
	b, err := e.Bytes()
	require.NoError(t, err)
	return b
}

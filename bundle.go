// bundle.go
//
// Archive ("bundle") decoding.
// A decode walks a fixed sequence of stages on a single cursor:
//
//	header -> encryption check -> alignment -> blocks info -> padding
//	       -> unified region -> blocks -> entries
//
// The unified region is the concatenation of every block's decompressed
// bytes; directory nodes name spans of it. Each stage either advances or
// fails the whole decode. Nothing is retained between decodes except the
// optional layout cache used by Inspect.

package unitypack

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hashicorp/golang-lru/arc/v2"
	"go.uber.org/zap"
)

// Decoder decodes archives. A Decoder is safe for concurrent use; each call
// owns its own cursor and region.
type Decoder struct {
	log  *zap.Logger
	pool *BufferPool

	customCodec CustomCodec
	revision    Version
	hasRevision bool

	layoutCacheSize int
	layouts         *arc.ARCCache[uint64, *Layout]

	blockCacheSize int
	blocks         *blockWindow
}

// NewDecoder creates a decoder configured by opts.
func NewDecoder(opts ...Option) (*Decoder, error) {
	d := &Decoder{
		log:             zap.NewNop(),
		layoutCacheSize: DefaultLayoutCacheSize,
		blockCacheSize:  DefaultBlockCacheSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.pool == nil {
		d.pool = NewBufferPool(0, 0)
	}
	if d.layoutCacheSize > 0 {
		cache, err := arc.NewARC[uint64, *Layout](d.layoutCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create layout cache: %w", err)
		}
		d.layouts = cache
	}
	if d.blockCacheSize > 0 {
		w, err := newBlockWindow(d.blockCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create block cache: %w", err)
		}
		d.blocks = w
	}
	return d, nil
}

// BufferPool returns the pool the decoder allocates block buffers from.
func (d *Decoder) BufferPool() *BufferPool { return d.pool }

// Bundle is a decoded archive.
type Bundle struct {
	// Path is the source the archive was read from. Spill and unpack
	// locations are derived from it.
	Path   string
	Header Header
	Blocks []StorageBlock
	Nodes  []Node
	// Entries hold the node contents, in directory order.
	Entries []*Entry

	// CustomCodec is the codec that was assumed for Custom-compressed
	// blocks. It is meaningful only when HasCustomBlocks is set.
	CustomCodec     CustomCodec
	HasCustomBlocks bool
}

// Close releases every entry and returns the joined close errors.
func (b *Bundle) Close() error {
	return closeEntries(b.Entries)
}

// Entry returns the first entry whose path equals p.
func (b *Bundle) Entry(p string) (*Entry, bool) {
	for _, e := range b.Entries {
		if e.Path == p {
			return e, true
		}
	}
	return nil, false
}

// DecodeBundle decodes the archive held in the first size bytes of r.
// path identifies the source; it names the spill file and the unpack
// directory for oversized entries and need not exist when neither is used.
func (d *Decoder) DecodeBundle(r io.ReaderAt, size int64, path string) (*Bundle, error) {
	c := NewCursor(r, size, binary.BigEndian)
	hdr, err := readHeaderPrefix(c)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", path, err)
	}
	log := d.log.With(zap.String("path", path), zap.String("signature", hdr.Signature))

	var b *Bundle
	switch {
	case hdr.Signature == SignatureArchive:
		err = fmt.Errorf("%w: %s", ErrNotImplemented, hdr.Signature)
	case hdr.IsLegacy():
		b, err = d.decodeLegacy(c, hdr, path, log)
	case hdr.Signature == SignatureFS, hdr.Signature == SignatureWeb, hdr.Signature == SignatureRaw:
		b, err = d.decodeModern(c, hdr, path, log)
	default:
		err = fmt.Errorf("%w: signature %q", ErrUnsupportedFormat, hdr.Signature)
	}
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", path, err)
	}
	return b, nil
}

// effectiveRevision returns the revision that gates version-dependent
// decisions: the caller's if one was configured, else the archive's.
func (d *Decoder) effectiveRevision(detected Version, log *zap.Logger) Version {
	if !d.hasRevision {
		return detected
	}
	if !detected.IsStripped() && !detected.Equal(d.revision) {
		log.Warn("detected engine revision differs from the specified one; assets may load with errors",
			zap.Stringer("detected", detected),
			zap.Stringer("specified", d.revision))
	}
	return d.revision
}

// readModernLayout reads the modern header fields, rejects encrypted
// archives and decodes the blocks info. On return the cursor sits at the
// first block.
func (d *Decoder) readModernLayout(c *Cursor, hdr *Header, log *zap.Logger) (*BlocksInfo, error) {
	if err := readModernHeader(c, hdr); err != nil {
		return nil, err
	}

	rev := d.effectiveRevision(hdr.Revision, log)
	if err := checkEncryption(hdr.Flags, rev, d.hasRevision); err != nil {
		return nil, err
	}

	if hdr.Version >= 7 {
		c.Align(16)
	} else if !rev.IsStripped() && rev.AtLeast(MajorMinor(2019, 4)) {
		c.TryAlign(16)
	}

	n := int64(hdr.CompressedBlocksInfoSize)
	var (
		raw []byte
		err error
	)
	if hdr.Flags.Has(FlagBlocksInfoAtTheEnd) {
		if n > c.Len() {
			return nil, fmt.Errorf("%w: blocks info of %d bytes in %d byte archive", ErrTruncated, n, c.Len())
		}
		pos := c.Position()
		c.SetPosition(c.Len() - n)
		raw, err = c.ReadBytes(int(n))
		c.SetPosition(pos)
	} else {
		raw, err = c.ReadBytes(int(n))
	}
	if err != nil {
		return nil, fmt.Errorf("read blocks info: %w", err)
	}

	data, err := decompressBlocksInfo(hdr.Flags.Compression(), raw, int(hdr.UncompressedBlocksInfoSize))
	if err != nil {
		return nil, err
	}
	bi, err := parseBlocksInfo(data)
	if err != nil {
		return nil, err
	}

	if hdr.Flags.Has(FlagBlockInfoNeedPaddingAtStart) {
		c.Align(16)
	}
	return bi, nil
}

func (d *Decoder) decodeModern(c *Cursor, hdr Header, path string, log *zap.Logger) (*Bundle, error) {
	bi, err := d.readModernLayout(c, &hdr, log)
	if err != nil {
		return nil, err
	}

	region, err := newRegion(path, bi.UncompressedSize(), d.pool)
	if err != nil {
		return nil, err
	}
	defer region.Close()

	usedCustom, err := d.readBlocks(c, bi.Blocks, region, log)
	if err != nil {
		return nil, err
	}

	entries, err := materialize(region, region.Size(), bi.Nodes, path)
	if err != nil {
		return nil, err
	}
	log.Debug("decoded bundle",
		zap.Int("blocks", len(bi.Blocks)),
		zap.Int("entries", len(entries)),
		zap.Int64("region_size", region.Size()))

	return &Bundle{
		Path:            path,
		Header:          hdr,
		Blocks:          bi.Blocks,
		Nodes:           bi.Nodes,
		Entries:         entries,
		CustomCodec:     d.customCodec,
		HasCustomBlocks: usedCustom,
	}, nil
}

// readBlocks decompresses every block, in order, into region.
func (d *Decoder) readBlocks(c *Cursor, blocks []StorageBlock, region Region, log *zap.Logger) (bool, error) {
	var (
		w          = io.NewOffsetWriter(region, 0)
		usedCustom bool
	)
	for i, b := range blocks {
		typ := b.Flags.Compression()
		what := fmt.Sprintf("block %d (%s)", i, typ)
		cs, us := int64(b.CompressedSize), int64(b.UncompressedSize)

		switch typ {
		case CompressionNone:
			if cs != us {
				return usedCustom, &SizeMismatchError{What: what, Want: us, Got: cs}
			}
			if _, err := io.CopyN(w, c, cs); err != nil {
				return usedCustom, fmt.Errorf("%s: %w: %v", what, ErrTruncated, err)
			}

		case CompressionLZMA:
			start := c.Position()
			if err := decompressLZMA(w, c, cs, us, what); err != nil {
				return usedCustom, err
			}
			c.SetPosition(start + cs)

		case CompressionLZ4, CompressionLZ4HC, CompressionCustom:
			if typ == CompressionCustom && !usedCustom {
				usedCustom = true
				log.Debug("custom block compression is not self-describing; assuming codec",
					zap.Stringer("codec", d.customCodec))
			}
			if err := d.readBufferedBlock(w, c, typ, cs, us, what); err != nil {
				return usedCustom, err
			}

		default:
			return usedCustom, fmt.Errorf("%w: %s", ErrUnsupportedCompression, what)
		}
	}
	return usedCustom, nil
}

// readBufferedBlock decodes a block whose codec needs the whole input and
// output in memory. Both buffers come from the pool and are cleared on
// return.
func (d *Decoder) readBufferedBlock(w io.Writer, c *Cursor, typ CompressionType, cs, us int64, what string) error {
	if cs > c.Remaining() {
		return fmt.Errorf("%s: %w: need %d bytes at offset %d", what, ErrTruncated, cs, c.Position())
	}
	src := d.pool.Get(int(cs))
	defer d.pool.Put(src, true)
	if err := c.ReadFull(src); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}

	dst := d.pool.Get(int(us))
	defer d.pool.Put(dst, true)

	var err error
	if typ == CompressionCustom && d.customCodec == CustomZstd {
		err = decompressZstd(dst, src, what)
	} else {
		err = decompressLZ4(dst, src, what)
	}
	if err != nil {
		return err
	}
	if _, err := w.Write(dst); err != nil {
		return fmt.Errorf("%s: write region: %w", what, err)
	}
	return nil
}

// decodeLegacy decodes a pre-format-6 web or raw archive. Its single
// payload block holds the directory followed by the entry data.
func (d *Decoder) decodeLegacy(c *Cursor, hdr Header, path string, log *zap.Logger) (*Bundle, error) {
	block, err := readLegacyHeader(c, &hdr)
	if err != nil {
		return nil, err
	}
	cs, us := int64(block.CompressedSize), int64(block.UncompressedSize)

	region, err := newRegion(path, us, d.pool)
	if err != nil {
		return nil, err
	}
	defer region.Close()

	w := io.NewOffsetWriter(region, 0)
	if hdr.Signature == SignatureWeb {
		if err := decompressLZMAAlone(w, c, cs, us, "legacy payload (lzma)"); err != nil {
			return nil, err
		}
	} else {
		if cs != us {
			return nil, &SizeMismatchError{What: "legacy payload (none)", Want: us, Got: cs}
		}
		if _, err := io.CopyN(w, c, cs); err != nil {
			return nil, fmt.Errorf("legacy payload: %w: %v", ErrTruncated, err)
		}
	}

	nodes, err := readLegacyDirectory(NewCursor(region, region.Size(), binary.BigEndian))
	if err != nil {
		return nil, err
	}
	entries, err := materialize(region, region.Size(), nodes, path)
	if err != nil {
		return nil, err
	}
	log.Debug("decoded legacy bundle",
		zap.Uint32("format", hdr.Version),
		zap.Int("entries", len(entries)))

	return &Bundle{
		Path:    path,
		Header:  hdr,
		Blocks:  []StorageBlock{block},
		Nodes:   nodes,
		Entries: entries,
	}, nil
}

// header.go
//
// Archive header parsing.
// Every archive starts with a null-terminated signature, a big-endian format
// version and two engine version strings. What follows depends on the
// signature and format version:
//
//   - "UnityFS", and "UnityWeb"/"UnityRaw" from format 6 on, carry the
//     modern header: total size, blocks-info sizes and a flags word.
//   - Older "UnityWeb"/"UnityRaw" archives carry a list of streaming levels
//     whose last entry describes the whole payload.

package unitypack

import "fmt"

// Archive signatures.
const (
	SignatureFS      = "UnityFS"
	SignatureWeb     = "UnityWeb"
	SignatureRaw     = "UnityRaw"
	SignatureArchive = "UnityArchive"
)

// modernFormatVersion is the first format version in which web and raw
// archives switch to the UnityFS header layout.
const modernFormatVersion = 6

// ArchiveFlags is the flags word of a modern archive header.
type ArchiveFlags uint32

const (
	FlagCompressionTypeMask            ArchiveFlags = compressionMask
	FlagBlocksAndDirectoryInfoCombined ArchiveFlags = 0x40
	FlagBlocksInfoAtTheEnd             ArchiveFlags = 0x80
	FlagOldWebPluginCompatibility      ArchiveFlags = 0x100
	FlagBlockInfoNeedPaddingAtStart    ArchiveFlags = 0x200
)

// Compression returns the codec used for the blocks-info region.
func (f ArchiveFlags) Compression() CompressionType {
	return CompressionType(f & FlagCompressionTypeMask)
}

// Has reports whether every bit of mask is set.
func (f ArchiveFlags) Has(mask ArchiveFlags) bool { return f&mask == mask }

// StorageBlockFlags is the per-block flags field.
type StorageBlockFlags uint16

const (
	BlockCompressionTypeMask StorageBlockFlags = compressionMask
	BlockStreamed            StorageBlockFlags = 0x40
)

// Compression returns the codec used for the block.
func (f StorageBlockFlags) Compression() CompressionType {
	return CompressionType(f & BlockCompressionTypeMask)
}

// Header is the fixed portion of an archive.
type Header struct {
	Signature string
	// Version is the container format version.
	Version uint32
	// UnityVersion is the player version string (e.g. "5.x.x").
	UnityVersion string
	// UnityRevision is the engine revision string, parsed into Revision.
	UnityRevision string
	Revision      Version

	// Size is the total archive size recorded in the header. For legacy
	// archives it is the header length, i.e. where block data starts.
	Size                       int64
	CompressedBlocksInfoSize   uint32
	UncompressedBlocksInfoSize uint32
	Flags                      ArchiveFlags
}

// IsLegacy reports whether the archive uses the streaming-level layout.
func (h *Header) IsLegacy() bool {
	return (h.Signature == SignatureWeb || h.Signature == SignatureRaw) && h.Version < modernFormatVersion
}

// StorageBlock describes one independently compressed span of the
// unified data region.
type StorageBlock struct {
	CompressedSize   uint32
	UncompressedSize uint32
	Flags            StorageBlockFlags
}

// Node is a directory entry naming a span of the unified data region.
type Node struct {
	Offset int64
	Size   int64
	Flags  uint32
	Path   string
}

// signatureMaxLen bounds the signature string read from an unknown file.
const signatureMaxLen = 20

// readHeaderPrefix reads the fields shared by every archive variant.
func readHeaderPrefix(c *Cursor) (Header, error) {
	var h Header
	var err error
	if h.Signature, err = c.ReadStringToNull(signatureMaxLen); err != nil {
		return h, fmt.Errorf("read signature: %w", err)
	}
	if h.Version, err = c.ReadUint32(); err != nil {
		return h, fmt.Errorf("read format version: %w", err)
	}
	if h.UnityVersion, err = c.ReadStringToNull(0); err != nil {
		return h, fmt.Errorf("read player version: %w", err)
	}
	if h.UnityRevision, err = c.ReadStringToNull(0); err != nil {
		return h, fmt.Errorf("read engine revision: %w", err)
	}
	if h.Revision, err = ParseVersion(h.UnityRevision); err != nil {
		return h, err
	}
	return h, nil
}

// readModernHeader reads the size, blocks-info sizes and flags that follow
// the prefix. Web and raw archives carry one extra byte after the flags.
func readModernHeader(c *Cursor, h *Header) error {
	var err error
	if h.Size, err = c.ReadInt64(); err != nil {
		return fmt.Errorf("read archive size: %w", err)
	}
	if h.CompressedBlocksInfoSize, err = c.ReadUint32(); err != nil {
		return fmt.Errorf("read compressed blocks info size: %w", err)
	}
	if h.UncompressedBlocksInfoSize, err = c.ReadUint32(); err != nil {
		return fmt.Errorf("read uncompressed blocks info size: %w", err)
	}
	flags, err := c.ReadUint32()
	if err != nil {
		return fmt.Errorf("read archive flags: %w", err)
	}
	h.Flags = ArchiveFlags(flags)
	if h.Signature != SignatureFS {
		if _, err := c.ReadUint8(); err != nil {
			return fmt.Errorf("read header padding: %w", err)
		}
	}
	return nil
}

// readLegacyHeader reads the streaming-level table of a pre-format-6 web or
// raw archive and leaves the cursor at the start of block data. Only the
// last level matters: its sizes cover the whole payload.
func readLegacyHeader(c *Cursor, h *Header) (StorageBlock, error) {
	var block StorageBlock
	if h.Version >= 4 {
		// 16-byte hash followed by a crc32, neither verified.
		if err := c.Skip(16 + 4); err != nil {
			return block, fmt.Errorf("read legacy hash: %w", err)
		}
	}
	if _, err := c.ReadUint32(); err != nil { // minimumStreamedBytes
		return block, fmt.Errorf("read minimum streamed bytes: %w", err)
	}
	size, err := c.ReadUint32()
	if err != nil {
		return block, fmt.Errorf("read header size: %w", err)
	}
	h.Size = int64(size)
	if _, err := c.ReadUint32(); err != nil { // levels before streaming
		return block, fmt.Errorf("read streaming level count: %w", err)
	}
	levels, err := c.ReadInt32()
	if err != nil {
		return block, fmt.Errorf("read level count: %w", err)
	}
	if levels < 0 {
		return block, fmt.Errorf("%w: negative level count %d", ErrUnsupportedFormat, levels)
	}
	for i := int32(0); i < levels; i++ {
		cs, err := c.ReadUint32()
		if err != nil {
			return block, fmt.Errorf("read level %d: %w", i, err)
		}
		us, err := c.ReadUint32()
		if err != nil {
			return block, fmt.Errorf("read level %d: %w", i, err)
		}
		block = StorageBlock{CompressedSize: cs, UncompressedSize: us}
	}
	if h.Version >= 2 {
		if _, err := c.ReadUint32(); err != nil { // completeFileSize
			return block, fmt.Errorf("read complete file size: %w", err)
		}
	}
	if h.Version >= 3 {
		if _, err := c.ReadUint32(); err != nil { // fileInfoHeaderSize
			return block, fmt.Errorf("read file info header size: %w", err)
		}
	}
	c.SetPosition(h.Size)
	if h.Signature == SignatureWeb {
		block.Flags = StorageBlockFlags(CompressionLZMA)
	}
	return block, nil
}

// readLegacyDirectory parses the directory stored at the start of a legacy
// archive's unified region.
func readLegacyDirectory(c *Cursor) ([]Node, error) {
	count, err := c.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("read node count: %w", err)
	}
	if count < 0 || int64(count) > c.Remaining() {
		return nil, fmt.Errorf("%w: invalid node count %d", ErrTruncated, count)
	}
	nodes := make([]Node, count)
	for i := range nodes {
		path, err := c.ReadStringToNull(0)
		if err != nil {
			return nil, fmt.Errorf("read node %d path: %w", i, err)
		}
		off, err := c.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("read node %d offset: %w", i, err)
		}
		size, err := c.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("read node %d size: %w", i, err)
		}
		nodes[i] = Node{Path: path, Offset: int64(off), Size: int64(size)}
	}
	return nodes, nil
}

// isBundleSignature reports whether sig names an archive container.
func isBundleSignature(sig string) bool {
	switch sig {
	case SignatureFS, SignatureWeb, SignatureRaw, SignatureArchive:
		return true
	}
	return false
}

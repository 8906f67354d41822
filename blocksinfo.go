package unitypack

import (
	"encoding/binary"
	"fmt"
)

// blocksInfoHashSize is the length of the uncompressed-data hash that
// opens the blocks-info region. The hash is carried but never verified.
const blocksInfoHashSize = 16

// BlocksInfo is the decoded blocks-info region: the block table followed
// by the directory.
type BlocksInfo struct {
	Hash   [blocksInfoHashSize]byte
	Blocks []StorageBlock
	Nodes  []Node
}

// UncompressedSize returns the length of the unified data region, the sum
// of every block's uncompressed size.
func (bi *BlocksInfo) UncompressedSize() int64 {
	var total int64
	for _, b := range bi.Blocks {
		total += int64(b.UncompressedSize)
	}
	return total
}

// CompressedSize returns the number of payload bytes the blocks occupy in
// the archive.
func (bi *BlocksInfo) CompressedSize() int64 {
	var total int64
	for _, b := range bi.Blocks {
		total += int64(b.CompressedSize)
	}
	return total
}

const (
	blockRecordSize   = 4 + 4 + 2
	minNodeRecordSize = 8 + 8 + 4 + 1
)

// parseBlocksInfo decodes an uncompressed blocks-info region. All fields
// are big-endian.
func parseBlocksInfo(data []byte) (*BlocksInfo, error) {
	c := NewBytesCursor(data, binary.BigEndian)
	bi := new(BlocksInfo)

	if err := c.ReadFull(bi.Hash[:]); err != nil {
		return nil, fmt.Errorf("read blocks info hash: %w", err)
	}

	blockCount, err := c.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("read block count: %w", err)
	}
	if blockCount < 0 || int64(blockCount)*blockRecordSize > c.Remaining() {
		return nil, fmt.Errorf("%w: block count %d exceeds blocks info", ErrTruncated, blockCount)
	}
	bi.Blocks = make([]StorageBlock, blockCount)
	for i := range bi.Blocks {
		b := &bi.Blocks[i]
		if b.UncompressedSize, err = c.ReadUint32(); err != nil {
			return nil, fmt.Errorf("read block %d: %w", i, err)
		}
		if b.CompressedSize, err = c.ReadUint32(); err != nil {
			return nil, fmt.Errorf("read block %d: %w", i, err)
		}
		flags, err := c.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("read block %d: %w", i, err)
		}
		b.Flags = StorageBlockFlags(flags)
	}

	nodeCount, err := c.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("read node count: %w", err)
	}
	if nodeCount < 0 || int64(nodeCount)*minNodeRecordSize > c.Remaining() {
		return nil, fmt.Errorf("%w: node count %d exceeds blocks info", ErrTruncated, nodeCount)
	}
	bi.Nodes = make([]Node, nodeCount)
	for i := range bi.Nodes {
		n := &bi.Nodes[i]
		if n.Offset, err = c.ReadInt64(); err != nil {
			return nil, fmt.Errorf("read node %d: %w", i, err)
		}
		if n.Size, err = c.ReadInt64(); err != nil {
			return nil, fmt.Errorf("read node %d: %w", i, err)
		}
		if n.Flags, err = c.ReadUint32(); err != nil {
			return nil, fmt.Errorf("read node %d: %w", i, err)
		}
		if n.Path, err = c.ReadStringToNull(0); err != nil {
			return nil, fmt.Errorf("read node %d path: %w", i, err)
		}
	}
	return bi, nil
}

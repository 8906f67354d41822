package unitypack

import (
	"encoding/binary"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// readWebDirectory parses the directory of a web-data container. Unlike
// archives the container is little-endian and stores absolute offsets
// into the file itself.
//
//	signature   cstring "UnityWebData1.0"
//	headLength  int32   end of the directory
//	records     { offset int32, length int32, pathLen int32, path [pathLen]byte }
func readWebDirectory(c *Cursor) ([]Node, error) {
	sig, err := c.ReadStringToNull(signatureMaxLen)
	if err != nil {
		return nil, fmt.Errorf("read signature: %w", err)
	}
	if sig != WebDataSignature {
		return nil, fmt.Errorf("%w: signature %q", ErrUnsupportedFormat, sig)
	}
	headLength, err := c.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("read head length: %w", err)
	}
	if int64(headLength) > c.Len() {
		return nil, fmt.Errorf("%w: head length %d exceeds file size %d", ErrTruncated, headLength, c.Len())
	}

	var nodes []Node
	for c.Position() < int64(headLength) {
		off, err := c.ReadInt32()
		if err != nil {
			return nil, fmt.Errorf("read record %d offset: %w", len(nodes), err)
		}
		length, err := c.ReadInt32()
		if err != nil {
			return nil, fmt.Errorf("read record %d length: %w", len(nodes), err)
		}
		pathLen, err := c.ReadInt32()
		if err != nil {
			return nil, fmt.Errorf("read record %d path length: %w", len(nodes), err)
		}
		path, err := c.ReadBytes(int(pathLen))
		if err != nil {
			return nil, fmt.Errorf("read record %d path: %w", len(nodes), err)
		}
		nodes = append(nodes, Node{Offset: int64(off), Size: int64(length), Path: string(path)})
	}
	return nodes, nil
}

// DecodeWebData decodes a web-data container held in the first size bytes
// of r into its entries.
func (d *Decoder) DecodeWebData(r io.ReaderAt, size int64, path string) ([]*Entry, error) {
	nodes, err := readWebDirectory(NewCursor(r, size, binary.LittleEndian))
	if err != nil {
		return nil, fmt.Errorf("webdata %s: %w", path, err)
	}
	entries, err := materialize(r, size, nodes, path)
	if err != nil {
		return nil, fmt.Errorf("webdata %s: %w", path, err)
	}
	d.log.Debug("decoded web data", zap.String("path", path), zap.Int("entries", len(entries)))
	return entries, nil
}

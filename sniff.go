package unitypack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// FileType classifies a source file by its leading bytes.
type FileType uint8

const (
	FileTypeResource FileType = iota
	FileTypeAssets
	FileTypeBundle
	FileTypeWeb
	FileTypeGZip
	FileTypeBrotli
	FileTypeZip
)

func (t FileType) String() string {
	switch t {
	case FileTypeResource:
		return "resource"
	case FileTypeAssets:
		return "assets"
	case FileTypeBundle:
		return "bundle"
	case FileTypeWeb:
		return "webdata"
	case FileTypeGZip:
		return "gzip"
	case FileTypeBrotli:
		return "brotli"
	case FileTypeZip:
		return "zip"
	default:
		return fmt.Sprintf("filetype(%d)", uint8(t))
	}
}

// WebDataSignature opens a web-data container.
const WebDataSignature = "UnityWebData1.0"

var (
	gzipMagic       = []byte{0x1f, 0x8b}
	brotliMagic     = []byte("brotli")
	zipMagic        = []byte{'P', 'K', 0x03, 0x04}
	zipSpannedMagic = []byte{'P', 'K', 0x07, 0x08}
)

const (
	sniffLength       = 40
	brotliMagicOffset = 32

	// Serialized-file header geometry.
	minSerializedSize     = 20
	largeHeaderVersion    = 22
	minLargeSerializedLen = 48
)

// DetectFileType inspects the first bytes of r and reports what kind of
// file it holds. Anything unrecognized is a resource file.
func DetectFileType(r io.ReaderAt, size int64) (FileType, error) {
	c := NewCursor(r, size, binary.BigEndian)
	if size > 0 {
		sig, err := c.ReadStringToNull(signatureMaxLen)
		if err != nil {
			return FileTypeResource, err
		}
		switch {
		case isBundleSignature(sig):
			return FileTypeBundle, nil
		case sig == WebDataSignature:
			return FileTypeWeb, nil
		}
	}

	head := make([]byte, min(int64(sniffLength), size))
	if _, err := r.ReadAt(head, 0); err != nil && err != io.EOF {
		return FileTypeResource, fmt.Errorf("read file head: %w", err)
	}

	switch {
	case len(head) > len(gzipMagic) && bytes.HasPrefix(head, gzipMagic):
		return FileTypeGZip, nil
	case len(head) > brotliMagicOffset+len(brotliMagic) &&
		bytes.Equal(head[brotliMagicOffset:brotliMagicOffset+len(brotliMagic)], brotliMagic):
		return FileTypeBrotli, nil
	case isSerializedFile(head, size):
		return FileTypeAssets, nil
	case len(head) > len(zipMagic) && (bytes.HasPrefix(head, zipMagic) || bytes.HasPrefix(head, zipSpannedMagic)):
		return FileTypeZip, nil
	}
	return FileTypeResource, nil
}

// isSerializedFile checks whether head is a plausible serialized-file
// header for a file of the given size: the recorded file size must match
// and the data offset must lie inside the file. Format 22 moved both
// fields to 64-bit slots further in.
func isSerializedFile(head []byte, size int64) bool {
	if size < minSerializedSize || len(head) < minSerializedSize {
		return false
	}
	be := binary.BigEndian
	fileSize := int64(be.Uint32(head[4:]))
	version := be.Uint32(head[8:])
	dataOffset := int64(be.Uint32(head[12:]))
	if version >= largeHeaderVersion {
		if size < minLargeSerializedLen || len(head) < sniffLength {
			return false
		}
		fileSize = int64(be.Uint64(head[24:]))
		dataOffset = int64(be.Uint64(head[32:]))
	}
	return fileSize == size && dataOffset <= size
}

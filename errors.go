package unitypack

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the decoder and resolver.
//
// Every fatal condition aborts only the decode of the file that produced
// it. Callers are expected to test for the category with errors.Is; the
// concrete error usually wraps one of these values together with the
// offending value.
var (
	// ErrUnsupportedFormat is returned for a signature or wrapper that has
	// no decode path.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNotImplemented is returned for a recognized container signature
	// whose decoding is not implemented ("UnityArchive").
	ErrNotImplemented = errors.New("container format not yet supported")

	// ErrUnsupportedCompression is returned for a compression selector the
	// decoder cannot handle.
	ErrUnsupportedCompression = errors.New("unsupported compression type")

	// ErrEncrypted is returned when the archive carries the encryption
	// variant flag for its engine revision.
	ErrEncrypted = errors.New("encrypted bundle")

	// ErrSizeMismatch is returned when a decompressed region does not have
	// its declared length.
	ErrSizeMismatch = errors.New("decompressed size mismatch")

	// ErrMalformedVersion is returned when an engine version string cannot
	// be parsed.
	ErrMalformedVersion = errors.New("malformed unity version")

	// ErrEntryNotFound is returned when a named entry is not in an
	// archive's directory.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrTruncated is returned when a read runs past the end of the source.
	ErrTruncated = errors.New("unexpected end of data")
)

// SizeMismatchError reports a region whose decompressed length differs
// from the length recorded in the archive.
type SizeMismatchError struct {
	// What names the region, e.g. "blocks info" or "block 3 (lz4)".
	What string
	Want int64
	Got  int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("%s decompression error, wrote %d bytes but expected %d bytes",
		e.What, e.Got, e.Want)
}

func (e *SizeMismatchError) Unwrap() error { return ErrSizeMismatch }

// EncryptionError is returned when the encryption detector fires.
//
// Specified is true when the caller forced an engine revision; in that
// case the flag may have been tested against the wrong bit and the
// revision itself may be the culprit.
type EncryptionError struct {
	Specified bool
	Revision  Version
}

func (e *EncryptionError) Error() string {
	if e.Specified {
		return fmt.Sprintf("unsupported bundle file (revision %s): UnityCN encryption was detected "+
			"or the specified Unity version is incorrect", e.Revision)
	}
	return fmt.Sprintf("unsupported bundle file (revision %s): UnityCN encryption was detected", e.Revision)
}

func (e *EncryptionError) Unwrap() error { return ErrEncrypted }

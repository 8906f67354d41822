package unitypack

import (
	"fmt"
	"strings"
)

// pathIDWideVersion is the first serialized-file format version that
// stores path IDs as 64-bit values.
const pathIDWideVersion = 14

// resolveState is the memoized outcome of finding a reference's target
// file.
type resolveState uint8

const (
	stateUnresolved resolveState = iota
	stateMissing
	stateResolved
)

// PPtr is a typed reference to an object that may live in another
// serialized file.
//
// FileID 0 means the owning file; FileID n > 0 means the file named by row
// n-1 of the owner's externals table. The target file is located through
// the owner's registry the first time the reference is followed and the
// result is remembered until the registry's generation changes.
//
// A PPtr is not safe for concurrent use; the registry it consults is.
type PPtr[T Object] struct {
	FileID int32
	PathID int64

	owner *SerializedFile

	state resolveState
	slot  int
	gen   uint64
}

// NewPPtr returns a reference held by owner.
func NewPPtr[T Object](owner *SerializedFile, fileID int32, pathID int64) *PPtr[T] {
	return &PPtr[T]{FileID: fileID, PathID: pathID, owner: owner}
}

// ReadPPtr decodes a reference: an int32 FileID followed by the path ID,
// which is an int32 before format version 14 and an int64 from then on.
func ReadPPtr[T Object](c *Cursor, formatVersion uint32, owner *SerializedFile) (*PPtr[T], error) {
	fileID, err := c.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("read pptr file id: %w", err)
	}
	var pathID int64
	if formatVersion < pathIDWideVersion {
		v, err := c.ReadInt32()
		if err != nil {
			return nil, fmt.Errorf("read pptr path id: %w", err)
		}
		pathID = int64(v)
	} else {
		if pathID, err = c.ReadInt64(); err != nil {
			return nil, fmt.Errorf("read pptr path id: %w", err)
		}
	}
	return NewPPtr[T](owner, fileID, pathID), nil
}

// IsNull reports whether the reference points nowhere.
func (p *PPtr[T]) IsNull() bool { return p.PathID == 0 || p.FileID < 0 }

// Owner returns the file holding the reference.
func (p *PPtr[T]) Owner() *SerializedFile { return p.owner }

// Bind sets the owning file if none is set yet.
func (p *PPtr[T]) Bind(owner *SerializedFile) {
	if p.owner == nil {
		p.owner = owner
	}
}

// targetFile returns the file the reference points into.
func (p *PPtr[T]) targetFile() (*SerializedFile, bool) {
	if p.owner == nil {
		return nil, false
	}
	if p.FileID == 0 {
		return p.owner, true
	}
	if p.FileID < 0 || int(p.FileID)-1 >= len(p.owner.Externals) {
		return nil, false
	}
	reg := p.owner.registry
	if reg == nil {
		return nil, false
	}

	if gen := reg.Generation(); p.state == stateUnresolved || p.gen != gen {
		p.remember(reg.Lookup(p.owner.Externals[p.FileID-1].FileName), gen)
	}
	if p.state != stateResolved {
		return nil, false
	}
	f := reg.File(p.slot)
	return f, f != nil
}

func (p *PPtr[T]) remember(slot int, gen uint64) {
	p.gen = gen
	if slot < 0 {
		p.state = stateMissing
		return
	}
	p.state = stateResolved
	p.slot = slot
}

// lookup returns the raw target object.
func (p *PPtr[T]) lookup() (Object, bool) {
	if p.IsNull() {
		return nil, false
	}
	f, ok := p.targetFile()
	if !ok {
		return nil, false
	}
	return f.Object(p.PathID)
}

// TryGet follows the reference. It returns false when the reference is
// null, the target file is not loaded, the object is absent or the object
// is not a T.
func (p *PPtr[T]) TryGet() (T, bool) {
	return TryGetAs[T](p)
}

// TryGetAs follows p and asserts the target to T2 instead of p's declared
// kind.
func TryGetAs[T2 Object, T Object](p *PPtr[T]) (T2, bool) {
	var zero T2
	obj, ok := p.lookup()
	if !ok {
		return zero, false
	}
	v, ok := obj.(T2)
	if !ok {
		return zero, false
	}
	return v, true
}

// Set points the reference at obj. When obj lives in another file that
// the owner's externals table does not list yet, a row is appended.
func (p *PPtr[T]) Set(obj T) {
	target := obj.File()
	if p.owner == nil {
		p.owner = target
	}
	name := target.Name

	if strings.EqualFold(p.owner.Name, name) {
		p.FileID = 0
	} else if i := p.owner.externalIndex(name); i >= 0 {
		p.FileID = int32(i + 1)
	} else {
		p.owner.Externals = append(p.owner.Externals, FileIdentifier{PathName: name, FileName: name})
		p.FileID = int32(len(p.owner.Externals))
	}
	p.PathID = obj.PathID()

	p.state = stateUnresolved
	if reg := p.owner.registry; reg != nil {
		gen := reg.Generation()
		p.remember(reg.Lookup(name), gen)
	}
}

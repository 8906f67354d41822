// registry.go
//
// Registry of loaded serialized files.
// Cross-file references name their target file through the referencing
// file's externals table; the registry turns that name into a stable slot
// index. Name lookups are case-insensitive and memoized, including misses,
// so each distinct name costs at most one linear scan per registry
// generation.

package unitypack

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Object is anything a PPtr can point at: an object stored in a serialized
// file under a path ID.
type Object interface {
	PathID() int64
	File() *SerializedFile
}

// ObjectBase carries the identity every Object needs. Embed it in concrete
// object types.
type ObjectBase struct {
	pathID int64
	file   *SerializedFile
}

// NewObjectBase returns the identity of the object stored in file under
// pathID.
func NewObjectBase(file *SerializedFile, pathID int64) ObjectBase {
	return ObjectBase{pathID: pathID, file: file}
}

func (o ObjectBase) PathID() int64         { return o.pathID }
func (o ObjectBase) File() *SerializedFile { return o.file }

// FileIdentifier is one row of a serialized file's externals table.
type FileIdentifier struct {
	// PathName is the path as recorded by the build.
	PathName string
	// FileName is the base name references are resolved by.
	FileName string
}

// SerializedFile is a parsed object container as seen by the resolver: a
// name, a format version, an externals table and its objects by path ID.
//
// A SerializedFile is not safe for concurrent mutation. Populate it, add
// it to a Registry, then resolve references.
type SerializedFile struct {
	Name string
	// FormatVersion decides reference widths; see ReadPPtr.
	FormatVersion uint32
	Externals     []FileIdentifier

	objects  map[int64]Object
	registry *Registry
}

// NewSerializedFile returns an empty file.
func NewSerializedFile(name string, formatVersion uint32) *SerializedFile {
	return &SerializedFile{
		Name:          name,
		FormatVersion: formatVersion,
		objects:       make(map[int64]Object),
	}
}

// AddExternal appends an externals row and returns its FileID, which is the
// row's index plus one.
func (f *SerializedFile) AddExternal(pathName string) int32 {
	f.Externals = append(f.Externals, FileIdentifier{
		PathName: pathName,
		FileName: entryName(pathName),
	})
	return int32(len(f.Externals))
}

// externalIndex returns the index of the externals row naming name,
// compared case-insensitively, or -1.
func (f *SerializedFile) externalIndex(name string) int {
	for i, ext := range f.Externals {
		if strings.EqualFold(ext.FileName, name) {
			return i
		}
	}
	return -1
}

// AddObject stores o under its path ID, replacing any previous object.
func (f *SerializedFile) AddObject(o Object) { f.objects[o.PathID()] = o }

// Object returns the object stored under pathID.
func (f *SerializedFile) Object(pathID int64) (Object, bool) {
	o, ok := f.objects[pathID]
	return o, ok
}

// Len returns the number of objects in the file.
func (f *SerializedFile) Len() int { return len(f.objects) }

// Registry returns the registry the file was added to, or nil.
func (f *SerializedFile) Registry() *Registry { return f.registry }

// missingSlot marks a cached name that matched no file.
const missingSlot = -1

// Registry holds loaded serialized files in stable slots.
//
// Removing a file leaves a tombstone so the indices of other files do not
// move. Every structural change bumps the generation; references memoized
// under an older generation look their target up again. A Registry is safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	files []*SerializedFile
	// index maps a lower-cased file name to a slot or missingSlot.
	index map[string]int

	generation atomic.Uint64
	scans      atomic.Int64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

func cacheKey(name string) string { return strings.ToLower(name) }

// Add places f in the next slot and returns the slot index. A cached miss
// for f's name is forgotten.
func (r *Registry) Add(f *SerializedFile) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	f.registry = r
	r.files = append(r.files, f)
	key := cacheKey(f.Name)
	if idx, ok := r.index[key]; ok && idx == missingSlot {
		delete(r.index, key)
	}
	r.generation.Add(1)
	return len(r.files) - 1
}

// Remove tombstones the slot at idx. It reports whether a file was there.
func (r *Registry) Remove(idx int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx < 0 || idx >= len(r.files) || r.files[idx] == nil {
		return false
	}
	r.files[idx].registry = nil
	r.files[idx] = nil
	for k, v := range r.index {
		if v == idx {
			delete(r.index, k)
		}
	}
	r.generation.Add(1)
	return true
}

// Reset drops every file and cached lookup.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.files {
		if f != nil {
			f.registry = nil
		}
	}
	r.files = nil
	r.index = make(map[string]int)
	r.generation.Add(1)
}

// File returns the file in slot idx, or nil for an empty or removed slot.
func (r *Registry) File(idx int) *SerializedFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.files) {
		return nil
	}
	return r.files[idx]
}

// Len returns the number of slots, tombstones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}

// Generation returns the current structural generation.
func (r *Registry) Generation() uint64 { return r.generation.Load() }

// Scans returns how many linear name scans the registry has performed.
func (r *Registry) Scans() int64 { return r.scans.Load() }

// Lookup returns the slot of the first file named name (compared
// case-insensitively), or -1. The outcome, hit or miss, is cached until the
// file set changes.
func (r *Registry) Lookup(name string) int {
	key := cacheKey(name)

	r.mu.RLock()
	idx, ok := r.index[key]
	r.mu.RUnlock()
	if ok {
		return idx
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.index[key]; ok {
		return idx
	}
	r.scans.Add(1)
	idx = missingSlot
	for i, f := range r.files {
		if f != nil && strings.EqualFold(f.Name, name) {
			idx = i
			break
		}
	}
	r.index[key] = idx
	return idx
}

package unitypack

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	a := NewSerializedFile("CAB-a", 22)
	dup := NewSerializedFile("cab-A", 22)
	assert.Equal(t, 0, reg.Add(a))
	assert.Equal(t, 1, reg.Add(dup))

	assert.Equal(t, 0, reg.Lookup("cab-a"), "first match wins")
	assert.Equal(t, 0, reg.Lookup("CAB-A"))
	assert.Equal(t, int64(1), reg.Scans())

	assert.Equal(t, -1, reg.Lookup("nope"))
	assert.Equal(t, -1, reg.Lookup("NOPE"))
	assert.Equal(t, int64(2), reg.Scans())

	assert.Same(t, reg, a.Registry())
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry()
	a := NewSerializedFile("a", 22)
	b := NewSerializedFile("b", 22)
	reg.Add(a)
	reg.Add(b)
	require.Equal(t, 1, reg.Lookup("b"))

	gen := reg.Generation()
	require.True(t, reg.Remove(0))
	assert.Greater(t, reg.Generation(), gen)
	assert.Nil(t, reg.File(0))
	assert.Nil(t, a.Registry())
	assert.Same(t, b, reg.File(1), "other slots keep their index")
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, -1, reg.Lookup("a"))
	assert.Equal(t, 1, reg.Lookup("b"))

	assert.False(t, reg.Remove(0), "already removed")
	assert.False(t, reg.Remove(7))
	assert.Nil(t, reg.File(-1))
}

func TestRegistryReset(t *testing.T) {
	reg := NewRegistry()
	f := NewSerializedFile("a", 22)
	reg.Add(f)
	reg.Lookup("a")

	gen := reg.Generation()
	reg.Reset()
	assert.Greater(t, reg.Generation(), gen)
	assert.Zero(t, reg.Len())
	assert.Nil(t, f.Registry())
	assert.Equal(t, -1, reg.Lookup("a"))
}

func TestRegistryConcurrentLookup(t *testing.T) {
	reg := NewRegistry()
	for i := range 16 {
		reg.Add(NewSerializedFile(fmt.Sprintf("CAB-%02d", i), 22))
	}

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				name := fmt.Sprintf("cab-%02d", (g+i)%20)
				want := (g + i) % 20
				if want >= 16 {
					want = -1
				}
				assert.Equal(t, want, reg.Lookup(name))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(20), reg.Scans(), "each distinct name is scanned once")
}

func TestSerializedFile(t *testing.T) {
	f := NewSerializedFile("level0", 17)
	assert.Equal(t, int32(1), f.AddExternal("library/unity default resources"))
	assert.Equal(t, int32(2), f.AddExternal(`Library\sharedassets0.assets`))
	assert.Equal(t, "sharedassets0.assets", f.Externals[1].FileName)
	assert.Equal(t, 1, f.externalIndex("SHAREDASSETS0.ASSETS"))
	assert.Equal(t, -1, f.externalIndex("missing"))

	newTexture(f, 1, 4)
	newTexture(f, 1, 8)
	assert.Equal(t, 1, f.Len(), "same path id replaces")
	o, ok := f.Object(1)
	require.True(t, ok)
	assert.Equal(t, 8, o.(*texture).Width)
	assert.Nil(t, f.Registry())
}

package unitypack

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPoolGetPut(t *testing.T) {
	t.Run("length and size class", func(t *testing.T) {
		p := NewBufferPool(1<<20, 2)
		b := p.Get(100)
		assert.Len(t, b, 100)
		assert.Equal(t, 128, cap(b))

		small := p.Get(3)
		assert.Len(t, small, 3)
		assert.Equal(t, 16, cap(small))
	})

	t.Run("reuse", func(t *testing.T) {
		p := NewBufferPool(1<<20, 2)
		b := p.Get(1000)
		b[0] = 0xaa
		p.Put(b, false)
		assert.Equal(t, 1, p.Idle())

		again := p.Get(900)
		assert.Len(t, again, 900)
		assert.Equal(t, byte(0xaa), again[0], "same backing array")
		assert.Zero(t, p.Idle())
	})

	t.Run("clear zeroes the whole buffer", func(t *testing.T) {
		p := NewBufferPool(1<<20, 2)
		b := p.Get(64)
		for i := range b {
			b[i] = 0xff
		}
		p.Put(b, true)
		again := p.Get(64)
		assert.Equal(t, make([]byte, 64), again)
	})

	t.Run("bucket retention limit", func(t *testing.T) {
		p := NewBufferPool(1<<20, 2)
		bufs := [][]byte{p.Get(32), p.Get(32), p.Get(32)}
		for _, b := range bufs {
			p.Put(b, false)
		}
		assert.Equal(t, 2, p.Idle())
	})

	t.Run("oversized and foreign buffers are dropped", func(t *testing.T) {
		p := NewBufferPool(1024, 2)
		big := p.Get(4096)
		assert.Len(t, big, 4096)
		p.Put(big, false)
		p.Put(make([]byte, 100), false)
		assert.Zero(t, p.Idle())
	})

	t.Run("close drops retained buffers", func(t *testing.T) {
		p := NewBufferPool(0, 0)
		p.Put(p.Get(16), false)
		p.Put(p.Get(1<<16), false)
		assert.Equal(t, 2, p.Idle())
		p.Close()
		assert.Zero(t, p.Idle())
		assert.Len(t, p.Get(10), 10)
	})

	t.Run("nil pool allocates", func(t *testing.T) {
		var p *BufferPool
		assert.Len(t, p.Get(10), 10)
		p.Put(make([]byte, 16), true)
	})
}

func TestBufferPoolConcurrent(t *testing.T) {
	p := NewBufferPool(1<<20, 4)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				n := 1 + (g*131+i*17)%5000
				b := p.Get(n)
				assert.Len(t, b, n)
				b[n-1] = byte(g)
				p.Put(b, i%2 == 0)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, p.Idle(), 4*len(p.buckets))
}

func TestPooledGzipReader(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("pooled payload"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	for range 3 {
		zr, err := getGzipReader(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		got, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Equal(t, "pooled payload", string(got))
		putGzipReader(zr)
	}
}

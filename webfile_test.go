package unitypack

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWebData lays out a web-data container: signature, head length,
// directory records and then the file bodies in order.
func buildWebData(t testing.TB, nodes []testNode) []byte {
	t.Helper()

	head := len(WebDataSignature) + 1 + 4
	for _, n := range nodes {
		head += 12 + len(n.path)
	}

	var buf bytes.Buffer
	buf.WriteString(WebDataSignature)
	buf.WriteByte(0)
	le := binary.LittleEndian
	require.NoError(t, binary.Write(&buf, le, int32(head)))
	off := head
	for _, n := range nodes {
		require.NoError(t, binary.Write(&buf, le, int32(off)))
		require.NoError(t, binary.Write(&buf, le, int32(len(n.data))))
		require.NoError(t, binary.Write(&buf, le, int32(len(n.path))))
		buf.WriteString(n.path)
		off += len(n.data)
	}
	for _, n := range nodes {
		buf.Write(n.data)
	}
	return buf.Bytes()
}

func TestDecodeWebData(t *testing.T) {
	nodes := []testNode{
		{path: "data.unity3d", data: compressibleData(700, 'd')},
		{path: "Il2CppData/Metadata/global-metadata.dat", data: compressibleData(120, 'g')},
		{path: "empty.json", data: nil},
	}
	data := buildWebData(t, nodes)

	d := newTestDecoder(t)
	entries, err := d.DecodeWebData(bytes.NewReader(data), int64(len(data)), "build.data")
	require.NoError(t, err)
	defer closeEntries(entries)

	require.Len(t, entries, len(nodes))
	for i, n := range nodes {
		assert.Equal(t, n.path, entries[i].Path)
		assert.Equal(t, entryName(n.path), entries[i].Name)
		assert.Equal(t, int64(len(n.data)), entries[i].Size)
		assert.Equal(t, len(n.data), len(entryData(t, entries[i])))
		if len(n.data) > 0 {
			assert.Equal(t, n.data, entryData(t, entries[i]))
		}
	}
}

func TestDecodeWebDataErrors(t *testing.T) {
	d := newTestDecoder(t)

	t.Run("head length past the end", func(t *testing.T) {
		var buf bytes.Buffer
		buf.WriteString(WebDataSignature + "\x00")
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(4096)))
		_, err := d.DecodeWebData(bytes.NewReader(buf.Bytes()), int64(buf.Len()), "bad.data")
		require.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("record past the end", func(t *testing.T) {
		data := buildWebData(t, []testNode{{path: "a", data: []byte("abc")}})
		data = data[:len(data)-1]
		_, err := d.DecodeWebData(bytes.NewReader(data), int64(len(data)), "short.data")
		require.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("wrong signature", func(t *testing.T) {
		data := []byte("UnityWebData2.0\x00\x00\x00\x00\x00")
		_, err := d.DecodeWebData(bytes.NewReader(data), int64(len(data)), "v2.data")
		require.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

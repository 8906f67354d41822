package unitypack

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestExtract(t *testing.T) {
	shared := testNode{path: "CAB-shared", data: compressibleData(400, 's')}
	first := []testNode{{path: "CAB-one", data: compressibleData(300, 'o')}, shared}
	second := []testNode{shared, {path: "sub/CAB-two.resS", data: compressibleData(250, 't')}}

	paths := []string{
		writeTestFile(t, "one.bundle", buildBundle(t, bundleSpec{blockCompression: CompressionLZ4, nodes: first})),
		writeTestFile(t, "broken.bundle", []byte("UnityFS\x00\x00\x00\x00\x06")),
		writeTestFile(t, "two.bundle", buildBundle(t, bundleSpec{blockCompression: CompressionLZMA, nodes: second})),
	}
	out := t.TempDir()

	core, logs := observer.New(zapcore.WarnLevel)
	x := NewExtractor(newTestDecoder(t), WithWorkers(2), WithExtractorLogger(zap.New(core)))

	results, err := x.Extract(context.Background(), paths, out)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, paths[i], r.Source)
	}
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 1, logs.FilterMessage("extraction failed").Len())

	// The shared entry is written exactly once, by whichever source got
	// there first.
	written := len(results[0].Written) + len(results[2].Written)
	skipped := append(append([]string{}, results[0].Skipped...), results[2].Skipped...)
	assert.Equal(t, 3, written)
	assert.Equal(t, []string{"CAB-shared"}, skipped)

	for _, n := range []testNode{first[0], shared, second[1]} {
		got, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(n.path)))
		require.NoError(t, err)
		assert.Equal(t, n.data, got, n.path)
	}
}

func TestExtractCancelled(t *testing.T) {
	path := writeTestFile(t, "one.bundle", buildBundle(t, bundleSpec{nodes: sampleNodes()}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x := NewExtractor(newTestDecoder(t))
	results, err := x.Extract(ctx, []string{path}, t.TempDir())
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.Empty(t, results[0].Written)
}

func TestOutputPath(t *testing.T) {
	out := filepath.Join("var", "out")
	tests := []struct {
		entry string
		want  string
	}{
		{"CAB-abc", filepath.Join(out, "CAB-abc")},
		{"archive:/CAB-abc/CAB-abc.resS", filepath.Join(out, "archive:", "CAB-abc", "CAB-abc.resS")},
		{"../../etc/passwd", filepath.Join(out, "etc", "passwd")},
		{"/abs/path", filepath.Join(out, "abs", "path")},
		{`win\dir\..\file`, filepath.Join(out, "win", "file")},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			assert.Equal(t, tt.want, outputPath(out, tt.entry))
		})
	}
}

func TestNewExtractorDefaults(t *testing.T) {
	d := newTestDecoder(t)
	x := NewExtractor(d, WithWorkers(0), WithExtractorLogger(nil))
	assert.Positive(t, x.workers)
	assert.Same(t, d.log, x.log)
}

// extract.go
//
// Batch extraction of many archives into one output tree.
// Each source file is decoded on its own worker; a fatal error in one file
// is recorded in that file's Result and never stops the others. Entries
// from different archives frequently share a path (shared dependencies are
// packed into several bundles), so output paths are claimed with an atomic
// insert-if-absent and only the first claimant writes.

package unitypack

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Extractor writes the entries of many archives to disk concurrently.
type Extractor struct {
	dec     *Decoder
	log     *zap.Logger
	workers int

	profiling     *ProfilingConfig
	profileServer *http.Server
	traceFile     *os.File
}

// ExtractorOption configures an Extractor during construction.
type ExtractorOption func(*Extractor)

// WithWorkers bounds how many archives are decoded at once.
// Defaults to GOMAXPROCS.
func WithWorkers(n int) ExtractorOption {
	return func(x *Extractor) {
		if n > 0 {
			x.workers = n
		}
	}
}

// WithExtractorLogger sets the logger for per-file progress.
func WithExtractorLogger(l *zap.Logger) ExtractorOption {
	return func(x *Extractor) {
		if l != nil {
			x.log = l
		}
	}
}

// NewExtractor returns an extractor that decodes with dec.
func NewExtractor(dec *Decoder, opts ...ExtractorOption) *Extractor {
	x := &Extractor{
		dec:     dec,
		log:     dec.log,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Result is the outcome of extracting one source file.
type Result struct {
	Source string
	// Written lists the output files created for this source.
	Written []string
	// Skipped lists entry paths whose output location another source
	// already claimed.
	Skipped []string
	// Err is the fatal error that stopped this source, if any.
	Err error
}

// Extract decodes every file in paths and writes its entries below outDir,
// returning one Result per path in input order.
//
// The returned error is non-nil only when the run itself could not proceed
// or ctx was cancelled; per-file failures are reported in the results.
// Extract must not be called concurrently on an Extractor with profiling
// enabled.
func (x *Extractor) Extract(ctx context.Context, paths []string, outDir string) ([]Result, error) {
	if err := x.startProfiling(); err != nil {
		x.log.Warn("profiling unavailable", zap.Error(err))
	}
	defer x.stopProfiling()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	results := make([]Result, len(paths))
	var claimed sync.Map

	var g errgroup.Group
	g.SetLimit(x.workers)
	for i, src := range paths {
		results[i].Source = src
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			x.extractOne(&results[i], outDir, &claimed)
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}

func (x *Extractor) extractOne(res *Result, outDir string, claimed *sync.Map) {
	log := x.log.With(zap.String("source", res.Source))

	a, err := x.dec.Open(res.Source)
	if err != nil {
		res.Err = err
		log.Warn("extraction failed", zap.Error(err))
		return
	}
	defer a.Close()

	for _, e := range a.Entries {
		out := outputPath(outDir, e.Path)
		if prev, loaded := claimed.LoadOrStore(out, res.Source); loaded {
			res.Skipped = append(res.Skipped, e.Path)
			log.Debug("output already claimed", zap.String("entry", e.Path), zap.Any("by", prev))
			continue
		}
		if err := writeEntry(out, e); err != nil {
			res.Err = fmt.Errorf("write entry %q: %w", e.Path, err)
			log.Warn("extraction failed", zap.Error(res.Err))
			return
		}
		res.Written = append(res.Written, out)
	}
	log.Debug("extracted", zap.Int("written", len(res.Written)), zap.Int("skipped", len(res.Skipped)))
}

// outputPath maps an archive path below outDir. Leading separators and
// ".." elements cannot climb out of outDir.
func outputPath(outDir, entryPath string) string {
	clean := path.Clean("/" + strings.ReplaceAll(entryPath, "\\", "/"))
	return filepath.Join(outDir, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
}

func writeEntry(out string, e *Entry) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, io.NewSectionReader(e, 0, e.Size)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

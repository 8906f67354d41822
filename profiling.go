// profiling.go
//
// Optional profiling of batch extraction runs.
// An Extractor configured WithProfiling serves the net/http/pprof handlers
// for the duration of each Extract call and can record an execution trace
// of the run.

package unitypack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime/trace"
	"time"

	"go.uber.org/zap"
)

// ProfilingConfig specifies profiling options for an Extractor.
type ProfilingConfig struct {
	// EnableProfiling starts an HTTP server with pprof endpoints.
	EnableProfiling bool

	// ProfileAddr is the listen address of the profiling server.
	// Defaults to ":6060". Use "localhost:6060" to restrict to local access.
	ProfileAddr string

	// Trace records an execution trace of each Extract call to
	// TraceOutputPath.
	Trace bool

	// TraceOutputPath defaults to "./trace.out" when Trace is set.
	TraceOutputPath string
}

// WithProfiling enables profiling with the given configuration.
//
// Example:
//
//	x := NewExtractor(dec,
//	    WithProfiling(&ProfilingConfig{
//	        EnableProfiling: true,
//	        ProfileAddr:     "localhost:6060",
//	        Trace:           true,
//	    }),
//	)
func WithProfiling(config *ProfilingConfig) ExtractorOption {
	return func(x *Extractor) {
		if config == nil {
			return
		}
		cfg := *config
		if cfg.EnableProfiling && cfg.ProfileAddr == "" {
			cfg.ProfileAddr = ":6060"
		}
		if cfg.Trace && cfg.TraceOutputPath == "" {
			cfg.TraceOutputPath = "./trace.out"
		}
		x.profiling = &cfg
	}
}

// startProfiling starts the profiling server and/or trace. A failure to
// start the trace is returned; the run may continue without it.
func (x *Extractor) startProfiling() error {
	if x.profiling == nil {
		return nil
	}

	if x.profiling.EnableProfiling {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		srv := &http.Server{
			Addr:              x.profiling.ProfileAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		x.profileServer = srv
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				x.log.Warn("profiling server stopped", zap.Error(err))
			}
		}()
		x.log.Info("profiling server started",
			zap.String("addr", x.profiling.ProfileAddr),
			zap.String("heap", fmt.Sprintf("http://%s/debug/pprof/heap", x.profiling.ProfileAddr)))
	}

	if x.profiling.Trace {
		f, err := os.Create(x.profiling.TraceOutputPath)
		if err != nil {
			return fmt.Errorf("create trace file: %w", err)
		}
		if err := trace.Start(f); err != nil {
			f.Close()
			return fmt.Errorf("start trace: %w", err)
		}
		x.traceFile = f
	}
	return nil
}

// stopProfiling shuts the server down and finishes the trace. It is safe
// to call when nothing was started.
func (x *Extractor) stopProfiling() {
	if x.profileServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := x.profileServer.Shutdown(ctx); err != nil {
			x.log.Warn("shutting down profiling server", zap.Error(err))
		}
		x.profileServer = nil
	}

	if x.traceFile != nil {
		trace.Stop()
		x.traceFile.Close()
		x.traceFile = nil
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studiowebux/loadgen/internal/stresstest"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Console lines printed around a run
const (
	startLine    = "Starting load test. Ctrl+C to stop."
	stoppingLine = "Stopping..."
)

// metricsShutdownTimeout bounds the shutdown of the metrics endpoint
const metricsShutdownTimeout = 2 * time.Second

// RunOptions contains options for running a load test in CLI mode
type RunOptions struct {
	Config      *stresstest.Config
	Output      io.Writer           // Console output, defaults to os.Stdout
	Manager     *stresstest.Manager // Run history, nil to disable
	Logger      *zap.Logger
	MetricsAddr string // Serve /metrics on this address when set
}

// syncWriter serializes whole writes so progress lines and the lifecycle
// lines never interleave
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Run drives one load test: it prints the start line, runs until ctx is
// cancelled or the configured duration expires, then stops the pool and
// prints the final counters. Configuration errors are returned before
// anything is printed.
func Run(ctx context.Context, opts RunOptions) error {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := &syncWriter{w: opts.Output}

	var metrics *stresstest.Metrics
	var metricsListener net.Listener
	if opts.MetricsAddr != "" {
		ln, err := net.Listen("tcp", opts.MetricsAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on metrics address: %w", err)
		}
		metricsListener = ln
		metrics = stresstest.NewMetrics()
	}

	exec, err := stresstest.NewExecutor(&stresstest.ExecutionConfig{
		Config:  opts.Config,
		Output:  out,
		Logger:  logger,
		Metrics: metrics,
	}, opts.Manager)
	if err != nil {
		if metricsListener != nil {
			metricsListener.Close()
		}
		return err
	}

	var metricsServer *http.Server
	if metrics != nil {
		metricsServer = &http.Server{
			Handler:           MetricsHandler(metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	var g errgroup.Group
	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("serving metrics", zap.String("addr", metricsListener.Addr().String()))
			if err := metricsServer.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				// Metrics are best effort, the run goes on
				logger.Warn("metrics endpoint failed", zap.Error(err))
			}
			return nil
		})
	}

	fmt.Fprintln(out, startLine)
	if err := exec.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-exec.Expired():
	}

	fmt.Fprintln(out, stoppingLine)
	final := exec.Stop()
	fmt.Fprintln(out, "Final:", "total=", final.Total, "errors=", final.Errors)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down metrics endpoint", zap.Error(err))
		}
	}

	return g.Wait()
}

// MetricsHandler serves the run metrics on /metrics
func MetricsHandler(metrics *stresstest.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	return mux
}

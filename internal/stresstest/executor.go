package stresstest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/studiowebux/loadgen/internal/target"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNotStartable is returned by Start when the executor already left the
// Starting state
var ErrNotStartable = errors.New("executor can only be started once")

// State is the lifecycle state of an Executor
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateStopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Run statuses stored in the history
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	timeoutSuffix   = " (timeout)"
)

// ExecutionConfig contains the runtime configuration for executing a load test
type ExecutionConfig struct {
	Config  *Config
	Output  io.Writer   // Progress lines, defaults to os.Stdout
	Logger  *zap.Logger // Defaults to a no-op logger
	Metrics *Metrics    // Optional

	// ClientFactory builds the client of one worker. Defaults to a dedicated
	// *http.Client per worker.
	ClientFactory func() Doer
}

// Executor owns the worker pool, the reporter and the shared counters of one run
type Executor struct {
	config   *ExecutionConfig
	manager  *Manager
	run      *Run
	logger   *zap.Logger
	selector *target.Selector
	counters *Counters
	reporter *Reporter
	limiter  *rate.Limiter

	stop    *Latch
	stopCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	state     atomic.Int32
	stopMu    sync.Mutex
	final     Snapshot
	expired   chan struct{}
	timedOut  atomic.Bool
	testStart time.Time
}

// NewExecutor validates the configuration and prepares a run. manager may be
// nil, in which case nothing is persisted.
func NewExecutor(config *ExecutionConfig, manager *Manager) (*Executor, error) {
	if config == nil || config.Config == nil {
		return nil, fmt.Errorf("invalid config: missing load test configuration")
	}
	if err := config.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	selector, err := target.New(config.Config.Targets)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.Output == nil {
		config.Output = os.Stdout
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	run := &Run{
		UUID:        uuid.NewString(),
		Targets:     selector.Targets(),
		Workers:     config.Config.Workers,
		IntervalSec: config.Config.ReportInterval.Seconds(),
		TimeoutSec:  config.Config.RequestTimeout.Seconds(),
		StartedAt:   time.Now(),
		Status:      StatusRunning,
	}

	if manager != nil {
		if err := manager.CreateRun(run); err != nil {
			return nil, fmt.Errorf("failed to create run record: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	reporter := NewReporter(config.Output, config.Config.ReportInterval, logger)
	reporter.runID = run.ID
	reporter.metrics = config.Metrics
	if manager != nil {
		reporter.sink = manager
	}

	return &Executor{
		config:   config,
		manager:  manager,
		run:      run,
		logger:   logger,
		selector: selector,
		counters: NewCounters(),
		reporter: reporter,
		limiter:  newLimiter(config.Config.RPS),
		stop:     NewLatch(),
		stopCtx:  ctx,
		cancel:   cancel,
		expired:  make(chan struct{}),
	}, nil
}

// Start launches the workers and the reporter and returns immediately
func (e *Executor) Start() error {
	if !e.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		return ErrNotStartable
	}

	e.testStart = time.Now()
	cfg := e.config.Config

	for i := 0; i < cfg.Workers; i++ {
		w := &worker{
			id:        i,
			client:    e.newClient(),
			selector:  e.selector,
			counters:  e.counters,
			stop:      e.stop,
			stopCtx:   e.stopCtx,
			limiter:   e.limiter,
			metrics:   e.config.Metrics,
			logger:    e.logger,
			userAgent: cfg.UserAgent,
		}

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			w.run()
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.reporter.Run(e.stop, e.counters)
	}()

	if cfg.Duration > 0 {
		go e.durationTimer(cfg.Duration)
	}

	e.logger.Info("load test started",
		zap.String("run", e.run.UUID),
		zap.Strings("targets", e.run.Targets),
		zap.Int("workers", cfg.Workers),
		zap.Duration("interval", cfg.ReportInterval),
		zap.Duration("timeout", cfg.RequestTimeout),
		zap.Float64("rps", cfg.RPS))

	return nil
}

// durationTimer closes the expired channel once the configured duration elapsed
func (e *Executor) durationTimer(duration time.Duration) {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		e.timedOut.Store(true)
		close(e.expired)
	case <-e.stop.Done():
	}
}

// Expired is closed when a configured test duration has elapsed. It never
// fires for runs without a duration.
func (e *Executor) Expired() <-chan struct{} {
	return e.expired
}

// Stop latches the stop flag and waits up to the grace period for workers
// and the reporter to return. It returns the final snapshot. Calling Stop
// again returns the same snapshot.
func (e *Executor) Stop() Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.Config.GracePeriod)
	defer cancel()

	_ = e.StopWithContext(ctx)
	return e.Final()
}

// StopWithContext latches the stop flag and waits for workers until ctx is
// done. Returns ctx.Err() if the pool did not drain in time; the final
// snapshot is taken either way.
func (e *Executor) StopWithContext(ctx context.Context) error {
	e.stopMu.Lock()
	defer e.stopMu.Unlock()

	switch State(e.state.Load()) {
	case StateStopped:
		return nil
	case StateStarting:
		// Never started, nothing to drain
		e.stop.Set()
		e.cancel()
		e.finalize(StatusCancelled)
		return nil
	}

	e.state.Store(int32(StateStopping))
	e.stop.Set()
	e.cancel()

	status := StatusCancelled
	if e.timedOut.Load() {
		status = StatusCompleted
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		// Some worker is still inside a request; it will observe the latch
		// on its next iteration
		err = ctx.Err()
		status += timeoutSuffix
		e.logger.Warn("workers did not drain within the grace period", zap.String("run", e.run.UUID))
	}

	e.finalize(status)
	return err
}

// finalize captures the final snapshot and completes the run record
func (e *Executor) finalize(status string) {
	e.final = e.counters.Snapshot()

	now := time.Now()
	e.run.CompletedAt = &now
	e.run.Status = status
	e.run.TotalRequests = e.final.Total
	e.run.TotalErrors = e.final.Errors
	e.run.NonOKResponses = e.final.NonOK
	e.run.TransportFailures = e.final.TransportFailures
	e.run.AvgDurationMs = float64(e.final.AvgDuration().Microseconds()) / 1000
	e.run.MinDurationMs = e.final.MinDuration.Milliseconds()
	e.run.MaxDurationMs = e.final.MaxDuration.Milliseconds()

	e.state.Store(int32(StateStopped))

	e.logger.Info("load test stopped",
		zap.String("run", e.run.UUID),
		zap.String("status", status),
		zap.Int64("total", e.final.Total),
		zap.Int64("errors", e.final.Errors),
		zap.Duration("elapsed", time.Since(e.testStart)))

	if e.manager == nil {
		return
	}
	if err := e.manager.UpdateRun(e.run); err != nil {
		e.logger.Warn("failed to update run record", zap.String("run", e.run.UUID), zap.Error(err))
	}
}

// Final returns the snapshot taken when the executor stopped
func (e *Executor) Final() Snapshot {
	e.stopMu.Lock()
	defer e.stopMu.Unlock()
	return e.final
}

// GetStats returns the current counters (thread-safe)
func (e *Executor) GetStats() Snapshot {
	return e.counters.Snapshot()
}

// GetRun returns the run record
func (e *Executor) GetRun() *Run {
	return e.run
}

// State returns the current lifecycle state
func (e *Executor) State() State {
	return State(e.state.Load())
}

func (e *Executor) newClient() Doer {
	if e.config.ClientFactory != nil {
		return e.config.ClientFactory()
	}
	return buildWorkerHTTPClient(e.config.Config)
}

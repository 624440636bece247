package stresstest

import (
	"fmt"
	"time"
)

const (
	// DefaultWorkers is the size of the worker pool
	DefaultWorkers = 40
	// DefaultReportInterval is the time between two progress lines
	DefaultReportInterval = 5 * time.Second
	// DefaultRequestTimeout bounds every single GET
	DefaultRequestTimeout = 5 * time.Second
	// DefaultGracePeriod is how long Stop waits for in-flight requests
	DefaultGracePeriod = 1 * time.Second

	// MaxWorkers caps the pool size
	MaxWorkers = 10000
)

// Config represents a load test configuration
type Config struct {
	Targets        []string
	Workers        int
	ReportInterval time.Duration
	RequestTimeout time.Duration
	GracePeriod    time.Duration
	RPS            float64       // Global request rate cap, 0 = unlimited
	Duration       time.Duration // Stop automatically after this long, 0 = until interrupted
	UserAgent      string
}

// DefaultConfig returns a Config with the reference values and no targets
func DefaultConfig() *Config {
	return &Config{
		Workers:        DefaultWorkers,
		ReportInterval: DefaultReportInterval,
		RequestTimeout: DefaultRequestTimeout,
		GracePeriod:    DefaultGracePeriod,
	}
}

// Validate validates the load test configuration
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target URL is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}
	if c.Workers > MaxWorkers {
		return fmt.Errorf("workers cannot exceed %d", MaxWorkers)
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("report interval must be greater than 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("grace period cannot be negative")
	}
	if c.RPS < 0 {
		return fmt.Errorf("rps cannot be negative")
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration cannot be negative")
	}
	return nil
}

// IntervalSeconds returns the report interval in seconds, as printed in progress lines
func (c *Config) IntervalSeconds() float64 {
	return c.ReportInterval.Seconds()
}

// Run represents a load test run record
type Run struct {
	ID                int64
	UUID              string
	Targets           []string
	Workers           int
	IntervalSec       float64
	TimeoutSec        float64
	StartedAt         time.Time
	CompletedAt       *time.Time
	Status            string // "running", "completed", "cancelled", with " (timeout)" when the pool did not drain
	TotalRequests     int64
	TotalErrors       int64
	NonOKResponses    int64
	TransportFailures int64
	AvgDurationMs     float64
	MinDurationMs     int64
	MaxDurationMs     int64
}

// Interval represents one progress line of a run
type Interval struct {
	ID      int64
	RunID   int64
	TakenAt time.Time
	Total   int64
	Delta   int64
	Errors  int64
}

// IsRunning returns true if the run is currently in progress
func (r *Run) IsRunning() bool {
	return r.Status == StatusRunning
}

// Elapsed returns the wall time of a finished run, or 0 while it is running
func (r *Run) Elapsed() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

package stresstest

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// IntervalSink receives every progress line the reporter emits
type IntervalSink interface {
	SaveInterval(interval *Interval) error
}

// Reporter prints a progress line every interval while the run is active
type Reporter struct {
	out      io.Writer
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	// Set by the executor before Run
	runID   int64
	sink    IntervalSink
	metrics *Metrics

	prevTotal int64
}

// NewReporter creates a reporter writing to out
func NewReporter(out io.Writer, interval time.Duration, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		out:      out,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Line formats one progress line for s and advances the delta baseline.
// The first call compares against a total of 0.
func (r *Reporter) Line(s Snapshot, now time.Time) string {
	delta := s.Total - r.prevTotal
	r.prevTotal = s.Total

	return fmt.Sprintf("[%s] total=%d (+%d/%gs) errors=%d",
		now.Format("15:04:05"), s.Total, delta, r.interval.Seconds(), s.Errors)
}

// Run reports until the latch is set. The first line is printed one full
// interval after Run starts. Setting the latch during the wait ends Run
// without printing.
func (r *Reporter) Run(stop *Latch, counters *Counters) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop.Done():
			return
		case <-ticker.C:
		}

		if stop.IsSet() {
			return
		}

		r.report(counters.Snapshot())
	}
}

func (r *Reporter) report(s Snapshot) {
	prev := r.prevTotal
	line := r.Line(s, r.now())
	delta := s.Total - prev

	fmt.Fprintln(r.out, line)

	r.metrics.SetIntervalThroughput(delta)

	if r.sink == nil {
		return
	}

	err := r.sink.SaveInterval(&Interval{
		RunID:   r.runID,
		TakenAt: s.TakenAt,
		Total:   s.Total,
		Delta:   delta,
		Errors:  s.Errors,
	})
	if err != nil {
		// History is best effort, the run goes on
		r.logger.Warn("failed to save interval", zap.Int64("run_id", r.runID), zap.Error(err))
	}
}

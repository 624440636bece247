package stresstest

import (
	"net/http"
	"sync"
	"time"
)

// Outcome classifies a single request
type Outcome int

const (
	// Success is a response with status 200
	Success Outcome = iota
	// NonOK is a response with any other status
	NonOK
	// TransportFailure covers timeouts, connection and DNS errors and any
	// other error raised while issuing the request or reading the response
	TransportFailure
)

// String returns the label used in metrics and logs
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case NonOK:
		return "non_ok"
	case TransportFailure:
		return "transport"
	default:
		return "unknown"
	}
}

// IsError reports whether the outcome counts toward the error total
func (o Outcome) IsError() bool {
	return o != Success
}

// Classify maps the result of a GET to an Outcome. A non-nil err always wins
// over the status code.
func Classify(statusCode int, err error) Outcome {
	if err != nil {
		return TransportFailure
	}
	if statusCode == http.StatusOK {
		return Success
	}
	return NonOK
}

// Snapshot is an immutable copy of the counters taken at one instant
type Snapshot struct {
	Total             int64
	Errors            int64
	NonOK             int64
	TransportFailures int64
	TotalDuration     time.Duration
	MinDuration       time.Duration
	MaxDuration       time.Duration
	TakenAt           time.Time
}

// AvgDuration returns the mean request latency, or 0 if no results
func (s Snapshot) AvgDuration() time.Duration {
	if s.Total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Total)
}

// ErrorRate returns the error rate as a percentage
func (s Snapshot) ErrorRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Total) * 100
}

// Counters aggregates request outcomes from all workers. Every mutation and
// every read goes through the same mutex, so the total and error increments
// of one request are observed together and errors never exceed total.
type Counters struct {
	mu        sync.Mutex
	total     int64
	errors    int64
	nonOK     int64
	transport int64
	sumDur    time.Duration
	minDur    time.Duration
	maxDur    time.Duration
}

// NewCounters creates zeroed counters
func NewCounters() *Counters {
	return &Counters{minDur: -1}
}

// Record adds one finished request
func (c *Counters) Record(outcome Outcome, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	switch outcome {
	case NonOK:
		c.errors++
		c.nonOK++
	case TransportFailure:
		c.errors++
		c.transport++
	}

	c.sumDur += latency
	if c.minDur == -1 || latency < c.minDur {
		c.minDur = latency
	}
	if latency > c.maxDur {
		c.maxDur = latency
	}
}

// Snapshot returns a consistent copy of the counters
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	minDur := c.minDur
	if minDur == -1 {
		minDur = 0
	}

	return Snapshot{
		Total:             c.total,
		Errors:            c.errors,
		NonOK:             c.nonOK,
		TransportFailures: c.transport,
		TotalDuration:     c.sumDur,
		MinDuration:       minDur,
		MaxDuration:       c.maxDur,
		TakenAt:           time.Now(),
	}
}

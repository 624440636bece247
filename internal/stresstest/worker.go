package stresstest

import (
	"context"
	"io"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/studiowebux/loadgen/internal/target"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// HTTP client configuration timeouts
	TCPDialTimeout        = 5 * time.Second
	TCPKeepAliveInterval  = 30 * time.Second
	TLSHandshakeTimeout   = 5 * time.Second
	IdleConnTimeout       = 90 * time.Second
	ExpectContinueTimeout = 1 * time.Second
)

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// worker runs the request loop of one pool member
type worker struct {
	id        int
	client    Doer
	selector  *target.Selector
	counters  *Counters
	stop      *Latch
	stopCtx   context.Context // cancelled together with stop, only used for limiter waits
	limiter   *rate.Limiter
	metrics   *Metrics
	logger    *zap.Logger
	userAgent string
}

// run loops until the stop latch is set. Errors never leave the loop, they
// only show up in the counters.
func (w *worker) run() {
	w.metrics.WorkerStarted()
	defer w.metrics.WorkerStopped()

	for {
		if w.stop.IsSet() {
			return
		}

		if w.limiter != nil {
			if err := w.limiter.Wait(w.stopCtx); err != nil {
				continue
			}
		}

		url := w.selector.Pick()

		start := time.Now()
		outcome := w.get(url)
		latency := time.Since(start)

		w.counters.Record(outcome, latency)
		w.metrics.Observe(outcome, latency)
	}
}

// get issues one GET and classifies it. The request is deliberately not
// bound to the stop signal: an in-flight request finishes or times out on
// its own.
func (w *worker) get(url string) Outcome {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		w.logger.Debug("failed to create request", zap.Int("worker", w.id), zap.String("url", url), zap.Error(err))
		return TransportFailure
	}
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Debug("request failed", zap.Int("worker", w.id), zap.String("url", url), zap.Error(err))
		return TransportFailure
	}
	defer resp.Body.Close()

	// Drain so the connection goes back to the idle pool
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		w.logger.Debug("failed to read response body", zap.Int("worker", w.id), zap.String("url", url), zap.Error(err))
		return TransportFailure
	}

	outcome := Classify(resp.StatusCode, nil)
	if outcome == NonOK {
		w.logger.Debug("unexpected status", zap.Int("worker", w.id), zap.String("url", url), zap.Int("status", resp.StatusCode))
	}
	return outcome
}

// newLimiter returns nil when rps is 0
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	// Burst of one second worth of requests smooths pacing across workers
	burst := int(math.Ceil(rps))
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// buildWorkerHTTPClient creates the client owned by a single worker. Clients
// are not shared so workers never contend on one connection pool.
func buildWorkerHTTPClient(config *Config) *http.Client {
	idle := len(config.Targets)
	if idle < 2 {
		idle = 2
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        idle,
		MaxIdleConnsPerHost: idle,
		IdleConnTimeout:     IdleConnTimeout,
		ForceAttemptHTTP2:   true,

		DialContext: (&net.Dialer{
			Timeout:   TCPDialTimeout,
			KeepAlive: TCPKeepAliveInterval,
		}).DialContext,

		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.RequestTimeout,
		ExpectContinueTimeout: ExpectContinueTimeout,
	}

	// Timeout covers dialing, headers and reading the body
	return &http.Client{
		Timeout:   config.RequestTimeout,
		Transport: transport,
	}
}

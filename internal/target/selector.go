// Package target picks request targets for the load generator workers.
package target

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"sync"
)

// ErrNoTargets is returned when a selector is configured with an empty list
var ErrNoTargets = errors.New("at least one target URL is required")

// Selector returns targets chosen uniformly at random from a fixed list.
// The list is never mutated after New returns, so Pick is safe for
// concurrent use.
type Selector struct {
	targets []string

	// rng is only set when a deterministic source was injected
	rng   *rand.Rand
	rngMu sync.Mutex
}

// Option configures a Selector
type Option func(*Selector)

// WithRand makes the selector draw from r instead of the global source.
// Calls to Pick are serialized because *rand.Rand is not goroutine-safe.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) {
		s.rng = r
	}
}

// New creates a selector over the given URLs
func New(urls []string, opts ...Option) (*Selector, error) {
	if len(urls) == 0 {
		return nil, ErrNoTargets
	}

	targets := make([]string, len(urls))
	for i, raw := range urls {
		if err := validate(raw); err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		targets[i] = raw
	}

	s := &Selector{targets: targets}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Pick returns one target. Sampling is with replacement: the same target
// may be returned on consecutive calls.
func (s *Selector) Pick() string {
	if len(s.targets) == 1 {
		return s.targets[0]
	}

	if s.rng != nil {
		s.rngMu.Lock()
		i := s.rng.IntN(len(s.targets))
		s.rngMu.Unlock()
		return s.targets[i]
	}

	return s.targets[rand.IntN(len(s.targets))]
}

// Targets returns a copy of the configured list
func (s *Selector) Targets() []string {
	out := make([]string, len(s.targets))
	copy(out, s.targets)
	return out
}

// Len returns the number of configured targets
func (s *Selector) Len() int {
	return len(s.targets)
}

func validate(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return nil
}

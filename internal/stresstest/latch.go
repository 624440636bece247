package stresstest

import (
	"sync"
	"sync/atomic"
)

// Latch is a one-way stop flag. Once set it stays set.
type Latch struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewLatch creates an unset latch
func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Set sets the latch. Only the first call has an effect.
func (l *Latch) Set() {
	l.once.Do(func() {
		l.set.Store(true)
		close(l.done)
	})
}

// IsSet reports whether Set was called
func (l *Latch) IsSet() bool {
	return l.set.Load()
}

// Done returns a channel that is closed when the latch is set
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

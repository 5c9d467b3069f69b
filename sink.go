package x402

import (
	"sync"
	"sync/atomic"
)

// DefaultAsyncSinkSize is the queue length used when NewAsyncSink gets a
// non-positive size.
const DefaultAsyncSinkSize = 256

// MultiSink fans a transition out to every sink in order.
type MultiSink []TransitionSink

func (m MultiSink) OnTransition(t StateTransition) {
	for _, sink := range m {
		if sink != nil {
			sink.OnTransition(t)
		}
	}
}

// AsyncSink delivers transitions to another sink from a background goroutine.
// When the queue is full the transition is dropped and counted; the calling
// protocol step never waits on telemetry.
type AsyncSink struct {
	next  TransitionSink
	queue chan StateTransition
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// NewAsyncSink starts the delivery goroutine. Call Close to flush and stop it.
func NewAsyncSink(next TransitionSink, size int) *AsyncSink {
	if size <= 0 {
		size = DefaultAsyncSinkSize
	}
	s := &AsyncSink{
		next:  next,
		queue: make(chan StateTransition, size),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for t := range s.queue {
		s.next.OnTransition(t)
	}
}

func (s *AsyncSink) OnTransition(t StateTransition) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- t:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many transitions were discarded.
func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops accepting transitions and waits until queued ones are delivered.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
}

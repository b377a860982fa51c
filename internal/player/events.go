package player

import "sync"

// eventScheduler is the single goroutine that drains queued callback
// closures in submission order. Every notification the controller sends
// to a PlayerClient, and every completion callback a NativePlayer
// invokes, is marshaled through this scheduler rather than called
// directly from whichever goroutine produced it; this is the "single
// nominated event scheduler" spec.md §5 requires, and it is what lets
// PlayerClient implementations assume single-threaded delivery even
// though packets, native callbacks, and clock ticks all originate on
// different goroutines.
type eventScheduler struct {
	queue chan func()

	closeOnce sync.Once
	done      chan struct{}
}

// newEventScheduler starts a scheduler with the given queue depth and
// returns it. Call Close to stop draining and release the goroutine.
func newEventScheduler(depth int) *eventScheduler {
	if depth < 1 {
		depth = 1
	}
	s := &eventScheduler{
		queue: make(chan func(), depth),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *eventScheduler) run() {
	for fn := range s.queue {
		fn()
	}
	close(s.done)
}

// Submit enqueues fn to run on the scheduler goroutine. Submit never
// blocks the caller for more than the time it takes to enqueue: if the
// scheduler is closed, Submit silently discards fn.
func (s *eventScheduler) Submit(fn func()) {
	defer func() {
		// Submitting to a closed queue channel panics; treat that the
		// same as a discarded post-close submission.
		_ = recover()
	}()
	select {
	case s.queue <- fn:
	case <-s.done:
	}
}

// Close stops accepting new work and waits for the goroutine to drain
// anything already queued.
func (s *eventScheduler) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	<-s.done
}

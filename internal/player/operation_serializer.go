package player

import "context"

// operationSerializer guarantees that at most one suspending controller
// operation (Prepare/Seek/Reconfigure) is in flight against the native
// player at a time; a caller submitting the next one waits until the
// permit is free or its context is done. It is a single-permit semaphore
// built from a size-1 buffered channel, the idiomatic Go async mutex.
type operationSerializer struct {
	sem chan struct{}
}

// newOperationSerializer returns a ready-to-use serializer.
func newOperationSerializer() *operationSerializer {
	return &operationSerializer{sem: make(chan struct{}, 1)}
}

// acquire blocks until the permit is available or ctx is done. On success
// the caller owns the permit and must call release exactly once.
func (s *operationSerializer) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryAcquire attempts to take the permit without blocking, returning
// false if another operation currently holds it.
func (s *operationSerializer) tryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// release returns the permit. It must only be called by the goroutine
// that successfully called acquire or tryAcquire.
func (s *operationSerializer) release() {
	select {
	case <-s.sem:
	default:
		panic("player: operationSerializer.release called without a held permit")
	}
}

// run acquires the permit, invokes fn, and releases the permit once fn
// returns. If ctx is done while waiting to acquire, it returns a Cancelled
// error wrapping ctx's error.
func (s *operationSerializer) run(ctx context.Context, fn func() error) error {
	if err := s.acquire(ctx); err != nil {
		return Cancelled("operationSerializer.run", err)
	}
	defer s.release()
	return fn()
}

package player

import (
	"errors"
	"fmt"
)

// Kind classifies a player error so callers can branch on failure mode
// without string matching.
type Kind int

// Error kinds.
const (
	KindInvalidArgument Kind = iota
	KindInvalidState
	KindCancelled
	KindUnsupportedStream
	KindNativePlayerFailure
	KindStreamReconfigureRequired
	KindDisposed
)

// String returns the human-readable name of the error kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidState:
		return "invalid_state"
	case KindCancelled:
		return "cancelled"
	case KindUnsupportedStream:
		return "unsupported_stream"
	case KindNativePlayerFailure:
		return "native_player_failure"
	case KindStreamReconfigureRequired:
		return "stream_reconfigure_required"
	case KindDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the player package's single error type: every error returned
// from this package can be unwrapped to one of these, carrying the
// operation that failed, the kind of failure, and an optional wrapped
// cause.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("player: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("player: %s: %s", e.Op, e.Kind)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError constructs an *Error for op/kind, optionally wrapping cause.
func newError(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// InvalidArgument reports a caller-supplied argument that fails validation.
func InvalidArgument(op string, cause error) error {
	return newError(op, KindInvalidArgument, cause)
}

// InvalidState reports an operation attempted from a controller state that
// does not permit it (e.g. Play before Prepare completes).
func InvalidState(op string, cause error) error {
	return newError(op, KindInvalidState, cause)
}

// Cancelled reports an operation aborted because its context was
// cancelled or timed out, whether while waiting for the operation
// serializer, for pre-buffering or for native readiness.
func Cancelled(op string, cause error) error {
	return newError(op, KindCancelled, cause)
}

// UnsupportedStream reports a stream whose codec this module cannot
// demux (see internal/codec.IsDemuxable).
func UnsupportedStream(op string, cause error) error {
	return newError(op, KindUnsupportedStream, cause)
}

// NativePlayerFailure reports an error surfaced by the native player
// implementation.
func NativePlayerFailure(op string, cause error) error {
	return newError(op, KindNativePlayerFailure, cause)
}

// StreamReconfigureRequired reports that a stream's codec changed
// mid-playback in a way that requires renegotiating the native player's
// configuration before packets can resume flowing.
func StreamReconfigureRequired(op string, cause error) error {
	return newError(op, KindStreamReconfigureRequired, cause)
}

// Disposed reports an operation attempted after StreamController.Stop has
// disposed the controller.
func Disposed(op string) error {
	return newError(op, KindDisposed, nil)
}

// Is reports whether err is a player *Error of the given kind. It walks
// the error chain via errors.As so wrapped errors classify correctly.
func Is(err error, kind Kind) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == kind
}

// IsCancelled is a convenience wrapper for Is(err, KindCancelled).
func IsCancelled(err error) bool {
	return Is(err, KindCancelled)
}

// IsInvalidState is a convenience wrapper for Is(err, KindInvalidState).
func IsInvalidState(err error) bool {
	return Is(err, KindInvalidState)
}

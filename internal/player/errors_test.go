package player

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	cause := fmt.Errorf("boom")

	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"invalid_argument", InvalidArgument("op", cause), KindInvalidArgument},
		{"invalid_state", InvalidState("op", cause), KindInvalidState},
		{"cancelled", Cancelled("op", cause), KindCancelled},
		{"unsupported_stream", UnsupportedStream("op", cause), KindUnsupportedStream},
		{"native_player_failure", NativePlayerFailure("op", cause), KindNativePlayerFailure},
		{"stream_reconfigure_required", StreamReconfigureRequired("op", cause), KindStreamReconfigureRequired},
		{"disposed", Disposed("op"), KindDisposed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Is(tt.err, tt.kind))
			var pe *Error
			assert.True(t, errors.As(tt.err, &pe))
			assert.Equal(t, "op", pe.Op)
			assert.NotEmpty(t, pe.Error())
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := InvalidArgument("op", cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsCancelledConvenience(t *testing.T) {
	assert.True(t, IsCancelled(Cancelled("op", nil)))
	assert.False(t, IsCancelled(InvalidState("op", nil)))
	assert.False(t, IsCancelled(fmt.Errorf("plain error")))
}

func TestIsInvalidStateConvenience(t *testing.T) {
	assert.True(t, IsInvalidState(InvalidState("op", nil)))
	assert.False(t, IsInvalidState(Cancelled("op", nil)))
}

func TestDisposedHasNoWrappedCause(t *testing.T) {
	err := Disposed("op")
	var pe *Error
	assert.True(t, errors.As(err, &pe))
	assert.Nil(t, pe.Err)
	assert.Contains(t, pe.Error(), "disposed")
}

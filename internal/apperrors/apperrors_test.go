package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	t.Run("matches the wrapped kind", func(t *testing.T) {
		err := Validation("bad input", nil)
		assert.True(t, Is(err, KindValidation))
		assert.False(t, Is(err, KindTimeout))
	})

	t.Run("matches through a further wrap", func(t *testing.T) {
		err := fmt.Errorf("context: %w", StoreConflict("duplicate", nil))
		assert.True(t, Is(err, KindStoreConflict))
	})

	t.Run("does not match a plain error", func(t *testing.T) {
		assert.False(t, Is(errors.New("plain"), KindTransient))
	})
}

func TestRetriable(t *testing.T) {
	t.Run("timeout and transient are retriable", func(t *testing.T) {
		assert.True(t, Retriable(Timeout("slow", nil)))
		assert.True(t, Retriable(Transient("flaky", nil)))
	})

	t.Run("validation, invalid transition, generation invalid, and store conflict are not retriable", func(t *testing.T) {
		assert.False(t, Retriable(Validation("bad", nil)))
		assert.False(t, Retriable(InvalidTransition("bad state", nil)))
		assert.False(t, Retriable(GenerationInvalid("bad shape", nil)))
		assert.False(t, Retriable(StoreConflict("dup", nil)))
	})

	t.Run("a plain error is not retriable", func(t *testing.T) {
		assert.False(t, Retriable(errors.New("plain")))
	})
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Transient("call failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "root cause")
	assert.Contains(t, err.Error(), "call failed")
}

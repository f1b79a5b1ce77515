package errcode

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	assert.Equal(t, OK, Of(nil))
	assert.Equal(t, BusBusy, Of(BusBusy))
	assert.Equal(t, ArbLost, Of(&E{C: ArbLost, Op: "i2cm.SendStart"}))
	assert.Equal(t, Timeout, Of(fmt.Errorf("read shunt: %w", Wrap(Timeout, "i2cm.wait", context.DeadlineExceeded))))
	assert.Equal(t, Error, Of(errors.New("plain")))
}

func TestE_IsAndUnwrap(t *testing.T) {
	err := Wrap(Timeout, "i2cm.SendStop", context.DeadlineExceeded)

	require.True(t, errors.Is(err, Timeout))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.False(t, errors.Is(err, NAK))
	assert.Equal(t, "i2cm.SendStop: timeout: context deadline exceeded", err.Error())
}

func TestRetryable(t *testing.T) {
	for _, c := range []Code{BusBusy, ArbLost, StartGenAbort, NotReady, AddrNAK, NAK} {
		assert.Truef(t, Retryable(c), "%s should be retryable", c)
	}
	assert.False(t, Retryable(InvalidParams))
	assert.False(t, Retryable(Timeout))
	assert.False(t, Retryable(nil))
}

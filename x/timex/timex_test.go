package timex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	next := Backoff(time.Millisecond, 5*time.Millisecond)
	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, next())
	}
	assert.Equal(t, []time.Duration{1, 2, 4, 5, 5}, scale(got, time.Millisecond))

	assert.Equal(t, 100*time.Millisecond, Backoff(0, 0)())
}

func scale(ds []time.Duration, unit time.Duration) []time.Duration {
	out := make([]time.Duration, len(ds))
	for i, d := range ds {
		out[i] = d / unit
	}
	return out
}

func TestSleep(t *testing.T) {
	assert.True(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, Sleep(ctx, time.Hour))
}

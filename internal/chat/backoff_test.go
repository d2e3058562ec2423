package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, MaxAttempts: 6}

	tcases := []struct {
		failures int
		expected time.Duration
		ok       bool
	}{
		{failures: 0, expected: 100 * time.Millisecond, ok: true},
		{failures: 1, expected: 100 * time.Millisecond, ok: true},
		{failures: 2, expected: 200 * time.Millisecond, ok: true},
		{failures: 3, expected: 400 * time.Millisecond, ok: true},
		{failures: 4, expected: 800 * time.Millisecond, ok: true},
		{failures: 5, expected: time.Second, ok: true},
		{failures: 6, expected: time.Second, ok: true},
		{failures: 7, expected: 0, ok: false},
	}

	for _, tc := range tcases {
		d, ok := b.Delay(tc.failures)
		assert.Equal(t, tc.ok, ok, "unexpected ok for %d failures", tc.failures)
		assert.Equal(t, tc.expected, d, "unexpected delay for %d failures", tc.failures)
	}
}

func TestBackoff_DelayUnbounded(t *testing.T) {
	b := Backoff{Initial: time.Millisecond}

	d, ok := b.Delay(1000)
	assert.True(t, ok, "expected no attempt limit when MaxAttempts is zero")
	assert.Greater(t, d, time.Duration(0))
}

func Test_sleep(t *testing.T) {
	assert.True(t, sleep(context.Background(), time.Millisecond), "expected sleep to complete")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour), "expected cancelled sleep to return early")
}

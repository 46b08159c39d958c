package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DefaultConfig(t *testing.T) {
	config := DefaultBackoffConfig()

	assert.Equal(t, 3*time.Second, config.InitialDelay)
	assert.Equal(t, 30*time.Second, config.MaxDelay)
	assert.Equal(t, 1.5, config.Multiplier)
	assert.Equal(t, 5, config.MaxAttempts)
	assert.False(t, config.Jitter)
}

func TestBackoff_DefaultSchedule(t *testing.T) {
	backoff := NewBackoff(DefaultBackoffConfig())

	expected := []time.Duration{
		3 * time.Second,
		4500 * time.Millisecond,
		6750 * time.Millisecond,
		10125 * time.Millisecond,
		15187500 * time.Microsecond,
	}

	for i, want := range expected {
		got, ok := backoff.Delay(i + 1)
		assert.True(t, ok, "attempt %d should be within budget", i+1)
		assert.Equal(t, want, got, "attempt %d", i+1)
	}

	_, ok := backoff.Delay(6)
	assert.False(t, ok, "attempt 6 is past the budget")
	assert.Equal(t, expected, backoff.Schedule())
}

func TestBackoff_DelayIsPure(t *testing.T) {
	backoff := NewBackoff(DefaultBackoffConfig())

	first, _ := backoff.Delay(3)
	for i := 0; i < 10; i++ {
		again, _ := backoff.Delay(3)
		assert.Equal(t, first, again)
	}
}

func TestBackoff_CappedAtMaxDelay(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 10 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   4,
		MaxAttempts:  4,
	})

	d1, _ := backoff.Delay(1)
	d2, _ := backoff.Delay(2)
	d4, _ := backoff.Delay(4)

	assert.Equal(t, 10*time.Second, d1)
	assert.Equal(t, 30*time.Second, d2)
	assert.Equal(t, 30*time.Second, d4)
}

func TestBackoff_OutOfRangeAttempts(t *testing.T) {
	backoff := NewBackoff(DefaultBackoffConfig())

	tests := []struct {
		name    string
		attempt int
	}{
		{"zero", 0},
		{"negative", -1},
		{"past budget", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := backoff.Delay(tt.attempt)
			assert.False(t, ok)
			assert.Zero(t, d)
		})
	}
}

func TestBackoff_ZeroBudget(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{InitialDelay: time.Second, MaxAttempts: 0})

	_, ok := backoff.Delay(1)
	assert.False(t, ok)
	assert.Empty(t, backoff.Schedule())
}

func TestBackoff_FillsDefaults(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{MaxAttempts: 2})
	config := backoff.Config()

	assert.Equal(t, 3*time.Second, config.InitialDelay)
	assert.Equal(t, 30*time.Second, config.MaxDelay)
	assert.Equal(t, 1.5, config.Multiplier)
	assert.Equal(t, 2, backoff.MaxAttempts())
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2,
		MaxAttempts:  5,
		Jitter:       true,
	})

	for i := 0; i < 50; i++ {
		for attempt := 1; attempt <= 5; attempt++ {
			d, ok := backoff.Delay(attempt)
			assert.True(t, ok)
			assert.GreaterOrEqual(t, d, time.Second)
			assert.LessOrEqual(t, d, 4*time.Second)
		}
	}
}

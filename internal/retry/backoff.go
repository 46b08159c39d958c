package retry

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"chatline/internal/constants"
)

// BackoffConfig contains configuration for reconnection backoff
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"`
	Jitter       bool          `json:"jitter" yaml:"jitter"`
}

// DefaultBackoffConfig returns the reconnection schedule used by the chat client:
// 3s floor growing by 1.5x up to 30s, five attempts, no jitter.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: constants.DefaultReconnectFloorMs * time.Millisecond,
		MaxDelay:     constants.DefaultReconnectCeilingMs * time.Millisecond,
		Multiplier:   constants.DefaultReconnectFactor,
		MaxAttempts:  constants.DefaultReconnectMaxRetries,
		Jitter:       false,
	}
}

// Backoff computes reconnection delays. It holds no attempt state; callers own the counter.
type Backoff struct {
	config BackoffConfig
}

// NewBackoff creates a new exponential backoff instance, filling unset fields from the defaults
func NewBackoff(config BackoffConfig) *Backoff {
	def := DefaultBackoffConfig()
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.MaxDelay < config.InitialDelay {
		config.MaxDelay = config.InitialDelay
	}
	if config.Multiplier < 1 {
		config.Multiplier = def.Multiplier
	}
	if config.MaxAttempts < 0 {
		config.MaxAttempts = 0
	}
	return &Backoff{config: config}
}

// Config returns the effective configuration
func (b *Backoff) Config() BackoffConfig {
	return b.config
}

// MaxAttempts returns the retry budget
func (b *Backoff) MaxAttempts() int {
	return b.config.MaxAttempts
}

// Delay returns the wait before reconnection attempt n (1-based) and whether that attempt
// is within budget. Without jitter the result depends only on n.
func (b *Backoff) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > b.config.MaxAttempts {
		return 0, false
	}
	return b.calculateDelay(attempt), true
}

// calculateDelay computes the delay for the given attempt with exponential backoff and optional jitter
func (b *Backoff) calculateDelay(attempt int) time.Duration {
	delay := float64(b.config.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= b.config.Multiplier
		if delay >= float64(b.config.MaxDelay) {
			break
		}
	}

	if delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}

	// ±25% randomness
	if b.config.Jitter {
		jitter := delay * 0.25
		delay += (secureFloat64() - 0.5) * 2 * jitter

		if delay < float64(b.config.InitialDelay) {
			delay = float64(b.config.InitialDelay)
		}
		if delay > float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
		}
	}

	return time.Duration(delay)
}

// Schedule lists the delays for every attempt in budget
func (b *Backoff) Schedule() []time.Duration {
	out := make([]time.Duration, 0, b.config.MaxAttempts)
	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		d, _ := b.Delay(attempt)
		out = append(out, d)
	}
	return out
}

// secureFloat64 generates a cryptographically secure float64 between 0 and 1
func secureFloat64() float64 {
	max := big.NewInt(0).SetUint64(math.MaxUint64)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return float64(time.Now().UnixNano()%1000000) / 1000000.0
	}
	return float64(n.Uint64()) / float64(math.MaxUint64)
}

package offline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelaySequence(t *testing.T) {
	p := DefaultBackoffPolicy()

	expected := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}
	for attempts, want := range expected {
		assert.Equal(t, want, p.NextDelay(attempts), "attempts=%d", attempts)
	}

	// 第 5 次起封顶 30s
	for attempts := 5; attempts <= 100; attempts += 19 {
		assert.Equal(t, 30*time.Second, p.NextDelay(attempts), "attempts=%d", attempts)
	}
}

func TestNextDelayMonotonic(t *testing.T) {
	p := DefaultBackoffPolicy()

	prev := time.Duration(0)
	for attempts := 0; attempts < 50; attempts++ {
		delay := p.NextDelay(attempts)
		assert.GreaterOrEqual(t, delay, prev)
		assert.LessOrEqual(t, delay, time.Duration(p.CapMs)*time.Millisecond)
		prev = delay
	}
}

func TestNextDelayNegativeAttempts(t *testing.T) {
	p := DefaultBackoffPolicy()
	assert.Equal(t, time.Second, p.NextDelay(-3))
}

package gateway

import (
	"sync"
	"time"
)

// RateLimiter 控制上游请求速率，避免触发交易所限流。
type RateLimiter interface {
	Wait()
}

// TokenBucket 令牌桶限流器。
type TokenBucket struct {
	rate   float64
	burst  int
	tokens float64
	last   time.Time
	mu     sync.Mutex
}

func NewTokenBucket(rate float64, burst int) *TokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		last:   time.Now(),
	}
}

func (l *TokenBucket) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(l.last).Seconds()
	l.last = now
	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
	if l.tokens < 1 {
		sleep := time.Duration((1-l.tokens)/l.rate*float64(time.Second)) + time.Millisecond
		l.mu.Unlock()
		time.Sleep(sleep)
		l.mu.Lock()
		l.tokens = 0
		return
	}
	l.tokens -= 1
}

// noLimit 用于测试或无需限流的场景。
type noLimit struct{}

func (noLimit) Wait() {}

// NoLimit 不做任何限流。
var NoLimit RateLimiter = noLimit{}

package gateway

import (
	"testing"
	"time"
)

func TestTokenBucketAllowsBurst(t *testing.T) {
	l := NewTokenBucket(100, 5)
	start := time.Now()
	for i := 0; i < 5; i++ {
		l.Wait()
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("burst should not block, took %v", elapsed)
	}
}

func TestTokenBucketThrottles(t *testing.T) {
	l := NewTokenBucket(10, 1)
	l.Wait()
	start := time.Now()
	l.Wait()
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("second call should have been throttled, took %v", elapsed)
	}
}

func TestTokenBucketDefaults(t *testing.T) {
	l := NewTokenBucket(0, 0)
	if l.rate != 1 || l.burst != 1 {
		t.Fatalf("expected defaults, got rate=%f burst=%d", l.rate, l.burst)
	}
}

package market

import (
	"testing"
	"time"
)

func TestAggregatorClosesOnBoundary(t *testing.T) {
	agg := NewAggregator(time.Minute)
	ts := time.Unix(0, 0).UTC()
	if closed := agg.OnTrade(Trade{Price: 100, Qty: 1, Ts: ts}); closed != nil {
		t.Fatalf("should not close on first trade")
	}
	agg.OnTrade(Trade{Price: 102, Qty: 2, Ts: ts.Add(10 * time.Second)})
	agg.OnTrade(Trade{Price: 99, Qty: 1, Ts: ts.Add(20 * time.Second)})
	closed := agg.OnTrade(Trade{Price: 101, Qty: 1, Ts: ts.Add(70 * time.Second)})
	if closed == nil {
		t.Fatalf("expected bar close")
	}
	if closed.Open != 100 || closed.High != 102 || closed.Low != 99 || closed.Close != 99 {
		t.Fatalf("unexpected bar %+v", closed)
	}
	if closed.Volume != 4 {
		t.Fatalf("expected volume 4, got %f", closed.Volume)
	}
}

func TestIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"1":  time.Minute,
		"5":  5 * time.Minute,
		"60": time.Hour,
		"D":  24 * time.Hour,
		"W":  7 * 24 * time.Hour,
	}
	for interval, want := range cases {
		got, err := IntervalDuration(interval)
		if err != nil || got != want {
			t.Errorf("IntervalDuration(%q) = %v, %v; want %v", interval, got, err, want)
		}
	}
	for _, interval := range []string{"", "0", "-5", "M", "abc"} {
		if _, err := IntervalDuration(interval); err == nil {
			t.Errorf("IntervalDuration(%q) should fail", interval)
		}
	}
}

func TestAggregatorCurrentCopy(t *testing.T) {
	agg := NewAggregator(time.Minute)
	if agg.Current() != nil {
		t.Fatalf("expected nil before first trade")
	}
	ts := time.Unix(60, 0).UTC()
	agg.OnTrade(Trade{Price: 50, Qty: 1, Ts: ts})
	cur := agg.Current()
	if cur == nil || cur.Open != 50 {
		t.Fatalf("unexpected current bar %+v", cur)
	}
	cur.Open = 0 // mutating the copy must not touch internal state
	if again := agg.Current(); again.Open != 50 {
		t.Fatalf("internal bar was mutated: %+v", again)
	}
}

package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubProvider struct {
	candles []Candle
	err     error
	calls   int
}

func (p *stubProvider) Klines(_ context.Context, _, _ string, _ int) ([]Candle, error) {
	p.calls++
	return p.candles, p.err
}

type stubCache struct {
	data map[string][]Candle
}

func newStubCache() *stubCache {
	return &stubCache{data: make(map[string][]Candle)}
}

func (c *stubCache) Put(_ context.Context, symbol, interval string, candles []Candle) {
	c.data[Key(symbol, interval)] = candles
}

func (c *stubCache) Get(_ context.Context, symbol, interval string) ([]Candle, bool) {
	w, ok := c.data[Key(symbol, interval)]
	return w, ok
}

func TestServiceRefreshSanitizesAndCaches(t *testing.T) {
	raw := flatSeries(8, 100)
	raw[5].High = 10000
	raw[5].Low = 9900
	raw[5].Close = 9950
	cache := newStubCache()
	svc := NewService(&stubProvider{candles: raw}, cache, nil, 200)

	out, err := svc.Refresh(context.Background(), "BTCUSDT", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[5].High == 10000 {
		t.Fatalf("spike should have been corrected: %+v", out[5])
	}
	cached, ok := cache.Get(context.Background(), "BTCUSDT", "1")
	if !ok || len(cached) != len(raw) {
		t.Fatalf("sanitized window should be cached")
	}
	if st := svc.Staleness("BTCUSDT", "1"); st > time.Minute {
		t.Fatalf("staleness should be fresh after refresh, got %v", st)
	}
}

func TestServiceWindowPrefersCache(t *testing.T) {
	prov := &stubProvider{candles: flatSeries(5, 100)}
	cache := newStubCache()
	svc := NewService(prov, cache, nil, 200)

	if _, err := svc.Refresh(context.Background(), "ETHUSDT", "5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Window(context.Background(), "ETHUSDT", "5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prov.calls != 1 {
		t.Fatalf("cached window should not hit the provider again, calls=%d", prov.calls)
	}
}

func TestServiceRefreshEmptyProvider(t *testing.T) {
	svc := NewService(&stubProvider{}, nil, nil, 200)
	if _, err := svc.Refresh(context.Background(), "BTCUSDT", "1"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestServiceRefreshProviderError(t *testing.T) {
	boom := errors.New("upstream down")
	svc := NewService(&stubProvider{err: boom}, nil, nil, 200)
	if _, err := svc.Refresh(context.Background(), "BTCUSDT", "1"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestServiceOnBarAppendsAndPublishes(t *testing.T) {
	raw := flatSeries(6, 100)
	svc := NewService(&stubProvider{candles: raw}, nil, nil, 200)
	if _, err := svc.Refresh(context.Background(), "BTCUSDT", "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sub := svc.Subscribe()

	next := mkCandle(raw[5].Time.Add(time.Minute), 100, 100.5, 99.5, 100, 7)
	out, err := svc.OnBar(context.Background(), "BTCUSDT", "1", next)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 7 {
		t.Fatalf("expected 7 bars after append, got %d", len(out))
	}
	select {
	case u := <-sub:
		if len(u.Candles) != 7 {
			t.Fatalf("unexpected published window %+v", u)
		}
	default:
		t.Fatalf("expected a published update")
	}
}

func TestServiceOnBarReplacesSameOpenTime(t *testing.T) {
	raw := flatSeries(6, 100)
	svc := NewService(&stubProvider{candles: raw}, nil, nil, 200)
	if _, err := svc.Refresh(context.Background(), "BTCUSDT", "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	confirm := raw[5]
	confirm.Close = 100.25
	out, err := svc.OnBar(context.Background(), "BTCUSDT", "1", confirm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 6 {
		t.Fatalf("expected 6 bars after in-place confirm, got %d", len(out))
	}
	if out[5].Close != 100.25 {
		t.Fatalf("tail bar should be replaced, got %+v", out[5])
	}
}

func TestServiceOnBarTrimsToLimit(t *testing.T) {
	raw := flatSeries(4, 100)
	svc := NewService(&stubProvider{candles: raw}, nil, nil, 4)
	if _, err := svc.Refresh(context.Background(), "BTCUSDT", "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	next := mkCandle(raw[3].Time.Add(time.Minute), 100, 100.5, 99.5, 100, 1)
	out, err := svc.OnBar(context.Background(), "BTCUSDT", "1", next)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("window should stay at limit, got %d", len(out))
	}
	if !out[0].Time.Equal(raw[1].Time) {
		t.Fatalf("oldest bar should be dropped, head=%v", out[0].Time)
	}
}

func TestServiceOnTradeClosesBar(t *testing.T) {
	raw := flatSeries(6, 100)
	svc := NewService(&stubProvider{candles: raw}, nil, nil, 200)
	ctx := context.Background()
	if _, err := svc.Refresh(ctx, "BTCUSDT", "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	base := raw[5].Time.Add(time.Minute)
	out, err := svc.OnTrade(ctx, "BTCUSDT", "1", Trade{Price: 100.2, Qty: 1, Ts: base.Add(5 * time.Second)})
	if err != nil || out != nil {
		t.Fatalf("first trade should only open a bar, out=%v err=%v", out, err)
	}
	out, err = svc.OnTrade(ctx, "BTCUSDT", "1", Trade{Price: 100.4, Qty: 2, Ts: base.Add(30 * time.Second)})
	if err != nil || out != nil {
		t.Fatalf("same-period trade should not close the bar, out=%v err=%v", out, err)
	}

	// 跨过周期边界的成交闭合上一个 bar 并把它追加进窗口
	out, err = svc.OnTrade(ctx, "BTCUSDT", "1", Trade{Price: 100.1, Qty: 1, Ts: base.Add(time.Minute + time.Second)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 7 {
		t.Fatalf("closed bar should be appended, got %d bars", len(out))
	}
	closed := out[6]
	if !closed.Time.Equal(base) {
		t.Fatalf("unexpected bar open time %v", closed.Time)
	}
	if closed.Open != 100.2 || closed.High != 100.4 || closed.Low != 100.2 || closed.Close != 100.4 {
		t.Fatalf("unexpected aggregated bar %+v", closed)
	}
	if closed.Volume != 3 {
		t.Fatalf("volume should sum trade qty, got %v", closed.Volume)
	}
}

func TestServiceOnTradeRejectsUnboundedInterval(t *testing.T) {
	svc := NewService(&stubProvider{candles: flatSeries(4, 100)}, nil, nil, 200)
	if _, err := svc.OnTrade(context.Background(), "BTCUSDT", "M", Trade{Price: 1, Qty: 1, Ts: time.Now()}); err == nil {
		t.Fatalf("expected error for an interval without fixed length")
	}
}

// 周期刷新和实时推流在生产里并发命中同一个 key，尾 bar 的原地
// 确认不能写到正在清洗的窗口上。用 -race 跑才有意义。
func TestServiceConcurrentRefreshAndOnBar(t *testing.T) {
	raw := flatSeries(16, 100)
	svc := NewService(&stubProvider{candles: raw}, newStubCache(), nil, 200)
	ctx := context.Background()
	if _, err := svc.Refresh(ctx, "BTCUSDT", "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	confirm := raw[15]
	confirm.Close = 100.25

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := svc.Refresh(ctx, "BTCUSDT", "1"); err != nil {
				t.Errorf("refresh: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := svc.OnBar(ctx, "BTCUSDT", "1", confirm); err != nil {
				t.Errorf("on bar: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	out, err := svc.Window(ctx, "BTCUSDT", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 16 {
		t.Fatalf("window length drifted under contention, got %d", len(out))
	}
	if c := out[15].Close; c != raw[15].Close && c != confirm.Close {
		t.Fatalf("tail bar is torn: %+v", out[15])
	}
}

func TestServiceOnBarUnknownKeyIgnored(t *testing.T) {
	svc := NewService(&stubProvider{candles: flatSeries(4, 100)}, nil, nil, 10)
	out, err := svc.OnBar(context.Background(), "XRPUSDT", "1", mkCandle(time.Now(), 1, 1, 1, 1, 1))
	if err != nil || out != nil {
		t.Fatalf("bars for unknown keys should be ignored, out=%v err=%v", out, err)
	}
}

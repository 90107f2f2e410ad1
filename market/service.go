package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoData 上游对该 symbol/interval 没有返回任何 K 线。
var ErrNoData = errors.New("no candle data")

// Provider fetches raw candle windows from the upstream exchange,
// ascending by time.
type Provider interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// Cache stores sanitized windows keyed by symbol/interval.
type Cache interface {
	Put(ctx context.Context, symbol, interval string, candles []Candle)
	Get(ctx context.Context, symbol, interval string) ([]Candle, bool)
}

// Service 维护每个 symbol/interval 的原始窗口：Refresh 拉取并清洗
// 整个窗口，OnBar 把实时闭合的 bar 追加进窗口后整体重洗。输出永远
// 是完整窗口，不做增量修正。
type Service struct {
	provider Provider
	cache    Cache
	pub      *Publisher
	limit    int

	// Events, if set, receives one event per sanitized window with the
	// number of corrected bars. Wired to metrics by the caller.
	Events func(event string, fields map[string]interface{})

	mu   sync.RWMutex
	raw  map[string][]Candle
	last map[string]time.Time
	aggs map[string]*Aggregator
}

func NewService(provider Provider, cache Cache, pub *Publisher, limit int) *Service {
	if pub == nil {
		pub = NewPublisher()
	}
	if limit <= 0 {
		limit = 200
	}
	return &Service{
		provider: provider,
		cache:    cache,
		pub:      pub,
		limit:    limit,
		raw:      make(map[string][]Candle),
		last:     make(map[string]time.Time),
		aggs:     make(map[string]*Aggregator),
	}
}

// Window 返回缓存的清洗窗口，缓存未命中时回源刷新。
func (s *Service) Window(ctx context.Context, symbol, interval string) ([]Candle, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, symbol, interval); ok {
			return cached, nil
		}
	}
	return s.Refresh(ctx, symbol, interval)
}

// Refresh fetches the raw window from the provider, sanitizes it, caches
// the result and broadcasts it to subscribers. An empty provider response
// is reported as ErrNoData before the sanitizer ever runs.
func (s *Service) Refresh(ctx context.Context, symbol, interval string) ([]Candle, error) {
	raw, err := s.provider.Klines(ctx, symbol, interval, s.limit)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, interval, err)
	}
	if len(raw) == 0 {
		return nil, ErrNoData
	}

	// 放进窗口的是副本，OnBar 原地覆盖尾 bar 时不能碰到正在
	// 清洗的切片。
	window := make([]Candle, len(raw))
	copy(window, raw)
	s.mu.Lock()
	s.raw[Key(symbol, interval)] = window
	s.mu.Unlock()

	return s.publish(ctx, symbol, interval, raw)
}

// OnBar 追加一根实时闭合的 bar。与窗口尾部同一开盘时间的 bar 视为
// 对尾部的最终确认并覆盖它。没有经过 Refresh 的 key 直接忽略。
func (s *Service) OnBar(ctx context.Context, symbol, interval string, bar Candle) ([]Candle, error) {
	key := Key(symbol, interval)

	s.mu.Lock()
	window, ok := s.raw[key]
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	n := len(window)
	if n > 0 && window[n-1].Time.Equal(bar.Time) {
		window[n-1] = bar
	} else {
		window = append(window, bar)
	}
	if len(window) > s.limit {
		window = window[len(window)-s.limit:]
	}
	s.raw[key] = window
	snapshot := make([]Candle, len(window))
	copy(snapshot, window)
	s.mu.Unlock()

	return s.publish(ctx, symbol, interval, snapshot)
}

// OnTrade 把成交聚合成 interval 周期的 bar；跨过周期边界闭合的 bar
// 走 OnBar 流程，未闭合时返回 nil。
func (s *Service) OnTrade(ctx context.Context, symbol, interval string, tr Trade) ([]Candle, error) {
	d, err := IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	key := Key(symbol, interval)
	s.mu.Lock()
	agg, ok := s.aggs[key]
	if !ok {
		agg = NewAggregator(d)
		s.aggs[key] = agg
	}
	s.mu.Unlock()

	closed := agg.OnTrade(tr)
	if closed == nil {
		return nil, nil
	}
	return s.OnBar(ctx, symbol, interval, *closed)
}

func (s *Service) publish(ctx context.Context, symbol, interval string, raw []Candle) ([]Candle, error) {
	clean, err := Sanitize(raw)
	if err != nil {
		return nil, err
	}
	if s.Events != nil {
		corrected := 0
		for i := range clean {
			if clean[i] != raw[i] {
				corrected++
			}
		}
		s.Events("window_sanitized", map[string]interface{}{
			"symbol":    symbol,
			"interval":  interval,
			"bars":      len(clean),
			"corrected": corrected,
		})
	}
	if s.cache != nil {
		s.cache.Put(ctx, symbol, interval, clean)
	}
	s.mu.Lock()
	s.last[Key(symbol, interval)] = time.Now()
	s.mu.Unlock()
	s.pub.Publish(Update{Symbol: symbol, Interval: interval, Candles: clean})
	return clean, nil
}

// Subscribe 返回清洗窗口更新通道。
func (s *Service) Subscribe() <-chan Update {
	return s.pub.Subscribe()
}

// Staleness 返回距离上次成功刷新过去的时间；无数据返回正无穷大的近似。
func (s *Service) Staleness(symbol, interval string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.last[Key(symbol, interval)]
	if !ok {
		return time.Hour * 24 * 365
	}
	return time.Since(ts)
}

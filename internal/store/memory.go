// Package store caches sanitized candle windows per symbol/interval.
// Entries are full-window snapshots with a TTL; there is no partial
// invalidation because the sanitizer always reruns over whole windows.
package store

import (
	"context"
	"sync"
	"time"

	"candle-gateway-go/market"
)

// EventSink 接收缓存命中/落盘事件，供指标采集使用。
type EventSink func(event string, fields map[string]interface{})

type entry struct {
	candles []market.Candle
	savedAt time.Time
}

// Memory is an in-process market.Cache with TTL eviction on read.
type Memory struct {
	ttl   time.Duration
	clock Clock
	sink  EventSink

	mu      sync.RWMutex
	entries map[string]entry
}

func NewMemory(ttl time.Duration, clock Clock, sink EventSink) *Memory {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Memory{
		ttl:     ttl,
		clock:   clock,
		sink:    sink,
		entries: make(map[string]entry),
	}
}

func (m *Memory) Put(_ context.Context, symbol, interval string, candles []market.Candle) {
	snapshot := make([]market.Candle, len(candles))
	copy(snapshot, candles)
	m.mu.Lock()
	m.entries[market.Key(symbol, interval)] = entry{candles: snapshot, savedAt: m.clock.Now()}
	m.mu.Unlock()
	m.emit("cache_put", symbol, interval)
}

func (m *Memory) Get(_ context.Context, symbol, interval string) ([]market.Candle, bool) {
	key := market.Key(symbol, interval)
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		m.emit("cache_miss", symbol, interval)
		return nil, false
	}
	if m.clock.Now().Sub(e.savedAt) > m.ttl {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		m.emit("cache_expired", symbol, interval)
		return nil, false
	}
	m.emit("cache_hit", symbol, interval)
	out := make([]market.Candle, len(e.candles))
	copy(out, e.candles)
	return out, true
}

func (m *Memory) emit(event, symbol, interval string) {
	if m.sink == nil {
		return
	}
	m.sink(event, map[string]interface{}{"symbol": symbol, "interval": interval})
}

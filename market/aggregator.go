package market

import (
	"sync"
	"time"
)

// Aggregator 从成交流生成固定周期的 OHLCV bar，供只推送成交的
// 上游数据源使用。
type Aggregator struct {
	Interval time.Duration
	mu       sync.Mutex
	current  *Candle
}

func NewAggregator(interval time.Duration) *Aggregator {
	return &Aggregator{Interval: interval}
}

// OnTrade 更新当前 bar；跨过周期边界时返回闭合的 bar，否则返回 nil。
func (a *Aggregator) OnTrade(tr Trade) *Candle {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil || tr.Ts.Sub(a.current.Time) >= a.Interval {
		closed := a.current
		a.current = &Candle{
			Time:   tr.Ts.Truncate(a.Interval),
			Open:   tr.Price,
			High:   tr.Price,
			Low:    tr.Price,
			Close:  tr.Price,
			Volume: tr.Qty,
		}
		return closed
	}

	if tr.Price > a.current.High {
		a.current.High = tr.Price
	}
	if tr.Price < a.current.Low {
		a.current.Low = tr.Price
	}
	a.current.Close = tr.Price
	a.current.Volume += tr.Qty
	return nil
}

// Current 返回进行中的 bar 的副本；尚无成交时返回 nil。
func (a *Aggregator) Current() *Candle {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	c := *a.current
	return &c
}

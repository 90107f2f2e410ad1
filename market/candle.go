package market

import (
	"fmt"
	"strconv"
	"time"
)

// Candle represents one OHLCV bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// TypicalPrice 返回 (high+low+close)/3。
func TypicalPrice(c Candle) float64 {
	return (c.High + c.Low + c.Close) / 3
}

// Key identifies one cached candle window.
func Key(symbol, interval string) string {
	return symbol + ":" + interval
}

// IntervalDuration 把 bybit 风格的 interval 串转成固定周期长度。
// 月线没有固定长度，不支持。
func IntervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "D":
		return 24 * time.Hour, nil
	case "W":
		return 7 * 24 * time.Hour, nil
	}
	minutes, err := strconv.Atoi(interval)
	if err != nil || minutes <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	return time.Duration(minutes) * time.Minute, nil
}

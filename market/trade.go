package market

import "time"

// Trade 归一化后的成交 tick，Aggregator 的输入。
type Trade struct {
	Price float64
	Qty   float64
	Ts    time.Time
}

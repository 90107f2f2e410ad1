package market

import (
	"errors"
	"sort"
)

// ErrEmptySeries 输入序列为空；上游应先处理"无数据"。
var ErrEmptySeries = errors.New("empty candle series")

const (
	// outlierMultiplier is the band width in scaled MAD units.
	outlierMultiplier = 5
	// madScale makes the MAD consistent with the standard deviation
	// under a normal distribution.
	madScale = 1.4826
)

// lowMedian returns the element at index floor(n/2) of the ascending sort.
// For even n this is the element just above the midpoint, never an average
// of the two central values, so repeated runs stay bit-identical.
func lowMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

// Sanitize 清洗一段按时间升序排列的 K 线：以 typical price 的
// median/MAD 估计稳健价格带，越界的 bar 用最近一根正常 bar 的
// OHLC 替换，时间与成交量保留原值。
//
// The thresholds are computed once over the whole window and held fixed
// during the scan. A flagged candle never becomes the substitution source
// for later candles. If the window opens with outliers before any candle
// has been accepted, those pass through unmodified.
//
// The input is not mutated; the returned slice has the same length and
// order as the input.
func Sanitize(candles []Candle) ([]Candle, error) {
	if len(candles) == 0 {
		return nil, ErrEmptySeries
	}

	typical := make([]float64, len(candles))
	for i, c := range candles {
		typical[i] = TypicalPrice(c)
	}
	median := lowMedian(typical)

	deviations := make([]float64, len(typical))
	for i, t := range typical {
		d := t - median
		if d < 0 {
			d = -d
		}
		deviations[i] = d
	}
	mad := lowMedian(deviations)

	upper := median + outlierMultiplier*madScale*mad
	lower := median - outlierMultiplier*madScale*mad

	out := make([]Candle, len(candles))
	var lastAccepted *Candle
	for i, c := range candles {
		flagged := c.High > upper || c.High < lower || c.Low > upper || c.Low < lower
		if flagged && lastAccepted != nil {
			out[i] = Candle{
				Time:   c.Time,
				Open:   lastAccepted.Open,
				High:   lastAccepted.High,
				Low:    lastAccepted.Low,
				Close:  lastAccepted.Close,
				Volume: c.Volume,
			}
			continue
		}
		out[i] = c
		if !flagged {
			lastAccepted = &out[i]
		}
	}
	return out, nil
}

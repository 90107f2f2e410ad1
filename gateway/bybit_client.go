// Package gateway talks to the upstream exchange. REST calls go through
// the official v5 SDK behind a token-bucket limiter; the public kline
// stream is handled separately in stream.go.
package gateway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hirokisan/bybit/v2"

	"candle-gateway-go/market"
	"candle-gateway-go/metrics"
)

// BybitClient 封装 bybit v5 REST；K 线取数窗口、行情/余额/下单透传。
type BybitClient struct {
	client   *bybit.Client
	category bybit.CategoryV5
	limiter  RateLimiter
}

// Config 上游连接配置。
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Category  string
}

func NewBybitClient(cfg Config, limiter RateLimiter) *BybitClient {
	client := bybit.NewClient()
	if cfg.BaseURL != "" {
		client = client.WithBaseURL(cfg.BaseURL)
	}
	if cfg.APIKey != "" {
		client = client.WithAuth(cfg.APIKey, cfg.APISecret)
	}
	category := bybit.CategoryV5(cfg.Category)
	if category == "" {
		category = bybit.CategoryV5Linear
	}
	if limiter == nil {
		limiter = NoLimit
	}
	return &BybitClient{client: client, category: category, limiter: limiter}
}

// Klines 拉取最近 limit 根 K 线，按时间升序返回。
func (c *BybitClient) Klines(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.limiter.Wait()

	start := time.Now()
	resp, err := c.client.V5().Market().GetKline(bybit.V5GetKlineParam{
		Category: c.category,
		Symbol:   bybit.SymbolV5(symbol),
		Interval: bybit.Interval(interval),
		Limit:    &limit,
	})
	metrics.ObserveUpstream("kline", start, err)
	if err != nil {
		return nil, fmt.Errorf("bybit get kline: %w", err)
	}

	list := resp.Result.List
	candles := make([]market.Candle, 0, len(list))
	// bybit 返回按时间倒序，这里翻转为升序
	for i := len(list) - 1; i >= 0; i-- {
		candle, err := toCandle(list[i].StartTime, list[i].Open, list[i].High, list[i].Low, list[i].Close, list[i].Volume)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// LastPrice 返回最近一根 1 分钟 K 线的收盘价。
func (c *BybitClient) LastPrice(ctx context.Context, symbol string) (float64, error) {
	candles, err := c.Klines(ctx, symbol, "1", 1)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, market.ErrNoData
	}
	return candles[len(candles)-1].Close, nil
}

// WalletBalance 透传统一账户余额查询结果。
func (c *BybitClient) WalletBalance(ctx context.Context) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.limiter.Wait()
	start := time.Now()
	resp, err := c.client.V5().Account().GetWalletBalance(bybit.AccountType("UNIFIED"), nil)
	metrics.ObserveUpstream("wallet_balance", start, err)
	if err != nil {
		return nil, fmt.Errorf("bybit wallet balance: %w", err)
	}
	return resp.Result, nil
}

// CreateOrder 透传下单请求；不做任何本地校验。
func (c *BybitClient) CreateOrder(ctx context.Context, param bybit.V5CreateOrderParam) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.limiter.Wait()
	if param.Category == "" {
		param.Category = c.category
	}
	start := time.Now()
	resp, err := c.client.V5().Order().CreateOrder(param)
	metrics.ObserveUpstream("create_order", start, err)
	if err != nil {
		return nil, fmt.Errorf("bybit create order: %w", err)
	}
	return resp.Result, nil
}

func toCandle(startMs, open, high, low, closePrice, volume string) (market.Candle, error) {
	ms, err := strconv.ParseInt(startMs, 10, 64)
	if err != nil {
		return market.Candle{}, fmt.Errorf("parse kline start time %q: %w", startMs, err)
	}
	fields := [5]string{open, high, low, closePrice, volume}
	var parsed [5]float64
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("parse kline field %q: %w", s, err)
		}
		parsed[i] = v
	}
	return market.Candle{
		Time:   time.UnixMilli(ms).UTC(),
		Open:   parsed[0],
		High:   parsed[1],
		Low:    parsed[2],
		Close:  parsed[3],
		Volume: parsed[4],
	}, nil
}

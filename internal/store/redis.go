package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"candle-gateway-go/market"
)

const redisPrefix = "candlegw:"

// Redis is a market.Cache backed by a shared Redis instance so several
// gateway replicas can serve the same sanitized windows. Windows are
// stored as JSON with the TTL enforced by Redis expiry.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	sink   EventSink
}

func NewRedis(addr, password string, db int, ttl time.Duration, sink EventSink) *Redis {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl:  ttl,
		sink: sink,
	}
}

// Ping 校验连接可用，启动时调用。
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Put(ctx context.Context, symbol, interval string, candles []market.Candle) {
	data, err := json.Marshal(candles)
	if err != nil {
		r.emit("cache_encode_error", symbol, interval, err)
		return
	}
	if err := r.client.Set(ctx, redisPrefix+market.Key(symbol, interval), data, r.ttl).Err(); err != nil {
		r.emit("cache_put_error", symbol, interval, err)
		return
	}
	r.emit("cache_put", symbol, interval, nil)
}

func (r *Redis) Get(ctx context.Context, symbol, interval string) ([]market.Candle, bool) {
	data, err := r.client.Get(ctx, redisPrefix+market.Key(symbol, interval)).Bytes()
	if err == redis.Nil {
		r.emit("cache_miss", symbol, interval, nil)
		return nil, false
	}
	if err != nil {
		r.emit("cache_get_error", symbol, interval, err)
		return nil, false
	}
	var candles []market.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		r.emit("cache_decode_error", symbol, interval, err)
		return nil, false
	}
	r.emit("cache_hit", symbol, interval, nil)
	return candles, true
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) emit(event, symbol, interval string, err error) {
	if r.sink == nil {
		return
	}
	fields := map[string]interface{}{"symbol": symbol, "interval": interval}
	if err != nil {
		fields["error"] = err.Error()
	}
	r.sink(event, fields)
}

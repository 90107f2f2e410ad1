package config

import (
	"errors"
	"fmt"

	"candle-gateway-go/market"
)

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		if cfg.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	if cfg.Window.Limit <= 0 {
		return errors.New("window.limit must be > 0")
	}
	if cfg.Window.RefreshSeconds <= 0 {
		return errors.New("window.refreshSeconds must be > 0")
	}
	for i, s := range cfg.Streams {
		if s.Symbol == "" || s.Interval == "" {
			return fmt.Errorf("streams[%d]: symbol and interval are required", i)
		}
		if s.Trades {
			if _, err := market.IntervalDuration(s.Interval); err != nil {
				return fmt.Errorf("streams[%d]: trades aggregation needs a fixed-length interval: %w", i, err)
			}
		}
	}
	return nil
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"candle-gateway-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Window   WindowConfig   `yaml:"window"`
	Streams  []StreamConfig `yaml:"streams"`
	Log      logger.Config  `yaml:"log"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	StaticDir   string `yaml:"staticDir"`
	MetricsAddr string `yaml:"metricsAddr"`
}

type UpstreamConfig struct {
	BaseURL   string  `yaml:"baseURL"`
	WSURL     string  `yaml:"wsURL"`
	APIKey    string  `yaml:"apiKey"`
	APISecret string  `yaml:"apiSecret"`
	Category  string  `yaml:"category"`
	RestRate  float64 `yaml:"restRate"`
	RestBurst int     `yaml:"restBurst"`
}

type CacheConfig struct {
	Backend    string      `yaml:"backend"` // memory 或 redis
	TTLSeconds int         `yaml:"ttlSeconds"`
	Redis      RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WindowConfig struct {
	Limit          int `yaml:"limit"`          // 每个窗口的 bar 数
	RefreshSeconds int `yaml:"refreshSeconds"` // 定时全量刷新周期
}

// StreamConfig 订阅上游实时流的 symbol/interval。
// trades 打开后同时订阅成交流，本地聚合成同周期的 bar。
type StreamConfig struct {
	Symbol   string `yaml:"symbol"`
	Interval string `yaml:"interval"`
	Trades   bool   `yaml:"trades"`
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("CG_UPSTREAM_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("CG_UPSTREAM_API_SECRET"); v != "" {
		cfg.Upstream.APISecret = v
	}
	if v := os.Getenv("CG_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Upstream.Category == "" {
		cfg.Upstream.Category = "linear"
	}
	if cfg.Upstream.RestRate <= 0 {
		cfg.Upstream.RestRate = 5
	}
	if cfg.Upstream.RestBurst <= 0 {
		cfg.Upstream.RestBurst = 10
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 60
	}
	if cfg.Window.Limit <= 0 {
		cfg.Window.Limit = 200
	}
	if cfg.Window.RefreshSeconds <= 0 {
		cfg.Window.RefreshSeconds = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log = logger.DefaultConfig()
	}
}

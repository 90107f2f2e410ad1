package container

import (
	"context"
	"fmt"
	"strings"
	"time"

	"candle-gateway-go/config"
	"candle-gateway-go/gateway"
	"candle-gateway-go/infrastructure/alert"
	"candle-gateway-go/infrastructure/logger"
	"candle-gateway-go/internal/store"
	"candle-gateway-go/market"
	"candle-gateway-go/metrics"
	"candle-gateway-go/monitor/logschema"
	"candle-gateway-go/server"
)

// Container 依赖注入容器，负责组件构建与生命周期。
type Container struct {
	cfg config.AppConfig

	logger *logger.Logger
	alerts *alert.Manager
	events func(event string, fields map[string]interface{})

	client *gateway.BybitClient
	cache  market.Cache
	svc    *market.Service
	srv    *server.Server

	lifecycle *LifecycleManager
}

// New 加载配置并创建容器，组件在 Build 中构建。
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	return &Container{
		cfg:       cfg,
		lifecycle: NewLifecycleManager(),
	}, nil
}

// OverrideServerAddrs 在 Build 之前用命令行参数覆盖监听地址。
func (c *Container) OverrideServerAddrs(addr, metricsAddr string) {
	if addr != "" {
		c.cfg.Server.Addr = addr
	}
	if metricsAddr != "" {
		c.cfg.Server.MetricsAddr = metricsAddr
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	c.buildGateway()

	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Logger.Info("container built")
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.alerts = alert.NewManager(
		[]alert.Channel{alert.NewLogChannel("gateway", nil)},
		time.Minute,
	)

	zlog := c.logger.WithFields(map[string]interface{}{"component": "gateway"})
	c.events = func(event string, fields map[string]interface{}) {
		if fields == nil {
			fields = make(map[string]interface{})
		}
		if err := logschema.Validate(event, fields); err != nil {
			fields["_schema_error"] = err.Error()
		}
		if strings.HasPrefix(event, "cache_") {
			metrics.CacheEvents.WithLabelValues(event).Inc()
		}
		symbol, _ := fields["symbol"].(string)
		interval, _ := fields["interval"].(string)
		if event == "window_sanitized" {
			bars, _ := fields["bars"].(int)
			corrected, _ := fields["corrected"].(int)
			zlog.LogSanitize(symbol, interval, bars, corrected)
			return
		}
		zlog.LogFetch(event, symbol, interval, fields)
	}

	return nil
}

func (c *Container) buildGateway() {
	c.client = gateway.NewBybitClient(gateway.Config{
		BaseURL:   c.cfg.Upstream.BaseURL,
		APIKey:    c.cfg.Upstream.APIKey,
		APISecret: c.cfg.Upstream.APISecret,
		Category:  c.cfg.Upstream.Category,
	}, gateway.NewTokenBucket(c.cfg.Upstream.RestRate, c.cfg.Upstream.RestBurst))
}

func (c *Container) buildCoreServices() error {
	ttl := time.Duration(c.cfg.Cache.TTLSeconds) * time.Second
	switch c.cfg.Cache.Backend {
	case "redis":
		r := store.NewRedis(c.cfg.Cache.Redis.Addr, c.cfg.Cache.Redis.Password, c.cfg.Cache.Redis.DB, ttl, store.EventSink(c.events))
		c.cache = r
		c.lifecycle.Register(&cacheComponent{
			name:  "redis_cache",
			ping:  r.Ping,
			close: r.Close,
		})
	case "memory":
		c.cache = store.NewMemory(ttl, store.SystemClock, store.EventSink(c.events))
	default:
		return fmt.Errorf("unknown cache backend %q", c.cfg.Cache.Backend)
	}

	c.svc = market.NewService(c.client, c.cache, market.NewPublisher(), c.cfg.Window.Limit)
	events := c.events
	c.svc.Events = func(event string, fields map[string]interface{}) {
		events(event, fields)
		if event != "window_sanitized" {
			return
		}
		symbol, _ := fields["symbol"].(string)
		interval, _ := fields["interval"].(string)
		corrected, _ := fields["corrected"].(int)
		metrics.ObserveSanitized(symbol, interval, corrected)
	}

	c.srv = server.New(c.svc, c.client, c.logger, c.cfg.Server.StaticDir)
	return nil
}

func (c *Container) registerLifecycleComponents() {
	c.lifecycle.Register(&httpServerComponent{
		name:    "api_server",
		handler: c.srv.Routes(),
		addr:    c.cfg.Server.Addr,
		logger:  c.logger,
	})
	if c.cfg.Server.MetricsAddr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: metrics.Handler(),
			addr:    c.cfg.Server.MetricsAddr,
			logger:  c.logger,
		})
	}
}

func (c *Container) Start(ctx context.Context) error {
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	c.logger.Logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

func (c *Container) Config() config.AppConfig { return c.cfg }

func (c *Container) Logger() *logger.Logger { return c.logger }

func (c *Container) Alerts() *alert.Manager { return c.alerts }

// Events 返回统一的事件回调，经过 schema 校验并接入指标。
func (c *Container) Events() func(event string, fields map[string]interface{}) {
	return c.events
}

func (c *Container) Client() *gateway.BybitClient { return c.client }

func (c *Container) Service() *market.Service { return c.svc }

func (c *Container) Server() *server.Server { return c.srv }

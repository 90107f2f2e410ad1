package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"candle-gateway-go/config"
	"candle-gateway-go/gateway"
	"candle-gateway-go/infrastructure/alert"
	internalconfig "candle-gateway-go/internal/config"
	"candle-gateway-go/internal/container"
	"candle-gateway-go/market"
	"candle-gateway-go/metrics"

	"github.com/joho/godotenv"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	addr := flag.String("addr", "", "HTTP 监听地址，覆盖配置文件")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，覆盖配置文件")
	flag.Parse()

	// .env 可选，方便本地开发注入 CG_ 前缀的密钥。
	_ = godotenv.Load()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	c.OverrideServerAddrs(*addr, *metricsAddr)
	if err := c.Build(); err != nil {
		log.Fatalf("构建组件失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	defer c.Stop()

	cfg := c.Config()
	svc := c.Service()
	events := c.Events()
	alerts := c.Alerts()
	alerts.AddChannel(alert.NewZapChannel("zap", c.Logger()))

	go c.Server().Hub().Run(ctx)

	// 启动时对每个配置的流做一次全量拉取，缓存预热。
	for _, s := range cfg.Streams {
		if _, err := svc.Refresh(ctx, s.Symbol, s.Interval); err != nil {
			events("fetch_error", map[string]interface{}{
				"symbol": s.Symbol, "interval": s.Interval, "error": err.Error(),
			})
			alerts.Warn("initial refresh failed", map[string]interface{}{
				"symbol": s.Symbol, "interval": s.Interval,
			})
		}
	}

	refreshCh := make(chan time.Duration, 1)
	go refreshLoop(ctx, svc, cfg.Streams, time.Duration(cfg.Window.RefreshSeconds)*time.Second, refreshCh, events)

	if len(cfg.Streams) > 0 {
		go streamLoop(ctx, cfg.Upstream.WSURL, cfg.Streams, svc, events, alerts)
	}

	reloader := startHotReload(ctx, *cfgPath, refreshCh, events)
	if reloader != nil {
		defer reloader.Stop()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	cancel()
	events("gateway_exit", nil)
}

// refreshLoop 定期对所有配置的流做全量拉取；收到新的间隔时重置 ticker。
func refreshLoop(ctx context.Context, svc *market.Service, streams []config.StreamConfig, interval time.Duration, updates <-chan time.Duration, events func(string, map[string]interface{})) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-updates:
			if d > 0 && d != interval {
				interval = d
				ticker.Reset(interval)
				events("refresh_interval_changed", map[string]interface{}{"seconds": interval.Seconds()})
			}
		case <-ticker.C:
			for _, s := range streams {
				if _, err := svc.Refresh(ctx, s.Symbol, s.Interval); err != nil {
					events("fetch_error", map[string]interface{}{
						"symbol": s.Symbol, "interval": s.Interval, "error": err.Error(),
					})
				}
			}
		}
	}
}

const (
	healthyConnAge = time.Minute
	maxBackoff     = 30 * time.Second
)

// reconnectDelay 返回本次重连前的等待时间和下一次掉线用的退避值。
// 连接存活超过 healthyConnAge 视为已恢复，退避从头开始。
func reconnectDelay(backoff, connectedFor time.Duration) (wait, next time.Duration) {
	if connectedFor >= healthyConnAge {
		backoff = time.Second
	}
	next = backoff * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	return backoff, next
}

// streamLoop 维持上游 kline 推流连接，断开后指数退避重连。
func streamLoop(ctx context.Context, wsURL string, streams []config.StreamConfig, svc *market.Service, events func(string, map[string]interface{}), alerts *alert.Manager) {
	backoff := time.Second
	for {
		stream := gateway.NewKlineStream()
		if wsURL != "" {
			stream.Endpoint = wsURL
		}
		subscribeStreams(ctx, stream, streams, svc, events)
		started := time.Now()
		err := stream.Run(ctx, func(symbol, interval string, bar market.Candle) {
			if _, err := svc.OnBar(ctx, symbol, interval, bar); err != nil {
				events("stream_event", map[string]interface{}{
					"topic": symbol + "/" + interval, "state": "bar_error", "error": err.Error(),
				})
			}
		})
		if ctx.Err() != nil {
			return
		}
		metrics.StreamReconnects.Inc()
		fields := map[string]interface{}{"topic": "kline", "state": "reconnect"}
		if err != nil {
			fields["error"] = err.Error()
		}
		events("stream_event", fields)
		alerts.Warn("kline stream reconnecting", fields)

		wait, next := reconnectDelay(backoff, time.Since(started))
		backoff = next
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// subscribeStreams 注册 kline 订阅；开了 trades 的流同时订阅成交并
// 聚合成同周期的 bar。
func subscribeStreams(ctx context.Context, stream *gateway.KlineStream, streams []config.StreamConfig, svc *market.Service, events func(string, map[string]interface{})) {
	tradeIntervals := make(map[string][]string)
	for _, s := range streams {
		if err := stream.Subscribe(s.Symbol, s.Interval); err != nil {
			events("stream_event", map[string]interface{}{
				"topic": s.Symbol + "/" + s.Interval, "state": "subscribe_error", "error": err.Error(),
			})
			continue
		}
		if s.Trades {
			tradeIntervals[s.Symbol] = append(tradeIntervals[s.Symbol], s.Interval)
		}
	}
	if len(tradeIntervals) == 0 {
		return
	}
	for symbol := range tradeIntervals {
		if err := stream.SubscribeTrades(symbol); err != nil {
			events("stream_event", map[string]interface{}{
				"topic": symbol + "/trades", "state": "subscribe_error", "error": err.Error(),
			})
			delete(tradeIntervals, symbol)
		}
	}
	stream.OnTrade = func(symbol string, tr market.Trade) {
		for _, interval := range tradeIntervals[symbol] {
			if _, err := svc.OnTrade(ctx, symbol, interval, tr); err != nil {
				events("stream_event", map[string]interface{}{
					"topic": symbol + "/" + interval, "state": "trade_error", "error": err.Error(),
				})
			}
		}
	}
}

// startHotReload 监听配置文件变化，允许在线调整刷新周期。
func startHotReload(ctx context.Context, cfgPath string, refreshCh chan<- time.Duration, events func(string, map[string]interface{})) *internalconfig.HotReloader {
	reloader, err := internalconfig.NewHotReloader(cfgPath, internalconfig.DefaultHotReloadConfig())
	if err != nil {
		events("config_watch_error", map[string]interface{}{"error": err.Error()})
		return nil
	}
	reloader.Events = events
	reloader.RegisterValidator("window", &internalconfig.WindowParameterValidator{})
	reloader.RegisterApplier("window", refreshApplier{ch: refreshCh})
	reloader.SetReloadHandler(func() error {
		next, err := config.LoadWithEnvOverrides(cfgPath)
		if err != nil {
			return err
		}
		return reloader.ApplyParameters("window", map[string]interface{}{
			"limit":           next.Window.Limit,
			"refresh_seconds": next.Window.RefreshSeconds,
		})
	})
	if err := reloader.Start(ctx); err != nil {
		events("config_watch_error", map[string]interface{}{"error": err.Error()})
		_ = reloader.Stop()
		return nil
	}
	return reloader
}

type refreshApplier struct {
	ch chan<- time.Duration
}

func (a refreshApplier) ApplyParameters(params map[string]interface{}) error {
	if refresh, ok := params["refresh_seconds"].(int); ok {
		select {
		case a.ch <- time.Duration(refresh) * time.Second:
		default:
		}
	}
	return nil
}

// Package metrics exposes Prometheus metrics for the candle gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WindowsSanitized 清洗过的窗口数量。
	WindowsSanitized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_windows_sanitized_total",
		Help: "清洗过的 K 线窗口数量",
	}, []string{"symbol", "interval"})

	// BarsCorrected 被替换价格的 bar 数量。
	BarsCorrected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_bars_corrected_total",
		Help: "被判定为离群并替换价格的 bar 数量",
	}, []string{"symbol", "interval"})

	// CacheEvents 缓存命中/未命中/过期。
	CacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_cache_events_total",
		Help: "窗口缓存事件",
	}, []string{"event"})

	// HTTPRequests 按路由与状态统计请求。
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "HTTP 请求数量",
	}, []string{"route", "status"})

	// HTTPDuration 请求耗时。
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_http_request_duration_seconds",
		Help:    "HTTP 请求耗时",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// WSSubscriptions 当前活跃的 WebSocket 订阅数。
	WSSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_ws_subscriptions",
		Help: "当前活跃的 WebSocket 订阅数",
	})

	// StreamReconnects 上游行情流重连次数。
	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_stream_reconnects_total",
		Help: "上游 K 线流重连次数",
	})

	// UpstreamRequests 上游 REST 请求数量。
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_requests_total",
		Help: "上游 REST 请求数量",
	}, []string{"endpoint"})

	// UpstreamErrors 上游 REST 错误数量。
	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_errors_total",
		Help: "上游 REST 错误数量",
	}, []string{"endpoint"})

	// UpstreamLatency 上游 REST 请求耗时。
	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_upstream_latency_seconds",
		Help:    "上游 REST 请求耗时",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// ObserveUpstream 记录一次上游 REST 调用。
func ObserveUpstream(endpoint string, start time.Time, err error) {
	UpstreamRequests.WithLabelValues(endpoint).Inc()
	UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		UpstreamErrors.WithLabelValues(endpoint).Inc()
	}
}

// ObserveSanitized 记录一次窗口清洗。
func ObserveSanitized(symbol, interval string, corrected int) {
	WindowsSanitized.WithLabelValues(symbol, interval).Inc()
	if corrected > 0 {
		BarsCorrected.WithLabelValues(symbol, interval).Add(float64(corrected))
	}
}

// Handler 返回挂载了 /metrics 的 http.Handler，监听和生命周期由
// 容器管理。
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

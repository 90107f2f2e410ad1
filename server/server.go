// Package server exposes the sanitized candle windows over HTTP and
// WebSocket. Every window that leaves this package has been through
// market.Sanitize; raw upstream data is never served.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hirokisan/bybit/v2"

	"candle-gateway-go/infrastructure/logger"
	"candle-gateway-go/market"
)

// Exchange 透传接口：行情价、余额、下单都直接转发给上游。
type Exchange interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
	WalletBalance(ctx context.Context) (interface{}, error)
	CreateOrder(ctx context.Context, param bybit.V5CreateOrderParam) (interface{}, error)
}

type Server struct {
	svc       *market.Service
	exchange  Exchange
	log       *logger.Logger
	hub       *Hub
	staticDir string
}

func New(svc *market.Service, exchange Exchange, log *logger.Logger, staticDir string) *Server {
	return &Server{
		svc:       svc,
		exchange:  exchange,
		log:       log,
		hub:       NewHub(svc, log),
		staticDir: staticDir,
	}
}

// Hub 返回内部的 WebSocket hub，调用方负责启动其广播循环。
func (s *Server) Hub() *Hub {
	return s.hub
}

// Routes 构建路由；所有 /api 路由带 CORS 与指标采集。
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)
	api.Handle("/candles", instrument("candles", http.HandlerFunc(s.handleCandles))).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/price", instrument("price", http.HandlerFunc(s.handlePrice))).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/balance", instrument("balance", http.HandlerFunc(s.handleBalance))).Methods(http.MethodGet, http.MethodOptions)
	api.Handle("/order", instrument("order", http.HandlerFunc(s.handleOrder))).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/ws", s.hub.HandleWS)

	if s.staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir)))
	}
	return r
}

// errorPayload 对外统一的错误结构。
type errorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorPayload{Error: msg, Details: details})
}

package server

import (
	"encoding/json"
	"net/http"

	"github.com/hirokisan/bybit/v2"
	"go.uber.org/zap"
)

// 行情价、余额、下单都是对上游的薄透传：不缓存、不校验业务语义，
// 上游失败按 5xx + 统一错误结构上报。

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required", "")
		return
	}
	price, err := s.exchange.LastPrice(r.Context(), symbol)
	if err != nil {
		s.log.Error("price passthrough failed", zap.String("symbol", symbol), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to fetch price", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"symbol": symbol, "price": price})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.exchange.WalletBalance(r.Context())
	if err != nil {
		s.log.Error("balance passthrough failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to fetch balance", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var param bybit.V5CreateOrderParam
	if err := json.NewDecoder(r.Body).Decode(&param); err != nil {
		writeError(w, http.StatusBadRequest, "invalid order payload", err.Error())
		return
	}
	resp, err := s.exchange.CreateOrder(r.Context(), param)
	if err != nil {
		s.log.Error("order passthrough failed", zap.String("symbol", string(param.Symbol)), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to place order", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

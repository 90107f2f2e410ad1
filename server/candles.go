package server

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"candle-gateway-go/market"
)

// handleCandles 返回清洗后的 K 线窗口。
// GET /api/candles?symbol=BTCUSDT&interval=1&limit=100
func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	interval := r.URL.Query().Get("interval")
	if symbol == "" || interval == "" {
		writeError(w, http.StatusBadRequest, "symbol and interval are required", "")
		return
	}

	candles, err := s.svc.Window(r.Context(), symbol, interval)
	if err != nil {
		if errors.Is(err, market.ErrNoData) || errors.Is(err, market.ErrEmptySeries) {
			writeError(w, http.StatusNotFound, "no data", "upstream returned no candles for "+symbol)
			return
		}
		s.log.Error("candle window failed",
			zap.String("symbol", symbol),
			zap.String("interval", interval),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "failed to load candles", err.Error())
		return
	}

	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "")
			return
		}
		if limit < len(candles) {
			candles = candles[len(candles)-limit:]
		}
	}

	writeJSON(w, http.StatusOK, candles)
}

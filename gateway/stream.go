package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"candle-gateway-go/market"
)

// BybitPublicWSEndpoint 线性合约公共流地址。
const BybitPublicWSEndpoint = "wss://stream.bybit.com/v5/public/linear"

const pingInterval = 20 * time.Second

// KlineStream 订阅 bybit v5 public kline 流，可以附带订阅成交流。
// Run 维持单条连接直到出错或 ctx 取消；重连退避由调用方负责。
type KlineStream struct {
	Endpoint string
	Dialer   *websocket.Dialer

	// OnTrade 收到 publicTrade 推送时逐笔回调；在 Run 之前设置。
	OnTrade func(symbol string, tr market.Trade)

	topics []string
}

func NewKlineStream() *KlineStream {
	return &KlineStream{
		Endpoint: BybitPublicWSEndpoint,
		Dialer:   websocket.DefaultDialer,
	}
}

// Subscribe 注册一个 symbol/interval；必须在 Run 之前调用。
func (s *KlineStream) Subscribe(symbol, interval string) error {
	if symbol == "" || interval == "" {
		return fmt.Errorf("symbol and interval required")
	}
	s.topics = append(s.topics, fmt.Sprintf("kline.%s.%s", interval, symbol))
	return nil
}

// SubscribeTrades 注册一个 symbol 的成交流；必须在 Run 之前调用。
func (s *KlineStream) SubscribeTrades(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol required")
	}
	s.topics = append(s.topics, "publicTrade."+symbol)
	return nil
}

// Run dials the endpoint, subscribes the registered topics and feeds
// every confirmed bar to onBar. It returns when the connection drops or
// the context is cancelled.
func (s *KlineStream) Run(ctx context.Context, onBar func(symbol, interval string, bar market.Candle)) error {
	if len(s.topics) == 0 {
		return fmt.Errorf("no topics subscribed")
	}
	conn, _, err := s.Dialer.DialContext(ctx, s.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.Endpoint, err)
	}
	defer conn.Close()

	sub := map[string]interface{}{"op": "subscribe", "args": s.topics}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ping, _ := json.Marshal(map[string]string{"op": "ping"})
				_ = conn.WriteMessage(websocket.TextMessage, ping)
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		if s.OnTrade != nil {
			if symbol, trades, err := ParseTradePush(raw); err == nil && symbol != "" {
				for _, tr := range trades {
					s.OnTrade(symbol, tr)
				}
				continue
			}
		}
		symbol, interval, bars, err := ParseKlinePush(raw)
		if err != nil || symbol == "" {
			continue
		}
		for _, bar := range bars {
			onBar(symbol, interval, bar)
		}
	}
}

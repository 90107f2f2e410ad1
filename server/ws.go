package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"candle-gateway-go/infrastructure/logger"
	"candle-gateway-go/market"
	"candle-gateway-go/metrics"
)

// clientMessage 客户端指令。
type clientMessage struct {
	Op       string `json:"op"`       // subscribe / unsubscribe
	ID       string `json:"id"`       // unsubscribe 时必填
	Symbol   string `json:"symbol"`   // subscribe 时必填
	Interval string `json:"interval"` // subscribe 时必填
}

// serverMessage 服务端推送。
type serverMessage struct {
	Op       string          `json:"op"`
	ID       string          `json:"id,omitempty"`
	Symbol   string          `json:"symbol,omitempty"`
	Interval string          `json:"interval,omitempty"`
	Candles  []market.Candle `json:"candles,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// wsConn 串行化单条连接上的写操作。
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg serverMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Hub 维护 WebSocket 订阅：每个订阅有独立的 uuid，一条连接可以
// 订多个 symbol/interval。Run 消费清洗窗口更新并推给匹配的订阅。
type Hub struct {
	svc *market.Service
	log *logger.Logger

	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[string]map[string]*wsConn // window key -> subscription id -> conn
}

func NewHub(svc *market.Service, log *logger.Logger) *Hub {
	return &Hub{
		svc: svc,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[string]map[string]*wsConn),
	}
}

// Run 广播循环；ctx 取消后返回。
func (h *Hub) Run(ctx context.Context) {
	updates := h.svc.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			h.broadcast(u)
		}
	}
}

func (h *Hub) broadcast(u market.Update) {
	key := market.Key(u.Symbol, u.Interval)
	h.mu.RLock()
	conns := make(map[string]*wsConn, len(h.subs[key]))
	for id, c := range h.subs[key] {
		conns[id] = c
	}
	h.mu.RUnlock()

	msg := serverMessage{Op: "window", Symbol: u.Symbol, Interval: u.Interval, Candles: u.Candles}
	for id, c := range conns {
		if err := c.send(msg); err != nil {
			h.log.Warn("ws push failed", zap.String("sub", id), zap.Error(err))
			h.removeSub(key, id)
		}
	}
}

// HandleWS 升级连接并处理订阅指令，连接断开时清掉它的全部订阅。
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	client := &wsConn{conn: conn}
	owned := make(map[string]string) // subscription id -> window key
	defer func() {
		for id, key := range owned {
			h.removeSub(key, id)
		}
		_ = conn.Close()
	}()

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("ws read failed", zap.Error(err))
			}
			return
		}

		switch msg.Op {
		case "subscribe":
			if msg.Symbol == "" || msg.Interval == "" {
				_ = client.send(serverMessage{Op: "error", Error: "symbol and interval are required"})
				continue
			}
			id := uuid.NewString()
			key := market.Key(msg.Symbol, msg.Interval)
			h.addSub(key, id, client)
			owned[id] = key
			_ = client.send(serverMessage{Op: "subscribed", ID: id, Symbol: msg.Symbol, Interval: msg.Interval})

			// 立刻推一次当前窗口，订阅者不用等下一次刷新
			if candles, err := h.svc.Window(r.Context(), msg.Symbol, msg.Interval); err == nil {
				_ = client.send(serverMessage{Op: "window", Symbol: msg.Symbol, Interval: msg.Interval, Candles: candles})
			}
		case "unsubscribe":
			key, ok := owned[msg.ID]
			if !ok {
				_ = client.send(serverMessage{Op: "error", Error: "unknown subscription id"})
				continue
			}
			delete(owned, msg.ID)
			h.removeSub(key, msg.ID)
			_ = client.send(serverMessage{Op: "unsubscribed", ID: msg.ID})
		default:
			_ = client.send(serverMessage{Op: "error", Error: "unknown op"})
		}
	}
}

func (h *Hub) addSub(key, id string, c *wsConn) {
	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[string]*wsConn)
	}
	h.subs[key][id] = c
	h.mu.Unlock()
	metrics.WSSubscriptions.Inc()
}

func (h *Hub) removeSub(key, id string) {
	h.mu.Lock()
	if conns, ok := h.subs[key]; ok {
		if _, exists := conns[id]; exists {
			delete(conns, id)
			metrics.WSSubscriptions.Dec()
		}
		if len(conns) == 0 {
			delete(h.subs, key)
		}
	}
	h.mu.Unlock()
}

// subCount 仅测试使用。
func (h *Hub) subCount(symbol, interval string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[market.Key(symbol, interval)])
}

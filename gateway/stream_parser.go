package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"candle-gateway-go/market"
)

// klinePush 对应 bybit v5 public 流的 kline 推送。
type klinePush struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  []struct {
		Start    int64  `json:"start"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
		Volume   string `json:"volume"`
		Confirm  bool   `json:"confirm"`
		Interval string `json:"interval"`
	} `json:"data"`
}

// ParseKlinePush 解析一条 kline 推送，只保留已确认（闭合）的 bar。
// 非 kline 消息（订阅回执、pong 等）返回空 topic 且不报错。
func ParseKlinePush(raw []byte) (symbol, interval string, bars []market.Candle, err error) {
	var msg klinePush
	if err = json.Unmarshal(raw, &msg); err != nil {
		return "", "", nil, fmt.Errorf("parse kline push: %w", err)
	}
	if !strings.HasPrefix(msg.Topic, "kline.") {
		return "", "", nil, nil
	}
	parts := strings.SplitN(msg.Topic, ".", 3)
	if len(parts) != 3 {
		return "", "", nil, fmt.Errorf("malformed kline topic %q", msg.Topic)
	}
	interval, symbol = parts[1], parts[2]

	for _, d := range msg.Data {
		if !d.Confirm {
			continue
		}
		candle, err := toCandle(fmt.Sprintf("%d", d.Start), d.Open, d.High, d.Low, d.Close, d.Volume)
		if err != nil {
			return "", "", nil, err
		}
		bars = append(bars, candle)
	}
	return symbol, interval, bars, nil
}

// tradePush 对应 bybit v5 public 流的 publicTrade 推送。
type tradePush struct {
	Topic string `json:"topic"`
	Data  []struct {
		Ts     int64  `json:"T"` // 成交时间，毫秒
		Symbol string `json:"s"`
		Price  string `json:"p"`
		Qty    string `json:"v"`
	} `json:"data"`
}

// ParseTradePush 解析一条 publicTrade 推送。非成交消息返回空 symbol
// 且不报错。
func ParseTradePush(raw []byte) (symbol string, trades []market.Trade, err error) {
	var msg tradePush
	if err = json.Unmarshal(raw, &msg); err != nil {
		return "", nil, fmt.Errorf("parse trade push: %w", err)
	}
	if !strings.HasPrefix(msg.Topic, "publicTrade.") {
		return "", nil, nil
	}
	symbol = strings.TrimPrefix(msg.Topic, "publicTrade.")

	for _, d := range msg.Data {
		price, err := strconv.ParseFloat(d.Price, 64)
		if err != nil {
			return "", nil, fmt.Errorf("parse trade price %q: %w", d.Price, err)
		}
		qty, err := strconv.ParseFloat(d.Qty, 64)
		if err != nil {
			return "", nil, fmt.Errorf("parse trade qty %q: %w", d.Qty, err)
		}
		trades = append(trades, market.Trade{
			Price: price,
			Qty:   qty,
			Ts:    time.UnixMilli(d.Ts).UTC(),
		})
	}
	return symbol, trades, nil
}

package market

import "sync"

// Update carries a freshly sanitized window for one symbol/interval.
type Update struct {
	Symbol   string
	Interval string
	Candles  []Candle
}

// Publisher 一个轻量事件分发器：把清洗后的窗口广播给订阅者。
// 慢订阅者丢帧而不是阻塞发布方。
type Publisher struct {
	mu   sync.Mutex
	subs []chan Update
}

func NewPublisher() *Publisher {
	return &Publisher{subs: make([]chan Update, 0)}
}

func (p *Publisher) Subscribe() <-chan Update {
	ch := make(chan Update, 1)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

func (p *Publisher) Publish(u Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

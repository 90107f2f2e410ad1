package market

import "testing"

func TestPublisher(t *testing.T) {
	p := NewPublisher()
	ch := p.Subscribe()
	p.Publish(Update{Symbol: "BTCUSDT", Interval: "1", Candles: flatSeries(3, 100)})
	got := <-ch
	if got.Symbol != "BTCUSDT" || len(got.Candles) != 3 {
		t.Fatalf("unexpected update %+v", got)
	}
}

func TestPublisherDropsWhenSubscriberFull(t *testing.T) {
	p := NewPublisher()
	ch := p.Subscribe()
	p.Publish(Update{Symbol: "A"})
	p.Publish(Update{Symbol: "B"}) // buffer full, must not block
	got := <-ch
	if got.Symbol != "A" {
		t.Fatalf("expected first update, got %+v", got)
	}
	select {
	case u := <-ch:
		t.Fatalf("expected dropped update, got %+v", u)
	default:
	}
}

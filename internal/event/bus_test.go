package event

import (
	"testing"
	"time"

	"futures_agent/internal/domain"
)

func TestBus_FanOut(t *testing.T) {
	b := NewBus()
	defer b.Close()

	a := b.Subscribe(4)
	c := b.Subscribe(4)

	b.Publish(domain.Event{Type: domain.EvOrderFilled, AccountID: "acc-1"})

	for _, ch := range []<-chan domain.Event{a, c} {
		select {
		case ev := <-ch:
			if ev.Type != domain.EvOrderFilled {
				t.Errorf("got %s, want ORDER_FILLED", ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	b := NewBus()
	defer b.Close()

	b.Subscribe(1) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(domain.Event{Type: domain.EvPositionUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBus_CloseClosesSubscribers(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(1)
	b.Close()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after bus close")
	}

	// Publish and Close after close are no-ops.
	b.Publish(domain.Event{Type: domain.EvOrderPlaced})
	b.Close()
}

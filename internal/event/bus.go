package event

import (
	"log/slog"
	"sync"

	"futures_agent/internal/domain"
)

// Bus fans domain events out to subscribers. Publish never blocks the
// execution path: a subscriber whose buffer is full loses the event and
// the drop is logged.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan domain.Event
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a consumer and returns its channel. The channel is
// closed when the bus shuts down.
func (b *Bus) Subscribe(buffer int) <-chan domain.Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan domain.Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("event dropped, slow subscriber",
				slog.String("type", ev.Type.String()),
				slog.String("account", ev.AccountID))
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// LogConsumer drains a subscription and writes each event to the logger.
// Paper events log at debug, real CRITICAL events at error.
func LogConsumer(ch <-chan domain.Event, log *slog.Logger) {
	for ev := range ch {
		attrs := []any{
			slog.String("type", ev.Type.String()),
			slog.String("account", ev.AccountID),
			slog.String("symbol", ev.Symbol),
			slog.Bool("paper", ev.IsPaper),
		}
		if ev.Detail != "" {
			attrs = append(attrs, slog.String("detail", ev.Detail))
		}
		switch {
		case ev.IsPaper:
			log.Debug("event", attrs...)
		case ev.Severity == "CRITICAL":
			log.Error("event", attrs...)
		case ev.Severity == "WARN":
			log.Warn("event", attrs...)
		default:
			log.Info("event", attrs...)
		}
	}
}

// Package event provides the in-memory plugin.EventBus used to fan
// drift notifications out between plugins and the WebSocket layer.
package event

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/driftwatch/pkg/plugin"
)

var _ plugin.EventBus = (*Bus)(nil)

// Bus dispatches events to topic subscribers and wildcard subscribers.
// Publish runs handlers in the caller's goroutine, which keeps ordering
// deterministic for tests; PublishAsync spawns a goroutine per handler.
type Bus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[string][]subscriber
	global []subscriber
	lastID uint64
}

type subscriber struct {
	id uint64
	fn plugin.EventHandler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[string][]subscriber),
	}
}

// snapshot copies the matching subscriber lists so handlers run without
// holding the bus lock (a handler may itself subscribe or publish).
func (b *Bus) snapshot(topic string) []subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]subscriber, 0, len(b.subs[topic])+len(b.global))
	out = append(out, b.subs[topic]...)
	out = append(out, b.global...)
	return out
}

// Publish delivers the event to every matching handler, synchronously
// and in subscription order.
func (b *Bus) Publish(ctx context.Context, event plugin.Event) error {
	for _, s := range b.snapshot(event.Topic) {
		b.dispatch(ctx, s.fn, event)
	}
	return nil
}

// PublishAsync delivers the event with one goroutine per handler.
// Delivery order across handlers is unspecified.
func (b *Bus) PublishAsync(ctx context.Context, event plugin.Event) {
	for _, s := range b.snapshot(event.Topic) {
		go b.dispatch(ctx, s.fn, event)
	}
}

// Subscribe registers a handler for one topic and returns a function
// that removes it.
func (b *Bus) Subscribe(topic string, handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	b.lastID++
	id := b.lastID
	b.subs[topic] = append(b.subs[topic], subscriber{id: id, fn: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs[topic] = remove(b.subs[topic], id)
	}
}

// SubscribeAll registers a handler that receives every topic.
func (b *Bus) SubscribeAll(handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	b.lastID++
	id := b.lastID
	b.global = append(b.global, subscriber{id: id, fn: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.global = remove(b.global, id)
	}
}

func remove(list []subscriber, id uint64) []subscriber {
	for i, s := range list {
		if s.id == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// dispatch invokes a handler, containing panics so one bad subscriber
// cannot take down a publisher.
func (b *Bus) dispatch(ctx context.Context, fn plugin.EventHandler, event plugin.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.String("source", event.Source),
				zap.Any("panic", r),
			)
		}
	}()
	fn(ctx, event)
}

// Package events fans committed ledger events out to in-process subscribers.
package events

import (
	"fmt"
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/observability"
)

// TopicAll receives every event regardless of kind.
const TopicAll = "ledger:*"

// Topic returns the bus topic for kind.
func Topic(kind domain.EventKind) string {
	return "ledger:" + string(kind)
}

// Handler receives one committed event.
type Handler func(domain.Event)

// Bus publishes committed events by kind and on TopicAll.
//
// EventBus routes topics to one dispatcher per topic; the dispatcher fans out
// to the subscribers held here. EventBus matches handlers by code pointer on
// Unsubscribe, which cannot tell two closures of the same literal apart.
type Bus struct {
	bus evbus.Bus
	log *zap.Logger

	routeMu sync.Mutex // never held while EventBus dispatches
	routed  map[string]bool

	mu     sync.RWMutex
	topics map[string][]*subscriber
	nextID int
}

type subscriber struct {
	id int
	h  Handler
}

// NewBus creates an empty bus.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		bus:    evbus.New(),
		log:    log.Named("events"),
		topics: make(map[string][]*subscriber),
		routed: make(map[string]bool),
	}
}

// Publish delivers e to TopicAll subscribers, then to subscribers of e.Kind.
// Every handler has run when Publish returns.
func (b *Bus) Publish(e domain.Event) {
	b.bus.Publish(TopicAll, e)
	b.bus.Publish(Topic(e.Kind), e)
	observability.RecordEvent(string(e.Kind))
	b.log.Debug("event published",
		zap.Uint64("seq", e.Seq),
		zap.String("kind", string(e.Kind)),
		zap.Uint64("record_id", uint64(e.RecordID)),
	)
}

// Subscribe registers h on topic. h runs on the publishing goroutine, inside
// the engine's commit, so it must not block. The returned function
// unsubscribes it.
func (b *Bus) Subscribe(topic string, h Handler) (func(), error) {
	if h == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", topic)
	}

	b.routeMu.Lock()
	if !b.routed[topic] {
		if err := b.bus.Subscribe(topic, b.dispatcher(topic)); err != nil {
			b.routeMu.Unlock()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
		b.routed[topic] = true
	}
	b.routeMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	s := &subscriber{id: b.nextID, h: h}
	b.nextID++
	b.topics[topic] = append(b.topics[topic], s)

	var once sync.Once
	return func() { once.Do(func() { b.unsubscribe(topic, s) }) }, nil
}

func (b *Bus) dispatcher(topic string) func(domain.Event) {
	return func(e domain.Event) {
		b.mu.RLock()
		subs := append([]*subscriber(nil), b.topics[topic]...)
		b.mu.RUnlock()

		for _, s := range subs {
			s.h(e)
		}
	}
}

func (b *Bus) unsubscribe(topic string, s *subscriber) {
	b.mu.Lock()
	subs := b.topics[topic]
	for i, cur := range subs {
		if cur.id == s.id {
			b.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
}

// Subscribers returns the number of subscribers on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

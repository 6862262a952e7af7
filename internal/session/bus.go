package session

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/lobbywatch/pkg/models"
)

// Subscriber receives every emitted communication.
type Subscriber func(c models.Communication)

// Bus fans communications out to subscribers in registration order.
// A subscriber that panics is removed.
type Bus struct {
	mu    sync.Mutex
	subs  map[string]Subscriber
	order []string
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]Subscriber)}
}

// Subscribe registers fn under id, replacing any subscriber with that id.
func (b *Bus) Subscribe(id string, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.subs[id]; !exists {
		b.order = append(b.order, id)
	}
	b.subs[id] = fn
}

// Unsubscribe removes the subscriber registered under id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.subs[id]; !exists {
		return
	}
	delete(b.subs, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// SubscriberCount returns the number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers c to every subscriber.
func (b *Bus) Publish(c models.Communication) {
	b.mu.Lock()
	ids := make([]string, len(b.order))
	copy(ids, b.order)
	subs := make([]Subscriber, len(ids))
	for i, id := range ids {
		subs[i] = b.subs[id]
	}
	b.mu.Unlock()

	for i, fn := range subs {
		if err := deliver(fn, c); err != nil {
			log.Error().
				Err(err).
				Str("subscriberId", ids[i]).
				Str("communicationId", c.ID).
				Msg("Subscriber failed, removing it")
			b.Unsubscribe(ids[i])
		}
	}
}

func deliver(fn Subscriber, c models.Communication) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	fn(c)
	return nil
}

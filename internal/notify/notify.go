// Package notify carries identity store change events to observers.
// Delivery is synchronous and fire-and-forget: an observer cannot fail or
// block an emit, and a panicking observer is recovered and logged.
package notify

import (
	"fmt"
	"sync"

	"github.com/lewisedginton/npc_registry/pkg/logger"
)

// EventType names a change event.
type EventType string

const (
	NPCCreated     EventType = "npc.created"
	NPCUpdated     EventType = "npc.updated"
	NPCDeleted     EventType = "npc.deleted"
	StoreSaved     EventType = "store.saved"
	StoreUpdated   EventType = "store.updated"
	StoreReloaded  EventType = "store.reloaded"
	StoreSaveError EventType = "store.save_failed"
)

// Event is the payload delivered to observers. Fields not relevant to a
// given Type are left zero.
type Event struct {
	Type     EventType
	Scope    string
	EntityID string
	Name     string
	// Count is the entity count for store.* events and the number of
	// changed fields for npc.updated
	Count int
	Err   error
}

// Emitter is what producers depend on.
type Emitter interface {
	Emit(Event)
}

// Observer receives events.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

type subscription struct {
	name     string
	observer Observer
}

// Bus is an Emitter with named, idempotent subscriptions. Observers are
// called in subscription order.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
	log  logger.Logger
}

func NewBus(log logger.Logger) *Bus {
	return &Bus{log: log}
}

// Subscribe registers observer under name. It returns false and keeps the
// existing observer when name is already taken.
func (b *Bus) Subscribe(name string, observer Observer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.name == name {
			return false
		}
	}
	b.subs = append(b.subs, subscription{name: name, observer: observer})
	return true
}

// Unsubscribe removes the observer registered under name, if any.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.name == name {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the registered names in order.
func (b *Bus) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, len(b.subs))
	for i, s := range b.subs {
		names[i] = s.name
	}
	return names
}

func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Observer panicked",
				logger.StringField("observer", s.name),
				logger.StringField("event", string(e.Type)),
				logger.StringField("panic", fmt.Sprint(r)))
		}
	}()
	s.observer.Notify(e)
}

// Discard is an Emitter that drops every event.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}

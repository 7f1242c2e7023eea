// Package events is the in-process publish/subscribe channel shared by the
// credential store, preferences, the reconciler and UI consumers.
package events

import (
	"sync"

	"github.com/bloomhouse/cartsync/internal/cart"
	"github.com/bloomhouse/cartsync/pkg/logger"
)

const (
	TopicAuth    = "auth"
	TopicStorage = "storage"
	TopicLocale  = "locale"
	TopicCart    = "cart"
)

// Event is anything published on the bus.
type Event interface {
	Topic() string
}

type AuthType string

const (
	AuthLogin  AuthType = "login"
	AuthLogout AuthType = "logout"
)

// AuthChanged is raised by the auth subsystem on login and logout.
type AuthChanged struct {
	Type AuthType
}

func (AuthChanged) Topic() string { return TopicAuth }

// StorageChanged is raised when a durable key is written or removed.
type StorageChanged struct {
	Key string
}

func (StorageChanged) Topic() string { return TopicStorage }

// LocaleChanged is raised when the display locale changes.
type LocaleChanged struct {
	Locale string
}

func (LocaleChanged) Topic() string { return TopicLocale }

// CartChanged carries the snapshot after every change.
type CartChanged struct {
	Snapshot cart.Snapshot
}

func (CartChanged) Topic() string { return TopicCart }

type subscriber struct {
	id uint64
	fn func(Event)
}

// Bus delivers events synchronously, in subscription order, on the
// publisher's goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscriber
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscriber)}
}

// Subscribe registers fn for topic and returns a function removing it.
func (b *Bus) Subscribe(topic string, fn func(Event)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}
}

func (b *Bus) unsubscribe(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[topic]
	kept := make([]subscriber, 0, len(list))
	for _, s := range list {
		if s.id != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.subs, topic)
		return
	}
	b.subs[topic] = kept
}

// Publish calls every subscriber of e's topic. A panicking subscriber is
// logged and does not stop delivery to the others.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	list := append([]subscriber(nil), b.subs[e.Topic()]...)
	b.mu.RUnlock()

	for _, s := range list {
		deliver(s.fn, e)
	}
}

func deliver(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Event subscriber panicked", nil, map[string]interface{}{
				"topic": e.Topic(),
				"panic": r,
			})
		}
	}()
	fn(e)
}

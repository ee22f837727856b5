package events

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Any subscribes a handler to every event kind
const Any Name = "*"

// Handler receives events from the bus
type Handler func(Event)

// Subscription identifies a registered handler so it can be removed
type Subscription uint64

type registration struct {
	id Subscription
	fn Handler
}

// Bus is a synchronous publish/subscribe bus. Handlers for a name run in
// registration order, followed by handlers registered for Any. A handler
// that panics is recovered and logged; the remaining handlers still run.
type Bus struct {
	mu       sync.RWMutex
	next     Subscription
	handlers map[Name][]registration
	log      logrus.FieldLogger
}

// NewBus creates a bus that reports handler panics to log. A nil logger
// discards them.
func NewBus(log logrus.FieldLogger) *Bus {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Bus{
		handlers: make(map[Name][]registration),
		log:      log,
	}
}

// On registers h for name and returns its subscription
func (b *Bus) On(name Name, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	b.handlers[name] = append(b.handlers[name], registration{id: b.next, fn: h})
	return b.next
}

// Off removes the handler registered under sub for name. It reports whether
// a handler was removed.
func (b *Bus) Off(name Name, sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[name]
	for i, r := range regs {
		if r.id == sub {
			// Copy so an in-flight Emit keeps its snapshot intact
			updated := make([]registration, 0, len(regs)-1)
			updated = append(updated, regs[:i]...)
			updated = append(updated, regs[i+1:]...)
			if len(updated) == 0 {
				delete(b.handlers, name)
			} else {
				b.handlers[name] = updated
			}
			return true
		}
	}
	return false
}

// Emit delivers e to its subscribers synchronously
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	named := b.handlers[e.Name()]
	wildcard := b.handlers[Any]
	b.mu.RUnlock()

	for _, r := range named {
		b.call(r, e)
	}
	for _, r := range wildcard {
		b.call(r, e)
	}
}

// Count returns the number of handlers registered for name
func (b *Bus) Count(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}

func (b *Bus) call(r registration, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.WithFields(logrus.Fields{
				"event":        string(e.Name()),
				"subscription": uint64(r.id),
			}).WithError(fmt.Errorf("%v", rec)).Error("Event handler panicked")
		}
	}()
	r.fn(e)
}

// Subscribe registers a handler typed to a single event kind
//
//	events.Subscribe(bus, func(e events.QueueFailed) {
//	    log.Printf("dropped %s %s after %d attempts", e.Method, e.URL, e.Attempts)
//	})
func Subscribe[E Event](b *Bus, h func(E)) Subscription {
	var zero E
	return b.On(zero.Name(), func(e Event) {
		if typed, ok := e.(E); ok {
			h(typed)
		}
	})
}

// Unsubscribe removes a handler registered with Subscribe
func Unsubscribe[E Event](b *Bus, sub Subscription) bool {
	var zero E
	return b.Off(zero.Name(), sub)
}

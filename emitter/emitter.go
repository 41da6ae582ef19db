// Package emitter is a synchronous in-process publish/subscribe primitive.
//
// Listeners run on the emitting goroutine, in subscription order. Listeners
// registered under Wildcard receive every event after the exact-name
// listeners for that event have run. A listener that panics is logged and
// skipped; the remaining listeners still run.
package emitter

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Wildcard subscribes to every event.
const Wildcard = "*"

// Listener receives the event name and its payload.
type Listener func(event string, payload any)

// Subscription is the handle returned by On. Pass it to Off to remove the
// listener; a removed listener is never invoked again, even by an emission
// that is already in progress.
type Subscription struct {
	id       uint64
	event    string
	listener Listener
	removed  atomic.Bool
	once     bool
	owner    *Emitter
}

// Event returns the event name the subscription was registered under.
func (s *Subscription) Event() string { return s.event }

// Unsubscribe is shorthand for Off on the owning emitter.
func (s *Subscription) Unsubscribe() bool {
	if s == nil || s.owner == nil {
		return false
	}
	return s.owner.Off(s)
}

// Emitter holds separate ordered listener lists for exact names and the
// wildcard. The zero value is not usable; call New.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[string][]*Subscription
	wildcard  []*Subscription
	nextID    uint64
	logger    *slog.Logger
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithLogger sets the logger used to report listener panics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func New(opts ...Option) *Emitter {
	e := &Emitter{
		listeners: make(map[string][]*Subscription),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "emitter"))
	return e
}

// On registers listener for event (or Wildcard).
func (e *Emitter) On(event string, listener Listener) *Subscription {
	return e.subscribe(event, listener, false)
}

// Once registers a listener that is removed after its first invocation.
func (e *Emitter) Once(event string, listener Listener) *Subscription {
	return e.subscribe(event, listener, true)
}

func (e *Emitter) subscribe(event string, listener Listener, once bool) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	sub := &Subscription{id: e.nextID, event: event, listener: listener, once: once, owner: e}
	if event == Wildcard {
		e.wildcard = append(e.wildcard, sub)
	} else {
		e.listeners[event] = append(e.listeners[event], sub)
	}
	return sub
}

// Off removes a subscription. It reports whether the subscription was found.
func (e *Emitter) Off(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	sub.removed.Store(true)

	e.mu.Lock()
	defer e.mu.Unlock()

	if sub.event == Wildcard {
		var ok bool
		e.wildcard, ok = without(e.wildcard, sub)
		return ok
	}
	list, ok := without(e.listeners[sub.event], sub)
	if len(list) == 0 {
		delete(e.listeners, sub.event)
	} else {
		e.listeners[sub.event] = list
	}
	return ok
}

func without(list []*Subscription, sub *Subscription) ([]*Subscription, bool) {
	for i, s := range list {
		if s.id == sub.id {
			out := make([]*Subscription, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...), true
		}
	}
	return list, false
}

// Emit invokes the exact-name listeners for event, then the wildcard
// listeners. Emitting Wildcard itself only reaches wildcard listeners.
func (e *Emitter) Emit(event string, payload any) {
	e.mu.RLock()
	var snapshot []*Subscription
	if event != Wildcard {
		snapshot = append(snapshot, e.listeners[event]...)
	}
	snapshot = append(snapshot, e.wildcard...)
	e.mu.RUnlock()

	for _, sub := range snapshot {
		if sub.removed.Load() {
			continue
		}
		if sub.once {
			if sub.removed.Swap(true) {
				continue
			}
			e.Off(sub)
		}
		e.invoke(sub, event, payload)
	}
}

func (e *Emitter) invoke(sub *Subscription, event string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event listener panicked",
				slog.String("event", event),
				slog.String("subscribed_to", sub.event),
				slog.Any("panic", r))
		}
	}()
	sub.listener(event, payload)
}

// RemoveAllListeners drops the listeners for the given events, or every
// listener when called without arguments.
func (e *Emitter) RemoveAllListeners(events ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(events) == 0 {
		for _, list := range e.listeners {
			markRemoved(list)
		}
		markRemoved(e.wildcard)
		e.listeners = make(map[string][]*Subscription)
		e.wildcard = nil
		return
	}
	for _, event := range events {
		if event == Wildcard {
			markRemoved(e.wildcard)
			e.wildcard = nil
			continue
		}
		markRemoved(e.listeners[event])
		delete(e.listeners, event)
	}
}

func markRemoved(list []*Subscription) {
	for _, s := range list {
		s.removed.Store(true)
	}
}

// ListenerCount returns the number of listeners registered under event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if event == Wildcard {
		return len(e.wildcard)
	}
	return len(e.listeners[event])
}

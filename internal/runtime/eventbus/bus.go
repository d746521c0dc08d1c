// Package eventbus fans named events out to the listeners subscribed to them.
//
// Listeners are identified by the SubscriptionID returned from Subscribe, so
// removing one listener never affects another, even when both wrap the same
// function. Emission snapshots the listener list, then invokes each listener in
// subscription order on the emitting goroutine.
package eventbus

import (
	"context"
	"sort"
	"sync"

	errspkg "github.com/drblury/localbroker/internal/runtime/errors"
	idspkg "github.com/drblury/localbroker/internal/runtime/ids"
)

// BroadcastEvent is the reserved meta-event announcing an outbound broadcast.
// Its listeners receive a single Notice argument.
const BroadcastEvent = "broadcast"

// Listener handles one emission of an event.
type Listener func(ctx context.Context, args ...any)

// SubscriptionID identifies one subscribed listener.
type SubscriptionID string

// Notice is the payload carried on BroadcastEvent.
type Notice struct {
	Event string `json:"event"`
	Args  []any  `json:"args"`
}

type subscription struct {
	id       SubscriptionID
	listener Listener
}

// Bus is an in-process event bus.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]subscription
	newID     idspkg.Generator
}

// New returns an empty bus. A nil generator falls back to ULIDs.
func New(newID idspkg.Generator) *Bus {
	if newID == nil {
		newID = idspkg.New
	}
	return &Bus{
		listeners: make(map[string][]subscription),
		newID:     newID,
	}
}

// Subscribe appends listener to the listeners of event.
func (b *Bus) Subscribe(event string, listener Listener) (SubscriptionID, error) {
	if event == "" {
		return "", errspkg.ErrEventNameRequired
	}
	if listener == nil {
		return "", errspkg.ErrListenerRequired
	}

	id := SubscriptionID(b.newID())

	b.mu.Lock()
	defer b.mu.Unlock()
	// Copy on write: emitters may still be iterating the previous slice.
	current := b.listeners[event]
	next := make([]subscription, len(current), len(current)+1)
	copy(next, current)
	b.listeners[event] = append(next, subscription{id: id, listener: listener})
	return id, nil
}

// Unsubscribe removes the listener registered under id. Unknown ids are a
// no-op. It reports whether a listener was removed.
func (b *Bus) Unsubscribe(event string, id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.listeners[event]
	for i, sub := range current {
		if sub.id != id {
			continue
		}
		if len(current) == 1 {
			delete(b.listeners, event)
			return true
		}
		next := make([]subscription, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		b.listeners[event] = next
		return true
	}
	return false
}

// OnBroadcast subscribes fn to the meta-broadcast channel.
func (b *Bus) OnBroadcast(fn func(ctx context.Context, notice Notice)) (SubscriptionID, error) {
	if fn == nil {
		return "", errspkg.ErrListenerRequired
	}
	return b.Subscribe(BroadcastEvent, func(ctx context.Context, args ...any) {
		if len(args) == 0 {
			return
		}
		if notice, ok := args[0].(Notice); ok {
			fn(ctx, notice)
		}
	})
}

// EmitLocal invokes every listener of event in subscription order and returns
// how many were invoked.
func (b *Bus) EmitLocal(ctx context.Context, event string, args ...any) int {
	return b.EmitTo(ctx, event, nil, args...)
}

// EmitTo is EmitLocal restricted to the subscriptions accepted by filter. A nil
// filter accepts every subscription.
func (b *Bus) EmitTo(ctx context.Context, event string, filter func(SubscriptionID) bool, args ...any) int {
	invoked := 0
	for _, sub := range b.snapshot(event) {
		if filter != nil && !filter(sub.id) {
			continue
		}
		sub.listener(ctx, args...)
		invoked++
	}
	return invoked
}

// EmitBroadcastNotice announces an outbound broadcast of event to the
// listeners of BroadcastEvent.
func (b *Bus) EmitBroadcastNotice(ctx context.Context, event string, args []any) int {
	return b.EmitLocal(ctx, BroadcastEvent, Notice{Event: event, Args: args})
}

// ListenerCount returns the number of listeners subscribed to event.
func (b *Bus) ListenerCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[event])
}

// Events returns the names of events with at least one listener, sorted.
func (b *Bus) Events() []string {
	b.mu.RLock()
	names := make([]string, 0, len(b.listeners))
	for name := range b.listeners {
		names = append(names, name)
	}
	b.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (b *Bus) snapshot(event string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.listeners[event]
}

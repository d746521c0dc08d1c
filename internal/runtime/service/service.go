// Package service defines what the broker expects from a registered service
// and provides BaseService, an embeddable default implementation.
package service

import (
	"context"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/drblury/localbroker/internal/runtime/eventbus"
	"github.com/drblury/localbroker/internal/runtime/methods"
)

// Method is a callable a service exposes as "<name>.<method>".
type Method = methods.Func

// Listener handles an event a service subscribes to.
type Listener = eventbus.Listener

// EventSubscription lists the listeners a service attaches to one event.
type EventSubscription struct {
	EventName string
	Listeners []Listener
}

// Service is a unit of business logic exposed through the broker.
//
// Implementations must be comparable (typically a pointer to a struct): the
// broker tracks live instances by identity.
type Service interface {
	// Name is the namespace prefixing every method key of the service.
	Name() string
	// Created runs synchronously while the service is being registered.
	Created(ctx context.Context) error
	// Started runs once the broker is started, or immediately in the
	// background when the service joins an already started broker.
	Started(ctx context.Context) error
	// Stopped runs when the service is destroyed.
	Stopped(ctx context.Context) error
	// Methods declares the methods exposed by the service, keyed by method
	// name. It must return the same set every time it is called.
	Methods() map[string]Method
	// Events declares the event subscriptions of the service.
	Events() []EventSubscription
	// RemoveAllListeners drops every listener held by the service itself.
	RemoveAllListeners()
}

// BaseService implements Service with no-op lifecycle hooks. Embed a pointer
// to it and register methods and listeners with Handle and OnEvent.
type BaseService struct {
	name string

	mu      sync.RWMutex
	methods map[string]Method
	events  *orderedmap.OrderedMap[string, []Listener]
}

// NewBaseService returns a BaseService for the given namespace.
func NewBaseService(name string) *BaseService {
	return &BaseService{
		name:    name,
		methods: make(map[string]Method),
		events:  orderedmap.New[string, []Listener](),
	}
}

func (s *BaseService) Name() string { return s.name }

func (s *BaseService) Created(context.Context) error { return nil }

func (s *BaseService) Started(context.Context) error { return nil }

func (s *BaseService) Stopped(context.Context) error { return nil }

// Handle declares method name. Declaring a name twice replaces the first
// method.
func (s *BaseService) Handle(name string, fn Method) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[name] = fn
}

// OnEvent attaches listener to event. It takes effect for the broker on the
// next registration of the service.
func (s *BaseService) OnEvent(event string, listener Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, _ := s.events.Get(event)
	s.events.Set(event, append(current, listener))
}

// Methods returns a copy of the declared methods.
func (s *BaseService) Methods() map[string]Method {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Method, len(s.methods))
	for name, fn := range s.methods {
		out[name] = fn
	}
	return out
}

// Events returns the declared subscriptions in the order their events were
// first subscribed.
func (s *BaseService) Events() []EventSubscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EventSubscription, 0, s.events.Len())
	for pair := s.events.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, EventSubscription{
			EventName: pair.Key,
			Listeners: append([]Listener(nil), pair.Value...),
		})
	}
	return out
}

// RemoveAllListeners forgets every listener attached with OnEvent. Declared
// methods are kept.
func (s *BaseService) RemoveAllListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = orderedmap.New[string, []Listener]()
}

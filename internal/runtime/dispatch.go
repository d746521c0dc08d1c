package runtime

import (
	"context"
	"time"

	"github.com/drblury/localbroker/internal/runtime/callctx"
	errspkg "github.com/drblury/localbroker/internal/runtime/errors"
	"github.com/drblury/localbroker/internal/runtime/eventbus"
	"github.com/drblury/localbroker/internal/runtime/nodes"
)

// Event scopes used in metrics.
const (
	scopeBroadcast = "broadcast"
	scopeLocal     = "local"
	scopeServices  = "services"
)

var _ callctx.Broker = (*Broker)(nil)

// Call invokes method ("<service>.<method>") with args and returns its result.
// The method runs with a fresh CallContext on its context; a call made from
// inside another call keeps the parent's RequestID. Handler errors are
// returned unmodified. Unknown methods fail with a *MethodNotFoundError.
//
// Call adds no timeout of its own: cancel ctx to bound it, provided the method
// honours cancellation.
func (b *Broker) Call(ctx context.Context, method string, args ...any) (result any, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cc := callctx.CallContext{
		ID:     b.newID(),
		NodeID: b.nodeID,
		Method: method,
		Broker: b,
	}
	if parent, ok := callctx.From(ctx); ok && parent.RequestID != "" {
		cc.RequestID = parent.RequestID
	} else {
		cc.RequestID = cc.ID
	}

	if stats, ok := b.stats.Get(method); ok {
		stats.onCallStart()
		began := time.Now()
		defer func() {
			if r := recover(); r != nil {
				stats.onCallFinish(time.Since(began), ErrorCategoryPanic, &HandlerPanicError{Method: method, Value: r})
				panic(r)
			}
			stats.onCallFinish(time.Since(began), b.classifier(err), err)
		}()
	}

	handler := *b.chain.Load()
	return handler(callctx.With(ctx, cc), &CallRequest{Method: method, Args: args, Context: cc})
}

// invoke is the innermost handler of the middleware chain.
func (b *Broker) invoke(ctx context.Context, call *CallRequest) (any, error) {
	fn, ok := b.registry.ResolveKey(call.Method)
	if !ok {
		return nil, &MethodNotFoundError{Method: call.Method}
	}
	return fn(ctx, call.Args...)
}

// Broadcast delivers event to every local listener, then announces it on the
// meta-broadcast channel so a relay can forward it to other nodes.
func (b *Broker) Broadcast(ctx context.Context, event string, args ...any) error {
	if event == "" {
		return errspkg.ErrEventNameRequired
	}
	b.emitted(event, scopeLocal, b.bus.EmitLocal(ctx, event, args...))
	b.emitted(event, scopeBroadcast, b.bus.EmitBroadcastNotice(ctx, event, args))
	return nil
}

// BroadcastLocal delivers event to the local listeners only.
func (b *Broker) BroadcastLocal(ctx context.Context, event string, args ...any) error {
	if event == "" {
		return errspkg.ErrEventNameRequired
	}
	b.emitted(event, scopeLocal, b.bus.EmitLocal(ctx, event, args...))
	return nil
}

// BroadcastToServices delivers event to the listeners installed by the live
// services named in serviceNames. Listeners attached outside of a service are
// skipped, an empty list reaches nobody, and nothing is announced on the
// meta-broadcast channel.
func (b *Broker) BroadcastToServices(ctx context.Context, serviceNames []string, event string, args ...any) error {
	if event == "" {
		return errspkg.ErrEventNameRequired
	}

	names := make(map[string]struct{}, len(serviceNames))
	for _, name := range serviceNames {
		names[name] = struct{}{}
	}

	targets := make(map[eventbus.SubscriptionID]struct{})
	b.servicesMu.Lock()
	for pair := b.services.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := names[pair.Key.Name()]; !ok {
			continue
		}
		for _, sub := range pair.Value.subscriptions {
			if sub.event == event {
				targets[sub.id] = struct{}{}
			}
		}
	}
	b.servicesMu.Unlock()

	if len(targets) == 0 {
		b.emitted(event, scopeServices, 0)
		return nil
	}
	invoked := b.bus.EmitTo(ctx, event, func(id eventbus.SubscriptionID) bool {
		_, ok := targets[id]
		return ok
	}, args...)
	b.emitted(event, scopeServices, invoked)
	return nil
}

// OnBroadcast attaches fn to the meta-broadcast channel. fn receives every
// event passed to Broadcast on this node. Detach it with
// RemoveBroadcastListener.
func (b *Broker) OnBroadcast(fn func(ctx context.Context, notice eventbus.Notice)) (eventbus.SubscriptionID, error) {
	return b.bus.OnBroadcast(fn)
}

// RemoveBroadcastListener detaches a listener attached with OnBroadcast.
func (b *Broker) RemoveBroadcastListener(id eventbus.SubscriptionID) bool {
	return b.bus.Unsubscribe(eventbus.BroadcastEvent, id)
}

// NodeList returns the nodes recorded in the node directory, all reported as
// available.
func (b *Broker) NodeList(ctx context.Context) ([]nodes.Node, error) {
	return nodes.List(ctx, b.directory)
}

func (b *Broker) emitted(event, scope string, listeners int) {
	if b.metrics != nil {
		b.metrics.EventEmitted(event, scope, listeners)
	}
}

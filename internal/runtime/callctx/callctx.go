// Package callctx carries the record describing the broker call currently
// executing. The record travels on context.Context, so any goroutine started
// with a call's context observes that call and nothing else.
package callctx

import "context"

// Broker is the part of the dispatching broker reachable from inside a call.
type Broker interface {
	Call(ctx context.Context, method string, args ...any) (any, error)
	Broadcast(ctx context.Context, event string, args ...any) error
	BroadcastLocal(ctx context.Context, event string, args ...any) error
}

// CallContext describes one in-flight call. It is created fresh for every
// Call and handed out by value, so holders cannot alter what other code
// running inside the same call observes.
type CallContext struct {
	// ID is unique to this call.
	ID string
	// NodeID is the node that dispatched the call.
	NodeID string
	// RequestID is shared by a top-level call and every call nested in it.
	RequestID string
	// Method is the fully-qualified method being invoked.
	Method string
	// Broker is the broker that dispatched the call.
	Broker Broker
}

type callContextKey struct{}

// With returns a child of ctx carrying cc.
func With(ctx context.Context, cc CallContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callContextKey{}, cc)
}

// From returns the call record stored in ctx, if any.
func From(ctx context.Context) (CallContext, bool) {
	if ctx == nil {
		return CallContext{}, false
	}
	cc, ok := ctx.Value(callContextKey{}).(CallContext)
	return cc, ok
}

// Must is like From but panics when ctx does not belong to a broker call.
func Must(ctx context.Context) CallContext {
	cc, ok := From(ctx)
	if !ok {
		panic("localbroker: context does not carry a call context")
	}
	return cc
}

// BrokerFrom returns the broker that dispatched the call running on ctx.
func BrokerFrom(ctx context.Context) (Broker, bool) {
	cc, ok := From(ctx)
	if !ok || cc.Broker == nil {
		return nil, false
	}
	return cc.Broker, true
}

/*
Package runtime implements the in-process service broker behind localbroker.

# Architecture Overview

A Broker lets independently written services expose named methods and
subscribe to named events, and lets callers invoke a method or publish an
event without knowing which service implements it.

## Broker (broker.go)

The Broker struct wires together:
  - Method registry (methods/)
  - Event bus with the meta-broadcast channel (eventbus/)
  - Live service set and lifecycle hooks (lifecycle.go)
  - Call middleware chain (middleware.go, hooks.go)
  - Node directory (nodes/)
  - Optional broadcast relay over a Watermill transport (relay/, transport/)
  - HTTP servers for metrics and the admin API

## Dispatch (dispatch.go)

Call resolves "<service>.<method>", runs it through the middleware chain with
a fresh call context on its context.Context, and returns the handler's result
or error unmodified. Broadcast, BroadcastLocal and BroadcastToServices fan
events out to listeners.

## Middleware (middleware.go)

  - Tracer: one OpenTelemetry span per call
  - LogCalls: debug logging of dispatched calls
  - Metrics: Prometheus call metrics
  - CallHooks: user callbacks around calls
  - Recoverer: converts panics into errors (opt-in)

## Stats & Monitoring (stats.go, metrics.go, admin.go)

Per-method latency percentiles, throughput and error categories, exposed
through the admin endpoints /api/services, /api/methods and /api/nodes.

# Sub-packages

  - callctx/: Call context carried on context.Context
  - config/: Broker configuration with validation
  - errors/: Sentinel errors and error types
  - eventbus/: Listener registry and emission
  - ids/: ULID generation
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - methods/: Method registry
  - nodes/: Node directories (static, Redis, SQLite)
  - relay/: Cross-node broadcast relay
  - service/: Service contract and BaseService
  - tracing/: OpenTelemetry bootstrap and propagation
  - transport/: Transport factory for the relay

# Usage Example

	broker, err := localbroker.NewBroker(ctx, &localbroker.Config{}, logger, localbroker.BrokerDependencies{})
	if err != nil {
		return err
	}

	greeter := localbroker.NewBaseService("greeter")
	greeter.Handle("hello", func(ctx context.Context, args ...any) (any, error) {
		return fmt.Sprintf("Hello, %v", args[0]), nil
	})

	if err := broker.CreateService(ctx, greeter); err != nil {
		return err
	}
	if err := broker.Start(ctx); err != nil {
		return err
	}

	reply, err := broker.Call(ctx, "greeter.hello", "Ada")
*/
package runtime

// Package localbroker is an in-process service broker. Services register
// named methods ("<service>.<method>") and event listeners with a Broker;
// callers invoke a method or publish an event without knowing which service
// implements it.
//
// Every Call runs with a fresh CallContext on its context.Context. Code inside
// the call, including goroutines started with that context, reads it with
// CallContextFrom and can reach the dispatching broker for nested calls, which
// share the RequestID of the call that started them.
//
// A minimal setup fills Config, creates a Broker, registers services with
// CreateService and calls Start; Serve runs the optional relay and HTTP
// servers until its context is cancelled.
//
// # Events
//
// Broadcast delivers an event to every local listener and then announces it on
// the reserved "broadcast" meta-event, which is where a relay picks it up.
// BroadcastLocal never leaves the node. BroadcastToServices only reaches the
// listeners installed by the named services.
//
// # Relay
//
// With RelayEnabled, broadcasts are forwarded to other nodes over a Watermill
// transport and replayed there with BroadcastLocal:
//   - channel: In-memory Go channels for a single process
//   - kafka: One consumer group per node
//   - rabbitmq: Fanout exchange with one queue per node
//   - nats: Core NATS subjects
//   - http: Point to point webhooks
//
// # Middleware
//
// Calls pass through a middleware chain. The default chain opens an
// OpenTelemetry span per call, logs dispatched calls at debug level and records
// Prometheus metrics. Add CallHooksMiddleware or RecovererMiddleware through
// BrokerDependencies.Middlewares; neither changes results unless a method
// panics under the recoverer.
//
// # Nodes
//
// NodeList reads live nodes from a static list, Redis keys or an SQLite table.
// The broker never writes to these stores.
package localbroker

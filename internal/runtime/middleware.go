package runtime

import (
	"context"
	"errors"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/localbroker/internal/runtime/callctx"
	loggingpkg "github.com/drblury/localbroker/internal/runtime/logging"
)

// CallRequest is one call travelling through the middleware chain.
type CallRequest struct {
	Method  string
	Args    []any
	Context callctx.CallContext
}

// CallHandler executes a call. The innermost handler resolves and invokes the
// method.
type CallHandler func(ctx context.Context, call *CallRequest) (any, error)

// CallMiddleware wraps a CallHandler.
type CallMiddleware func(next CallHandler) CallHandler

// MiddlewareBuilder constructs a middleware for the given broker. Returning a
// nil middleware skips the registration.
type MiddlewareBuilder func(*Broker) (CallMiddleware, error)

// MiddlewareRegistration captures how a middleware is added to a Broker.
type MiddlewareRegistration struct {
	Name       string
	Middleware CallMiddleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the chain NewBroker installs unless
// DisableDefaultMiddlewares is set. None of them alter results or errors.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		TracerMiddleware(),
		LogCallsMiddleware(nil),
		MetricsMiddleware(),
	}
}

// TracerMiddleware wraps every call in an "action <method>" span started from
// the caller's context, so it joins whatever trace the caller carries.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(b *Broker) (CallMiddleware, error) {
			return tracerMiddleware(b.tracer), nil
		},
	}
}

// LogCallsMiddleware logs every dispatched call at debug level. A nil logger
// uses the broker's.
func LogCallsMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_calls",
		Builder: func(b *Broker) (CallMiddleware, error) {
			l := logger
			if l == nil {
				l = b.Logger
			}
			if l == nil {
				return nil, errors.New("log calls middleware requires a logger")
			}
			return logCallsMiddleware(l), nil
		},
	}
}

// MetricsMiddleware records Prometheus call metrics when metrics are enabled.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(b *Broker) (CallMiddleware, error) {
			if b.metrics == nil {
				return nil, nil
			}
			return metricsMiddleware(b.metrics, b.classifier), nil
		},
	}
}

// RecovererMiddleware converts a panicking method into a *HandlerPanicError.
// It is not part of the default chain: without it a panic propagates to the
// caller like any other handler failure would.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: recovererMiddleware,
	}
}

// RegisterMiddleware appends a middleware to the chain. Calls already in
// flight keep the chain they started with.
func (b *Broker) RegisterMiddleware(reg MiddlewareRegistration) error {
	var mw CallMiddleware
	switch {
	case reg.Middleware != nil:
		mw = reg.Middleware
	case reg.Builder != nil:
		var err error
		mw, err = reg.Builder(b)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	b.chainMu.Lock()
	defer b.chainMu.Unlock()
	b.middlewares = append(b.middlewares, mw)
	b.middlewareNames = append(b.middlewareNames, reg.Name)

	handler := CallHandler(b.invoke)
	for i := len(b.middlewares) - 1; i >= 0; i-- {
		handler = b.middlewares[i](handler)
	}
	b.chain.Store(&handler)
	return nil
}

// Middlewares returns the names of the installed middlewares, outermost first.
func (b *Broker) Middlewares() []string {
	b.chainMu.Lock()
	defer b.chainMu.Unlock()
	return append([]string(nil), b.middlewareNames...)
}

func tracerMiddleware(tracer trace.Tracer) CallMiddleware {
	return func(next CallHandler) CallHandler {
		return func(ctx context.Context, call *CallRequest) (any, error) {
			ctx, span := tracer.Start(ctx, "action "+call.Method,
				trace.WithAttributes(
					attribute.String("localbroker.method", call.Method),
					attribute.String("localbroker.call_id", call.Context.ID),
					attribute.String("localbroker.request_id", call.Context.RequestID),
					attribute.String("localbroker.node_id", call.Context.NodeID),
				),
			)
			defer span.End()

			result, err := next(ctx, call)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return result, err
		}
	}
}

func logCallsMiddleware(logger loggingpkg.ServiceLogger) CallMiddleware {
	return func(next CallHandler) CallHandler {
		return func(ctx context.Context, call *CallRequest) (any, error) {
			logger.Debug("Dispatching call", loggingpkg.LogFields{
				"method":     call.Method,
				"call_id":    call.Context.ID,
				"request_id": call.Context.RequestID,
				"args":       len(call.Args),
			})
			return next(ctx, call)
		}
	}
}

func metricsMiddleware(metrics *BrokerMetrics, classify ErrorClassifier) CallMiddleware {
	return callHooksMiddleware(metricsCallHooks(metrics, classify))
}

func metricsCallHooks(metrics *BrokerMetrics, classify ErrorClassifier) CallHooks {
	if classify == nil {
		classify = defaultErrorClassifier
	}
	return CallHooks{
		OnCallStart: func(info CallInfo) {
			metrics.CallStarted(info.Method)
		},
		OnCallDone: func(info CallInfo) {
			metrics.CallFinished(info.Method, ErrorCategoryNone, info.Duration)
		},
		OnCallError: func(info CallInfo, err error) {
			metrics.CallFinished(info.Method, classify(err), info.Duration)
		},
	}
}

func recovererMiddleware(next CallHandler) CallHandler {
	return func(ctx context.Context, call *CallRequest) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				result = nil
				err = &HandlerPanicError{Method: call.Method, Value: r, Stack: debug.Stack()}
			}
		}()
		return next(ctx, call)
	}
}

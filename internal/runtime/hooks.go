package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/localbroker/internal/runtime/logging"
)

// CallInfo describes a dispatched call to hooks.
type CallInfo struct {
	// Method is the fully-qualified method name.
	Method string
	// CallID and RequestID mirror the call context of the invocation.
	CallID    string
	RequestID string
	// Args are the arguments passed to Call.
	Args []any
	// Context is the context the method runs with.
	Context context.Context
	// StartedAt is when dispatch began.
	StartedAt time.Time
	// Duration is only set in OnCallDone and OnCallError.
	Duration time.Duration
}

// CallHooks defines callbacks around every dispatched call. Nil hooks are
// skipped. Hooks run on the caller's goroutine and cannot alter the result.
type CallHooks struct {
	OnCallStart func(info CallInfo)
	OnCallDone  func(info CallInfo)
	OnCallError func(info CallInfo, err error)
}

// Merge combines two CallHooks. The hooks from other run after those of h.
func (h CallHooks) Merge(other CallHooks) CallHooks {
	return CallHooks{
		OnCallStart: chainHooks(h.OnCallStart, other.OnCallStart),
		OnCallDone:  chainHooks(h.OnCallDone, other.OnCallDone),
		OnCallError: chainErrorHooks(h.OnCallError, other.OnCallError),
	}
}

func chainHooks(a, b func(CallInfo)) func(CallInfo) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info CallInfo) {
		a(info)
		b(info)
	}
}

func chainErrorHooks(a, b func(CallInfo, error)) func(CallInfo, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info CallInfo, err error) {
		a(info, err)
		b(info, err)
	}
}

// CallHooksMiddleware invokes hooks around every call.
func CallHooksMiddleware(hooks CallHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "call_hooks",
		Middleware: callHooksMiddleware(hooks),
	}
}

func callHooksMiddleware(hooks CallHooks) CallMiddleware {
	return func(next CallHandler) CallHandler {
		return func(ctx context.Context, call *CallRequest) (any, error) {
			info := CallInfo{
				Method:    call.Method,
				CallID:    call.Context.ID,
				RequestID: call.Context.RequestID,
				Args:      call.Args,
				Context:   ctx,
				StartedAt: time.Now(),
			}

			if hooks.OnCallStart != nil {
				hooks.OnCallStart(info)
			}

			result, err := next(ctx, call)
			info.Duration = time.Since(info.StartedAt)

			if err != nil {
				if hooks.OnCallError != nil {
					hooks.OnCallError(info, err)
				}
			} else if hooks.OnCallDone != nil {
				hooks.OnCallDone(info)
			}

			return result, err
		}
	}
}

// LoggingHooks returns hooks that log call completion and failure.
func LoggingHooks(logger loggingpkg.ServiceLogger) CallHooks {
	return CallHooks{
		OnCallDone: func(info CallInfo) {
			logger.Info("Call completed", loggingpkg.LogFields{
				"method":      info.Method,
				"call_id":     info.CallID,
				"request_id":  info.RequestID,
				"duration_ms": info.Duration.Milliseconds(),
			})
		},
		OnCallError: func(info CallInfo, err error) {
			logger.Error("Call failed", err, loggingpkg.LogFields{
				"method":      info.Method,
				"call_id":     info.CallID,
				"request_id":  info.RequestID,
				"duration_ms": info.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks returns hooks that forward call outcomes to custom counters.
func MetricsHooks(onStart, onDone, onError func(method string)) CallHooks {
	return CallHooks{
		OnCallStart: func(info CallInfo) {
			if onStart != nil {
				onStart(info.Method)
			}
		},
		OnCallDone: func(info CallInfo) {
			if onDone != nil {
				onDone(info.Method)
			}
		},
		OnCallError: func(info CallInfo, _ error) {
			if onError != nil {
				onError(info.Method)
			}
		},
	}
}

// AlertingHooks returns hooks that only fire on failures.
func AlertingHooks(alertFunc func(info CallInfo, err error)) CallHooks {
	return CallHooks{OnCallError: alertFunc}
}

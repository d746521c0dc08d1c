package localbroker

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type greeter struct {
	*BaseService
	started bool
}

func newGreeter() *greeter {
	g := &greeter{BaseService: NewBaseService("greeter")}
	g.Handle("hello", func(ctx context.Context, args ...any) (any, error) {
		cc, ok := CallContextFrom(ctx)
		if !ok {
			return nil, errors.New("missing call context")
		}
		return fmt.Sprintf("Hello, %v (%s)", args[0], cc.Method), nil
	})
	return g
}

func (g *greeter) Started(context.Context) error {
	g.started = true
	return nil
}

func TestBrokerExports(t *testing.T) {
	ctx := context.Background()
	broker, err := NewBroker(ctx, &Config{NodeID: "node-1"}, DiscardLogger(), BrokerDependencies{})
	if err != nil {
		t.Fatalf("unexpected error creating broker: %v", err)
	}
	t.Cleanup(func() { _ = broker.Close() })

	g := newGreeter()
	if err := broker.CreateService(ctx, g); err != nil {
		t.Fatalf("create service: %v", err)
	}
	if err := broker.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !g.started {
		t.Fatal("expected Started override to run")
	}

	reply, err := broker.Call(ctx, "greeter.hello", "Ada")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if reply != "Hello, Ada (greeter.hello)" {
		t.Fatalf("unexpected reply %v", reply)
	}

	if err := broker.DestroyService(ctx, g); err != nil {
		t.Fatalf("destroy service: %v", err)
	}
	_, err = broker.Call(ctx, "greeter.hello", "Ada")
	if !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("expected method not found, got %v", err)
	}
	var notFound *MethodNotFoundError
	if !errors.As(err, &notFound) || notFound.Method != "greeter.hello" {
		t.Fatalf("expected *MethodNotFoundError, got %T", err)
	}
}

func TestMiddlewareExports(t *testing.T) {
	names := map[string]bool{}
	for _, reg := range []MiddlewareRegistration{
		TracerMiddleware(),
		LogCallsMiddleware(nil),
		MetricsMiddleware(),
		RecovererMiddleware(),
		CallHooksMiddleware(LoggingHooks(DiscardLogger())),
	} {
		names[reg.Name] = true
	}
	if len(names) != 5 {
		t.Fatalf("expected five distinct middlewares, got %v", names)
	}
	if len(DefaultMiddlewares()) != 3 {
		t.Fatal("expected three default middlewares")
	}
}

func TestNodeExports(t *testing.T) {
	got, err := ListNodes(context.Background(), StaticNodes{"a", "b"})
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(got) != 2 || !got[0].Available || got[1].ID != "b" {
		t.Fatalf("unexpected nodes %+v", got)
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestTransportExports(t *testing.T) {
	if !GetCapabilities("kafka").CrossProcess {
		t.Fatal("expected kafka to be cross process")
	}
	if DefaultTransportRegistry == nil {
		t.Fatal("expected default registry")
	}
}

func TestLoggerExports(t *testing.T) {
	logger := DiscardLogger()
	logger.Info("boot", LogFields{"component": "test"})
}

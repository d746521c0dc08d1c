package service

import (
	"context"
	"testing"
)

var _ Service = (*BaseService)(nil)

func TestBaseServiceDefaults(t *testing.T) {
	svc := NewBaseService("greeter")
	ctx := context.Background()

	if svc.Name() != "greeter" {
		t.Fatalf("unexpected name %q", svc.Name())
	}
	for name, hook := range map[string]func(context.Context) error{
		"created": svc.Created,
		"started": svc.Started,
		"stopped": svc.Stopped,
	} {
		if err := hook(ctx); err != nil {
			t.Fatalf("%s hook returned %v", name, err)
		}
	}
	if len(svc.Methods()) != 0 || len(svc.Events()) != 0 {
		t.Fatal("expected empty declarations")
	}
}

func TestHandleDeclaresMethods(t *testing.T) {
	svc := NewBaseService("greeter")
	svc.Handle("hello", func(_ context.Context, args ...any) (any, error) {
		return "hello " + args[0].(string), nil
	})

	got := svc.Methods()
	fn, ok := got["hello"]
	if !ok {
		t.Fatal("expected hello to be declared")
	}
	out, err := fn(context.Background(), "Ada")
	if err != nil || out != "hello Ada" {
		t.Fatalf("unexpected result %v, %v", out, err)
	}

	delete(got, "hello")
	if _, ok := svc.Methods()["hello"]; !ok {
		t.Fatal("Methods must return a copy")
	}
}

func TestOnEventKeepsFirstSubscriptionOrder(t *testing.T) {
	svc := NewBaseService("audit")
	noop := func(context.Context, ...any) {}
	svc.OnEvent("user.created", noop)
	svc.OnEvent("user.deleted", noop)
	svc.OnEvent("user.created", noop)

	events := svc.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventName != "user.created" || len(events[0].Listeners) != 2 {
		t.Fatalf("unexpected first subscription %+v", events[0])
	}
	if events[1].EventName != "user.deleted" || len(events[1].Listeners) != 1 {
		t.Fatalf("unexpected second subscription %+v", events[1])
	}
}

func TestRemoveAllListenersKeepsMethods(t *testing.T) {
	svc := NewBaseService("audit")
	svc.OnEvent("ping", func(context.Context, ...any) {})
	svc.Handle("count", func(context.Context, ...any) (any, error) { return 0, nil })

	svc.RemoveAllListeners()

	if len(svc.Events()) != 0 {
		t.Fatal("expected listeners to be cleared")
	}
	if len(svc.Methods()) != 1 {
		t.Fatal("expected methods to be kept")
	}
}

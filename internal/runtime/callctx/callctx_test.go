package callctx

import (
	"context"
	"sync"
	"testing"
)

type stubBroker struct{}

func (stubBroker) Call(context.Context, string, ...any) (any, error)   { return nil, nil }
func (stubBroker) Broadcast(context.Context, string, ...any) error      { return nil }
func (stubBroker) BroadcastLocal(context.Context, string, ...any) error { return nil }

func TestWithAndFromRoundTrip(t *testing.T) {
	cc := CallContext{ID: "c1", NodeID: "n1", RequestID: "r1", Method: "greeter.hello", Broker: stubBroker{}}
	got, ok := From(With(context.Background(), cc))
	if !ok {
		t.Fatal("expected call context")
	}
	if got.ID != "c1" || got.NodeID != "n1" || got.RequestID != "r1" || got.Method != "greeter.hello" {
		t.Fatalf("unexpected call context: %+v", got)
	}
}

func TestFromEmptyAndNil(t *testing.T) {
	if _, ok := From(context.Background()); ok {
		t.Fatal("expected no call context on background")
	}
	if _, ok := From(nil); ok {
		t.Fatal("expected no call context on nil")
	}
	if ctx := With(nil, CallContext{ID: "x"}); Must(ctx).ID != "x" {
		t.Fatal("expected With to accept nil parent")
	}
}

func TestFromReturnsCopy(t *testing.T) {
	ctx := With(context.Background(), CallContext{ID: "c1"})
	got, _ := From(ctx)
	got.ID = "mutated"
	if again, _ := From(ctx); again.ID != "c1" {
		t.Fatalf("expected stored record to be unaffected, got %q", again.ID)
	}
}

func TestNestedWithShadowsParent(t *testing.T) {
	parent := With(context.Background(), CallContext{ID: "parent", RequestID: "r"})
	child := With(parent, CallContext{ID: "child", RequestID: "r"})

	if Must(child).ID != "child" {
		t.Fatal("expected child record inside nested call")
	}
	if Must(parent).ID != "parent" {
		t.Fatal("expected parent record to be untouched")
	}
}

func TestSiblingGoroutinesAreIsolated(t *testing.T) {
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan string, 2)

	for _, id := range []string{"a", "b"} {
		ctx := With(context.Background(), CallContext{ID: id, RequestID: "req-" + id})
		wg.Add(1)
		go func(ctx context.Context, want string) {
			defer wg.Done()
			<-start
			if got := Must(ctx); got.ID != want || got.RequestID != "req-"+want {
				errs <- got.ID
			}
		}(ctx, id)
	}
	close(start)
	wg.Wait()
	close(errs)
	for id := range errs {
		t.Fatalf("goroutine observed foreign call context %q", id)
	}
}

func TestMustPanicsOutsideCall(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Must(context.Background())
}

func TestBrokerFrom(t *testing.T) {
	if _, ok := BrokerFrom(context.Background()); ok {
		t.Fatal("expected no broker outside a call")
	}
	if _, ok := BrokerFrom(With(context.Background(), CallContext{ID: "x"})); ok {
		t.Fatal("expected no broker when record has none")
	}
	if b, ok := BrokerFrom(With(context.Background(), CallContext{Broker: stubBroker{}})); !ok || b == nil {
		t.Fatal("expected broker")
	}
}

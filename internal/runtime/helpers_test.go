package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/localbroker/internal/runtime/config"
	loggingpkg "github.com/drblury/localbroker/internal/runtime/logging"
	"github.com/drblury/localbroker/internal/runtime/service"
)

func newTestBroker(t *testing.T, conf *configpkg.Config, deps BrokerDependencies) *Broker {
	t.Helper()
	if conf == nil {
		conf = &configpkg.Config{NodeID: "node-1"}
	}
	b, err := NewBroker(context.Background(), conf, loggingpkg.Discard(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// testService is a BaseService with overridable lifecycle hooks.
type testService struct {
	*service.BaseService

	created func(ctx context.Context) error
	started func(ctx context.Context) error
	stopped func(ctx context.Context) error

	createdCalls atomic.Int32
	startedCalls atomic.Int32
	stoppedCalls atomic.Int32
	removeCalls  atomic.Int32
}

func newTestService(name string) *testService {
	return &testService{BaseService: service.NewBaseService(name)}
}

func (s *testService) Created(ctx context.Context) error {
	s.createdCalls.Add(1)
	if s.created != nil {
		return s.created(ctx)
	}
	return nil
}

func (s *testService) Started(ctx context.Context) error {
	s.startedCalls.Add(1)
	if s.started != nil {
		return s.started(ctx)
	}
	return nil
}

func (s *testService) Stopped(ctx context.Context) error {
	s.stoppedCalls.Add(1)
	if s.stopped != nil {
		return s.stopped(ctx)
	}
	return nil
}

func (s *testService) RemoveAllListeners() {
	s.removeCalls.Add(1)
	s.BaseService.RemoveAllListeners()
}

// counter counts listener invocations and remembers the last arguments.
type counter struct {
	mu    sync.Mutex
	calls int
	last  []any
}

func (c *counter) listener() service.Listener {
	return func(_ context.Context, args ...any) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.calls++
		c.last = args
	}
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *counter) args() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

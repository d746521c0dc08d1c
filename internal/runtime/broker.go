package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	configpkg "github.com/drblury/localbroker/internal/runtime/config"
	errspkg "github.com/drblury/localbroker/internal/runtime/errors"
	"github.com/drblury/localbroker/internal/runtime/eventbus"
	idspkg "github.com/drblury/localbroker/internal/runtime/ids"
	loggingpkg "github.com/drblury/localbroker/internal/runtime/logging"
	"github.com/drblury/localbroker/internal/runtime/methods"
	"github.com/drblury/localbroker/internal/runtime/nodes"
	"github.com/drblury/localbroker/internal/runtime/relay"
	"github.com/drblury/localbroker/internal/runtime/service"
	"github.com/drblury/localbroker/internal/runtime/tracing"
	transportpkg "github.com/drblury/localbroker/internal/runtime/transport"
)

const shutdownTimeout = 5 * time.Second

// BrokerDependencies holds the optional collaborators of a Broker. Leave
// fields nil to use the defaults derived from the configuration.
type BrokerDependencies struct {
	// Directory overrides the node directory selected by Config.NodeDirectory.
	Directory nodes.Directory
	// TransportFactory builds the relay transport when Config.RelayEnabled is set.
	TransportFactory          transportpkg.Factory
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	// CallHooks, when any hook is set, are installed as the last middleware.
	CallHooks CallHooks
	// MetricsRegisterer receives the broker collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegisterer prometheus.Registerer
	// TracerProvider overrides the global OpenTelemetry provider.
	TracerProvider  trace.TracerProvider
	IDGenerator     idspkg.Generator
	ErrorClassifier ErrorClassifier
}

// Broker dispatches calls to the methods of registered services and fans events
// out to their listeners.
type Broker struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	nodeID    string
	newID     idspkg.Generator
	registry  *methods.Registry
	bus       *eventbus.Bus
	directory nodes.Directory

	servicesMu sync.Mutex
	services   *orderedmap.OrderedMap[service.Service, *registration]
	started    atomic.Bool

	chainMu         sync.Mutex
	middlewares     []CallMiddleware
	middlewareNames []string
	chain           atomic.Pointer[CallHandler]

	stats      *haxmap.Map[string, *MethodStats]
	classifier ErrorClassifier
	metrics    *BrokerMetrics
	tracer     trace.Tracer

	relay     *relay.Relay
	transport *transportpkg.Transport

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	closers []func() error
}

// NewBroker constructs a Broker for conf. Register services with CreateService,
// then call Start. Serve runs the relay and the metrics/admin HTTP servers.
func NewBroker(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps BrokerDependencies) (*Broker, error) {
	if conf == nil {
		conf = &configpkg.Config{}
	}
	cfg := *conf
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	if log == nil {
		log = loggingpkg.Discard()
	}

	newID := deps.IDGenerator
	if newID == nil {
		newID = idspkg.New
	}
	if cfg.NodeID == "" {
		cfg.NodeID = newID()
	}

	b := &Broker{
		Conf:       &cfg,
		Logger:     log.With(loggingpkg.LogFields{"node_id": cfg.NodeID}),
		nodeID:     cfg.NodeID,
		newID:      newID,
		registry:   methods.New(),
		bus:        eventbus.New(newID),
		services:   orderedmap.New[service.Service, *registration](),
		stats:      haxmap.New[string, *MethodStats](),
		classifier: deps.ErrorClassifier,
	}
	if b.classifier == nil {
		b.classifier = defaultErrorClassifier
	}
	base := CallHandler(b.invoke)
	b.chain.Store(&base)

	b.Logger.Info("Creating broker", loggingpkg.LogFields{
		"pubsub_system": cfg.PubSubSystem,
		"relay":         cfg.RelayEnabled,
		"config":        cfg,
	})

	if err := b.setupTracing(ctx, deps); err != nil {
		return nil, err
	}
	if err := b.setupMetrics(deps); err != nil {
		return nil, b.abort(err)
	}
	if err := b.setupDirectory(deps); err != nil {
		return nil, b.abort(err)
	}
	if err := b.registerConfiguredMiddlewares(deps); err != nil {
		return nil, b.abort(err)
	}
	if err := b.setupRelay(ctx, deps); err != nil {
		return nil, b.abort(err)
	}
	if cfg.AdminEnabled {
		b.registerAdminHandlers()
	}

	return b, nil
}

func (b *Broker) setupTracing(ctx context.Context, deps BrokerDependencies) error {
	provider := deps.TracerProvider
	if provider == nil && b.Conf.TracingEndpoint != "" {
		shutdown, err := tracing.Setup(ctx, b.Conf.TracingEndpoint, b.Conf.ServiceName)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		b.closers = append(b.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return shutdown(ctx)
		})
	}
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	b.tracer = provider.Tracer(tracing.TracerName)
	return nil
}

func (b *Broker) setupMetrics(deps BrokerDependencies) error {
	if !b.Conf.MetricsEnabled {
		return nil
	}
	metrics := NewBrokerMetrics(deps.MetricsRegisterer)
	if err := metrics.Register(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	b.metrics = metrics

	if b.Conf.MetricsPort > 0 {
		handler := promhttp.Handler()
		if gatherer, ok := deps.MetricsRegisterer.(prometheus.Gatherer); ok {
			handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
		}
		b.RegisterHTTPHandler(b.Conf.MetricsPort, "/metrics", handler)
	}
	return nil
}

func (b *Broker) setupDirectory(deps BrokerDependencies) error {
	if deps.Directory != nil {
		b.directory = deps.Directory
		return nil
	}
	dir, closer, err := nodes.FromConfig(b.Conf)
	if err != nil {
		return fmt.Errorf("node directory: %w", err)
	}
	b.directory = dir
	b.closers = append(b.closers, closer.Close)
	return nil
}

func (b *Broker) registerConfiguredMiddlewares(deps BrokerDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares)+1)
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)
	if deps.CallHooks.OnCallStart != nil || deps.CallHooks.OnCallDone != nil || deps.CallHooks.OnCallError != nil {
		registrations = append(registrations, CallHooksMiddleware(deps.CallHooks))
	}

	for _, reg := range registrations {
		if err := b.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

func (b *Broker) setupRelay(ctx context.Context, deps BrokerDependencies) error {
	if !b.Conf.RelayEnabled {
		return nil
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, b.Conf, loggingpkg.NewWatermillAdapter(b.Logger))
	if err != nil {
		return fmt.Errorf("build %s transport: %w", b.Conf.PubSubSystem, err)
	}
	b.transport = &transport

	conf := relay.Config{
		NodeID: b.nodeID,
		Topic:  b.Conf.BroadcastTopic,
		Logger: b.Logger,
	}
	if b.metrics != nil {
		conf.Observer = b.metrics
	}
	r, err := relay.New(conf, transport.Publisher, transport.Subscriber)
	if err != nil {
		return err
	}
	if err := r.Attach(b); err != nil {
		return err
	}
	b.relay = r
	return nil
}

// abort releases whatever NewBroker acquired before failing with err.
func (b *Broker) abort(err error) error {
	if closeErr := b.Close(); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}

// NodeID returns the identifier of this broker node.
func (b *Broker) NodeID() string {
	return b.nodeID
}

// Relay returns the broadcast relay, or nil when relaying is disabled.
func (b *Broker) Relay() *relay.Relay {
	return b.relay
}

// RegisterHTTPHandler mounts handler on the server Serve starts for port.
func (b *Broker) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	b.httpServersMu.Lock()
	defer b.httpServersMu.Unlock()

	if b.httpServers == nil {
		b.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := b.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		b.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

// Serve runs the relay and the registered HTTP servers until ctx is cancelled
// or one of them fails.
func (b *Broker) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range b.buildHTTPServers() {
		b.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if b.relay != nil {
		g.Go(func() error {
			return b.relay.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	return g.Wait()
}

func (b *Broker) buildHTTPServers() []*http.Server {
	b.httpServersMu.Lock()
	defer b.httpServersMu.Unlock()

	ports := make([]int, 0, len(b.httpServers))
	for port := range b.httpServers {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	servers := make([]*http.Server, 0, len(ports))
	for _, port := range ports {
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           b.httpServers[port],
			ReadHeaderTimeout: 10 * time.Second,
		})
	}
	return servers
}

// Close detaches the relay, closes the transport and the node directory, and
// flushes pending spans. Registered services are left untouched.
func (b *Broker) Close() error {
	var errs []error
	if b.relay != nil {
		errs = append(errs, b.relay.Close())
		b.relay = nil
	}
	if b.transport != nil {
		errs = append(errs, b.transport.Close())
		b.transport = nil
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

var _ io.Closer = (*Broker)(nil)

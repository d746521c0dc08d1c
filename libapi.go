package localbroker

import (
	runtimepkg "github.com/drblury/localbroker/internal/runtime"
	"github.com/drblury/localbroker/internal/runtime/callctx"
	configpkg "github.com/drblury/localbroker/internal/runtime/config"
	errspkg "github.com/drblury/localbroker/internal/runtime/errors"
	"github.com/drblury/localbroker/internal/runtime/eventbus"
	idspkg "github.com/drblury/localbroker/internal/runtime/ids"
	jsoncodec "github.com/drblury/localbroker/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/localbroker/internal/runtime/logging"
	"github.com/drblury/localbroker/internal/runtime/nodes"
	"github.com/drblury/localbroker/internal/runtime/relay"
	"github.com/drblury/localbroker/internal/runtime/service"
	"github.com/drblury/localbroker/internal/runtime/tracing"
	transportpkg "github.com/drblury/localbroker/internal/runtime/transport"
	newtransport "github.com/drblury/localbroker/transport"
)

type (
	Config             = configpkg.Config
	Broker             = runtimepkg.Broker
	BrokerDependencies = runtimepkg.BrokerDependencies
	Transport          = transportpkg.Transport
	TransportFactory   = transportpkg.Factory

	Service           = service.Service
	BaseService       = service.BaseService
	Method            = service.Method
	Listener          = service.Listener
	EventSubscription = service.EventSubscription

	CallContext     = callctx.CallContext
	BroadcastNotice = eventbus.Notice
	SubscriptionID  = eventbus.SubscriptionID

	Node          = nodes.Node
	NodeDirectory = nodes.Directory
	StaticNodes   = nodes.Static

	CallRequest            = runtimepkg.CallRequest
	CallHandler            = runtimepkg.CallHandler
	CallMiddleware         = runtimepkg.CallMiddleware
	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	MethodNotFoundError   = runtimepkg.MethodNotFoundError
	StartupError          = runtimepkg.StartupError
	HandlerPanicError     = runtimepkg.HandlerPanicError
	ConfigValidationError = errspkg.ConfigValidationError

	ServiceInfo = runtimepkg.ServiceInfo
	MethodInfo  = runtimepkg.MethodInfo
	MethodStats = runtimepkg.MethodStats

	// Call lifecycle hooks
	CallInfo  = runtimepkg.CallInfo
	CallHooks = runtimepkg.CallHooks

	// Prometheus metrics
	BrokerMetrics = runtimepkg.BrokerMetrics

	// Error classification
	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	// Broadcast relay
	RelayEnvelope = relay.Envelope

	// Transport capabilities
	Capabilities = newtransport.Capabilities

	// Modular transport types
	TransportBuilder  = newtransport.Builder
	TransportConfig   = newtransport.Config
	TransportRegistry = newtransport.Registry
)

var (
	NewBroker      = runtimepkg.NewBroker
	NewBaseService = service.NewBaseService
	LoadFromEnv    = configpkg.LoadFromEnv
	LoadConfigFile = configpkg.LoadFile
	ValidateConfig = configpkg.ValidateConfig

	// Call context access from inside a method or listener
	CallContextFrom = callctx.From
	MustCallContext = callctx.Must
	BrokerFrom      = callctx.BrokerFrom

	DefaultMiddlewares  = runtimepkg.DefaultMiddlewares
	TracerMiddleware    = runtimepkg.TracerMiddleware
	LogCallsMiddleware  = runtimepkg.LogCallsMiddleware
	MetricsMiddleware   = runtimepkg.MetricsMiddleware
	RecovererMiddleware = runtimepkg.RecovererMiddleware

	// Call lifecycle hooks
	CallHooksMiddleware = runtimepkg.CallHooksMiddleware
	LoggingHooks        = runtimepkg.LoggingHooks
	MetricsHooks        = runtimepkg.MetricsHooks
	AlertingHooks       = runtimepkg.AlertingHooks

	NewBrokerMetrics = runtimepkg.NewBrokerMetrics

	// Node directories
	ListNodes           = nodes.List
	NodeDirectoryFrom   = nodes.FromConfig
	NewRedisClient      = nodes.NewRedisClient
	NewRedisDirectory   = nodes.NewRedisDirectory
	NewSQLiteDirectory  = nodes.NewSQLiteDirectory
	OpenSQLiteDirectory = nodes.OpenSQLiteDirectory

	// Transports
	StaticTransport         = transportpkg.Static
	DefaultTransportFactory = transportpkg.DefaultFactory
	GetCapabilities         = newtransport.GetCapabilities

	// Modular transport registry.
	// Import individual transports via: _ "github.com/drblury/localbroker/transport/kafka"
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build

	SetupTracing = tracing.Setup

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode

	ErrBrokerRequired      = errspkg.ErrBrokerRequired
	ErrServiceRequired     = errspkg.ErrServiceRequired
	ErrServiceNameRequired = errspkg.ErrServiceNameRequired
	ErrMethodNotFound      = errspkg.ErrMethodNotFound
	ErrStartupFailed       = errspkg.ErrStartupFailed
	ErrListenerRequired    = errspkg.ErrListenerRequired
	ErrEventNameRequired   = errspkg.ErrEventNameRequired
	ErrDirectoryRequired   = errspkg.ErrDirectoryRequired
	ErrPublisherRequired   = errspkg.ErrPublisherRequired
	ErrSubscriberRequired  = errspkg.ErrSubscriberRequired
	ErrTopicRequired       = errspkg.ErrTopicRequired
	ErrConfigRequired      = errspkg.ErrConfigRequired

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewZerologServiceLogger   = loggingpkg.NewZerologServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	DiscardLogger             = loggingpkg.Discard

	NewID = idspkg.New
)

// BroadcastEvent is the reserved meta-event a relay listens on.
const BroadcastEvent = eventbus.BroadcastEvent

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone     = runtimepkg.ErrorCategoryNone
	ErrorCategoryNotFound = runtimepkg.ErrorCategoryNotFound
	ErrorCategoryPanic    = runtimepkg.ErrorCategoryPanic
	ErrorCategoryCanceled = runtimepkg.ErrorCategoryCanceled
	ErrorCategoryHandler  = runtimepkg.ErrorCategoryHandler
)

// Package transport lets the broker build its relay transport through a
// replaceable factory.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/localbroker/internal/runtime/config"
	errspkg "github.com/drblury/localbroker/internal/runtime/errors"
	roottransport "github.com/drblury/localbroker/transport"

	_ "github.com/drblury/localbroker/transport/transports"
)

// Transport is the publisher/subscriber pair the relay runs on.
type Transport = roottransport.Transport

// Factory abstracts how the broker initialises its relay transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

// Static returns a factory handing out t regardless of configuration. Use it
// to let several in-process brokers share one pub/sub.
func Static(t Transport) Factory {
	return FactoryFunc(func(context.Context, *config.Config, watermill.LoggerAdapter) (Transport, error) {
		return t, nil
	})
}

// DefaultFactory builds transports from the default registry, which holds
// every built-in transport.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, errspkg.ErrConfigRequired
	}
	return roottransport.Build(ctx, conf, logger)
}

// Capabilities reports what the configured relay transport guarantees.
func Capabilities(conf *config.Config) roottransport.Capabilities {
	if conf == nil {
		return roottransport.Capabilities{}
	}
	return roottransport.GetCapabilities(conf.GetPubSubSystem())
}

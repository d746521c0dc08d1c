// Package transport builds the publisher/subscriber pairs the broadcast relay
// runs on. Each backend lives in its own sub-package and registers a Builder
// with the default registry from init; import transport/transports to get all
// of them.
//
// Every builder must give each node its own view of the broadcast topic:
// a message published by one node is delivered to every subscribed node, not
// load-balanced between them.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes the publisher and the subscriber. A pub/sub implementing both
// sides is closed once.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		errs = append(errs, t.Publisher.Close())
	}
	if t.Subscriber != nil && any(t.Subscriber) != any(t.Publisher) {
		errs = append(errs, t.Subscriber.Close())
	}
	return errors.Join(errs...)
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the values transports need without depending on the full
// config package.
type Config interface {
	GetPubSubSystem() string
	// GetNodeID names the local node. Builders derive per-node consumer
	// groups and queues from it.
	GetNodeID() string

	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	GetRabbitMQURL() string

	GetNATSURL() string

	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

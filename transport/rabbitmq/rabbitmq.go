// Package rabbitmq provides a RabbitMQ relay transport. Each topic maps to a
// fanout exchange and each node binds its own durable queue to it.
package rabbitmq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/localbroker/transport"
)

// TransportName is the PubSubSystem value selecting this transport.
const TransportName = "rabbitmq"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

func init() {
	Register()
}

// Register adds the transport to the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.RabbitMQCapabilities)
}

// Config returns the AMQP configuration for cfg. Queues are named
// "<topic>_<nodeID>".
func Config(cfg transport.Config) amqp.Config {
	return amqp.NewDurablePubSubConfig(
		cfg.GetRabbitMQURL(),
		amqp.GenerateQueueNameTopicNameWithSuffix(cfg.GetNodeID()),
	)
}

// Build creates a new RabbitMQ transport sharing one connection.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	amqpConfig := Config(cfg)

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   cfg.GetRabbitMQURL(),
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}

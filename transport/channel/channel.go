// Package channel provides an in-memory relay transport backed by a watermill
// GoChannel. It only connects brokers that share the returned pub/sub, so it
// serves tests and single-process deployments.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/localbroker/transport"
)

// TransportName is the PubSubSystem value selecting this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	Register()
}

// Register adds the transport to the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a new GoChannel pub/sub. Every subscriber of a topic receives
// every message published to it.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(gochannel.Config{}, logger)
	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

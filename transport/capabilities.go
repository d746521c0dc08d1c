package transport

// Capabilities describes how a backend behaves as a broadcast relay.
type Capabilities struct {
	Name string `json:"name"`

	// CrossProcess is false for backends that only connect brokers living in
	// the same process.
	CrossProcess bool `json:"cross_process"`

	// SupportsOrdering means broadcasts from one node arrive in publish order.
	SupportsOrdering bool `json:"supports_ordering"`

	// SupportsAck means unacknowledged broadcasts are redelivered.
	SupportsAck bool `json:"supports_ack"`

	// Durable means broadcasts published while a node is down are delivered
	// once it reconnects.
	Durable bool `json:"durable"`
}

// SupportsReliableDelivery reports at-least-once delivery.
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.Durable
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		CrossProcess:     true,
		SupportsOrdering: true,
		SupportsAck:      true,
		Durable:          true,
	}

	RabbitMQCapabilities = Capabilities{
		Name:         "rabbitmq",
		CrossProcess: true,
		SupportsAck:  true,
		Durable:      true,
	}

	NATSCapabilities = Capabilities{
		Name:             "nats",
		CrossProcess:     true,
		SupportsOrdering: true,
	}

	HTTPCapabilities = Capabilities{
		Name:         "http",
		CrossProcess: true,
	}
)

// GetCapabilities returns the capabilities registered for name in the default
// registry.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}

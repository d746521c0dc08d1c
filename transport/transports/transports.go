// Package transports registers every built-in relay transport with the
// default registry. Import it for its side effects.
package transports

import (
	_ "github.com/drblury/localbroker/transport/channel"
	_ "github.com/drblury/localbroker/transport/http"
	_ "github.com/drblury/localbroker/transport/kafka"
	_ "github.com/drblury/localbroker/transport/nats"
	_ "github.com/drblury/localbroker/transport/rabbitmq"
)

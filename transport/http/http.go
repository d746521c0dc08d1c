// Package http provides an HTTP relay transport. Broadcasts are POSTed to
// HTTPPublisherURL+topic and received on a server listening on
// HTTPServerAddress. Delivery is point to point; fan-out to several nodes
// needs a proxy in front of them.
package http

import (
	"context"
	nethttp "net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/localbroker/transport"
)

// TransportName is the PubSubSystem value selecting this transport.
const TransportName = "http"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	Register()
}

// Register adds the transport to the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.HTTPCapabilities)
}

type httpServer interface {
	StartHTTPServer() error
}

// serverStartingSubscriber starts the HTTP server after the first route has
// been registered by Subscribe.
type serverStartingSubscriber struct {
	message.Subscriber
	logger watermill.LoggerAdapter
	once   sync.Once
}

func (s *serverStartingSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := s.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	if server, ok := s.Subscriber.(httpServer); ok {
		s.once.Do(func() {
			go func() {
				if err := server.StartHTTPServer(); err != nil && err != nethttp.ErrServerClosed {
					s.logger.Error("Failed to start HTTP subscriber server", err, nil)
				}
			}()
		})
	}
	return ch, nil
}

// Build creates a new HTTP transport.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	serverAddr := cfg.GetHTTPServerAddress()
	publisherURL := cfg.GetHTTPPublisherURL()

	publisher, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				return http.DefaultMarshalMessageFunc(publisherURL+topic, msg)
			},
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		serverAddr,
		http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: &serverStartingSubscriber{Subscriber: subscriber, logger: logger},
	}, nil
}

func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}

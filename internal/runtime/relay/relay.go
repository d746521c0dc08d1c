// Package relay forwards broadcasts between broker nodes over a watermill
// pub/sub.
//
// Outbound, the relay listens on the broker's meta-broadcast channel and
// publishes every notice to a shared topic. Inbound, it consumes that topic
// and replays each broadcast with BroadcastLocal, so a relayed broadcast is
// never relayed again. Messages published by the local node are skipped.
//
// Arguments cross the wire as JSON: receivers observe them as decoded JSON
// values (strings, float64, bool, []any, map[string]any, nil).
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	errspkg "github.com/drblury/localbroker/internal/runtime/errors"
	"github.com/drblury/localbroker/internal/runtime/eventbus"
	idspkg "github.com/drblury/localbroker/internal/runtime/ids"
	"github.com/drblury/localbroker/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/localbroker/internal/runtime/logging"
	"github.com/drblury/localbroker/internal/runtime/tracing"
)

// Metadata keys set on every relayed message.
const (
	MetadataNodeID = "localbroker_node_id"
	MetadataEvent  = "localbroker_event"
)

// Broker is the part of the broker the relay hooks into.
type Broker interface {
	OnBroadcast(fn func(ctx context.Context, notice eventbus.Notice)) (eventbus.SubscriptionID, error)
	RemoveBroadcastListener(id eventbus.SubscriptionID) bool
	BroadcastLocal(ctx context.Context, event string, args ...any) error
}

// Envelope is the payload of a relayed broadcast.
type Envelope struct {
	NodeID string `json:"node_id"`
	Event  string `json:"event"`
	Args   []any  `json:"args"`
}

// Config configures a Relay.
type Config struct {
	NodeID string
	Topic  string
	Logger loggingpkg.ServiceLogger
	// Observer, if set, is told about every relayed message.
	Observer Observer
}

// Observer receives relay traffic notifications.
type Observer interface {
	RelayPublished(event string, err error)
	RelayReceived(event string, err error)
}

// Relay connects one broker to the broadcast topic.
type Relay struct {
	conf       Config
	publisher  message.Publisher
	subscriber message.Subscriber
	log        loggingpkg.ServiceLogger
	router     *message.Router

	mu       sync.Mutex
	broker   Broker
	listener eventbus.SubscriptionID
}

// New validates its inputs and returns an unattached relay.
func New(conf Config, pub message.Publisher, sub message.Subscriber) (*Relay, error) {
	if pub == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if sub == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if conf.Topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	log := conf.Logger
	if log == nil {
		log = loggingpkg.Discard()
	}
	return &Relay{
		conf:       conf,
		publisher:  pub,
		subscriber: sub,
		log:        log.With(loggingpkg.LogFields{"component": "relay", "topic": conf.Topic}),
	}, nil
}

// Attach starts publishing the outbound broadcasts of broker and prepares the
// inbound router. It must be called once, before Run.
func (r *Relay) Attach(broker Broker) error {
	if broker == nil {
		return errspkg.ErrBrokerRequired
	}

	router, err := message.NewRouter(message.RouterConfig{}, loggingpkg.NewWatermillAdapter(r.log))
	if err != nil {
		return err
	}
	router.AddMiddleware(middleware.Recoverer)
	router.AddNoPublisherHandler("localbroker_relay_"+r.conf.NodeID, r.conf.Topic, r.subscriber, r.handle)

	id, err := broker.OnBroadcast(r.publish)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.broker = broker
	r.listener = id
	r.router = router
	r.mu.Unlock()
	return nil
}

// Run consumes the broadcast topic until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.mu.Lock()
	router := r.router
	r.mu.Unlock()
	if router == nil {
		return errors.New("relay: Run called before Attach")
	}
	r.log.Info("Starting broadcast relay", loggingpkg.LogFields{"node_id": r.conf.NodeID})
	return router.Run(ctx)
}

// Running is closed once the inbound subscription is live.
func (r *Relay) Running() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.router == nil {
		ch := make(chan struct{})
		return ch
	}
	return r.router.Running()
}

// Close detaches from the broker and stops consuming.
func (r *Relay) Close() error {
	r.mu.Lock()
	broker, listener, router := r.broker, r.listener, r.router
	r.broker = nil
	r.mu.Unlock()

	if broker != nil {
		broker.RemoveBroadcastListener(listener)
	}
	if router != nil {
		return router.Close()
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, notice eventbus.Notice) {
	err := r.Publish(ctx, notice)
	if r.conf.Observer != nil {
		r.conf.Observer.RelayPublished(notice.Event, err)
	}
	if err != nil {
		r.log.Error("Failed to relay broadcast", err, loggingpkg.LogFields{"event": notice.Event})
	}
}

// Publish sends notice to the other nodes.
func (r *Relay) Publish(ctx context.Context, notice eventbus.Notice) error {
	msg, err := r.encode(ctx, notice)
	if err != nil {
		return err
	}
	return r.publisher.Publish(r.conf.Topic, msg)
}

func (r *Relay) encode(ctx context.Context, notice eventbus.Notice) (*message.Message, error) {
	payload, err := jsoncodec.Marshal(Envelope{
		NodeID: r.conf.NodeID,
		Event:  notice.Event,
		Args:   notice.Args,
	})
	if err != nil {
		return nil, fmt.Errorf("encode broadcast %q: %w", notice.Event, err)
	}

	msg := message.NewMessage(idspkg.New(), payload)
	msg.Metadata.Set(MetadataNodeID, r.conf.NodeID)
	msg.Metadata.Set(MetadataEvent, notice.Event)
	if ctx != nil {
		tracing.Inject(ctx, msg)
	}
	return msg, nil
}

func (r *Relay) handle(msg *message.Message) error {
	if msg.Metadata.Get(MetadataNodeID) == r.conf.NodeID {
		return nil
	}

	var env Envelope
	if err := jsoncodec.Unmarshal(msg.Payload, &env); err != nil {
		// Redelivering a malformed payload cannot succeed.
		r.log.Error("Dropping malformed relayed broadcast", err, loggingpkg.LogFields{"message_uuid": msg.UUID})
		return nil
	}
	if env.NodeID == r.conf.NodeID {
		return nil
	}
	if env.Event == "" {
		r.log.Error("Dropping relayed broadcast without event name", errspkg.ErrEventNameRequired, loggingpkg.LogFields{
			"message_uuid": msg.UUID,
			"origin_node":  env.NodeID,
		})
		return nil
	}

	r.mu.Lock()
	broker := r.broker
	r.mu.Unlock()
	if broker == nil {
		return errspkg.ErrBrokerRequired
	}

	ctx := tracing.Extract(msg.Context(), msg)
	r.log.Debug("Replaying relayed broadcast", loggingpkg.LogFields{
		"event":        env.Event,
		"origin_node":  env.NodeID,
		"message_uuid": msg.UUID,
	})
	err := broker.BroadcastLocal(ctx, env.Event, env.Args...)
	if r.conf.Observer != nil {
		r.conf.Observer.RelayReceived(env.Event, err)
	}
	return err
}

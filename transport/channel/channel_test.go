package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/localbroker/transport"
)

func TestRegister(t *testing.T) {
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "channel", caps.Name)
	assert.True(t, caps.SupportsOrdering)
	assert.False(t, caps.CrossProcess)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.ChannelCapabilities, Capabilities())
}

func TestBuildFansOutToEverySubscriber(t *testing.T) {
	tr, err := Build(context.Background(), nil, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := tr.Subscriber.Subscribe(ctx, "topic")
	require.NoError(t, err)
	second, err := tr.Subscriber.Subscribe(ctx, "topic")
	require.NoError(t, err)

	require.NoError(t, tr.Publisher.Publish("topic", message.NewMessage("m1", []byte("x"))))

	for _, ch := range []<-chan *message.Message{first, second} {
		select {
		case msg := <-ch:
			assert.Equal(t, "m1", msg.UUID)
			msg.Ack()
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the message")
		}
	}
}

func TestBuildUsesFactory(t *testing.T) {
	original := Factory
	defer func() { Factory = original }()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	Factory = func(gochannel.Config, watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
		return pubSub, pubSub
	}

	tr, err := Build(context.Background(), nil, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pubSub, tr.Publisher)
	assert.Same(t, pubSub, tr.Subscriber)
}

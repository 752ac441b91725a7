package events

import (
	"encoding/json"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type capturedMessage struct {
	topic string
	msg   *message.Message
}

type fakePublisher struct {
	captured []capturedMessage
	err      error
}

func (f *fakePublisher) Publish(topic string, messages ...*message.Message) error {
	if f.err != nil {
		return f.err
	}
	for _, msg := range messages {
		f.captured = append(f.captured, capturedMessage{topic: topic, msg: msg})
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestPublisherManager_SequenceNumbers(t *testing.T) {
	pub := &fakePublisher{}
	pm := NewPublisherManager()
	pm.SubscribePublisher("chat.state", pub)

	require.NoError(t, pm.Publish(StateChange{Type: EventTypeMessage}))
	require.NoError(t, pm.Publish(StateChange{Type: EventTypeConversations}))

	require.Len(t, pub.captured, 2)
	require.Equal(t, "chat.state", pub.captured[0].topic)
	require.Equal(t, "0", pub.captured[0].msg.Metadata.Get("sequence_number"))
	require.Equal(t, "1", pub.captured[1].msg.Metadata.Get("sequence_number"))
}

func TestPublisherManager_DistributesToAllPublishers(t *testing.T) {
	first := &fakePublisher{}
	second := &fakePublisher{}
	pm := NewPublisherManager()
	pm.SubscribePublisher("chat.state", first)
	pm.SubscribePublisher("chat.state", second)

	require.NoError(t, pm.Publish(StateChange{Type: EventTypeInProgress}))
	require.Len(t, first.captured, 1)
	require.Len(t, second.captured, 1)
}

func TestPublisherManager_PublisherErrorDoesNotFailPublish(t *testing.T) {
	failing := &fakePublisher{err: errors.New("broker down")}
	healthy := &fakePublisher{}
	pm := NewPublisherManager()
	pm.SubscribePublisher("chat.state", failing)
	pm.SubscribePublisher("chat.state", healthy)

	require.NoError(t, pm.Publish(StateChange{Type: EventTypeMessage}))
	require.Len(t, healthy.captured, 1)
}

func TestBridgeBus_ForwardsNotifications(t *testing.T) {
	pub := &fakePublisher{}
	pm := NewPublisherManager()
	pm.SubscribePublisher("chat.state", pub)

	bus := NewBus()
	unbridge := BridgeBus(bus, pm)

	bus.Notify(EventTypeActiveConversation)
	require.Len(t, pub.captured, 1)

	change := StateChange{}
	require.NoError(t, json.Unmarshal(pub.captured[0].msg.Payload, &change))
	require.Equal(t, EventTypeActiveConversation, change.Type)

	unbridge()
	bus.Notify(EventTypeActiveConversation)
	require.Len(t, pub.captured, 1)
}

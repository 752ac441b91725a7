package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// StateChange is the payload emitted on watermill topics for every bus
// notification forwarded by BridgeBus.
type StateChange struct {
	Type EventType `json:"type"`
}

// PublisherManager distributes messages to a set of watermill Publishers.
// You "subscribe" a publisher to a given topic; a published payload is
// distributed to all publishers on the channel they were subscribed with.
//
// The manager keeps a sequence number for outgoing messages, in the order
// they are handled by Publish.
type PublisherManager struct {
	Publishers     map[string][]message.Publisher
	sequenceNumber uint64
	mutex          sync.Mutex
}

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{
		Publishers: make(map[string][]message.Publisher),
	}
}

func (s *PublisherManager) SubscribePublisher(topic string, pub message.Publisher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Publishers[topic] = append(s.Publishers[topic], pub)
}

// Publish serializes the payload to JSON and distributes it to all
// publishers across all topics.
func (s *PublisherManager) Publish(payload interface{}) error {
	// lock for the sequence number
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("sequence_number", fmt.Sprintf("%d", s.sequenceNumber))
	s.sequenceNumber++

	for topic, pubs := range s.Publishers {
		for _, pub := range pubs {
			err = pub.Publish(topic, msg)
			if err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("failed to publish state change")
			}
		}
	}

	return nil
}

// PublishBlind publishes and logs any error instead of returning it.
func (s *PublisherManager) PublishBlind(payload interface{}) {
	err := s.Publish(payload)
	if err != nil {
		log.Warn().Err(err).Msg("failed to publish state change")
	}
}

// BridgeBus forwards every bus notification to the publisher manager as a
// StateChange payload. Delivery stays best-effort: publish failures are
// logged and never surface into the notifying call. The returned closure
// removes all forwarders.
func BridgeBus(bus *Bus, pm *PublisherManager) func() {
	unsubscribers := make([]func(), 0, len(AllEventTypes()))
	for _, eventType := range AllEventTypes() {
		eventType := eventType
		unsubscribe := bus.Subscribe(eventType, func() {
			pm.PublishBlind(StateChange{Type: eventType})
		})
		unsubscribers = append(unsubscribers, unsubscribe)
	}
	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}

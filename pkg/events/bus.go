package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType identifies a state-change notification kind published by the
// state manager. Subscribers re-read the state they care about through the
// manager's accessors when notified; events carry no payload.
type EventType string

const (
	// EventTypeMessage fires whenever a message is appended, mutated by a
	// streaming chunk, finalized, or rolled back.
	EventTypeMessage EventType = "message"
	// EventTypeActiveConversation fires when the active conversation id changes.
	EventTypeActiveConversation EventType = "active-conversation"
	// EventTypeInProgress fires when the in-flight send flag flips.
	EventTypeInProgress EventType = "in-progress"
	// EventTypeConversations fires when the conversation list changes.
	EventTypeConversations EventType = "conversations"
	// EventTypeInitializingMessages fires when the initializing flag flips
	// (client init or conversation history load).
	EventTypeInitializingMessages EventType = "initializing-messages"
	// EventTypeInitLimitation fires when the client reports a degraded-mode
	// initialization limitation.
	EventTypeInitLimitation EventType = "init-limitation"
)

// AllEventTypes lists every event kind, in a stable order.
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeMessage,
		EventTypeActiveConversation,
		EventTypeInProgress,
		EventTypeConversations,
		EventTypeInitializingMessages,
		EventTypeInitLimitation,
	}
}

// Callback is invoked synchronously from within Notify.
type Callback func()

type subscription struct {
	id uint64
	fn Callback
}

// Bus is a typed observer registry. Callbacks for a given kind run in
// subscription order, synchronously, within the notifying call. A panicking
// callback is recovered and logged so that the remaining subscribers still
// run.
type Bus struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers map[EventType][]subscription
}

func NewBus() *Bus {
	return &Bus{
		subscribers: map[EventType][]subscription{},
	}
}

// Subscribe registers fn for the given event kind and returns an unsubscribe
// closure. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(eventType EventType, fn Callback) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, fn: fn})

	return func() {
		b.unsubscribe(eventType, id)
	}
}

func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Notify invokes every callback registered for the given kind. Delivery is
// best-effort and isolated per subscriber.
func (b *Bus) Notify(eventType EventType) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subscribers[eventType]))
	copy(subs, b.subscribers[eventType])
	b.mu.Unlock()

	for _, s := range subs {
		invokeCallback(eventType, s.fn)
	}
}

func invokeCallback(eventType EventType, fn Callback) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Str("event_type", string(eventType)).
				Interface("panic", r).
				Msg("event subscriber panicked")
		}
	}()
	fn()
}

package state

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"sort"
	"sync"

	clone "github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/client"
	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/conversation"
	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/events"
)

// DefaultPromotionRetryLimit bounds consecutive pre-send promotion failures
// before the manager degrades to a visible error message instead of retrying
// silently. Configurable via WithPromotionRetryLimit.
const DefaultPromotionRetryLimit = 2

const (
	lockedConversationAnswer = "This conversation has been locked and can no longer accept new messages. Start a new conversation to continue."
	promotionFailedAnswer    = "A new conversation could not be created. Your messages will stay in this local conversation until the service recovers."
)

type ManagerImpl struct {
	client client.AIClient
	bus    *events.Bus
	guard  *SendGuard

	mu                   sync.Mutex
	conversations        map[string]*conversation.Conversation
	activeConversationID string
	initialized          bool
	initializing         bool
	initLimitation       *client.InitLimitation
	promotionRetries     int

	promotionRetryLimit int
}

var _ Manager = (*ManagerImpl)(nil)

type ManagerOption func(*ManagerImpl)

// WithBus installs a shared event bus, e.g. one already bridged to a
// watermill publisher manager.
func WithBus(bus *events.Bus) ManagerOption {
	return func(m *ManagerImpl) {
		m.bus = bus
	}
}

// WithPromotionRetryLimit overrides the number of consecutive promotion
// failures tolerated before the degraded-mode error message is appended.
func WithPromotionRetryLimit(limit int) ManagerOption {
	return func(m *ManagerImpl) {
		if limit > 0 {
			m.promotionRetryLimit = limit
		}
	}
}

func NewManager(aiClient client.AIClient, options ...ManagerOption) *ManagerImpl {
	ret := &ManagerImpl{
		client:              aiClient,
		guard:               &SendGuard{},
		conversations:       map[string]*conversation.Conversation{},
		promotionRetryLimit: DefaultPromotionRetryLimit,
	}

	for _, option := range options {
		option(ret)
	}

	if ret.bus == nil {
		ret.bus = events.NewBus()
	}

	return ret
}

// Init asks the client collaborator for existing conversations and seeds the
// store from the result. Idempotent: a second call while initializing or
// after completion is a no-op.
//
// On failure the manager still transitions to initialized so the UI is not
// stuck, synthesizes a bot message carrying the error text, attaches it to
// the active (or a freshly minted temporary) conversation, and returns the
// error after notifying every event kind.
func (m *ManagerImpl) Init(ctx context.Context) error {
	if m == nil {
		return ErrManagerNil
	}
	if m.client == nil {
		return ErrNoClient
	}

	m.mu.Lock()
	if m.initialized || m.initializing {
		m.mu.Unlock()
		return nil
	}
	m.initializing = true
	m.mu.Unlock()
	m.bus.Notify(events.EventTypeInitializingMessages)
	m.bus.Notify(events.EventTypeInProgress)

	resp, err := m.client.Init(ctx)
	if err == nil && resp != nil && resp.Error != nil {
		// a structured error field and a returned error mean the same thing
		err = resp.Error
	}
	if err != nil {
		return m.failInit(err)
	}

	var limitation *client.InitLimitation
	m.mu.Lock()
	if resp != nil {
		for _, conv := range resp.Conversations {
			if conv == nil {
				continue
			}
			// messages stay unloaded until the conversation is activated
			if conv.Messages == nil {
				conv.Messages = []*conversation.Message{}
			}
			m.conversations[conv.ID] = conv
		}
		limitation = resp.Limitation
		m.initLimitation = resp.Limitation
	}
	m.initialized = true
	m.initializing = false
	conversationCount := len(m.conversations)
	m.mu.Unlock()

	log.Debug().Int("conversation_count", conversationCount).Msg("state manager initialized")

	m.bus.Notify(events.EventTypeInitializingMessages)
	m.bus.Notify(events.EventTypeConversations)
	if limitation != nil {
		m.bus.Notify(events.EventTypeInitLimitation)
	}
	m.bus.Notify(events.EventTypeInProgress)
	return nil
}

func (m *ManagerImpl) failInit(cause error) error {
	answer := initErrorAnswer(cause)

	m.mu.Lock()
	m.initialized = true
	m.initializing = false
	conv := m.conversations[m.activeConversationID]
	if conv == nil {
		conv = conversation.NewTemporary()
		m.conversations[conv.ID] = conv
		m.activeConversationID = conv.ID
	}
	conv.Messages = append(conv.Messages, conversation.NewBotMessage(conversation.WithAnswer(answer)))
	m.mu.Unlock()

	log.Error().Err(cause).Msg("client initialization failed")
	for _, eventType := range events.AllEventTypes() {
		m.bus.Notify(eventType)
	}
	return errors.Wrap(cause, "client initialization failed")
}

// initErrorAnswer renders the visible text for an initialization failure:
// the structured message when the client reported one, a JSON rendering of
// the error otherwise.
func initErrorAnswer(cause error) string {
	var apiErr *client.APIError
	if goerrors.As(cause, &apiErr) {
		return apiErr.Message
	}
	b, err := json.Marshal(map[string]string{"message": cause.Error()})
	if err != nil {
		return cause.Error()
	}
	return string(b)
}

// SetActiveConversationID switches the active conversation, lazily creating
// the record, then loads its history from the client. History absence is not
// fatal: fetch failures are logged and swallowed, the conversation stays
// usable for new sends.
func (m *ManagerImpl) SetActiveConversationID(ctx context.Context, conversationID string) {
	m.mu.Lock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		conv = conversation.New(conversationID)
		m.conversations[conversationID] = conv
	}
	m.activeConversationID = conversationID
	m.mu.Unlock()
	m.bus.Notify(events.EventTypeActiveConversation)
	m.bus.Notify(events.EventTypeConversations)

	if conversation.IsTemporaryID(conversationID) {
		// the backend has never seen this conversation, nothing to fetch
		return
	}

	m.mu.Lock()
	m.initializing = true
	m.mu.Unlock()
	m.bus.Notify(events.EventTypeInitializingMessages)

	history, err := m.client.GetConversationHistory(ctx, conversationID)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to fetch conversation history")
	} else {
		messages := make([]*conversation.Message, 0, len(history)*2)
		for _, entry := range history {
			if entry == nil {
				continue
			}
			messages = append(messages,
				conversation.NewUserMessage(entry.Input, conversation.WithDate(entry.Date)),
				conversation.NewBotMessage(
					conversation.WithID(entry.MessageID),
					conversation.WithAnswer(entry.Answer),
					conversation.WithAdditionalAttributes(entry.AdditionalAttributes),
					conversation.WithDate(entry.Date),
				),
			)
		}
		m.mu.Lock()
		conv.Messages = messages
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.initializing = false
	m.mu.Unlock()
	m.bus.Notify(events.EventTypeInitializingMessages)
	if err == nil {
		m.bus.Notify(events.EventTypeMessage)
	}
}

// SendMessage submits a query on the active conversation. At most one send
// may be in flight per manager; a concurrent call fails fast with
// ErrSendInProgress. An empty query is a no-op.
func (m *ManagerImpl) SendMessage(ctx context.Context, query string, opts *client.SendOptions) (*client.MessageResponse, error) {
	if query == "" {
		return nil, nil
	}
	if err := m.guard.Begin(); err != nil {
		return nil, err
	}
	m.bus.Notify(events.EventTypeInProgress)
	defer func() {
		m.guard.End()
		m.bus.Notify(events.EventTypeInProgress)
	}()

	m.mu.Lock()
	if m.activeConversationID == "" {
		temp := conversation.NewTemporary()
		m.conversations[temp.ID] = temp
		m.activeConversationID = temp.ID
		m.mu.Unlock()
		m.bus.Notify(events.EventTypeActiveConversation)
		m.bus.Notify(events.EventTypeConversations)
	} else {
		m.mu.Unlock()
	}

	// the temporary sentinel must never reach the backend
	if m.IsTemporaryConversation() {
		if !m.promoteActiveConversation(ctx) {
			return nil, nil
		}
	}

	m.mu.Lock()
	active := m.conversations[m.activeConversationID]
	if active == nil {
		active = conversation.New(m.activeConversationID)
		m.conversations[active.ID] = active
	}
	if len(active.Messages) == 0 {
		active.Title = query
	}
	active.Messages = append(active.Messages, conversation.NewUserMessage(query))
	locked := active.Locked
	m.mu.Unlock()
	m.bus.Notify(events.EventTypeMessage)

	if locked {
		m.mu.Lock()
		active.Messages = append(active.Messages, conversation.NewBotMessage(conversation.WithAnswer(lockedConversationAnswer)))
		m.mu.Unlock()
		m.bus.Notify(events.EventTypeMessage)
		return nil, nil
	}

	// appended before the call so streaming chunks and the final response
	// target a known message identity
	placeholder := conversation.NewBotMessage()
	m.mu.Lock()
	active.Messages = append(active.Messages, placeholder)
	targetID := active.ID
	m.mu.Unlock()

	sendOpts := &client.SendOptions{}
	var userAfterChunk client.AfterChunkFunc
	if opts != nil {
		sendOpts.Stream = opts.Stream
		sendOpts.RequestPayload = opts.RequestPayload
		sendOpts.Headers = opts.Headers
		userAfterChunk = opts.AfterChunk
	}
	if userAfterChunk == nil {
		if provider, ok := m.client.(client.DefaultStreamingHandlerProvider); ok {
			userAfterChunk = provider.GetDefaultStreamingHandler()
		}
	}
	sendOpts.AfterChunk = func(chunk *client.MessageResponse) {
		if chunk == nil {
			return
		}
		m.mu.Lock()
		placeholder.Answer = chunk.Answer
		if chunk.MessageID != "" {
			placeholder.ID = chunk.MessageID
		}
		if chunk.AdditionalAttributes != nil {
			placeholder.AdditionalAttributes = chunk.AdditionalAttributes
		}
		m.mu.Unlock()
		m.bus.Notify(events.EventTypeMessage)
		if userAfterChunk != nil {
			userAfterChunk(chunk)
		}
	}

	resp, err := m.client.SendMessage(ctx, targetID, query, sendOpts)
	if err != nil {
		// no dangling empty bot message after a failed send
		m.mu.Lock()
		removeMessage(active, placeholder)
		m.mu.Unlock()
		m.bus.Notify(events.EventTypeMessage)
		return nil, errors.Wrap(err, "send message failed")
	}

	m.mu.Lock()
	if resp != nil {
		placeholder.Answer = resp.Answer
		if resp.MessageID != "" {
			placeholder.ID = resp.MessageID
		}
		if resp.AdditionalAttributes != nil {
			placeholder.AdditionalAttributes = resp.AdditionalAttributes
		}
	}
	m.mu.Unlock()

	if resp != nil && resp.ConversationID != "" && resp.ConversationID != targetID {
		// backend assigned the conversation id on first contact
		m.transplant(targetID, resp.ConversationID, nil)
	}
	m.bus.Notify(events.EventTypeMessage)
	return resp, nil
}

// promoteActiveConversation converts the temporary conversation into a
// backend-confirmed one before the send reaches the network. Failures are
// absorbed: the retry counter increments, and once it reaches the configured
// limit a visible error message is appended to the temporary conversation.
func (m *ManagerImpl) promoteActiveConversation(ctx context.Context) bool {
	created, err := m.client.CreateNewConversation(ctx)
	if err == nil && created == nil {
		err = errors.New("client returned no conversation")
	}
	if err != nil {
		m.mu.Lock()
		m.promotionRetries++
		degraded := m.promotionRetries >= m.promotionRetryLimit
		if degraded {
			if conv := m.conversations[m.activeConversationID]; conv != nil {
				conv.Messages = append(conv.Messages, conversation.NewBotMessage(conversation.WithAnswer(promotionFailedAnswer)))
			}
		}
		attempts := m.promotionRetries
		m.mu.Unlock()

		log.Warn().Err(err).Int("consecutive_failures", attempts).Msg("conversation promotion failed")
		if degraded {
			m.bus.Notify(events.EventTypeMessage)
		}
		return false
	}

	m.mu.Lock()
	m.promotionRetries = 0
	m.mu.Unlock()
	m.transplant(conversation.TemporaryID, created.ID, created)
	return true
}

// transplant moves all messages from one conversation record to another,
// deletes the source, and switches the active id when it pointed at the
// source. template, when present, provides the backend-assigned title, lock
// flag, and creation time for a destination that doesn't exist yet.
func (m *ManagerImpl) transplant(fromID string, toID string, template *conversation.Conversation) {
	m.mu.Lock()
	src, ok := m.conversations[fromID]
	if !ok || fromID == toID || toID == "" {
		m.mu.Unlock()
		return
	}
	dst, exists := m.conversations[toID]
	if !exists {
		if template != nil {
			dst = &conversation.Conversation{
				ID:        toID,
				Title:     template.Title,
				Locked:    template.Locked,
				CreatedAt: template.CreatedAt,
				Messages:  []*conversation.Message{},
			}
		} else {
			dst = conversation.New(toID)
		}
		if dst.CreatedAt.IsZero() {
			dst.CreatedAt = src.CreatedAt
		}
		m.conversations[toID] = dst
	}
	if src.Title != "" {
		dst.Title = src.Title
	}
	dst.Messages = append(dst.Messages, src.Messages...)
	delete(m.conversations, fromID)
	wasActive := m.activeConversationID == fromID
	if wasActive {
		m.activeConversationID = toID
	}
	m.mu.Unlock()

	log.Debug().Str("from", fromID).Str("to", toID).Msg("conversation promoted")
	if wasActive {
		m.bus.Notify(events.EventTypeActiveConversation)
	}
	m.bus.Notify(events.EventTypeConversations)
}

// CreateNewConversation starts a fresh conversation. When the active one is
// still empty and force is not set, no backend call is made: the empty
// conversation is reused, or a temporary one is minted if none is active.
// Otherwise a real conversation is requested, activated (which loads its
// history), and every other conversation in the store is locked.
func (m *ManagerImpl) CreateNewConversation(ctx context.Context, force bool) (*conversation.Conversation, error) {
	if !force {
		m.mu.Lock()
		if m.activeConversationID == "" {
			temp := conversation.NewTemporary()
			m.conversations[temp.ID] = temp
			m.activeConversationID = temp.ID
			ret := temp.Clone()
			m.mu.Unlock()
			m.bus.Notify(events.EventTypeActiveConversation)
			m.bus.Notify(events.EventTypeConversations)
			return ret, nil
		}
		if active := m.conversations[m.activeConversationID]; active != nil && active.IsEmpty() {
			ret := active.Clone()
			m.mu.Unlock()
			return ret, nil
		}
		m.mu.Unlock()
	}

	created, err := m.client.CreateNewConversation(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create a new conversation")
	}
	if created == nil {
		return nil, errors.New("client returned no conversation")
	}

	m.mu.Lock()
	conv := created.Clone()
	if conv.Messages == nil {
		conv.Messages = []*conversation.Message{}
	}
	m.conversations[conv.ID] = conv
	// only one unlocked conversation at a time, enforced here
	for id, other := range m.conversations {
		if id != conv.ID {
			other.Locked = true
		}
	}
	m.mu.Unlock()
	m.bus.Notify(events.EventTypeConversations)

	m.SetActiveConversationID(ctx, conv.ID)

	m.mu.Lock()
	ret := m.conversations[conv.ID].Clone()
	m.mu.Unlock()
	return ret, nil
}

func (m *ManagerImpl) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

func (m *ManagerImpl) IsInitializing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initializing
}

func (m *ManagerImpl) GetActiveConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeConversationID
}

func (m *ManagerImpl) IsTemporaryConversation() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return conversation.IsTemporaryID(m.activeConversationID)
}

func (m *ManagerImpl) GetMessageInProgress() bool {
	return m.guard.InFlight()
}

func (m *ManagerImpl) GetClient() client.AIClient {
	return m.client
}

func (m *ManagerImpl) Subscribe(eventType events.EventType, fn events.Callback) func() {
	return m.bus.Subscribe(eventType, fn)
}

// GetActiveConversationMessages returns deep copies of the active
// conversation's messages, oldest first.
func (m *ManagerImpl) GetActiveConversationMessages() []*conversation.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := m.conversations[m.activeConversationID]
	if conv == nil {
		return []*conversation.Message{}
	}
	messages := make([]*conversation.Message, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		messages = append(messages, msg.Clone())
	}
	return messages
}

// GetConversations returns deep copies of all conversation records, ordered
// by creation time.
func (m *ManagerImpl) GetConversations() []*conversation.Conversation {
	m.mu.Lock()
	ret := make([]*conversation.Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		ret = append(ret, conv.Clone())
	}
	m.mu.Unlock()

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].CreatedAt.Before(ret[j].CreatedAt)
	})
	return ret
}

func (m *ManagerImpl) GetInitLimitation() *client.InitLimitation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initLimitation == nil {
		return nil
	}
	return clone.Clone(m.initLimitation).(*client.InitLimitation)
}

// GetState returns a deep-copied snapshot of the manager's entire state.
func (m *ManagerImpl) GetState() *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	var limitation *client.InitLimitation
	if m.initLimitation != nil {
		limitation = clone.Clone(m.initLimitation).(*client.InitLimitation)
	}
	return &State{
		Conversations:        clone.Clone(m.conversations).(map[string]*conversation.Conversation),
		ActiveConversationID: m.activeConversationID,
		MessageInProgress:    m.guard.InFlight(),
		Initialized:          m.initialized,
		Initializing:         m.initializing,
		InitLimitation:       limitation,
	}
}

func removeMessage(conv *conversation.Conversation, msg *conversation.Message) {
	for i, candidate := range conv.Messages {
		if candidate == msg {
			conv.Messages = append(conv.Messages[:i:i], conv.Messages[i+1:]...)
			return
		}
	}
}

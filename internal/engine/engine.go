// Package engine keeps a local, poll-refreshed view of an actor's inbox: the
// conversation list and the messages of one active conversation.
//
// Usage:
//
//	eng := engine.New(client, actor, &engine.Options{Logger: logger})
//	unsubscribe := eng.On(func(ev engine.Event) { render(eng.Snapshot()) })
//	if err := eng.Attach(ctx); err != nil { ... }
//	defer eng.Detach()
//
// The remote API is the source of truth. The engine's cache is a projection
// that may be briefly stale between polls.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shootingwala/inbox/clients/go/inbox"
	"github.com/shootingwala/inbox/internal/ids"
	"github.com/shootingwala/inbox/internal/models"
)

const (
	DefaultConversationPollInterval = 15 * time.Second
	DefaultMessagePollInterval      = 5 * time.Second
)

// DefaultAdmin is the platform admin photographers write to when they start a
// new conversation.
var DefaultAdmin = inbox.Actor{ID: "admin", Name: "Admin", Type: inbox.ActorAdmin}

// API is the messaging API the engine consumes. *inbox.Client implements it.
type API interface {
	ListConversations(ctx context.Context, actor inbox.Actor) ([]inbox.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]inbox.Message, error)
	SendMessage(ctx context.Context, req inbox.SendRequest) (*inbox.Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) error
}

// DraftStore persists unsent composer bodies. Lookups of a missing draft
// return (nil, nil).
type DraftStore interface {
	GetDraft(ctx context.Context, actorID, conversationID string) (*models.Draft, error)
	SaveDraft(ctx context.Context, draft *models.Draft) error
	DeleteDraft(ctx context.Context, actorID, conversationID string) error
}

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	Admin                    inbox.Actor
	ConversationPollInterval time.Duration
	MessagePollInterval      time.Duration
	Logger                   *zerolog.Logger
	Drafts                   DraftStore
	Now                      func() time.Time
}

// Snapshot is a copy of the engine state, safe to hand to a renderer.
type Snapshot struct {
	Actor                  inbox.Actor          `json:"actor"`
	Conversations          []inbox.Conversation `json:"conversations"`
	ActiveConversationID   string               `json:"activeConversationId,omitempty"`
	Messages               []inbox.Message      `json:"messages"`
	MessagesConversationID string               `json:"messagesConversationId,omitempty"`
	Draft                  string               `json:"draft"`
	IsSending              bool                 `json:"isSending"`
	// IsLoadingConversations is true until the first conversation fetch
	// completes. Later refreshes keep the current list on screen and do not
	// set it.
	IsLoadingConversations bool                 `json:"isLoadingConversations"`
	// IsLoadingMessages is true from selecting a conversation until its first
	// fetch completes. Polls of an already loaded conversation do not set it.
	IsLoadingMessages      bool                 `json:"isLoadingMessages"`
	LastSyncedAt           time.Time            `json:"lastSyncedAt"`
}

// Engine is the conversation sync engine for a single actor.
type Engine struct {
	emitter

	api                  API
	actor                inbox.Actor
	admin                inbox.Actor
	drafts               DraftStore
	logger               zerolog.Logger
	now                  func() time.Time
	conversationInterval time.Duration
	messageInterval      time.Duration

	mu                   sync.Mutex
	conversations        []inbox.Conversation
	conversationsFP      Fingerprint
	activeID             string
	generation           uint64
	messages             []inbox.Message
	messagesFor          string
	messagesFP           Fingerprint
	draft                string
	isSending            bool
	loadingConversations bool
	loadingMessages      bool
	lastSyncedAt         time.Time

	// Every fetch takes a token from its slice's sequence when it is issued.
	// A result older than the last token applied to that slice is dropped.
	convSeq     uint64
	convApplied uint64
	msgSeq      uint64
	msgApplied  uint64

	runCtx    context.Context
	cancel    context.CancelFunc
	detaching bool
	wg        sync.WaitGroup
}

// New creates an engine acting as actor. opts may be nil.
func New(api API, actor inbox.Actor, opts *Options) *Engine {
	e := &Engine{
		api:                  api,
		actor:                actor,
		admin:                DefaultAdmin,
		logger:               zerolog.Nop(),
		now:                  time.Now,
		conversationInterval: DefaultConversationPollInterval,
		messageInterval:      DefaultMessagePollInterval,
		loadingConversations: true,
		runCtx:               context.Background(),
	}
	if opts != nil {
		if !opts.Admin.IsZero() {
			e.admin = opts.Admin
		}
		if opts.ConversationPollInterval > 0 {
			e.conversationInterval = opts.ConversationPollInterval
		}
		if opts.MessagePollInterval > 0 {
			e.messageInterval = opts.MessagePollInterval
		}
		if opts.Logger != nil {
			e.logger = *opts.Logger
		}
		if opts.Drafts != nil {
			e.drafts = opts.Drafts
		}
		if opts.Now != nil {
			e.now = opts.Now
		}
	}
	e.logger = e.logger.With().Str("actor", actor.ID).Logger()
	return e
}

// Actor returns the actor the engine acts as.
func (e *Engine) Actor() inbox.Actor {
	return e.actor
}

// ConversationPollInterval returns the conversation list poll period.
func (e *Engine) ConversationPollInterval() time.Duration {
	return e.conversationInterval
}

// LastSyncedAt returns the time of the last successful conversation fetch.
func (e *Engine) LastSyncedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncedAt
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		Actor:                  e.actor,
		Conversations:          cloneConversations(e.conversations),
		ActiveConversationID:   e.activeID,
		Messages:               cloneMessages(e.messages),
		MessagesConversationID: e.messagesFor,
		Draft:                  e.draft,
		IsSending:              e.isSending,
		IsLoadingConversations: e.loadingConversations,
		IsLoadingMessages:      e.loadingMessages,
		LastSyncedAt:           e.lastSyncedAt,
	}
}

// newEvent must be called with e.mu held.
func (e *Engine) newEvent(t EventType, conversationID string) Event {
	return Event{ID: ids.NewEventID(), Type: t, ConversationID: conversationID, At: e.now()}
}

// goBackground runs fn in a tracked goroutine. The goroutine's context keeps
// parent's values but not its deadline, so fire-and-forget work outlives the
// caller; it is cancelled when the engine is detached. Work started while a
// Detach is waiting is skipped.
func (e *Engine) goBackground(parent context.Context, fn func(ctx context.Context)) {
	e.mu.Lock()
	if e.detaching {
		e.mu.Unlock()
		e.logger.Debug().Msg("engine detaching, background work skipped")
		return
	}
	life := e.runCtx
	e.wg.Add(1)
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(life, cancel)

	go func() {
		defer e.wg.Done()
		defer cancel()
		defer stop()
		fn(ctx)
	}()
}

func cloneConversations(in []inbox.Conversation) []inbox.Conversation {
	if in == nil {
		return nil
	}
	out := make([]inbox.Conversation, len(in))
	for i, c := range in {
		out[i] = c
		out[i].Participants = append([]inbox.Actor(nil), c.Participants...)
	}
	return out
}

func cloneMessages(in []inbox.Message) []inbox.Message {
	if in == nil {
		return nil
	}
	return append([]inbox.Message(nil), in...)
}

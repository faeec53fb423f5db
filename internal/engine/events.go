package engine

import (
	"sync"
	"time"
)

// EventType names an observable state change.
type EventType string

const (
	EventConversationsChanged EventType = "conversations_changed"
	EventMessagesChanged      EventType = "messages_changed"
	EventActiveChanged        EventType = "active_changed"
	EventUnreadCleared        EventType = "unread_cleared"
	EventSendingChanged       EventType = "sending_changed"
	EventDraftChanged         EventType = "draft_changed"
	// EventScrollToLatest fires once after each successful send and never on
	// background refreshes.
	EventScrollToLatest EventType = "scroll_to_latest"
	EventSendFailed     EventType = "send_failed"
)

// Event is a notification that the engine state changed. Consumers re-read
// the state with Snapshot.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}

// Handler receives engine events. Handlers may be called from several
// goroutines and must not block for long.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

type emitter struct {
	mu       sync.RWMutex
	nextID   int
	handlers []subscription
}

// On registers a handler and returns a function that removes it.
func (e *emitter) On(fn Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, subscription{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.handlers {
			if s.id == id {
				e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
				return
			}
		}
	}
}

func (e *emitter) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	e.mu.RLock()
	handlers := e.handlers
	e.mu.RUnlock()

	for _, ev := range events {
		for _, s := range handlers {
			func() {
				defer func() { recover() }() // a broken consumer must not stop the engine
				s.fn(ev)
			}()
		}
	}
}

package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shootingwala/inbox/clients/go/inbox"
	"github.com/shootingwala/inbox/internal/models"
)

var (
	photographer = inbox.Actor{ID: "p1", Name: "Asha Studio", Type: inbox.ActorPhotographer}
	admin        = inbox.Actor{ID: "admin", Name: "Admin", Type: inbox.ActorAdmin}
)

// fakeAPI is an in-memory messaging API. Gates, when set, block the matching
// call until closed; started channels are signalled when the call begins.
type fakeAPI struct {
	mu sync.Mutex

	conversations []inbox.Conversation
	messages      map[string][]inbox.Message
	convErr       error
	msgErr        error
	sendErr       error
	readErr       error
	sendResult    *inbox.Message

	listConvCalls int
	listMsgCalls  map[string]int
	sent          []inbox.SendRequest
	markReads     []inbox.MarkReadRequest

	msgGate     map[string]chan struct{}
	msgStarted  map[string]chan struct{}
	sendGate    chan struct{}
	sendStarted chan struct{}
	readGate    chan struct{}

	msgHold  map[string]*held
	convHold *held
}

// held delays a single call. The call's response is captured when it is
// issued, so releasing it later delivers data older than any call made since.
type held struct {
	started chan struct{}
	release chan struct{}
}

func newHeld() *held {
	return &held{started: make(chan struct{}), release: make(chan struct{})}
}

// holdNextMessages holds the next ListMessages call for conversationID.
func (f *fakeAPI) holdNextMessages(conversationID string) *held {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := newHeld()
	f.msgHold[conversationID] = h
	return h
}

// holdNextConversations holds the next ListConversations call.
func (f *fakeAPI) holdNextConversations() *held {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := newHeld()
	f.convHold = h
	return h
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		messages:     make(map[string][]inbox.Message),
		listMsgCalls: make(map[string]int),
		msgGate:      make(map[string]chan struct{}),
		msgStarted:   make(map[string]chan struct{}),
		msgHold:      make(map[string]*held),
	}
}

func (f *fakeAPI) ListConversations(ctx context.Context, actor inbox.Actor) ([]inbox.Conversation, error) {
	f.mu.Lock()
	f.listConvCalls++
	convs, err := cloneConversations(f.conversations), f.convErr
	hold := f.convHold
	f.convHold = nil
	f.mu.Unlock()

	if hold != nil {
		close(hold.started)
		<-hold.release
	}
	if err != nil {
		return nil, err
	}
	return convs, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, conversationID string) ([]inbox.Message, error) {
	f.mu.Lock()
	f.listMsgCalls[conversationID]++
	gate := f.msgGate[conversationID]
	started := f.msgStarted[conversationID]
	hold := f.msgHold[conversationID]
	delete(f.msgHold, conversationID)
	msgs, err := cloneMessages(f.messages[conversationID]), f.msgErr
	f.mu.Unlock()

	if hold != nil {
		close(hold.started)
		<-hold.release
		if err != nil {
			return nil, err
		}
		return msgs, nil
	}

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgErr != nil {
		return nil, f.msgErr
	}
	return cloneMessages(f.messages[conversationID]), nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, req inbox.SendRequest) (*inbox.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	gate := f.sendGate
	started := f.sendStarted
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.sendResult != nil {
		m := *f.sendResult
		return &m, nil
	}
	return &inbox.Message{ID: "sent", ConversationID: req.ConversationID, Body: req.Body}, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, conversationID, userID string) error {
	f.mu.Lock()
	gate := f.readGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads = append(f.markReads, inbox.MarkReadRequest{ConversationID: conversationID, UserID: userID})
	return f.readErr
}

func (f *fakeAPI) convCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listConvCalls
}

func (f *fakeAPI) msgCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listMsgCalls[id]
}

func (f *fakeAPI) sendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeAPI) resetCounts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listConvCalls = 0
	f.listMsgCalls = make(map[string]int)
	f.sent = nil
	f.markReads = nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(e *Engine) *recorder {
	r := &recorder{}
	e.On(func(ev Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	})
	return r
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) last(t EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return Event{}, false
}

// memDrafts is an in-memory DraftStore.
type memDrafts struct {
	mu     sync.Mutex
	drafts map[string]models.Draft
}

func newMemDrafts() *memDrafts {
	return &memDrafts{drafts: make(map[string]models.Draft)}
}

func (m *memDrafts) GetDraft(ctx context.Context, actorID, conversationID string) (*models.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[actorID+"/"+conversationID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *memDrafts) SaveDraft(ctx context.Context, d *models.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.ActorID+"/"+d.ConversationID] = *d
	return nil
}

func (m *memDrafts) DeleteDraft(ctx context.Context, actorID, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, actorID+"/"+conversationID)
	return nil
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestEngine(t *testing.T, api *fakeAPI, actor inbox.Actor, opts *Options) *Engine {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	if opts.Now == nil {
		opts.Now = steppingClock()
	}
	e := New(api, actor, opts)
	t.Cleanup(func() {
		e.Detach()
		e.wg.Wait()
	})
	return e
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func conv(id string, unread int, last string) inbox.Conversation {
	return inbox.Conversation{
		ID:            id,
		Participants:  []inbox.Actor{photographer, admin},
		Subject:       "Portfolio review",
		LastMessage:   last,
		LastMessageAt: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		UnreadCount:   unread,
	}
}

func msg(id, conversationID, body string, at time.Time) inbox.Message {
	return inbox.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       admin.ID,
		SenderName:     admin.Name,
		SenderType:     admin.Type,
		RecipientID:    photographer.ID,
		RecipientName:  photographer.Name,
		RecipientType:  photographer.Type,
		Body:           body,
		CreatedAt:      at,
	}
}

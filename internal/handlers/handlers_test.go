package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/shootingwala/inbox/clients/go/inbox"
	"github.com/shootingwala/inbox/internal/api/middleware"
	"github.com/shootingwala/inbox/internal/engine"
	"github.com/shootingwala/inbox/internal/store"
)

var testActor = inbox.Actor{ID: "p1", Name: "Asha Studio", Type: inbox.ActorPhotographer}

// stubInbox records the calls the handlers make.
type stubInbox struct {
	mu         sync.Mutex
	snap       engine.Snapshot
	lastSynced time.Time
	sendErr    error
	sendBody   string
	sendOpts   engine.SendOptions
	selected   []string
	read       []string
	draft      string
	refreshed  int
	handlers   map[int]engine.Handler
	nextID     int
}

func newStubInbox() *stubInbox {
	return &stubInbox{
		snap:       engine.Snapshot{Actor: testActor},
		lastSynced: time.Now(),
		handlers:   make(map[int]engine.Handler),
	}
}

func (s *stubInbox) Actor() inbox.Actor { return testActor }

func (s *stubInbox) Snapshot() engine.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubInbox) LastSyncedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSynced
}

func (s *stubInbox) ConversationPollInterval() time.Duration { return 15 * time.Second }

func (s *stubInbox) On(fn engine.Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.handlers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

func (s *stubInbox) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

func (s *stubInbox) emit(ev engine.Event) {
	s.mu.Lock()
	var fns []engine.Handler
	for _, fn := range s.handlers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *stubInbox) RefreshConversations(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshed++
}

func (s *stubInbox) SelectConversation(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = append(s.selected, id)
	s.snap.ActiveConversationID = id
}

func (s *stubInbox) MarkRead(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.read = append(s.read, id)
}

func (s *stubInbox) SetDraft(ctx context.Context, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = body
}

func (s *stubInbox) SendMessage(ctx context.Context, body string, opts engine.SendOptions) (*inbox.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendBody = body
	s.sendOpts = opts
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	return &inbox.Message{ID: "m1", ConversationID: "c1", Body: body}, nil
}

func newTestHandler(t *testing.T, stub *stubInbox) (*Handler, *chi.Mux) {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "inbox.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(db.Close)

	h := NewHandler(stub, db, nil, zerolog.Nop())
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/api/state", h.State)
	r.Get("/api/stats", h.Stats)
	r.Post("/api/refresh", h.Refresh)
	r.Post("/api/conversations/{id}/select", h.SelectConversation)
	r.Post("/api/conversations/{id}/read", h.MarkRead)
	r.Delete("/api/conversations/active", h.Deselect)
	r.Put("/api/draft", h.SetDraft)
	r.Post("/api/messages", h.SendMessage)
	r.Get("/ws", h.Stream)
	return h, r
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestState(t *testing.T) {
	stub := newStubInbox()
	stub.snap.Conversations = []inbox.Conversation{{ID: "c1", UnreadCount: 2}}
	_, r := newTestHandler(t, stub)

	rec := do(r, http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap engine.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if snap.Actor.ID != "p1" || len(snap.Conversations) != 1 || snap.Conversations[0].UnreadCount != 2 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestSelectReadRefreshDeselect(t *testing.T) {
	stub := newStubInbox()
	_, r := newTestHandler(t, stub)

	if rec := do(r, http.MethodPost, "/api/conversations/c7/select", ""); rec.Code != http.StatusAccepted {
		t.Errorf("select status = %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/api/conversations/c7/read", ""); rec.Code != http.StatusAccepted {
		t.Errorf("read status = %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/api/refresh", ""); rec.Code != http.StatusOK {
		t.Errorf("refresh status = %d", rec.Code)
	}
	if rec := do(r, http.MethodDelete, "/api/conversations/active", ""); rec.Code != http.StatusOK {
		t.Errorf("deselect status = %d", rec.Code)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.selected) != 2 || stub.selected[0] != "c7" || stub.selected[1] != "" {
		t.Errorf("selected = %v", stub.selected)
	}
	if len(stub.read) != 1 || stub.read[0] != "c7" {
		t.Errorf("read = %v", stub.read)
	}
	if stub.refreshed != 1 {
		t.Errorf("refreshed = %d", stub.refreshed)
	}
}

func TestSetDraft(t *testing.T) {
	stub := newStubInbox()
	_, r := newTestHandler(t, stub)

	if rec := do(r, http.MethodPut, "/api/draft", `{"body":"see you"}`); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if stub.draft != "see you" {
		t.Errorf("draft = %q", stub.draft)
	}
	if rec := do(r, http.MethodPut, "/api/draft", `{"body":`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", rec.Code)
	}
	long := `{"body":"` + strings.Repeat("x", maxBodyLength+1) + `"}`
	if rec := do(r, http.MethodPut, "/api/draft", long); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("long draft status = %d", rec.Code)
	}
}

func TestSendMessage(t *testing.T) {
	stub := newStubInbox()
	_, r := newTestHandler(t, stub)

	body := `{"body":"hello","conversationId":"c1","subject":" Wedding\u0007 ","recipient":{"id":"admin","name":"Admin","type":"admin"}}`
	rec := do(r, http.MethodPost, "/api/messages", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp SendMessageResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !resp.Success || resp.Message == nil || resp.Message.ID != "m1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if stub.sendBody != "hello" || stub.sendOpts.ConversationID != "c1" {
		t.Errorf("unexpected send: %q %+v", stub.sendBody, stub.sendOpts)
	}
	if stub.sendOpts.Subject != "Wedding" {
		t.Errorf("subject not sanitized: %q", stub.sendOpts.Subject)
	}
	if stub.sendOpts.Recipient.ID != "admin" {
		t.Errorf("recipient = %+v", stub.sendOpts.Recipient)
	}
}

func TestSendMessageStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty body", engine.ErrEmptyBody, http.StatusUnprocessableEntity},
		{"no recipient", engine.ErrNoRecipient, http.StatusUnprocessableEntity},
		{"in flight", engine.ErrSendInFlight, http.StatusConflict},
		{"api error", &inbox.APIError{Status: 500}, http.StatusBadGateway},
		{"decode", inbox.ErrDecode, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStubInbox()
			stub.sendErr = tt.err
			_, r := newTestHandler(t, stub)

			rec := do(r, http.MethodPost, "/api/messages", `{"body":"hi"}`)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSendMessageRejectsBadInput(t *testing.T) {
	stub := newStubInbox()
	_, r := newTestHandler(t, stub)

	if rec := do(r, http.MethodPost, "/api/messages", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed status = %d", rec.Code)
	}
	bad := `{"body":"hi","recipient":{"id":"x","type":"robot"}}`
	if rec := do(r, http.MethodPost, "/api/messages", bad); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown recipient type status = %d", rec.Code)
	}
	if stub.sendBody != "" {
		t.Error("engine should not be called for rejected input")
	}
}

func TestHealth(t *testing.T) {
	stub := newStubInbox()
	_, r := newTestHandler(t, stub)

	rec := do(r, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Status != "healthy" || resp.Checks["store"].Status != "pass" || resp.Checks["redis"].Status != "skip" {
		t.Errorf("unexpected health: %+v", resp)
	}

	stub.mu.Lock()
	stub.lastSynced = time.Now().Add(-time.Hour)
	stub.mu.Unlock()
	rec = do(r, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("stale sync status = %d", rec.Code)
	}
}

func TestSyncCheckNeverSynced(t *testing.T) {
	stub := newStubInbox()
	stub.lastSynced = time.Time{}
	h := NewHandler(stub, nil, nil, zerolog.Nop())
	if c := h.syncCheck(time.Now()); c.Status != "fail" {
		t.Errorf("expected fail, got %+v", c)
	}
}

func TestStats(t *testing.T) {
	stub := newStubInbox()
	now := time.Now()
	stub.snap.Conversations = []inbox.Conversation{
		{ID: "c1", UnreadCount: 2, LastMessageAt: now.Add(-2 * time.Hour)},
		{ID: "c2", UnreadCount: 0, LastMessageAt: now.Add(-5 * time.Minute)},
		{ID: "c3", UnreadCount: 1, LastMessageAt: now.Add(-3 * 24 * time.Hour)},
	}
	_, r := newTestHandler(t, stub)

	rec := do(r, http.MethodGet, "/api/stats", "")
	var resp StatsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Conversations != 3 || resp.Unread != 3 || resp.UnreadThreads != 2 {
		t.Errorf("unexpected stats: %+v", resp)
	}
	if resp.LastActivity != "5 minutes ago" {
		t.Errorf("last activity = %q", resp.LastActivity)
	}
	if resp.LastSynced != "never" {
		t.Errorf("last synced = %q", resp.LastSynced)
	}
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{42 * time.Minute, "42 minutes ago"},
		{time.Hour, "1 hour ago"},
		{30 * time.Hour, "1 day ago"},
		{72 * time.Hour, "3 days ago"},
	}
	for _, tt := range tests {
		if got := formatTimeAgo(now, now.Add(-tt.ago)); got != tt.want {
			t.Errorf("formatTimeAgo(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}

func TestStreamDeliversEvents(t *testing.T) {
	stub := newStubInbox()
	stub.snap.ActiveConversationID = "c1"
	_, r := newTestHandler(t, stub)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first StreamMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot failed: %v", err)
	}
	if first.Type != "snapshot" || first.State == nil || first.State.ActiveConversationID != "c1" {
		t.Fatalf("unexpected first frame: %+v", first)
	}

	stub.emit(engine.Event{ID: "e1", Type: engine.EventMessagesChanged, ConversationID: "c1"})

	var next StreamMessage
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read event failed: %v", err)
	}
	if next.Type != "event" || next.Event == nil || next.Event.Type != engine.EventMessagesChanged {
		t.Errorf("unexpected event frame: %+v", next)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for stub.subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := stub.subscribers(); n != 0 {
		t.Errorf("handler not removed after disconnect, %d left", n)
	}
}

func TestSanitizeName(t *testing.T) {
	if got := sanitizeName("  Wed\x00ding\n "); got != "Wedding" {
		t.Errorf("sanitizeName = %q", got)
	}
	if got := sanitizeName(strings.Repeat("é", 150)); len([]rune(got)) != 100 {
		t.Errorf("expected 100 runes, got %d", len([]rune(got)))
	}
}

func TestSendMessageLogsTokenActor(t *testing.T) {
	stub := newStubInbox()
	var buf bytes.Buffer
	h, _ := newTestHandler(t, stub)
	h.logger = zerolog.New(&buf)

	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"body":"hello","conversationId":"c1"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(context.WithValue(req.Context(), middleware.ActorContextKey, testActor))
	rec := httptest.NewRecorder()
	h.SendMessage(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v: %q", err, buf.String())
	}
	if entry["token_actor"] != "p1" || entry["message_id"] != "m1" {
		t.Errorf("unexpected log entry: %v", entry)
	}

	// Without a token the actor field is omitted.
	buf.Reset()
	rec = do(http.HandlerFunc(h.SendMessage), http.MethodPost, "/api/messages", `{"body":"again","conversationId":"c1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(buf.String(), "token_actor") {
		t.Errorf("unauthenticated request logged a token actor: %s", buf.String())
	}
}

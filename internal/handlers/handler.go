package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/shootingwala/inbox/clients/go/inbox"
	"github.com/shootingwala/inbox/internal/api/middleware"
	"github.com/shootingwala/inbox/internal/engine"
	"github.com/shootingwala/inbox/internal/store"
)

// Inbox is the sync engine surface the bridge drives. *engine.Engine
// implements it.
type Inbox interface {
	Actor() inbox.Actor
	Snapshot() engine.Snapshot
	LastSyncedAt() time.Time
	ConversationPollInterval() time.Duration
	On(fn engine.Handler) func()

	RefreshConversations(ctx context.Context)
	SelectConversation(ctx context.Context, conversationID string)
	MarkRead(ctx context.Context, conversationID string)
	SetDraft(ctx context.Context, body string)
	SendMessage(ctx context.Context, body string, opts engine.SendOptions) (*inbox.Message, error)
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	inbox  Inbox
	db     store.DataStore
	redis  *store.RedisStore
	logger zerolog.Logger
}

// NewHandler creates a new Handler. redis may be nil.
func NewHandler(eng Inbox, db store.DataStore, redis *store.RedisStore, logger zerolog.Logger) *Handler {
	return &Handler{inbox: eng, db: db, redis: redis, logger: logger}
}

// requestLogger tags the handler logger with the token holder when the
// request was authenticated.
func (h *Handler) requestLogger(r *http.Request) zerolog.Logger {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		return h.logger
	}
	return h.logger.With().Str("token_actor", actor.ID).Logger()
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}

	return name
}

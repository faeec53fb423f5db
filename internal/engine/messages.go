package engine

import (
	"context"
	"strings"
	"time"

	"github.com/shootingwala/inbox/clients/go/inbox"
	"github.com/shootingwala/inbox/internal/ids"
	"github.com/shootingwala/inbox/internal/metrics"
	"github.com/shootingwala/inbox/internal/models"
)

// SendOptions addresses a message. An empty ConversationID starts a new
// thread; an empty Recipient is resolved from the cached conversation, or
// defaults to the admin actor for photographers starting a thread.
type SendOptions struct {
	ConversationID string
	Recipient      inbox.Actor
	Subject        string
}

// SelectConversation makes conversationID the active conversation. It clears
// the conversation's unread count before returning, then fetches its messages
// and acknowledges it remotely as two independent background calls. The
// previously held messages stay in place until the new ones arrive.
// Selecting "" deselects.
func (e *Engine) SelectConversation(ctx context.Context, conversationID string) {
	e.mu.Lock()
	e.activeID = conversationID
	e.generation++
	gen := e.generation
	events := []Event{e.newEvent(EventActiveChanged, conversationID)}
	if e.draft != "" {
		e.draft = ""
		events = append(events, e.newEvent(EventDraftChanged, conversationID))
	}

	if conversationID == "" {
		e.messages = nil
		e.messagesFor = ""
		e.messagesFP = Fingerprint{}
		e.loadingMessages = false
		events = append(events, e.newEvent(EventMessagesChanged, ""))
		e.mu.Unlock()
		e.emit(events...)
		return
	}
	e.loadingMessages = true
	e.mu.Unlock()
	e.emit(events...)

	e.goBackground(ctx, func(ctx context.Context) {
		e.RefreshMessages(ctx, conversationID)
	})
	e.MarkRead(ctx, conversationID)

	if e.drafts != nil {
		e.goBackground(ctx, func(ctx context.Context) {
			e.restoreDraft(ctx, conversationID, gen)
		})
	}
}

// RefreshMessages replaces the active conversation's messages with a fresh
// fetch. The result is dropped when the active conversation changed while the
// request was in flight or when a newer fetch has already been applied, and
// an unchanged result emits nothing. Messages are kept in the order the API
// returned them.
func (e *Engine) RefreshMessages(ctx context.Context, conversationID string) {
	e.mu.Lock()
	gen := e.generation
	e.msgSeq++
	seq := e.msgSeq
	e.mu.Unlock()

	start := time.Now()
	msgs, err := e.api.ListMessages(ctx, conversationID)
	metrics.PollDuration.WithLabelValues("messages").Observe(time.Since(start).Seconds())

	e.mu.Lock()
	if conversationID != e.activeID || gen != e.generation || seq < e.msgApplied {
		e.mu.Unlock()
		metrics.PollsTotal.WithLabelValues("messages", "stale").Inc()
		e.logger.Debug().
			Str("conversation_id", conversationID).
			Msg("discarding stale messages")
		return
	}

	var events []Event
	if err != nil {
		if e.loadingMessages {
			e.loadingMessages = false
			events = append(events, e.newEvent(EventMessagesChanged, conversationID))
		}
		e.mu.Unlock()
		e.emit(events...)
		metrics.PollsTotal.WithLabelValues("messages", "error").Inc()
		e.logFetchError(ctx, err, "messages", conversationID)
		return
	}

	e.msgApplied = seq
	fp := messagesFingerprint(msgs)
	changed := e.loadingMessages || e.messagesFor != conversationID || !fp.Equal(e.messagesFP)
	if changed {
		e.messages = cloneMessages(msgs)
		e.messagesFor = conversationID
		e.messagesFP = fp
		e.loadingMessages = false
		events = append(events, e.newEvent(EventMessagesChanged, conversationID))
	}
	e.mu.Unlock()

	if !changed {
		metrics.PollsTotal.WithLabelValues("messages", "unchanged").Inc()
		return
	}
	metrics.PollsTotal.WithLabelValues("messages", "changed").Inc()
	e.emit(events...)
}

// SendMessage posts body. Validation failures are returned before any network
// call. Only one send may be in flight; a second concurrent call fails with
// ErrSendInFlight. On success the draft is cleared, messages and
// conversations are refreshed once each and a single EventScrollToLatest is
// emitted. On failure the draft is kept for a retry and the error is returned.
func (e *Engine) SendMessage(ctx context.Context, body string, opts SendOptions) (*inbox.Message, error) {
	text := strings.TrimSpace(body)
	if text == "" {
		metrics.MessagesSent.WithLabelValues("invalid").Inc()
		return nil, ErrEmptyBody
	}

	e.mu.Lock()
	if e.isSending {
		e.mu.Unlock()
		metrics.MessagesSent.WithLabelValues("invalid").Inc()
		return nil, ErrSendInFlight
	}
	recipient := e.resolveRecipientLocked(opts)
	if recipient.IsZero() {
		e.mu.Unlock()
		metrics.MessagesSent.WithLabelValues("invalid").Inc()
		return nil, ErrNoRecipient
	}
	e.isSending = true
	events := []Event{e.newEvent(EventSendingChanged, opts.ConversationID)}
	e.mu.Unlock()
	e.emit(events...)

	req := inbox.NewSendRequest(e.actor, recipient, text)
	req.ConversationID = opts.ConversationID
	req.Subject = opts.Subject

	msg, err := e.api.SendMessage(ctx, req)
	if err != nil {
		e.mu.Lock()
		e.isSending = false
		failed := e.newEvent(EventSendFailed, opts.ConversationID)
		failed.Error = err.Error()
		events := []Event{e.newEvent(EventSendingChanged, opts.ConversationID), failed}
		e.mu.Unlock()
		e.emit(events...)

		metrics.MessagesSent.WithLabelValues("error").Inc()
		e.logger.Warn().Err(err).Str("conversation_id", opts.ConversationID).Msg("send failed")
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues("ok").Inc()

	conversationID := opts.ConversationID
	if conversationID == "" && msg != nil {
		conversationID = msg.ConversationID
	}

	e.mu.Lock()
	e.isSending = false
	events = []Event{e.newEvent(EventSendingChanged, conversationID)}
	if e.draft != "" && e.activeID == opts.ConversationID {
		e.draft = ""
		events = append(events, e.newEvent(EventDraftChanged, e.activeID))
	}
	if opts.ConversationID == "" && e.activeID == "" && conversationID != "" {
		e.activeID = conversationID
		e.generation++
		events = append(events, e.newEvent(EventActiveChanged, conversationID))
	}
	e.mu.Unlock()
	e.emit(events...)

	if e.drafts != nil {
		if err := e.drafts.DeleteDraft(ctx, e.actor.ID, opts.ConversationID); err != nil {
			e.logger.Warn().Err(err).Msg("failed to delete sent draft")
		}
	}

	if conversationID != "" {
		e.RefreshMessages(ctx, conversationID)
	}
	e.RefreshConversations(ctx)

	e.mu.Lock()
	scroll := e.newEvent(EventScrollToLatest, conversationID)
	e.mu.Unlock()
	e.emit(scroll)

	return msg, nil
}

// resolveRecipientLocked must be called with e.mu held.
func (e *Engine) resolveRecipientLocked(opts SendOptions) inbox.Actor {
	if !opts.Recipient.IsZero() {
		return opts.Recipient
	}
	if opts.ConversationID == "" {
		if e.actor.Type == inbox.ActorPhotographer {
			return e.admin
		}
		return inbox.Actor{}
	}
	for _, c := range e.conversations {
		if c.ID == opts.ConversationID {
			other, _ := c.Counterpart(e.actor.ID)
			return other
		}
	}
	return inbox.Actor{}
}

// SetDraft updates the composer body of the active conversation and persists
// it when a draft store is configured.
func (e *Engine) SetDraft(ctx context.Context, body string) {
	e.mu.Lock()
	if e.draft == body {
		e.mu.Unlock()
		return
	}
	e.draft = body
	conversationID := e.activeID
	events := []Event{e.newEvent(EventDraftChanged, conversationID)}
	e.mu.Unlock()
	e.emit(events...)

	if e.drafts == nil {
		return
	}

	var err error
	if strings.TrimSpace(body) == "" {
		err = e.drafts.DeleteDraft(ctx, e.actor.ID, conversationID)
	} else {
		err = e.drafts.SaveDraft(ctx, &models.Draft{
			ID:             ids.NewUUIDv7(),
			ActorID:        e.actor.ID,
			ConversationID: conversationID,
			Body:           body,
			UpdatedAt:      e.now(),
		})
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to persist draft")
	}
}

func (e *Engine) restoreDraft(ctx context.Context, conversationID string, gen uint64) {
	d, err := e.drafts.GetDraft(ctx, e.actor.ID, conversationID)
	if err != nil {
		e.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to load draft")
		return
	}
	if d == nil {
		return
	}

	e.mu.Lock()
	// Keep anything typed since the selection.
	if gen != e.generation || e.draft != "" {
		e.mu.Unlock()
		return
	}
	e.draft = d.Body
	events := []Event{e.newEvent(EventDraftChanged, conversationID)}
	e.mu.Unlock()
	e.emit(events...)
}

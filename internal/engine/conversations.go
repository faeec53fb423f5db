package engine

import (
	"context"
	"time"

	"github.com/shootingwala/inbox/internal/metrics"
)

// RefreshConversations fetches the actor's conversation list. A result equal
// to the cached list leaves the cache untouched and emits nothing. Failures
// keep the cached list and are only logged. A result that resolves after a
// newer fetch or a local mark-read has been applied is dropped.
func (e *Engine) RefreshConversations(ctx context.Context) {
	e.mu.Lock()
	e.convSeq++
	seq := e.convSeq
	e.mu.Unlock()

	start := time.Now()
	convs, err := e.api.ListConversations(ctx, e.actor)
	metrics.PollDuration.WithLabelValues("conversations").Observe(time.Since(start).Seconds())

	var events []Event

	e.mu.Lock()
	if seq < e.convApplied {
		e.mu.Unlock()
		metrics.PollsTotal.WithLabelValues("conversations", "stale").Inc()
		e.logger.Debug().Uint64("seq", seq).Msg("discarding superseded conversation list")
		return
	}

	// The first completed load is always observable, even when it fails or is empty.
	firstLoad := e.loadingConversations
	e.loadingConversations = false

	if err != nil {
		if firstLoad {
			events = append(events, e.newEvent(EventConversationsChanged, ""))
		}
		e.mu.Unlock()
		e.emit(events...)
		metrics.PollsTotal.WithLabelValues("conversations", "error").Inc()
		e.logFetchError(ctx, err, "conversations", "")
		return
	}

	e.convApplied = seq
	e.lastSyncedAt = e.now()
	fp := conversationsFingerprint(convs)
	changed := firstLoad || !fp.Equal(e.conversationsFP)
	if changed {
		e.conversations = cloneConversations(convs)
		e.conversationsFP = fp
		events = append(events, e.newEvent(EventConversationsChanged, ""))
	}
	e.mu.Unlock()

	if !changed {
		metrics.PollsTotal.WithLabelValues("conversations", "unchanged").Inc()
		return
	}
	metrics.PollsTotal.WithLabelValues("conversations", "changed").Inc()
	e.emit(events...)
}

// MarkRead zeroes the conversation's unread count locally, before the API
// is told, then acknowledges the conversation remotely in the background.
func (e *Engine) MarkRead(ctx context.Context, conversationID string) {
	e.mu.Lock()
	events := e.clearUnreadLocked(conversationID)
	e.mu.Unlock()
	e.emit(events...)

	e.goBackground(ctx, func(ctx context.Context) {
		e.markReadRemote(ctx, conversationID)
	})
}

func (e *Engine) markReadRemote(ctx context.Context, conversationID string) {
	if err := e.api.MarkRead(ctx, conversationID, e.actor.ID); err != nil {
		metrics.MarkReadTotal.WithLabelValues("error").Inc()
		e.logFetchError(ctx, err, "mark_read", conversationID)
		return
	}
	metrics.MarkReadTotal.WithLabelValues("ok").Inc()
}

// clearUnreadLocked must be called with e.mu held.
func (e *Engine) clearUnreadLocked(conversationID string) []Event {
	for i := range e.conversations {
		if e.conversations[i].ID != conversationID {
			continue
		}
		if e.conversations[i].UnreadCount == 0 {
			return nil
		}
		e.conversations[i].UnreadCount = 0
		e.conversationsFP = conversationsFingerprint(e.conversations)
		// Lists fetched before this point still carry the old count.
		e.convSeq++
		e.convApplied = e.convSeq
		return []Event{e.newEvent(EventUnreadCleared, conversationID)}
	}
	return nil
}

func (e *Engine) logFetchError(ctx context.Context, err error, kind, conversationID string) {
	if ctx.Err() != nil {
		e.logger.Debug().Err(err).Str("kind", kind).Msg("request cancelled")
		return
	}
	l := e.logger.Warn().Err(err).Str("kind", kind)
	if conversationID != "" {
		l = l.Str("conversation_id", conversationID)
	}
	l.Msg("inbox request failed")
}

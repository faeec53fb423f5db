package engine

import (
	"context"
	"time"
)

// Attach loads the conversation list and starts the two polling loops: the
// conversation list on the conversation interval and the active
// conversation's messages on the message interval. Polls run on fixed ticks;
// a failed poll simply waits for the next one.
func (e *Engine) Attach(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return ErrAlreadyAttached
	}
	if e.detaching {
		e.mu.Unlock()
		return ErrDetaching
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.runCtx = runCtx
	e.cancel = cancel
	e.wg.Add(2)
	e.mu.Unlock()

	go e.pollConversations(runCtx)
	go e.pollMessages(runCtx)

	e.logger.Info().
		Dur("conversation_interval", e.conversationInterval).
		Dur("message_interval", e.messageInterval).
		Msg("inbox sync attached")
	return nil
}

// Detach stops both polling loops, cancels in-flight requests and waits for
// every engine goroutine to return. It is safe to call when not attached.
// While it waits, no new background work is started and Attach fails with
// ErrDetaching.
func (e *Engine) Detach() {
	e.mu.Lock()
	cancel := e.cancel
	if cancel == nil {
		e.mu.Unlock()
		return
	}
	e.cancel = nil
	e.runCtx = context.Background()
	e.detaching = true
	e.mu.Unlock()

	cancel()
	e.wg.Wait()

	e.mu.Lock()
	e.detaching = false
	e.mu.Unlock()
	e.logger.Info().Msg("inbox sync detached")
}

func (e *Engine) pollConversations(ctx context.Context) {
	defer e.wg.Done()

	e.RefreshConversations(ctx)

	ticker := time.NewTicker(e.conversationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RefreshConversations(ctx)
		}
	}
}

func (e *Engine) pollMessages(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.messageInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			active := e.activeID
			e.mu.Unlock()
			if active != "" {
				e.RefreshMessages(ctx, active)
			}
		}
	}
}

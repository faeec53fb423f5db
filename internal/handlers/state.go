package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// State returns the engine snapshot.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, h.inbox.Snapshot())
}

// Refresh fetches the conversation list now instead of waiting for the next poll.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.inbox.RefreshConversations(r.Context())
	h.JSON(w, http.StatusOK, h.inbox.Snapshot())
}

// SelectConversation makes the conversation in the path active. Its messages
// load in the background and arrive as a messages_changed event.
func (h *Handler) SelectConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.Error(w, http.StatusBadRequest, "conversation id is required")
		return
	}
	h.inbox.SelectConversation(r.Context(), id)
	h.JSON(w, http.StatusAccepted, h.inbox.Snapshot())
}

// Deselect clears the active conversation.
func (h *Handler) Deselect(w http.ResponseWriter, r *http.Request) {
	h.inbox.SelectConversation(r.Context(), "")
	h.JSON(w, http.StatusOK, h.inbox.Snapshot())
}

// MarkRead clears the conversation's unread count; the API is told in the background.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.Error(w, http.StatusBadRequest, "conversation id is required")
		return
	}
	h.inbox.MarkRead(r.Context(), id)
	h.JSON(w, http.StatusAccepted, h.inbox.Snapshot())
}

// DraftRequest represents the draft update request.
type DraftRequest struct {
	Body string `json:"body"`
}

// SetDraft replaces the composer body of the active conversation.
func (h *Handler) SetDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Body) > maxBodyLength {
		h.Error(w, http.StatusUnprocessableEntity, "body too long (max 4096 bytes)")
		return
	}
	h.inbox.SetDraft(r.Context(), req.Body)
	h.JSON(w, http.StatusOK, map[string]string{"draft": req.Body})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/shootingwala/inbox/clients/go/inbox"
	"github.com/shootingwala/inbox/internal/engine"
)

const maxBodyLength = 4096

// SendMessageRequest represents the send message request. An empty
// ConversationID starts a new thread.
type SendMessageRequest struct {
	Body           string       `json:"body"`
	ConversationID string       `json:"conversationId,omitempty"`
	Subject        string       `json:"subject,omitempty"`
	Recipient      *inbox.Actor `json:"recipient,omitempty"`
}

// SendMessageResponse represents the send message response.
type SendMessageResponse struct {
	Success bool           `json:"success"`
	Message *inbox.Message `json:"message,omitempty"`
}

// SendMessage posts a message through the engine.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Body) > maxBodyLength {
		h.Error(w, http.StatusUnprocessableEntity, "body too long (max 4096 bytes)")
		return
	}

	opts := engine.SendOptions{
		ConversationID: req.ConversationID,
		Subject:        sanitizeName(req.Subject),
	}
	if req.Recipient != nil {
		if _, err := inbox.ParseActorType(string(req.Recipient.Type)); err != nil {
			h.Error(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		opts.Recipient = *req.Recipient
		opts.Recipient.Name = sanitizeName(opts.Recipient.Name)
	}

	logger := h.requestLogger(r)
	msg, err := h.inbox.SendMessage(r.Context(), req.Body, opts)
	if err != nil {
		status, message := sendErrorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Warn().Err(err).Str("conversation_id", req.ConversationID).Msg("send failed")
		}
		h.Error(w, status, message)
		return
	}
	conversationID, messageID := req.ConversationID, ""
	if msg != nil {
		conversationID, messageID = msg.ConversationID, msg.ID
	}
	logger.Info().Str("conversation_id", conversationID).Str("message_id", messageID).Msg("message sent")

	h.JSON(w, http.StatusCreated, SendMessageResponse{Success: true, Message: msg})
}

// sendErrorStatus maps engine and API errors to HTTP statuses.
func sendErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrSendInFlight):
		return http.StatusConflict, err.Error()
	case errors.Is(err, engine.ErrValidation):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, inbox.ErrNetwork), errors.Is(err, inbox.ErrDecode):
		return http.StatusBadGateway, "messaging API unavailable"
	default:
		return http.StatusInternalServerError, "send failed"
	}
}

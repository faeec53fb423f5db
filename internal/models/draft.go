package models

import (
	"time"

	"github.com/google/uuid"
)

// Draft is an unsent composer body. An empty ConversationID is the new-thread composer.
type Draft struct {
	ID             uuid.UUID `json:"id"`
	ActorID        string    `json:"actor_id"`
	ConversationID string    `json:"conversation_id"`
	Body           string    `json:"body"`
	UpdatedAt      time.Time `json:"updated_at"`
}

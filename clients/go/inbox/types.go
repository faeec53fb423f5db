package inbox

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActorType identifies which side of the marketplace an actor belongs to.
type ActorType string

const (
	ActorAdmin        ActorType = "admin"
	ActorPhotographer ActorType = "photographer"
	ActorUser         ActorType = "user"
	ActorContactForm  ActorType = "contact-form"
)

// ParseActorType validates s as one of the known actor types.
func ParseActorType(s string) (ActorType, error) {
	switch t := ActorType(s); t {
	case ActorAdmin, ActorPhotographer, ActorUser, ActorContactForm:
		return t, nil
	}
	return "", fmt.Errorf("unknown actor type %q", s)
}

// Actor is one participant of a conversation.
type Actor struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Type ActorType `json:"type"`
}

// IsZero reports whether the actor has no ID.
func (a Actor) IsZero() bool {
	return a.ID == ""
}

// Conversation is a thread between exactly two actors, as seen by one of them.
type Conversation struct {
	ID            string    `json:"id"`
	Participants  []Actor   `json:"participants"`
	Subject       string    `json:"subject,omitempty"`
	LastMessage   string    `json:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
}

// UnmarshalJSON decodes a conversation and clamps a negative unread count to zero.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	type conversation Conversation
	var raw conversation
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.UnreadCount < 0 {
		raw.UnreadCount = 0
	}
	*c = Conversation(raw)
	return nil
}

// Counterpart returns the participant that is not actorID.
func (c Conversation) Counterpart(actorID string) (Actor, bool) {
	for _, p := range c.Participants {
		if p.ID != actorID {
			return p, true
		}
	}
	return Actor{}, false
}

// Message is a single immutable chat message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	SenderType     ActorType `json:"senderType"`
	RecipientID    string    `json:"recipientId"`
	RecipientName  string    `json:"recipientName"`
	RecipientType  ActorType `json:"recipientType"`
	Body           string    `json:"message"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Sender returns the message author.
func (m Message) Sender() Actor {
	return Actor{ID: m.SenderID, Name: m.SenderName, Type: m.SenderType}
}

// Recipient returns the addressee.
func (m Message) Recipient() Actor {
	return Actor{ID: m.RecipientID, Name: m.RecipientName, Type: m.RecipientType}
}

// SendRequest is the request body for posting a message.
// An empty ConversationID starts a new thread.
type SendRequest struct {
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	SenderType     ActorType `json:"senderType"`
	RecipientID    string    `json:"recipientId"`
	RecipientName  string    `json:"recipientName"`
	RecipientType  ActorType `json:"recipientType"`
	Body           string    `json:"message"`
	ConversationID string    `json:"conversationId,omitempty"`
	Subject        string    `json:"subject,omitempty"`
}

// NewSendRequest builds a SendRequest from sender and recipient actors.
func NewSendRequest(from, to Actor, body string) SendRequest {
	return SendRequest{
		SenderID:      from.ID,
		SenderName:    from.Name,
		SenderType:    from.Type,
		RecipientID:   to.ID,
		RecipientName: to.Name,
		RecipientType: to.Type,
		Body:          body,
	}
}

// MarkReadRequest is the request body for acknowledging a conversation.
type MarkReadRequest struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

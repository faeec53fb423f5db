// Package inbox provides a client for the Shootingwala messaging API.
package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is used when NewClient is given an empty base URL.
const DefaultBaseURL = "http://localhost:3000"

// Client is a messaging API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Signer and Actor are optional; when both are set every request carries
	// a bearer token identifying Actor.
	Signer *TokenSigner
	Actor  Actor
}

// NewClient creates a new messaging API client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// envelope is the common response wrapper. Success is a pointer so that a
// missing flag can be told apart from success:false.
type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error,omitempty"`
}

// doRequest performs an HTTP request and decodes the enveloped response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	if c.Signer != nil && !c.Actor.IsZero() {
		token, err := c.Signer.Sign(c.Actor)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", ErrNetwork, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: %v", ErrDecode, decodeErr)
	}
	if env.Success == nil {
		return fmt.Errorf("%w: missing success flag", ErrDecode)
	}
	if !*env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// ConversationsResponse is the response from listing conversations.
type ConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

// ListConversations lists the conversations visible to actor. Admins see every
// conversation; everyone else sees only their own.
func (c *Client) ListConversations(ctx context.Context, actor Actor) ([]Conversation, error) {
	q := url.Values{}
	q.Set("actor", actor.ID)
	q.Set("role", string(actor.Type))

	var resp ConversationsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/conversations?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// MessagesResponse is the response from listing a conversation's messages.
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// ListMessages returns every message of a conversation in server order.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	q := url.Values{}
	q.Set("conversationId", conversationID)

	var resp MessagesResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/messages?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendResponse is the response from posting a message.
type SendResponse struct {
	Message *Message `json:"message,omitempty"`
}

// SendMessage posts a message. The returned message may be nil when the API
// does not echo it back.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (*Message, error) {
	var resp SendResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/messages", req, &resp); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// MarkRead marks every message of the conversation addressed to userID as read.
func (c *Client) MarkRead(ctx context.Context, conversationID, userID string) error {
	req := MarkReadRequest{ConversationID: conversationID, UserID: userID}
	return c.doRequest(ctx, http.MethodPut, "/api/messages", req, nil)
}

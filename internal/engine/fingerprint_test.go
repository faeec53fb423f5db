package engine

import (
	"testing"
	"time"

	"github.com/shootingwala/inbox/clients/go/inbox"
)

func TestConversationsFingerprint(t *testing.T) {
	base := []inbox.Conversation{conv("c1", 1, "hi"), conv("c2", 0, "ok")}

	if !conversationsFingerprint(base).Equal(conversationsFingerprint(cloneConversations(base))) {
		t.Fatal("identical lists should have equal fingerprints")
	}

	tests := []struct {
		name   string
		mutate func([]inbox.Conversation) []inbox.Conversation
	}{
		{"unread count", func(c []inbox.Conversation) []inbox.Conversation { c[0].UnreadCount = 0; return c }},
		{"last message", func(c []inbox.Conversation) []inbox.Conversation { c[1].LastMessage = "okay"; return c }},
		{"subject", func(c []inbox.Conversation) []inbox.Conversation { c[0].Subject = "Invoice"; return c }},
		{"participant name", func(c []inbox.Conversation) []inbox.Conversation { c[0].Participants[1].Name = "Ops"; return c }},
		{"order", func(c []inbox.Conversation) []inbox.Conversation { c[0], c[1] = c[1], c[0]; return c }},
		{"removed", func(c []inbox.Conversation) []inbox.Conversation { return c[:1] }},
		{"timestamp", func(c []inbox.Conversation) []inbox.Conversation {
			c[0].LastMessageAt = c[0].LastMessageAt.Add(time.Second)
			return c
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := tt.mutate(cloneConversations(base))
			if conversationsFingerprint(base).Equal(conversationsFingerprint(changed)) {
				t.Errorf("fingerprint did not change")
			}
		})
	}
}

func TestMessagesFingerprint(t *testing.T) {
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	base := []inbox.Message{msg("m1", "c1", "hi", at), msg("m2", "c1", "there", at.Add(time.Minute))}

	fp := messagesFingerprint(base)
	if fp.Count != 2 || !fp.Newest.Equal(at.Add(time.Minute)) {
		t.Errorf("unexpected fingerprint %+v", fp)
	}

	read := cloneMessages(base)
	read[0].Read = true
	if fp.Equal(messagesFingerprint(read)) {
		t.Error("read flag should change the fingerprint")
	}

	edited := cloneMessages(base)
	edited[1].Body = "their"
	if fp.Equal(messagesFingerprint(edited)) {
		t.Error("body should change the fingerprint")
	}

	if !messagesFingerprint(nil).Equal(Fingerprint{Digest: messagesFingerprint([]inbox.Message{}).Digest}) {
		t.Error("nil and empty lists should match")
	}
}

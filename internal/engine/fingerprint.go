package engine

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/shootingwala/inbox/clients/go/inbox"
)

// Fingerprint summarizes a fetched list. Two lists with equal fingerprints are
// treated as identical, which is what keeps an unchanged poll silent.
type Fingerprint struct {
	Count  int
	Newest time.Time
	Digest uint64
}

// Equal reports whether f and o describe the same payload.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Count == o.Count && f.Newest.Equal(o.Newest) && f.Digest == o.Digest
}

type hasher struct {
	d   *xxhash.Digest
	buf []byte
}

func newHasher() *hasher {
	return &hasher{d: xxhash.New(), buf: make([]byte, 0, 32)}
}

func (h *hasher) writeString(s string) {
	h.d.WriteString(s)
	h.d.Write([]byte{0})
}

func (h *hasher) writeInt(n int64) {
	h.buf = strconv.AppendInt(h.buf[:0], n, 10)
	h.buf = append(h.buf, 0)
	h.d.Write(h.buf)
}

func (h *hasher) writeTime(t time.Time) {
	h.writeInt(t.Unix())
	h.writeInt(int64(t.Nanosecond()))
}

func (h *hasher) writeBool(b bool) {
	if b {
		h.d.Write([]byte{1, 0})
		return
	}
	h.d.Write([]byte{0, 0})
}

func (h *hasher) writeActor(a inbox.Actor) {
	h.writeString(a.ID)
	h.writeString(a.Name)
	h.writeString(string(a.Type))
}

func conversationsFingerprint(convs []inbox.Conversation) Fingerprint {
	h := newHasher()
	var newest time.Time
	for _, c := range convs {
		h.writeString(c.ID)
		h.writeInt(int64(len(c.Participants)))
		for _, p := range c.Participants {
			h.writeActor(p)
		}
		h.writeString(c.Subject)
		h.writeString(c.LastMessage)
		h.writeTime(c.LastMessageAt)
		h.writeInt(int64(c.UnreadCount))
		if c.LastMessageAt.After(newest) {
			newest = c.LastMessageAt
		}
	}
	return Fingerprint{Count: len(convs), Newest: newest, Digest: h.d.Sum64()}
}

func messagesFingerprint(msgs []inbox.Message) Fingerprint {
	h := newHasher()
	var newest time.Time
	for _, m := range msgs {
		h.writeString(m.ID)
		h.writeString(m.ConversationID)
		h.writeActor(m.Sender())
		h.writeActor(m.Recipient())
		h.writeString(m.Body)
		h.writeBool(m.Read)
		h.writeTime(m.CreatedAt)
		if m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
	}
	return Fingerprint{Count: len(msgs), Newest: newest, Digest: h.d.Sum64()}
}

package ids

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUIDv7 generates a time-ordered UUID v7.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewEventID generates a lexically sortable ULID for engine events.
func NewEventID() string {
	return ulid.Make().String()
}

package store

import (
	"context"

	"github.com/shootingwala/inbox/internal/models"
)

// DataStore persists the local identity profiles and unsent drafts.
// Both PostgresStore and SQLiteStore implement this interface. Lookups of a
// missing row return (nil, nil).
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Identity operations
	SaveIdentity(ctx context.Context, identity *models.Identity) error
	GetIdentity(ctx context.Context, profile string) (*models.Identity, error)

	// Draft operations
	SaveDraft(ctx context.Context, draft *models.Draft) error
	GetDraft(ctx context.Context, actorID, conversationID string) (*models.Draft, error)
	DeleteDraft(ctx context.Context, actorID, conversationID string) error
}

// DefaultProfile is the identity profile used when none is named.
const DefaultProfile = "default"

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shootingwala/inbox/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS identities (
	profile TEXT PRIMARY KEY,
	actor_id TEXT NOT NULL,
	actor_name TEXT NOT NULL DEFAULT '',
	actor_type TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS drafts (
	id UUID PRIMARY KEY,
	actor_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (actor_id, conversation_id)
);

CREATE INDEX IF NOT EXISTS idx_drafts_actor ON drafts(actor_id);
`

// RunMigrations creates the schema in the database at databaseURL.
func RunMigrations(databaseURL string) error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, schemaSQL)
	return err
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveIdentity creates or replaces the identity of a profile.
func (s *PostgresStore) SaveIdentity(ctx context.Context, identity *models.Identity) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO identities (profile, actor_id, actor_name, actor_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (profile) DO UPDATE SET
			actor_id = EXCLUDED.actor_id,
			actor_name = EXCLUDED.actor_name,
			actor_type = EXCLUDED.actor_type,
			updated_at = now()
		RETURNING updated_at
	`, identity.Profile, identity.ActorID, identity.ActorName, identity.ActorType).Scan(&identity.UpdatedAt)
}

// GetIdentity retrieves the identity of a profile.
func (s *PostgresStore) GetIdentity(ctx context.Context, profile string) (*models.Identity, error) {
	identity := &models.Identity{}
	err := s.pool.QueryRow(ctx, `
		SELECT profile, actor_id, actor_name, actor_type, updated_at
		FROM identities WHERE profile = $1
	`, profile).Scan(
		&identity.Profile,
		&identity.ActorID,
		&identity.ActorName,
		&identity.ActorType,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return identity, nil
}

// SaveDraft upserts the draft for its actor and conversation.
func (s *PostgresStore) SaveDraft(ctx context.Context, draft *models.Draft) error {
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO drafts (id, actor_id, conversation_id, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (actor_id, conversation_id) DO UPDATE SET
			body = EXCLUDED.body,
			updated_at = now()
		RETURNING id, updated_at
	`, draft.ID, draft.ActorID, draft.ConversationID, draft.Body).Scan(&draft.ID, &draft.UpdatedAt)
}

// GetDraft retrieves the draft for an actor and conversation.
func (s *PostgresStore) GetDraft(ctx context.Context, actorID, conversationID string) (*models.Draft, error) {
	draft := &models.Draft{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, actor_id, conversation_id, body, updated_at
		FROM drafts WHERE actor_id = $1 AND conversation_id = $2
	`, actorID, conversationID).Scan(
		&draft.ID,
		&draft.ActorID,
		&draft.ConversationID,
		&draft.Body,
		&draft.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return draft, nil
}

// DeleteDraft removes the draft for an actor and conversation, if any.
func (s *PostgresStore) DeleteDraft(ctx context.Context, actorID, conversationID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM drafts WHERE actor_id = $1 AND conversation_id = $2
	`, actorID, conversationID)
	return err
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/shootingwala/inbox/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/inbox.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/inbox.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := newSQLiteStoreFromDB(db)

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func newSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS identities (
		profile TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL,
		actor_name TEXT DEFAULT '',
		actor_type TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (actor_id, conversation_id)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveIdentity creates or replaces the identity of a profile.
func (s *SQLiteStore) SaveIdentity(ctx context.Context, identity *models.Identity) error {
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (profile, actor_id, actor_name, actor_type, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (profile) DO UPDATE SET
			actor_id = excluded.actor_id,
			actor_name = excluded.actor_name,
			actor_type = excluded.actor_type,
			updated_at = excluded.updated_at
	`, identity.Profile, identity.ActorID, identity.ActorName, identity.ActorType, identity.UpdatedAt)
	return err
}

// GetIdentity retrieves the identity of a profile.
func (s *SQLiteStore) GetIdentity(ctx context.Context, profile string) (*models.Identity, error) {
	identity := &models.Identity{}
	err := s.db.QueryRowContext(ctx, `
		SELECT profile, actor_id, actor_name, actor_type, updated_at
		FROM identities WHERE profile = ?
	`, profile).Scan(
		&identity.Profile,
		&identity.ActorID,
		&identity.ActorName,
		&identity.ActorType,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return identity, nil
}

// SaveDraft upserts the draft for its actor and conversation.
func (s *SQLiteStore) SaveDraft(ctx context.Context, draft *models.Draft) error {
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	if draft.UpdatedAt.IsZero() {
		draft.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (id, actor_id, conversation_id, body, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (actor_id, conversation_id) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at
	`, draft.ID.String(), draft.ActorID, draft.ConversationID, draft.Body, draft.UpdatedAt)
	return err
}

// GetDraft retrieves the draft for an actor and conversation.
func (s *SQLiteStore) GetDraft(ctx context.Context, actorID, conversationID string) (*models.Draft, error) {
	draft := &models.Draft{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, actor_id, conversation_id, body, updated_at
		FROM drafts WHERE actor_id = ? AND conversation_id = ?
	`, actorID, conversationID).Scan(
		&idStr,
		&draft.ActorID,
		&draft.ConversationID,
		&draft.Body,
		&draft.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	draft.ID = id
	return draft, nil
}

// DeleteDraft removes the draft for an actor and conversation, if any.
func (s *SQLiteStore) DeleteDraft(ctx context.Context, actorID, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM drafts WHERE actor_id = ? AND conversation_id = ?
	`, actorID, conversationID)
	return err
}

// Package history persists conversations, question/answer exchanges
// and user feedback in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	apperrors "github.com/soberano/soberano/internal/errors"
)

// Verdict is a user's judgement of an answer.
type Verdict string

const (
	VerdictPositive Verdict = "positive"
	VerdictNegative Verdict = "negative"
)

// Exchange is one question/answer pair within a conversation.
type Exchange struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	Sources        []string  `json:"sources"`
	Cached         bool      `json:"cached"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationInfo summarizes one conversation.
type ConversationInfo struct {
	ID        string    `json:"id"`
	Exchanges int       `json:"exchanges"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FeedbackStats aggregates the recorded verdicts.
type FeedbackStats struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS exchanges (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	question        TEXT NOT NULL,
	answer          TEXT NOT NULL,
	sources         TEXT NOT NULL DEFAULT '[]',
	cached          INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exchanges_conversation ON exchanges(conversation_id);
CREATE TABLE IF NOT EXISTS feedback (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	exchange_id TEXT NOT NULL,
	verdict     TEXT NOT NULL CHECK (verdict IN ('positive', 'negative')),
	comment     TEXT,
	created_at  TIMESTAMP NOT NULL
);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path. Use ":memory:" for
// tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	// modernc.org/sqlite serializes writes itself; one connection
	// avoids SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	return &Store{db: db}, nil
}

// RecordExchange stores an exchange, creating its conversation on
// first use. Missing IDs are assigned.
func (s *Store) RecordExchange(ctx context.Context, ex *Exchange) error {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.ConversationID == "" {
		ex.ConversationID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	sources, err := json.Marshal(ex.Sources)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		ex.ConversationID, ex.CreatedAt, ex.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO exchanges (id, conversation_id, question, answer, sources, cached, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.ConversationID, ex.Question, ex.Answer, string(sources), ex.Cached, ex.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	return nil
}

// Conversation returns a conversation's exchanges, oldest first.
func (s *Store) Conversation(ctx context.Context, conversationID string) ([]Exchange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, question, answer, sources, cached, created_at
		FROM exchanges WHERE conversation_id = ? ORDER BY created_at, id`,
		conversationID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var ex Exchange
		var sources string
		if err := rows.Scan(&ex.ID, &ex.ConversationID, &ex.Question, &ex.Answer,
			&sources, &ex.Cached, &ex.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err)
		}
		if err := json.Unmarshal([]byte(sources), &ex.Sources); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}
	if out == nil {
		return nil, apperrors.Newf(apperrors.ErrCodeDocumentNotFound,
			"conversation %s not found", conversationID)
	}
	return out, nil
}

// ListConversations returns the most recently updated conversations.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]ConversationInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.created_at, c.updated_at, COUNT(e.id)
		FROM conversations c LEFT JOIN exchanges e ON e.conversation_id = c.id
		GROUP BY c.id ORDER BY c.updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	var out []ConversationInfo
	for rows.Next() {
		var ci ConversationInfo
		if err := rows.Scan(&ci.ID, &ci.CreatedAt, &ci.UpdatedAt, &ci.Exchanges); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err)
		}
		out = append(out, ci)
	}
	return out, rows.Err()
}

// AddFeedback records a verdict for an exchange.
func (s *Store) AddFeedback(ctx context.Context, exchangeID string, verdict Verdict, comment string) error {
	if verdict != VerdictPositive && verdict != VerdictNegative {
		return apperrors.Newf(apperrors.ErrCodeInvalidInput,
			"feedback must be %q or %q", VerdictPositive, VerdictNegative)
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM exchanges WHERE id = ?)`, exchangeID).Scan(&exists)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}
	if !exists {
		return apperrors.Newf(apperrors.ErrCodeDocumentNotFound,
			"exchange %s not found", exchangeID)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback (exchange_id, verdict, comment, created_at)
		VALUES (?, ?, ?, ?)`,
		exchangeID, string(verdict), comment, time.Now().UTC())
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistFailed, err)
	}
	return nil
}

// Feedback returns the aggregated verdict counts.
func (s *Store) Feedback(ctx context.Context) (*FeedbackStats, error) {
	var st FeedbackStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN verdict = 'positive' THEN 1 END),
			COUNT(CASE WHEN verdict = 'negative' THEN 1 END)
		FROM feedback`).Scan(&st.Positive, &st.Negative)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, err)
	}
	return &st, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

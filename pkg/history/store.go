package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Turn is one persisted conversation turn.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Utterance string    `json:"utterance"`
	Answer    string    `json:"answer"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}

// ObservationRecord is the audit copy of one agent invocation.
type ObservationRecord struct {
	ID        string    `json:"id"`
	TurnID    string    `json:"turn_id"`
	Seq       int       `json:"seq"`
	Agent     string    `json:"agent"`
	Query     string    `json:"query"`
	Content   string    `json:"content,omitempty"`
	Failed    bool      `json:"failed"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists sessions, turns, and observations in SQLite. Turn and
// observation sequences are append-only and strictly increasing per parent.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Config holds store configuration.
type Config struct {
	Path   string
	Logger zerolog.Logger
}

// New opens (creating if needed) the history database.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.Path = filepath.Join(homeDir, ".orchid", "history.db")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	s := &Store{db: db, logger: cfg.Logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Str("path", cfg.Path).Msg("History store opened")

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		mode        TEXT NOT NULL,
		created_at  TIMESTAMP NOT NULL,
		archived_at TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS turns (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq        INTEGER NOT NULL,
		utterance  TEXT NOT NULL,
		answer     TEXT NOT NULL,
		outcome    TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(session_id, seq)
	);
	CREATE TABLE IF NOT EXISTS observations (
		id         TEXT PRIMARY KEY,
		turn_id    TEXT NOT NULL REFERENCES turns(id),
		seq        INTEGER NOT NULL,
		agent      TEXT NOT NULL,
		query      TEXT NOT NULL,
		content    TEXT,
		failed     INTEGER NOT NULL DEFAULT 0,
		reason     TEXT,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(turn_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate history schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession records a new session.
func (s *Store) CreateSession(ctx context.Context, id, mode string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, mode, created_at) VALUES (?, ?, ?)`,
		id, mode, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", id, err)
	}
	return nil
}

// AppendTurn persists a completed turn and its observations atomically,
// assigning the next sequence number for the session.
func (s *Store) AppendTurn(ctx context.Context, sessionID, utterance, answer, outcome string, observations []ObservationRecord) (*Turn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?`,
		sessionID).Scan(&seq); err != nil {
		return nil, fmt.Errorf("failed to allocate turn seq: %w", err)
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate turn ID: %w", err)
	}

	turn := &Turn{
		ID:        id,
		SessionID: sessionID,
		Seq:       seq,
		Utterance: utterance,
		Answer:    answer,
		Outcome:   outcome,
		CreatedAt: time.Now(),
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, seq, utterance, answer, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.Seq, turn.Utterance, turn.Answer, turn.Outcome, turn.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert turn: %w", err)
	}

	for _, o := range observations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO observations (id, turn_id, seq, agent, query, content, failed, reason, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, turn.ID, o.Seq, o.Agent, o.Query, o.Content, o.Failed, o.Reason, o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to insert observation %d: %w", o.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit turn: %w", err)
	}

	return turn, nil
}

// Turns returns a session's turns ordered by sequence, newest last. A limit
// of 0 returns everything.
func (s *Store) Turns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	query := `SELECT id, session_id, seq, utterance, answer, outcome, created_at
	          FROM turns WHERE session_id = ? ORDER BY seq`
	args := []interface{}{sessionID}
	if limit > 0 {
		query = `SELECT * FROM (
			SELECT id, session_id, seq, utterance, answer, outcome, created_at
			FROM turns WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Seq, &t.Utterance, &t.Answer, &t.Outcome, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}

	return turns, rows.Err()
}

// Observations returns a turn's observations ordered by sequence.
func (s *Store) Observations(ctx context.Context, turnID string) ([]ObservationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, turn_id, seq, agent, query, content, failed, reason, created_at
		 FROM observations WHERE turn_id = ? ORDER BY seq`, turnID)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var records []ObservationRecord
	for rows.Next() {
		var o ObservationRecord
		var content, reason sql.NullString
		if err := rows.Scan(&o.ID, &o.TurnID, &o.Seq, &o.Agent, &o.Query, &content, &o.Failed, &reason, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		o.Content = content.String
		o.Reason = reason.String
		records = append(records, o)
	}

	return records, rows.Err()
}

// ArchiveSession marks a session archived; its rows survive until pruning.
func (s *Store) ArchiveSession(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET archived_at = ? WHERE id = ? AND archived_at IS NULL`,
		time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to archive session %s: %w", sessionID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("session not found or already archived: %s", sessionID)
	}

	s.logger.Info().Str("session_id", sessionID).Msg("Session archived")
	return nil
}

// PruneArchived deletes archived sessions older than the retention window,
// cascading to their turns and observations.
func (s *Store) PruneArchived(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM observations WHERE turn_id IN (
			SELECT t.id FROM turns t
			JOIN sessions s ON s.id = t.session_id
			WHERE s.archived_at IS NOT NULL AND s.archived_at < ?
		)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to prune observations: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM turns WHERE session_id IN (
			SELECT id FROM sessions WHERE archived_at IS NOT NULL AND archived_at < ?
		)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to prune turns: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE archived_at IS NOT NULL AND archived_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}

	n, _ := result.RowsAffected()
	if n > 0 {
		s.logger.Info().Int64("sessions", n).Msg("Pruned archived sessions")
	}

	return int(n), nil
}

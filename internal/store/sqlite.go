package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agendazap/agendazap/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store over a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a SQLite store at the DSN file path, creating
// the directory and running migrations if needed.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	slog.Debug("Opening SQLite database connection", "path", cfg.DSN)
	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		return nil, fmt.Errorf("run sqlite migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied")
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetConversationStates(endpoint string) (map[string]models.ConversationState, error) {
	var statesJSON string
	err := s.db.QueryRow(`SELECT states_json FROM conversation_endpoints WHERE endpoint = ?`, endpoint).Scan(&statesJSON)
	if err == sql.ErrNoRows {
		return map[string]models.ConversationState{}, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversationStates failed", "error", err, "endpoint", endpoint)
		return nil, fmt.Errorf("query conversation states: %w", err)
	}

	states := make(map[string]models.ConversationState)
	if err := json.Unmarshal([]byte(statesJSON), &states); err != nil {
		slog.Error("SQLiteStore GetConversationStates unmarshal failed", "error", err, "endpoint", endpoint)
		return nil, fmt.Errorf("decode conversation states: %w", err)
	}
	return states, nil
}

func (s *SQLiteStore) SaveConversationStates(endpoint string, states map[string]models.ConversationState) error {
	statesJSON, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("encode conversation states: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO conversation_endpoints (endpoint, states_json, updated_at) VALUES (?, ?, ?)`,
		endpoint, string(statesJSON), time.Now())
	if err != nil {
		slog.Error("SQLiteStore SaveConversationStates failed", "error", err, "endpoint", endpoint)
		return fmt.Errorf("save conversation states: %w", err)
	}
	slog.Debug("SQLiteStore SaveConversationStates succeeded", "endpoint", endpoint, "count", len(states))
	return nil
}

func (s *SQLiteStore) RecordInbound(messageID, customer string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO inbound_dedup (message_id, customer, received_at) VALUES (?, ?, ?)`,
		messageID, customer, time.Now())
	if err != nil {
		return false, fmt.Errorf("record inbound message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`, time.Now(), messageID)
	if err != nil {
		return fmt.Errorf("mark message processed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) EnqueueReply(msg OutboxMessage) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO reply_outbox (endpoint, recipient, payload_json, status, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, 'pending', 0, ?, ?)`,
		msg.Endpoint, msg.Recipient, msg.PayloadJSON, now, now)
	if err != nil {
		slog.Error("SQLiteStore EnqueueReply failed", "error", err, "recipient", msg.Recipient)
		return fmt.Errorf("enqueue reply: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClaimDueReplies(now time.Time, limit int) ([]OutboxMessage, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT id, endpoint, recipient, payload_json, status, attempts, next_attempt_at, last_error, created_at, updated_at
		 FROM reply_outbox
		 WHERE status = 'pending' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY id LIMIT ?`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due replies: %w", err)
	}
	msgs, err := scanOutboxMessages(rows)
	if err != nil {
		return nil, err
	}

	for _, m := range msgs {
		if _, err := tx.Exec(`UPDATE reply_outbox SET status = 'sending', updated_at = ? WHERE id = ?`, now, m.ID); err != nil {
			return nil, fmt.Errorf("claim reply %d: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return msgs, nil
}

func (s *SQLiteStore) MarkReplySent(id int64) error {
	_, err := s.db.Exec(`UPDATE reply_outbox SET status = 'sent', updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("mark reply sent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailReply(id int64, reason string, nextAttempt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE reply_outbox SET status = 'pending', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, updated_at = ? WHERE id = ?`,
		reason, nextAttempt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("fail reply: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RequeueStaleSending(before time.Time) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE reply_outbox SET status = 'pending', updated_at = ? WHERE status = 'sending' AND updated_at < ?`,
		time.Now(), before)
	if err != nil {
		return 0, fmt.Errorf("requeue stale replies: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

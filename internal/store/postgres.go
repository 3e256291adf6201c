package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/agendazap/agendazap/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store over PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to PostgreSQL at the DSN and runs migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening PostgreSQL database connection")
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres database: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		return nil, fmt.Errorf("run postgres migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetConversationStates(endpoint string) (map[string]models.ConversationState, error) {
	var statesJSON string
	err := s.db.QueryRow(`SELECT states_json FROM conversation_endpoints WHERE endpoint = $1`, endpoint).Scan(&statesJSON)
	if err == sql.ErrNoRows {
		return map[string]models.ConversationState{}, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversationStates failed", "error", err, "endpoint", endpoint)
		return nil, fmt.Errorf("query conversation states: %w", err)
	}

	states := make(map[string]models.ConversationState)
	if err := json.Unmarshal([]byte(statesJSON), &states); err != nil {
		return nil, fmt.Errorf("decode conversation states: %w", err)
	}
	return states, nil
}

func (s *PostgresStore) SaveConversationStates(endpoint string, states map[string]models.ConversationState) error {
	statesJSON, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("encode conversation states: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO conversation_endpoints (endpoint, states_json, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (endpoint) DO UPDATE SET states_json = EXCLUDED.states_json, updated_at = EXCLUDED.updated_at`,
		endpoint, string(statesJSON), time.Now())
	if err != nil {
		slog.Error("PostgresStore SaveConversationStates failed", "error", err, "endpoint", endpoint)
		return fmt.Errorf("save conversation states: %w", err)
	}
	slog.Debug("PostgresStore SaveConversationStates succeeded", "endpoint", endpoint, "count", len(states))
	return nil
}

func (s *PostgresStore) RecordInbound(messageID, customer string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO inbound_dedup (message_id, customer, received_at) VALUES ($1, $2, $3)
		 ON CONFLICT (message_id) DO NOTHING`,
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

func (s *PostgresStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(`UPDATE inbound_dedup SET processed_at = $1 WHERE message_id = $2`, time.Now(), messageID)
	if err != nil {
		return fmt.Errorf("mark message processed: %w", err)
	}
	return nil
}

func (s *PostgresStore) EnqueueReply(msg OutboxMessage) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO reply_outbox (endpoint, recipient, payload_json, status, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, 'pending', 0, $4, $5)`,
		msg.Endpoint, msg.Recipient, msg.PayloadJSON, now, now)
	if err != nil {
		slog.Error("PostgresStore EnqueueReply failed", "error", err, "recipient", msg.Recipient)
		return fmt.Errorf("enqueue reply: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClaimDueReplies(now time.Time, limit int) ([]OutboxMessage, error) {
	rows, err := s.db.Query(
		`UPDATE reply_outbox SET status = 'sending', updated_at = $1
		 WHERE id IN (
			SELECT id FROM reply_outbox
			WHERE status = 'pending' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
			ORDER BY id LIMIT $2
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, endpoint, recipient, payload_json, status, attempts, next_attempt_at, last_error, created_at, updated_at`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due replies: %w", err)
	}
	return scanOutboxMessages(rows)
}

func (s *PostgresStore) MarkReplySent(id int64) error {
	_, err := s.db.Exec(`UPDATE reply_outbox SET status = 'sent', updated_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("mark reply sent: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailReply(id int64, reason string, nextAttempt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE reply_outbox SET status = 'pending', attempts = attempts + 1, last_error = $1, next_attempt_at = $2, updated_at = $3 WHERE id = $4`,
		reason, nextAttempt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("fail reply: %w", err)
	}
	return nil
}

func (s *PostgresStore) RequeueStaleSending(before time.Time) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE reply_outbox SET status = 'pending', updated_at = $1 WHERE status = 'sending' AND updated_at < $2`,
		time.Now(), before)
	if err != nil {
		return 0, fmt.Errorf("requeue stale replies: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the PostgreSQL connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}

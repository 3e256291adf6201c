package store

import (
	"database/sql"
	"fmt"
)

// scanOutboxMessages scans reply_outbox rows shared by both SQL backends.
func scanOutboxMessages(rows *sql.Rows) ([]OutboxMessage, error) {
	defer rows.Close()

	var msgs []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var nextAttemptAt sql.NullTime
		var lastError sql.NullString
		err := rows.Scan(
			&m.ID, &m.Endpoint, &m.Recipient, &m.PayloadJSON, &m.Status, &m.Attempts,
			&nextAttemptAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		if nextAttemptAt.Valid {
			m.NextAttemptAt = &nextAttemptAt.Time
		}
		m.LastError = lastError.String
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return msgs, nil
}

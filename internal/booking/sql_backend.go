package booking

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/agendazap/agendazap/internal/models"
	"github.com/agendazap/agendazap/internal/redislock"
)

// SQLBackend is the PostgreSQL-backed order backend: slots and orders
// tables plus the atomic commit. The commit takes a per-slot Redis lock
// and, inside a transaction, performs a conditional UPDATE that only
// succeeds while the slot is still available. The re-validation and the
// status flip are one statement, never a caller-side read-then-write.
type SQLBackend struct {
	db     *sql.DB
	locker redislock.Locker
}

const sqlBackendSchema = `
CREATE TABLE IF NOT EXISTS slots (
	id TEXT PRIMARY KEY,
	endpoint TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'available',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_slots_endpoint_start ON slots (endpoint, start_time);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	endpoint TEXT NOT NULL,
	slot_id TEXT NOT NULL REFERENCES slots (id),
	customer_name TEXT NOT NULL,
	customer_phone TEXT NOT NULL,
	items_json TEXT NOT NULL,
	total_cents BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// NewSQLBackend opens the PostgreSQL order backend and ensures its
// schema. Pass a redislock.NewNoopLocker() when Redis is not configured.
func NewSQLBackend(dsn string, locker redislock.Locker) (*SQLBackend, error) {
	slog.Debug("Opening booking backend database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open booking database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping booking database: %w", err)
	}
	if _, err := db.Exec(sqlBackendSchema); err != nil {
		return nil, fmt.Errorf("apply booking schema: %w", err)
	}
	if locker == nil {
		locker = redislock.NewNoopLocker()
	}
	slog.Debug("Booking backend schema applied")
	return &SQLBackend{db: db, locker: locker}, nil
}

// Close closes the database connection.
func (b *SQLBackend) Close() error {
	return b.db.Close()
}

// AddSlot inserts a slot. Used by seeding.
func (b *SQLBackend) AddSlot(ctx context.Context, slot models.Slot) error {
	if slot.Status == "" {
		slot.Status = models.SlotAvailable
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO slots (id, endpoint, start_time, status) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		slot.ID, slot.Endpoint, slot.StartTime, slot.Status)
	if err != nil {
		return fmt.Errorf("insert slot %s: %w", slot.ID, err)
	}
	return nil
}

// AvailableSlots returns available slots for an endpoint on a date,
// ordered by start time. Booked slots never appear in the result.
func (b *SQLBackend) AvailableSlots(ctx context.Context, endpoint, date string) ([]models.Slot, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, endpoint, start_time, status FROM slots
		 WHERE endpoint = $1 AND status = 'available' AND start_time::date = $2::date
		 ORDER BY start_time`,
		endpoint, date)
	if err != nil {
		slog.Error("SQLBackend AvailableSlots query failed", "error", err, "endpoint", endpoint, "date", date)
		return nil, fmt.Errorf("query available slots: %w", err)
	}
	defer rows.Close()

	var slots []models.Slot
	for rows.Next() {
		var s models.Slot
		if err := rows.Scan(&s.ID, &s.Endpoint, &s.StartTime, &s.Status); err != nil {
			return nil, fmt.Errorf("scan slot row: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slot rows: %w", err)
	}
	slog.Debug("SQLBackend AvailableSlots succeeded", "endpoint", endpoint, "date", date, "count", len(slots))
	return slots, nil
}

// BookSlot atomically re-validates and books the slot, creating the
// order in the same transaction.
func (b *SQLBackend) BookSlot(ctx context.Context, req models.BookingRequest) (models.BookingResult, error) {
	var result models.BookingResult

	err := b.locker.WithSlotLock(ctx, req.SlotID, func(lockCtx context.Context) error {
		r, err := b.bookSlotTx(lockCtx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if errors.Is(err, redislock.ErrLockNotAcquired) {
			// Another process is committing this slot right now; from this
			// customer's perspective the slot is gone.
			slog.Debug("SQLBackend BookSlot: slot lock contended", "slotID", req.SlotID)
			return models.BookingResult{Reason: models.ReasonSlotUnavailable}, nil
		}
		return models.BookingResult{}, err
	}
	return result, nil
}

func (b *SQLBackend) bookSlotTx(ctx context.Context, req models.BookingRequest) (models.BookingResult, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return models.BookingResult{}, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE slots SET status = 'booked', updated_at = now()
		 WHERE id = $1 AND status = 'available'`,
		req.SlotID)
	if err != nil {
		return models.BookingResult{}, fmt.Errorf("mark slot booked: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.BookingResult{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists string
		err := tx.QueryRowContext(ctx, `SELECT id FROM slots WHERE id = $1`, req.SlotID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return models.BookingResult{Reason: models.ReasonSlotNotFound}, nil
		}
		if err != nil {
			return models.BookingResult{}, fmt.Errorf("check slot existence: %w", err)
		}
		slog.Info("SQLBackend BookSlot: slot already booked", "slotID", req.SlotID)
		return models.BookingResult{Reason: models.ReasonSlotUnavailable}, nil
	}

	itemsJSON, err := json.Marshal(req.Items)
	if err != nil {
		return models.BookingResult{}, fmt.Errorf("marshal order items: %w", err)
	}

	order := models.Order{
		ID:            uuid.NewString(),
		Endpoint:      req.Endpoint,
		SlotID:        req.SlotID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Items:         req.Items,
		TotalCents:    req.TotalCents,
		CreatedAt:     time.Now(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, endpoint, slot_id, customer_name, customer_phone, items_json, total_cents, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		order.ID, order.Endpoint, order.SlotID, order.CustomerName, order.CustomerPhone,
		string(itemsJSON), order.TotalCents, order.CreatedAt)
	if err != nil {
		return models.BookingResult{}, fmt.Errorf("insert order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.BookingResult{}, fmt.Errorf("commit booking tx: %w", err)
	}

	slog.Info("SQLBackend BookSlot succeeded", "slotID", req.SlotID, "orderID", order.ID)
	return models.BookingResult{Booked: true, Order: &order}, nil
}

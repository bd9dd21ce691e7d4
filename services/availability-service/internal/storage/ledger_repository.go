package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/slotwise/slotwise/libs/db"
	"github.com/slotwise/slotwise/services/availability-service/internal/engine"
	"github.com/slotwise/slotwise/services/availability-service/internal/outbox"
)

// LedgerRepository is the production engine.Ledger over an appointments table.
// Only rows with status 'booked' block availability; removal cancels the row
// instead of deleting it, keeping the audit trail. Every mutation writes its
// outbox event in the same transaction.
type LedgerRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	logger *slog.Logger
}

func NewLedgerRepository(pool *db.Pool, outboxRepo *outbox.Repository, logger *slog.Logger) *LedgerRepository {
	return &LedgerRepository{pool: pool, outbox: outboxRepo, logger: logger}
}

func (r *LedgerRepository) BookedIntervals(ctx context.Context, staffID string, from, to time.Time) ([]engine.Interval, error) {
	return r.bookedIntervals(ctx, r.pool, staffID, from, to)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *LedgerRepository) bookedIntervals(ctx context.Context, q querier, staffID string, from, to time.Time) ([]engine.Interval, error) {
	rows, err := q.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE staff_id = $1
			AND status = 'booked'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time
	`, staffID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Interval
	for rows.Next() {
		var iv engine.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *LedgerRepository) AddAppointment(ctx context.Context, staffID string, iv engine.Interval) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.insert(ctx, tx, staffID, iv); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *LedgerRepository) insert(ctx context.Context, tx pgx.Tx, staffID string, iv engine.Interval) error {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments (id, staff_id, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, 'booked')
	`, id, staffID, iv.Start, iv.End)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": id,
		"staff_id":       staffID,
		"start_time":     iv.Start.UTC().Format(time.RFC3339),
		"end_time":       iv.End.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     outbox.EventAppointmentBooked,
		Payload:       payload,
	})
}

func (r *LedgerRepository) RemoveAppointment(ctx context.Context, staffID string, iv engine.Interval) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancelled_at = now()
		WHERE id = (
			SELECT id FROM appointments
			WHERE staff_id = $1 AND start_time = $2 AND end_time = $3 AND status = 'booked'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE
		)
		RETURNING id
	`, staffID, iv.Start, iv.End).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": id,
		"staff_id":       staffID,
		"start_time":     iv.Start.UTC().Format(time.RFC3339),
		"end_time":       iv.End.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false, err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     outbox.EventAppointmentRemoved,
		Payload:       payload,
	}); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// Reserve serializes conflicting bookings per staff member with a transactional
// advisory lock: the conflict check replays against the intervals visible under
// the lock, so two concurrent reservations of the same window cannot both pass.
func (r *LedgerRepository) Reserve(ctx context.Context, staffID string, iv engine.Interval, check engine.ConflictCheck) ([]engine.Conflict, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, staffID); err != nil {
		return nil, err
	}

	busy, err := r.bookedIntervals(ctx, tx, staffID, iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	conflicts, err := check(busy)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return conflicts, nil
	}

	if err := r.insert(ctx, tx, staffID, iv); err != nil {
		return nil, err
	}
	return nil, tx.Commit(ctx)
}

var _ engine.Ledger = (*LedgerRepository)(nil)

// IsConflict reports a unique or exclusion constraint violation.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23P01")
}

// IsNotFound reports a no-rows read.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

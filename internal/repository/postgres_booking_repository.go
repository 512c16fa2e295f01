package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/talking-potato/booking-service/internal/domain"
	"github.com/talking-potato/booking-service/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same
// repository code runs inside and outside the slot-lock transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBookingRepository implements the capacity ledger on PostgreSQL
// with pgxpool. Admission serialization uses a per-(store,slot) advisory
// transaction lock: the lock is scoped to the slot key, so different
// stores or slots never contend.
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
	q    querier
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool, q: pool}
}

// slotKey is the advisory lock key for a (store, slot) pair.
// Slot times are minute-granular by caller contract, so the formatted
// minute is a stable key.
func slotKey(storeID string, slotAt time.Time) string {
	return storeID + "|" + slotAt.UTC().Format("2006-01-02T15:04")
}

// WithSlotLock runs fn inside a single transaction holding the advisory
// lock for (storeID, slotAt). The capacity read and the dependent insert
// both see and produce committed state atomically for that slot.
func (r *PostgresBookingRepository) WithSlotLock(ctx context.Context, storeID string, slotAt time.Time, fn func(ledger BookingRepository) error) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.with_slot_lock")
	defer span.End()

	span.SetAttributes(
		attribute.String("store_id", storeID),
		attribute.String("slot_at", slotAt.Format(time.RFC3339)),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to begin admission transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, slotKey(storeID, slotAt)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to acquire slot lock: %w", err)
	}

	txRepo := &PostgresBookingRepository{pool: r.pool, q: tx}
	if err := fn(txRepo); err != nil {
		// Rollback via defer; admission rejections roll back cleanly
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to commit admission transaction: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CurrentLoad returns the committed seat load for a store slot
func (r *PostgresBookingRepository) CurrentLoad(ctx context.Context, storeID string, slotAt time.Time) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.current_load")
	defer span.End()

	span.SetAttributes(
		attribute.String("store_id", storeID),
		attribute.String("slot_at", slotAt.Format(time.RFC3339)),
	)

	query := `
		SELECT COALESCE(SUM(party_size), 0)
		FROM bookings
		WHERE store_id = $1 AND slot_at = $2 AND state = $3
	`

	var load int
	err := r.q.QueryRow(ctx, query, storeID, slotAt, domain.StateReserved.String()).Scan(&load)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to aggregate slot load: %w", err)
	}

	span.SetAttributes(attribute.Int("load", load))
	span.SetStatus(codes.Ok, "")
	return load, nil
}

// Create inserts a booking and fills in its assigned identity
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", booking.UserID),
		attribute.String("store_id", booking.StoreID),
		attribute.Int("party_size", booking.PartySize),
	)

	query := `
		INSERT INTO bookings (
			user_id, user_name, store_id, slot_at,
			party_size, state, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8
		)
		RETURNING booking_num
	`

	err := r.q.QueryRow(ctx, query,
		booking.UserID,
		booking.UserName,
		booking.StoreID,
		booking.SlotAt,
		booking.PartySize,
		booking.State.String(),
		booking.CreatedAt,
		booking.UpdatedAt,
	).Scan(&booking.ID)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create booking: %w", err)
	}

	span.SetAttributes(attribute.Int64("booking_num", booking.ID))
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a booking by its identity
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.Int64("booking_num", id))

	query := `
		SELECT booking_num, user_id, user_name, store_id, slot_at,
			party_size, state, created_at, updated_at
		FROM bookings
		WHERE booking_num = $1
	`

	booking, err := scanBookingRow(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetByUserID retrieves all bookings for a user, newest first
func (r *PostgresBookingRepository) GetByUserID(ctx context.Context, userID string) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_user_id")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", userID))

	query := `
		SELECT booking_num, user_id, user_name, store_id, slot_at,
			party_size, state, created_at, updated_at
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get bookings by user ID: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// UpdateState persists a state change for a booking
func (r *PostgresBookingRepository) UpdateState(ctx context.Context, id int64, state domain.BookingState) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update_state")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("booking_num", id),
		attribute.String("state", state.String()),
	)

	query := `
		UPDATE bookings SET
			state = $2,
			updated_at = $3
		WHERE booking_num = $1
	`

	result, err := r.q.Exec(ctx, query, id, state.String(), time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update booking state: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListReservedBefore returns reserved bookings whose slot is at or before
// the cutoff, oldest first
func (r *PostgresBookingRepository) ListReservedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_reserved_before")
	defer span.End()

	span.SetAttributes(attribute.String("cutoff", cutoff.Format(time.RFC3339)))

	query := `
		SELECT booking_num, user_id, user_name, store_id, slot_at,
			party_size, state, created_at, updated_at
		FROM bookings
		WHERE state = $1 AND slot_at <= $2
		ORDER BY slot_at ASC
	`

	rows, err := r.q.Query(ctx, query, domain.StateReserved.String(), cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list reserved bookings: %w", err)
	}
	defer rows.Close()

	bookings, err := collectBookings(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

func scanBookingRow(row pgx.Row) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var state string

	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.UserName,
		&booking.StoreID,
		&booking.SlotAt,
		&booking.PartySize,
		&state,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	booking.State = domain.BookingState(state)
	return booking, nil
}

func collectBookings(rows pgx.Rows) ([]*domain.Booking, error) {
	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBookingRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const bookingColumns = `id, service_id, resource_id, patient_id, start_time, end_time,
	target_timezone, status, public_token, rescheduled_from_id,
	cancellation_reason, cancelled_at, cancelled_by, created_at, updated_at`

// DB is the subset of pgxpool.Pool the repository uses. Tests inject a
// pgxmock pool through it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var cancelledBy *string

	err := row.Scan(
		&b.ID,
		&b.ServiceID,
		&b.ResourceID,
		&b.PatientID,
		&b.StartTime,
		&b.EndTime,
		&b.TargetTimezone,
		&b.Status,
		&b.PublicToken,
		&b.RescheduledFromID,
		&b.CancellationReason,
		&b.CancelledAt,
		&cancelledBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	if cancelledBy != nil {
		actor := Actor(*cancelledBy)
		b.CancelledBy = &actor
	}
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) GetByToken(ctx context.Context, token string) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE public_token = $1
	`, token)
	return scanBooking(row)
}

func (r *PgRepository) ListActiveOverlapping(ctx context.Context, resourceID uuid.UUID, start, end time.Time) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE resource_id = $1
		  AND status NOT IN ('cancelled', 'rescheduled')
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, resourceID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PgRepository) Create(ctx context.Context, b *Booking) (*Booking, error) {
	id := b.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO bookings (id, service_id, resource_id, patient_id, start_time, end_time,
			target_timezone, status, public_token, rescheduled_from_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+bookingColumns+`
	`, id, b.ServiceID, b.ResourceID, b.PatientID, b.StartTime.UTC(), b.EndTime.UTC(),
		b.TargetTimezone, b.Status, b.PublicToken, b.RescheduledFromID)

	return scanBooking(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingColumns+`
	`, id, to, from)

	return scanBooking(row)
}

func (r *PgRepository) Cancel(ctx context.Context, id uuid.UUID, reason string, actor Actor, at time.Time) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
		    cancellation_reason = $2,
		    cancelled_by = $3,
		    cancelled_at = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending_payment', 'confirmed')
		RETURNING `+bookingColumns+`
	`, id, reason, string(actor), at.UTC())

	return scanBooking(row)
}

func (r *PgRepository) Reschedule(ctx context.Context, oldID uuid.UUID, successor *Booking) (*Booking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = 'rescheduled',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending_payment', 'confirmed')
	`, oldID)
	if err != nil {
		return nil, fmt.Errorf("mark booking rescheduled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrBookingNotFound
	}

	id := successor.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO bookings (id, service_id, resource_id, patient_id, start_time, end_time,
			target_timezone, status, public_token, rescheduled_from_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+bookingColumns+`
	`, id, successor.ServiceID, successor.ResourceID, successor.PatientID,
		successor.StartTime.UTC(), successor.EndTime.UTC(), successor.TargetTimezone,
		successor.Status, successor.PublicToken, oldID)

	created, err := scanBooking(row)
	if err != nil {
		return nil, fmt.Errorf("insert successor booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) FindElapsedConfirmed(ctx context.Context, now time.Time) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'confirmed'
		  AND end_time < $1
	`, now.UTC())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PgRepository) FindStalePendingPayment(ctx context.Context, cutoff time.Time) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'pending_payment'
		  AND created_at < $1
	`, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO booking_events (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

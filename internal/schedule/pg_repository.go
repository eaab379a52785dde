package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

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

// Helpers

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	err := row.Scan(&p.ID, &p.Name, &p.Specialty, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanSchedule(row pgx.Row) (*AvailabilitySchedule, error) {
	var s AvailabilitySchedule
	err := row.Scan(&s.ID, &s.PractitionerID, &s.Name, &s.Timezone, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Interface methods

func (r *PgRepository) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id)
	return scanPractitioner(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetServiceType(ctx context.Context, id uuid.UUID) (*ServiceType, error) {
	var (
		s             ServiceType
		durationMins  int
		noticeMinutes int
	)
	row := r.db.QueryRow(ctx, `
		SELECT id, name, duration_minutes, scheduling_type, service_mode, capacity,
		       requires_payment, min_notice_minutes, allow_cancel, allow_reschedule,
		       schedule_id, practitioner_id, created_at, updated_at
		FROM service_types
		WHERE id = $1
	`, id)
	err := row.Scan(
		&s.ID,
		&s.Name,
		&durationMins,
		&s.SchedulingType,
		&s.Mode,
		&s.Capacity,
		&s.RequiresPayment,
		&noticeMinutes,
		&s.Policy.AllowCancel,
		&s.Policy.AllowReschedule,
		&s.ScheduleID,
		&s.PractitionerID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	s.Duration = time.Duration(durationMins) * time.Minute
	s.Policy.MinimumNotice = time.Duration(noticeMinutes) * time.Minute

	if s.SchedulingType == SchedulingFixedDate {
		sessions, err := r.listSessions(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("list service sessions: %w", err)
		}
		s.Sessions = sessions
	}

	return &s, nil
}

func (r *PgRepository) listSessions(ctx context.Context, serviceID uuid.UUID) ([]time.Time, error) {
	rows, err := r.db.Query(ctx, `
		SELECT starts_at
		FROM service_sessions
		WHERE service_id = $1
		ORDER BY starts_at
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		sessions = append(sessions, t.UTC())
	}
	return sessions, rows.Err()
}

func (r *PgRepository) CreateSchedule(ctx context.Context, s *AvailabilitySchedule) (*AvailabilitySchedule, error) {
	id := uuid.New()
	row := r.db.QueryRow(ctx, `
		INSERT INTO schedules (id, practitioner_id, name, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, practitioner_id, name, timezone, created_at, updated_at
	`, id, s.PractitionerID, s.Name, s.Timezone)
	return scanSchedule(row)
}

func (r *PgRepository) GetScheduleData(ctx context.Context, scheduleID uuid.UUID) (*ScheduleData, error) {
	sched, err := scanSchedule(r.db.QueryRow(ctx, `
		SELECT id, practitioner_id, name, timezone, created_at, updated_at
		FROM schedules
		WHERE id = $1
	`, scheduleID))
	if err != nil {
		return nil, err
	}

	data := &ScheduleData{Schedule: *sched}

	rows, err := r.db.Query(ctx, `
		SELECT id, schedule_id, weekday, start_minute, end_minute, created_at
		FROM availability_blocks
		WHERE schedule_id = $1
		ORDER BY weekday, start_minute
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	for rows.Next() {
		var b AvailabilityBlock
		var weekday int
		if err := rows.Scan(&b.ID, &b.ScheduleID, &weekday, &b.StartMinute, &b.EndMinute, &b.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		b.Weekday = time.Weekday(weekday)
		data.Blocks = append(data.Blocks, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Query(ctx, `
		SELECT id, schedule_id, start_time, end_time, reason, created_at
		FROM time_off
		WHERE schedule_id = $1
		ORDER BY start_time
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("load time off: %w", err)
	}
	for rows.Next() {
		var t TimeOff
		if err := rows.Scan(&t.ID, &t.ScheduleID, &t.StartTime, &t.EndTime, &t.Reason, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		t.StartTime = t.StartTime.UTC()
		t.EndTime = t.EndTime.UTC()
		data.TimeOff = append(data.TimeOff, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	specifics, err := r.loadSpecific(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("load specific availability: %w", err)
	}
	data.Specific = specifics

	return data, nil
}

func (r *PgRepository) loadSpecific(ctx context.Context, scheduleID uuid.UUID) ([]SpecificAvailability, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, schedule_id, on_date::text, created_at
		FROM specific_availability
		WHERE schedule_id = $1
		ORDER BY on_date
	`, scheduleID)
	if err != nil {
		return nil, err
	}

	var specifics []SpecificAvailability
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var sa SpecificAvailability
		if err := rows.Scan(&sa.ID, &sa.ScheduleID, &sa.Date, &sa.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		index[sa.ID] = len(specifics)
		specifics = append(specifics, sa)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(specifics) == 0 {
		return nil, nil
	}

	rows, err = r.db.Query(ctx, `
		SELECT w.specific_id, w.start_minute, w.end_minute
		FROM specific_windows w
		JOIN specific_availability sa ON sa.id = w.specific_id
		WHERE sa.schedule_id = $1
		ORDER BY w.start_minute
	`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var specificID uuid.UUID
		var w TimeWindow
		if err := rows.Scan(&specificID, &w.StartMinute, &w.EndMinute); err != nil {
			return nil, err
		}
		if i, ok := index[specificID]; ok {
			specifics[i].Windows = append(specifics[i].Windows, w)
		}
	}
	return specifics, rows.Err()
}

func (r *PgRepository) AddBlock(ctx context.Context, b *AvailabilityBlock) (*AvailabilityBlock, error) {
	id := uuid.New()
	var out AvailabilityBlock
	var weekday int
	row := r.db.QueryRow(ctx, `
		INSERT INTO availability_blocks (id, schedule_id, weekday, start_minute, end_minute, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, schedule_id, weekday, start_minute, end_minute, created_at
	`, id, b.ScheduleID, int(b.Weekday), b.StartMinute, b.EndMinute)
	if err := row.Scan(&out.ID, &out.ScheduleID, &weekday, &out.StartMinute, &out.EndMinute, &out.CreatedAt); err != nil {
		return nil, err
	}
	out.Weekday = time.Weekday(weekday)
	return &out, nil
}

func (r *PgRepository) AddTimeOff(ctx context.Context, t *TimeOff) (*TimeOff, error) {
	id := uuid.New()
	var out TimeOff
	row := r.db.QueryRow(ctx, `
		INSERT INTO time_off (id, schedule_id, start_time, end_time, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, schedule_id, start_time, end_time, reason, created_at
	`, id, t.ScheduleID, t.StartTime.UTC(), t.EndTime.UTC(), t.Reason)
	if err := row.Scan(&out.ID, &out.ScheduleID, &out.StartTime, &out.EndTime, &out.Reason, &out.CreatedAt); err != nil {
		return nil, err
	}
	out.StartTime = out.StartTime.UTC()
	out.EndTime = out.EndTime.UTC()
	return &out, nil
}

func (r *PgRepository) AddSpecificAvailability(ctx context.Context, sa *SpecificAvailability) (*SpecificAvailability, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	id := uuid.New()
	out := SpecificAvailability{Windows: sa.Windows}
	row := tx.QueryRow(ctx, `
		INSERT INTO specific_availability (id, schedule_id, on_date, created_at)
		VALUES ($1, $2, $3::date, now())
		RETURNING id, schedule_id, on_date::text, created_at
	`, id, sa.ScheduleID, sa.Date)
	if err := row.Scan(&out.ID, &out.ScheduleID, &out.Date, &out.CreatedAt); err != nil {
		return nil, err
	}

	for _, w := range sa.Windows {
		_, err := tx.Exec(ctx, `
			INSERT INTO specific_windows (specific_id, start_minute, end_minute)
			VALUES ($1, $2, $3)
		`, out.ID, w.StartMinute, w.EndMinute)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSchedule cascades over owned children explicitly so the
// ownership rule lives here rather than in FK definitions.
func (r *PgRepository) DeleteSchedule(ctx context.Context, scheduleID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM specific_windows
		WHERE specific_id IN (SELECT id FROM specific_availability WHERE schedule_id = $1)
	`, scheduleID)
	if err != nil {
		return fmt.Errorf("delete specific windows: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM specific_availability WHERE schedule_id = $1`, scheduleID); err != nil {
		return fmt.Errorf("delete specific availability: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM time_off WHERE schedule_id = $1`, scheduleID); err != nil {
		return fmt.Errorf("delete time off: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM availability_blocks WHERE schedule_id = $1`, scheduleID); err != nil {
		return fmt.Errorf("delete blocks: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, scheduleID)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}

	return tx.Commit(ctx)
}

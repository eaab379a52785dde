package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/careloop/booking-engine/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	_ = godotenv.Load()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	bg := context.Background()

	practitioners, err := seedPractitioners(bg, pool, 50)
	if err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}
	if err := seedPatients(bg, pool, 5000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSchedulesAndServices(bg, pool, practitioners); err != nil {
		log.Fatalf("seed schedules and services: %v", err)
	}

	log.Println("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d practitioners", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Physiotherapy",
		"Nutrition",
		"Psychiatry",
		"Pediatrics",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Name(), spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("practitioners seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	return nil
}

// seedSchedulesAndServices gives every practitioner a weekday schedule
// and a calendar-driven consultation service, plus a handful of
// fixed-date group workshops spread across practitioners.
func seedSchedulesAndServices(ctx context.Context, pool *pgxpool.Pool, practitioners []uuid.UUID) error {
	log.Printf("seeding schedules and services for %d practitioners", len(practitioners))

	timezones := []string{"America/New_York", "Europe/London", "Europe/Berlin", "Asia/Tokyo", "UTC"}
	durations := []int{30, 45, 60}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i, pid := range practitioners {
		scheduleID := uuid.New()
		tz := timezones[gofakeit.Number(0, len(timezones)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO schedules (id, practitioner_id, name, timezone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, scheduleID, pid, "standard hours", tz)
		if err != nil {
			return err
		}

		// Monday through Friday, 9-12 and 13-17 local.
		for weekday := 1; weekday <= 5; weekday++ {
			for _, window := range [][2]int{{9 * 60, 12 * 60}, {13 * 60, 17 * 60}} {
				_, err := tx.Exec(ctx, `
					INSERT INTO availability_blocks (id, schedule_id, weekday, start_minute, end_minute, created_at)
					VALUES ($1, $2, $3, $4, $5, now())
				`, uuid.New(), scheduleID, weekday, window[0], window[1])
				if err != nil {
					return err
				}
			}
		}

		duration := durations[gofakeit.Number(0, len(durations)-1)]
		_, err = tx.Exec(ctx, `
			INSERT INTO service_types (id, name, duration_minutes, scheduling_type, service_mode,
				capacity, requires_payment, min_notice_minutes, allow_cancel, allow_reschedule,
				schedule_id, practitioner_id, created_at, updated_at)
			VALUES ($1, $2, $3, 'calendar', 'one_on_one', 1, $4, $5, TRUE, TRUE, $6, $7, now(), now())
		`, uuid.New(), gofakeit.JobTitle()+" consultation", duration,
			gofakeit.Bool(), 24*60, scheduleID, pid)
		if err != nil {
			return err
		}

		// Every tenth practitioner also runs a fixed-date group workshop.
		if i%10 == 0 {
			serviceID := uuid.New()
			_, err = tx.Exec(ctx, `
				INSERT INTO service_types (id, name, duration_minutes, scheduling_type, service_mode,
					capacity, requires_payment, min_notice_minutes, allow_cancel, allow_reschedule,
					schedule_id, practitioner_id, created_at, updated_at)
				VALUES ($1, $2, 90, 'fixed_date', 'group', $3, FALSE, $4, TRUE, FALSE, NULL, $5, now(), now())
			`, serviceID, "group workshop: "+gofakeit.HackerVerb(), gofakeit.Number(5, 20), 48*60, pid)
			if err != nil {
				return err
			}

			base := time.Now().UTC().Truncate(time.Hour).Add(72 * time.Hour)
			for s := 0; s < 4; s++ {
				_, err = tx.Exec(ctx, `
					INSERT INTO service_sessions (id, service_id, starts_at)
					VALUES ($1, $2, $3)
				`, uuid.New(), serviceID, base.AddDate(0, 0, 7*s))
				if err != nil {
					return err
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("schedules and services seeded")
	return nil
}

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/careloop/booking-engine/internal/availability"
	"github.com/careloop/booking-engine/internal/booking"
	"github.com/careloop/booking-engine/internal/config"
	"github.com/careloop/booking-engine/internal/db"
	redisclient "github.com/careloop/booking-engine/internal/redis"
	"github.com/careloop/booking-engine/internal/schedule"
)

// The lifecycle worker sweeps bookings through their time-driven
// transitions: confirmed sessions that have ended become completed, and
// pending_payment bookings past the payment hold are cancelled so their
// capacity frees up.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("lifecycle-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running lifecycle worker in env=%s interval=%s payment_hold=%s",
		cfg.Env, cfg.WorkerInterval, cfg.PaymentHoldTTL)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	directory := schedule.NewPgRepository(pgPool)
	bookings := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisResourceLocker(rdb, cfg.LockTTL)
	svc := booking.NewService(bookings, directory, locker, availability.NoBusy{}, cfg)

	// Run once at startup
	runOnce(rootCtx, svc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping lifecycle worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.CancelStalePayments(runCtx); err != nil {
		log.Printf("stale payment sweep error: %v", err)
	}
	if err := svc.CompleteElapsed(runCtx); err != nil {
		log.Printf("completion sweep error: %v", err)
	}
	log.Printf("lifecycle run complete in %s", time.Since(start))
}

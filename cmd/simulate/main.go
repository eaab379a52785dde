// simulate drives contended booking traffic against a running
// api-server: workers discover open slots and race to commit them,
// then confirm, cancel, or reschedule what they won.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careloop/booking-engine/internal/config"
	"github.com/careloop/booking-engine/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	PostgresDSN string
}

type slot struct {
	ServiceID uuid.UUID `json:"service_id"`
	Start     time.Time `json:"start"`
}

type wonBooking struct {
	ID    uuid.UUID `json:"id"`
	Token string    `json:"public_token"`
}

type dataPool struct {
	patients []uuid.UUID
	services []uuid.UUID

	mu   sync.Mutex
	wins []wonBooking
}

func (dp *dataPool) addWin(b wonBooking) {
	dp.mu.Lock()
	dp.wins = append(dp.wins, b)
	dp.mu.Unlock()
}

func (dp *dataPool) randomWin(rng *rand.Rand) (wonBooking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.wins) == 0 {
		return wonBooking{}, false
	}
	return dp.wins[rng.Intn(len(dp.wins))], true
}

type opMetrics struct {
	total    int64
	success  int64
	conflict int64
	failed   int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *opMetrics) record(latency time.Duration, status int) {
	atomic.AddInt64(&om.total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.conflict, 1)
	default:
		atomic.AddInt64(&om.failed, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *opMetrics) report(name string) {
	total := atomic.LoadInt64(&om.total)
	if total == 0 {
		return
	}

	om.mu.Lock()
	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	om.mu.Unlock()

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	p50 := latencies[len(latencies)*50/100]
	p95 := latencies[min(len(latencies)*95/100, len(latencies)-1)]

	success := atomic.LoadInt64(&om.success)
	conflict := atomic.LoadInt64(&om.conflict)
	failed := atomic.LoadInt64(&om.failed)

	fmt.Printf("%-12s total=%d success=%d conflict=%d failed=%d p50=%s p95=%s\n",
		name, total, success, conflict, failed,
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
}

type simulator struct {
	cfg    SimConfig
	pool   *dataPool
	client *http.Client

	discover   opMetrics
	commit     opMetrics
	confirm    opMetrics
	selfCancel opMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		PostgresDSN: baseCfg.PostgresDSN,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	pool, err := loadDataPool(ctx, pgPool)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded: %d patients, %d services", len(pool.patients), len(pool.services))

	sim := &simulator{
		cfg:    cfg,
		pool:   pool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.run()
	sim.printReport()
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool) (*dataPool, error) {
	dp := &dataPool{}

	if err := loadIDs(ctx, pool, `SELECT id FROM patients LIMIT 2000`, &dp.patients); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	if err := loadIDs(ctx, pool, `SELECT id FROM service_types LIMIT 500`, &dp.services); err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}

	if len(dp.patients) == 0 || len(dp.services) == 0 {
		return nil, fmt.Errorf("empty data pool, run seed first")
	}
	return dp, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, out *[]uuid.UUID) error {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return err
		}
		*out = append(*out, id)
	}
	return rows.Err()
}

func (s *simulator) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Duration)
	defer cancel()

	log.Printf("running for %s with %d workers", s.cfg.Duration, s.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	log.Println("simulation complete")
}

func (s *simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		switch r := rng.Float64(); {
		case r < 0.6:
			s.discoverAndCommit(ctx, rng)
		case r < 0.8:
			s.confirmPayment(ctx, rng)
		default:
			s.cancelByToken(ctx, rng)
		}
	}
}

// discoverAndCommit mirrors a real client: list open slots, then try to
// commit one of them. Picking a random slot from a shared window keeps
// the per-resource contention high.
func (s *simulator) discoverAndCommit(ctx context.Context, rng *rand.Rand) {
	serviceID := s.pool.services[rng.Intn(len(s.pool.services))]

	start := time.Now()
	resp, err := s.get(ctx, fmt.Sprintf("/services/%s/slots", serviceID))
	if err != nil {
		s.discover.record(time.Since(start), 0)
		return
	}

	var slots struct {
		Slots []slot `json:"slots"`
	}
	err = json.NewDecoder(resp.Body).Decode(&slots)
	resp.Body.Close()
	s.discover.record(time.Since(start), resp.StatusCode)
	if err != nil || len(slots.Slots) == 0 {
		return
	}

	chosen := slots.Slots[rng.Intn(len(slots.Slots))]
	patientID := s.pool.patients[rng.Intn(len(s.pool.patients))]

	start = time.Now()
	resp, err = s.post(ctx, "/bookings", map[string]any{
		"service_id": chosen.ServiceID.String(),
		"patient_id": patientID.String(),
		"start":      chosen.Start,
		"timezone":   "America/New_York",
	})
	if err != nil {
		s.commit.record(time.Since(start), 0)
		return
	}
	defer resp.Body.Close()
	s.commit.record(time.Since(start), resp.StatusCode)

	if resp.StatusCode == http.StatusCreated {
		var won wonBooking
		if json.NewDecoder(resp.Body).Decode(&won) == nil && won.ID != uuid.Nil {
			s.pool.addWin(won)
		}
	}
}

func (s *simulator) confirmPayment(ctx context.Context, rng *rand.Rand) {
	won, ok := s.pool.randomWin(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.post(ctx, fmt.Sprintf("/bookings/%s/confirm-payment", won.ID), nil)
	if err != nil {
		s.confirm.record(time.Since(start), 0)
		return
	}
	resp.Body.Close()
	s.confirm.record(time.Since(start), resp.StatusCode)
}

func (s *simulator) cancelByToken(ctx context.Context, rng *rand.Rand) {
	won, ok := s.pool.randomWin(rng)
	if !ok || won.Token == "" {
		return
	}

	start := time.Now()
	resp, err := s.post(ctx, fmt.Sprintf("/self/bookings/%s/cancel", won.Token), map[string]any{
		"reason": "simulated change of plans",
	})
	if err != nil {
		s.selfCancel.record(time.Since(start), 0)
		return
	}
	resp.Body.Close()
	s.selfCancel.record(time.Since(start), resp.StatusCode)
}

func (s *simulator) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.APIBaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return s.client.Do(req)
}

func (s *simulator) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIBaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.client.Do(req)
}

func (s *simulator) printReport() {
	fmt.Println("\nSIMULATION REPORT")
	fmt.Printf("duration=%s workers=%d\n\n", s.cfg.Duration, s.cfg.Workers)
	s.discover.report("discover")
	s.commit.report("commit")
	s.confirm.report("confirm")
	s.selfCancel.report("self-cancel")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Command simulate fires concurrent booking requests at a running
// api-server to demonstrate that a contended slot is won exactly once.
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
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelane/clinic-booking/internal/config"
	"github.com/carelane/clinic-booking/internal/db"
)

type simConfig struct {
	APIBaseURL   string
	Workers      int
	SpreadRounds int
	PatientLimit int
}

type bookRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	SlotDate  string `json:"slot_date"`
	SlotTime  string `json:"slot_time"`
	Reason    string `json:"reason,omitempty"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	sim := simConfig{
		APIBaseURL:   envOr("API_BASE_URL", "http://127.0.0.1:8080"),
		Workers:      envOrInt("SIM_WORKERS", 25),
		SpreadRounds: envOrInt("SIM_SPREAD_ROUNDS", 100),
		PatientLimit: envOrInt("SIM_PATIENT_LIMIT", 200),
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	patients, err := loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, sim.PatientLimit)
	if err != nil {
		log.Fatalf("load patients: %v", err)
	}
	doctors, err := loadIDs(ctx, pool, `SELECT id FROM doctors WHERE available AND NOT archived LIMIT $1`, 20)
	if err != nil {
		log.Fatalf("load doctors: %v", err)
	}
	if len(patients) == 0 || len(doctors) == 0 {
		log.Fatal("no patients or available doctors found, run cmd/seed first")
	}

	log.Printf("loaded %d patients, %d doctors", len(patients), len(doctors))

	runContentionStorm(sim, patients, doctors[0])
	runSpread(sim, patients, doctors)
}

// runContentionStorm points every worker at the same slot. Exactly one
// booking should be created; everyone else gets a conflict.
func runContentionStorm(sim simConfig, patients []uuid.UUID, doctor uuid.UUID) {
	target := time.Now().AddDate(0, 0, 10)
	day, month, year := target.Day(), int(target.Month()), target.Year()
	slotDate := fmt.Sprintf("%d_%d_%d", day, month, year)
	const slotTime = "10:00 AM"

	log.Printf("contention storm: %d workers on doctor %s slot %s %s", sim.Workers, doctor, slotDate, slotTime)

	var success, conflict, failure int64
	var wg sync.WaitGroup

	for i := 0; i < sim.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			status, err := postBooking(sim.APIBaseURL, bookRequest{
				PatientID: patients[worker%len(patients)].String(),
				DoctorID:  doctor.String(),
				SlotDate:  slotDate,
				SlotTime:  slotTime,
				Reason:    "simulated contention",
			})
			switch {
			case err != nil:
				atomic.AddInt64(&failure, 1)
			case status == http.StatusCreated:
				atomic.AddInt64(&success, 1)
			case status == http.StatusConflict:
				atomic.AddInt64(&conflict, 1)
			default:
				atomic.AddInt64(&failure, 1)
			}
		}(i)
	}
	wg.Wait()

	log.Printf("contention storm result: success=%d conflict=%d failure=%d", success, conflict, failure)
	if success != 1 {
		log.Printf("WARNING: expected exactly 1 winner, got %d", success)
	}
}

// runSpread books random patients onto random doctors and future slots to
// exercise the happy path under load.
func runSpread(sim simConfig, patients []uuid.UUID, doctors []uuid.UUID) {
	times := []string{"09:00 AM", "09:30 AM", "10:00 AM", "10:30 AM", "11:00 AM", "02:00 PM", "02:30 PM", "03:00 PM"}

	var success, rejected, failure int64
	var wg sync.WaitGroup

	for i := 0; i < sim.SpreadRounds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			target := time.Now().AddDate(0, 0, 5+rand.Intn(20))
			slotDate := fmt.Sprintf("%d_%d_%d", target.Day(), int(target.Month()), target.Year())

			status, err := postBooking(sim.APIBaseURL, bookRequest{
				PatientID: patients[rand.Intn(len(patients))].String(),
				DoctorID:  doctors[rand.Intn(len(doctors))].String(),
				SlotDate:  slotDate,
				SlotTime:  times[rand.Intn(len(times))],
				Reason:    "simulated booking",
			})
			switch {
			case err != nil:
				atomic.AddInt64(&failure, 1)
			case status == http.StatusCreated:
				atomic.AddInt64(&success, 1)
			case status >= 400 && status < 500:
				atomic.AddInt64(&rejected, 1)
			default:
				atomic.AddInt64(&failure, 1)
			}
		}()
	}
	wg.Wait()

	log.Printf("spread result: success=%d rejected=%d failure=%d", success, rejected, failure)
}

func postBooking(baseURL string, req bookRequest) (int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}

	resp, err := http.Post(baseURL+"/appointments", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

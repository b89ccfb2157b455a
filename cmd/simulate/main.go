package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/client-portal-scheduling/internal/auth"
	"github.com/hackgods/client-portal-scheduling/internal/config"
	"github.com/hackgods/client-portal-scheduling/internal/db"
	"github.com/hackgods/client-portal-scheduling/internal/logging"
)

// simulate drives a running api-server with concurrent consultants and
// clients: schedule, confirm or counter-propose, accept, and calendar reads.
type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	ScheduleRatio float64
	ConfirmRatio  float64
	ProposeRatio  float64
	AcceptRatio   float64
	ClientLimit   int
	PostgresDSN   string
	JWTSecret     string
}

type DataPool struct {
	Clients []uuid.UUID

	mu     sync.RWMutex
	tokens map[uuid.UUID]string // latest token per client
}

func (dp *DataPool) SetToken(clientID uuid.UUID, tok string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.tokens[clientID] = tok
}

func (dp *DataPool) RandomToken(rng *rand.Rand) (uuid.UUID, string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.tokens) == 0 {
		return uuid.Nil, "", false
	}
	n := rng.Intn(len(dp.tokens))
	for id, tok := range dp.tokens {
		if n == 0 {
			return id, tok, true
		}
		n--
	}
	return uuid.Nil, "", false
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Schedule OperationMetrics
	Confirm  OperationMetrics
	Propose  OperationMetrics
	Accept   OperationMetrics
	Upcoming OperationMetrics
}

type Simulator struct {
	config     SimConfig
	pool       *DataPool
	client     *http.Client
	consultant string
	metrics    Metrics
	log        logging.Logger
}

func main() {
	log := logging.New("dev", os.Stdout).With("service", "simulate")

	cfg, err := loadConfig()
	if err != nil {
		log.Error(context.Background(), "invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error(ctx, "connect postgres", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg.ClientLimit)
	if err != nil {
		log.Error(ctx, "load data pool", "error", err)
		os.Exit(1)
	}

	consultant, err := auth.MakeToken("simulator", auth.RoleConsultant, cfg.JWTSecret, cfg.Duration+time.Hour)
	if err != nil {
		log.Error(ctx, "mint consultant token", "error", err)
		os.Exit(1)
	}

	log.Info(ctx, "simulation configured",
		"clients", len(dataPool.Clients),
		"duration", cfg.Duration,
		"workers", cfg.Workers,
	)

	sim := &Simulator{
		config:     cfg,
		pool:       dataPool,
		client:     &http.Client{Timeout: 10 * time.Second},
		consultant: consultant,
		log:        log,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, error) {
	base, err := config.Load()
	if err != nil {
		return SimConfig{}, err
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		ScheduleRatio: getFloat("SIM_SCHEDULE_RATIO", 0.3),
		ConfirmRatio:  getFloat("SIM_CONFIRM_RATIO", 0.25),
		ProposeRatio:  getFloat("SIM_PROPOSE_RATIO", 0.15),
		AcceptRatio:   getFloat("SIM_ACCEPT_RATIO", 0.1),
		ClientLimit:   getInt("SIM_CLIENT_LIMIT", 2000),
		PostgresDSN:   base.PostgresDSN,
		JWTSecret:     base.JWTSecret,
	}

	if cfg.PostgresDSN == "" {
		return cfg, fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return cfg, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return cfg, fmt.Errorf("SIM_DURATION must be > 0")
	}
	return cfg, nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, limit int) (*DataPool, error) {
	dp := &DataPool{tokens: make(map[uuid.UUID]string)}

	rows, err := pool.Query(ctx, `
		SELECT id FROM clients WHERE active LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Clients = append(dp.Clients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dp.Clients) == 0 {
		return nil, fmt.Errorf("no active clients, run cmd/seed first")
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info(context.Background(), "simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.ScheduleRatio:
			s.doSchedule(ctx, rng)
		case r < c.ScheduleRatio+c.ConfirmRatio:
			s.doConfirm(ctx, rng)
		case r < c.ScheduleRatio+c.ConfirmRatio+c.ProposeRatio:
			s.doPropose(ctx, rng)
		case r < c.ScheduleRatio+c.ConfirmRatio+c.ProposeRatio+c.AcceptRatio:
			s.doAccept(ctx, rng)
		default:
			s.doUpcoming(ctx)
		}
	}
}

// call sends one request and decodes a JSON body into out when non-nil.
func (s *Simulator) call(ctx context.Context, method, path string, body, out any, bearer string) (int, time.Duration, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, latency, nil
}

func futureDate(rng *rand.Rand) string {
	return time.Now().AddDate(0, 0, 2+rng.Intn(40)).Format("2006-01-02")
}

func clock(rng *rand.Rand) string {
	return fmt.Sprintf("%02d:%02d", 8+rng.Intn(10), 15*rng.Intn(4))
}

func (s *Simulator) doSchedule(ctx context.Context, rng *rand.Rand) {
	clientID := s.pool.Clients[rng.Intn(len(s.pool.Clients))]

	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"date": futureDate(rng), "time": clock(rng), "location": gofakeit.City()}

	method := http.MethodPost
	if rng.Intn(2) == 0 {
		method = http.MethodPut
	}
	status, latency, err := s.call(ctx, method, "/consultant/clients/"+clientID.String()+"/appointment", body, &resp, s.consultant)
	if err == nil && status < 300 && resp.Token != "" {
		s.pool.SetToken(clientID, resp.Token)
	}
	s.metrics.Schedule.Record(latency, status, err)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	_, tok, ok := s.pool.RandomToken(rng)
	if !ok {
		return
	}
	status, latency, err := s.call(ctx, http.MethodPost, "/appointments/confirm", map[string]string{"token": tok}, nil, "")
	s.metrics.Confirm.Record(latency, status, err)
}

func (s *Simulator) doPropose(ctx context.Context, rng *rand.Rand) {
	_, tok, ok := s.pool.RandomToken(rng)
	if !ok {
		return
	}
	body := map[string]string{"token": tok, "date": futureDate(rng), "time": clock(rng)}
	status, latency, err := s.call(ctx, http.MethodPost, "/appointments/propose", body, nil, "")
	s.metrics.Propose.Record(latency, status, err)
}

func (s *Simulator) doAccept(ctx context.Context, rng *rand.Rand) {
	clientID, _, ok := s.pool.RandomToken(rng)
	if !ok {
		return
	}
	status, latency, err := s.call(ctx, http.MethodPost, "/consultant/clients/"+clientID.String()+"/appointment/accept", nil, nil, s.consultant)
	s.metrics.Accept.Record(latency, status, err)
}

func (s *Simulator) doUpcoming(ctx context.Context) {
	status, latency, err := s.call(ctx, http.MethodGet, "/consultant/appointments/upcoming", nil, nil, s.consultant)
	s.metrics.Upcoming.Record(latency, status, err)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Schedule/Reschedule", &s.metrics.Schedule)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Propose", &s.metrics.Propose)
	printOperationReport("Accept", &s.metrics.Accept)
	printOperationReport("Upcoming", &s.metrics.Upcoming)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts (409): %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
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

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

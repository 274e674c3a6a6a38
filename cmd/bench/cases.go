// README: Smoke-test cases; covers environment, schema, booking flow, fare quotes, and contention checks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

// The flow cases assume the seed fixture: timetable "tt1" running the next
// Monday with 16 seats, cooperative pricing, and a £120 trip cost.
func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	serviceDate := nextWeekday(time.Monday).Format("2006-01-02")
	quotePath := fmt.Sprintf("%s/api/services/tt1/instances/%s/quote?tier=adult&member=true", base, serviceDate)

	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "API: health",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				resp, err := r.httpc.Get(base + "/health")
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				_ = resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d", resp.StatusCode)}
				}
				return Result{Status: "PASS", Latency: time.Since(start)}
			},
		},

		// Quotes
		r.httpCase("Quote: adult member", http.MethodGet, quotePath, nil, nil, []int{200}, []int{404}),
		r.httpCase("Quote: unknown tier -> 400",
			http.MethodGet, quotePath+"&tier=pensioner", nil, nil, []int{400}, nil),
		r.httpCase("Quote: malformed date -> 400",
			http.MethodGet, base+"/api/services/tt1/instances/not-a-date/quote", nil, nil, []int{400}, nil),

		// Booking flow
		r.httpCase("Booking: create (valid)", http.MethodPost, base+"/api/bookings", map[string]any{
			"timetable_id":   "tt1",
			"service_date":   serviceDate,
			"customer_id":    fmt.Sprintf("bench-%d", time.Now().UnixNano()),
			"passenger_tier": "adult",
			"is_member":      true,
		}, nil, []int{201}, []int{404}),

		r.httpCase("Booking: create (missing fields -> 400)", http.MethodPost, base+"/api/bookings",
			map[string]any{"timetable_id": "tt1"}, nil, []int{400}, nil),

		{
			Name: "Booking: create then confirm then cancel",
			Run: func(ctx context.Context, r *Runner) Result {
				id, res := r.createBooking(ctx, base, serviceDate, fmt.Sprintf("bench-flow-%d", time.Now().UnixNano()))
				if id == "" {
					return res
				}
				for _, step := range []string{"confirm", "cancel"} {
					status, note := r.post(ctx, fmt.Sprintf("%s/api/bookings/%s/%s", base, id, step), nil)
					// Cancel may legitimately hit the cutoff window.
					if status != 200 && !(step == "cancel" && status == 422) {
						return Result{Status: "FAIL", Note: fmt.Sprintf("%s: status=%d %s", step, status, note)}
					}
				}
				return Result{Status: "PASS"}
			},
		},

		r.httpCase("Booking: confirm unknown -> 404", http.MethodPost,
			base+"/api/bookings/does-not-exist/confirm", nil, nil, []int{404}, nil),

		// Staff surface
		r.httpCase("Staff: manifest without token -> 401", http.MethodGet,
			fmt.Sprintf("%s/api/staff/services/tt1/instances/%s/manifest", base, serviceDate),
			nil, nil, []int{401}, nil),
		r.httpCase("Staff: manifest with token", http.MethodGet,
			fmt.Sprintf("%s/api/staff/services/tt1/instances/%s/manifest", base, serviceDate),
			nil, map[string]string{"Authorization": "Bearer " + r.cfg.StaffToken}, []int{200}, []int{401, 404}),

		// Concurrency: the last seats must be raced, never double-sold.
		{
			Name: "Concurrency: confirms never exceed capacity",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.concurrentConfirms(ctx, base, serviceDate)
			},
		},

		// Load
		{
			Name: "Load: quote throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.loadTest(ctx, http.MethodGet, quotePath, nil)
			},
		},
	}
}

func (r *Runner) httpCase(name, method, url string, body any, headers map[string]string, okStatuses, pendingStatuses []int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, _ *Runner) Result {
			var reader io.Reader
			if body != nil {
				b, _ := json.Marshal(body)
				reader = strings.NewReader(string(b))
			}
			req, _ := http.NewRequestWithContext(ctx, method, url, reader)
			req.Header.Set("Content-Type", "application/json")
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			start := time.Now()
			resp, err := r.httpc.Do(req)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			latency := time.Since(start)

			if contains(okStatuses, resp.StatusCode) {
				return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			}
			if contains(pendingStatuses, resp.StatusCode) {
				return Result{Status: "PENDING", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			}
			return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
		},
	}
}

func (r *Runner) createBooking(ctx context.Context, base, serviceDate, customer string) (string, Result) {
	body, _ := json.Marshal(map[string]any{
		"timetable_id":   "tt1",
		"service_date":   serviceDate,
		"customer_id":    customer,
		"passenger_tier": "adult",
		"is_member":      true,
	})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/bookings", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return "", Result{Status: "FAIL", Note: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", Result{Status: "FAIL", Note: fmt.Sprintf("create status=%d", resp.StatusCode)}
	}
	var out struct {
		BookingID string `json:"booking_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.BookingID == "" {
		return "", Result{Status: "FAIL", Note: "create response missing booking_id"}
	}
	return out.BookingID, Result{}
}

func (r *Runner) post(ctx context.Context, url string, body any) (int, string) {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = strings.NewReader(string(b))
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, err.Error()
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp.StatusCode, strings.TrimSpace(string(b))
}

// concurrentConfirms creates one pending booking per goroutine and fires all
// confirms at once. Every response must be a clean 200 or a 409; the server
// may never admit more passengers than the 16-seat fixture allows.
func (r *Runner) concurrentConfirms(ctx context.Context, base, serviceDate string) Result {
	ids := make([]string, 0, r.cfg.Concurrency)
	for i := 0; i < r.cfg.Concurrency; i++ {
		id, res := r.createBooking(ctx, base, serviceDate, fmt.Sprintf("bench-race-%d-%d", time.Now().UnixNano(), i))
		if id == "" {
			return res
		}
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	confirmed, rejected, other := 0, 0, 0
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			status, _ := r.post(ctx, fmt.Sprintf("%s/api/bookings/%s/confirm", base, id), nil)
			mu.Lock()
			switch status {
			case 200:
				confirmed++
			case 409:
				rejected++
			default:
				other++
			}
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	if other > 0 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("confirmed=%d rejected=%d unexpected=%d", confirmed, rejected, other)}
	}
	if confirmed > 16 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("confirmed=%d exceeds capacity", confirmed)}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("confirmed=%d rejected=%d", confirmed, rejected)}
}

func (r *Runner) loadTest(ctx context.Context, method, url string, payload any) Result {
	var body string
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = string(b)
	}
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) {
				var reader io.Reader
				if body != "" {
					reader = strings.NewReader(body)
				}
				req, _ := http.NewRequestWithContext(ctx, method, url, reader)
				req.Header.Set("Content-Type", "application/json")
				resp, err := r.httpc.Do(req)
				if err != nil {
					mu.Lock()
					errCount++
					mu.Unlock()
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func nextWeekday(day time.Weekday) time.Time {
	t := time.Now().AddDate(0, 0, 1)
	for t.Weekday() != day {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	cleaned := strings.Join(filtered, "\n")
	parts := strings.Split(cleaned, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

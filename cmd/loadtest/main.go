// Command loadtest hammers search initiation from many workers against one
// account, polls the created searches to completion and checks that the
// account was charged exactly once per accepted search.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	AccountID   int64
	Concurrency int
	Duration    time.Duration
	SearchCost  int64
	Poll        bool
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	accepted      atomic.Int64
	rejected      atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex

	searchIDs   []int64
	searchIDsMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	switch {
	case statusCode == http.StatusAccepted:
		s.accepted.Add(1)
	case statusCode == http.StatusPaymentRequired || statusCode == http.StatusTooManyRequests:
		s.rejected.Add(1)
	default:
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func (s *Stats) addSearch(id int64) {
	s.searchIDsMu.Lock()
	s.searchIDs = append(s.searchIDs, id)
	s.searchIDsMu.Unlock()
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type client struct {
	http    *http.Client
	baseURL string
	account string
}

func (c *client) do(ctx context.Context, method, path string, body any) (int, envelope, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, envelope{}, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return 0, envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-ID", c.account)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, envelope{}, err
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return resp.StatusCode, envelope{}, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, env, nil
}

func (c *client) available(ctx context.Context) (int64, error) {
	code, env, err := c.do(ctx, http.MethodGet, "/api/v1/credits", nil)
	if err != nil {
		return 0, err
	}
	if code != http.StatusOK {
		return 0, fmt.Errorf("GET /api/v1/credits: %d %s", code, env.Message)
	}
	var b struct {
		Available int64 `json:"available_credits"`
	}
	if err := json.Unmarshal(env.Data, &b); err != nil {
		return 0, err
	}
	return b.Available, nil
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "base URL of the api service")
	account := flag.Int64("account", 1, "account id to charge")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	cost := flag.Int64("search-cost", 10, "credits charged per search (must match the server)")
	poll := flag.Bool("poll", true, "poll accepted searches until they finish")
	flag.Parse()

	queries := []string{
		"senior go engineer",
		"react developer in berlin",
		"data engineer with spark",
		"staff backend engineer",
		"product designer",
		"machine learning engineer",
		"devops engineer kubernetes",
		"full stack typescript",
	}

	cfg := Config{
		BaseURL:     *baseURL,
		AccountID:   *account,
		Concurrency: *concurrency,
		Duration:    *duration,
		SearchCost:  *cost,
		Poll:        *poll,
		Queries:     queries,
	}

	fmt.Println("=== Talent Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Account:     %d\n", cfg.AccountID)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Println()

	c := &client{
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.Concurrency * 2,
				MaxIdleConnsPerHost: cfg.Concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: cfg.BaseURL,
		account: strconv.FormatInt(cfg.AccountID, 10),
	}

	before, err := c.available(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading starting balance: %v\n", err)
		os.Exit(1)
	}

	stats := runLoadTest(c, cfg)
	if cfg.Poll {
		pollSearches(c, stats)
	}

	after, err := c.available(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading final balance: %v\n", err)
		os.Exit(1)
	}
	printReport(stats, cfg.Duration)
	if !verifyCharges(before, after, stats.accepted.Load(), cfg.SearchCost) {
		os.Exit(1)
	}
}

func runLoadTest(c *client, cfg Config) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			queryIdx := workerID

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				start := time.Now()
				// Requests outlive the run deadline so every charge the server
				// made is observed.
				code, env, err := c.do(context.Background(), http.MethodPost, "/api/v1/candidates/search", map[string]any{
					"query":   query,
					"filters": map[string]any{"experience_min": queryIdx % 5},
				})
				elapsed := time.Since(start)
				stats.RecordRequest(elapsed, code, err)
				if err == nil && code == http.StatusAccepted {
					var res struct {
						SearchID int64 `json:"searchId"`
					}
					if json.Unmarshal(env.Data, &res) == nil {
						stats.addSearch(res.SearchID)
					}
				}
				if code == http.StatusPaymentRequired {
					return
				}
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// pollSearches waits for every accepted search to reach a terminal status.
func pollSearches(c *client, stats *Stats) {
	stats.searchIDsMu.Lock()
	ids := append([]int64(nil), stats.searchIDs...)
	stats.searchIDsMu.Unlock()
	if len(ids) == 0 {
		return
	}

	fmt.Printf("Polling %d searches", len(ids))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var completed, failed atomic.Int64
	sem := make(chan struct{}, 16)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id int64) {
			defer wg.Done()
			defer func() { <-sem }()
			path := fmt.Sprintf("/api/v1/candidates/search/%d/status", id)
			for ctx.Err() == nil {
				code, env, err := c.do(ctx, http.MethodGet, path, nil)
				if err == nil && code == http.StatusOK {
					var st struct {
						Status string `json:"status"`
					}
					json.Unmarshal(env.Data, &st)
					switch st.Status {
					case "completed":
						completed.Add(1)
						return
					case "failed":
						failed.Add(1)
						return
					}
				}
				time.Sleep(500 * time.Millisecond)
			}
		}(id)
	}
	wg.Wait()
	fmt.Println(" done!")
	fmt.Printf("Completed: %d  Failed: %d  Unfinished: %d\n\n",
		completed.Load(), failed.Load(), int64(len(ids))-completed.Load()-failed.Load())
}

func verifyCharges(before, after, accepted, cost int64) bool {
	spent := before - after
	want := accepted * cost
	fmt.Println()
	fmt.Println("=== Ledger ===")
	fmt.Printf("Available before: %d\n", before)
	fmt.Printf("Available after:  %d\n", after)
	fmt.Printf("Spent:            %d (expected %d for %d accepted searches)\n", spent, want, accepted)
	if spent != want {
		fmt.Println("MISMATCH: balance change does not equal accepted searches times cost")
		return false
	}
	fmt.Println("OK")
	return true
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Accepted:        %d\n", stats.accepted.Load())
	fmt.Printf("Rejected:        %d\n", stats.rejected.Load())
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Initiation Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

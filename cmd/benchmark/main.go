package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	tokensFile  string
	accounts    int
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Posted
	denied403     uint64 // Member without add_transaction
	hidden404     uint64 // Not a member
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.StringVar(&tokensFile, "tokens", "tokens.txt", `File of "<user_id> <token>" lines as printed by ledgerctl seed`)
	flag.IntVar(&accounts, "accounts", 1000, "Number of seeded accounts (IDs assumed 1..N)")
}

func main() {
	flag.Parse()
	tokens, err := loadTokens(tokensFile)
	if err != nil {
		log.Fatalf("Unable to load tokens: %v", err)
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s | Users: %d", workload, concurrency, duration, len(tokens))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, tokens)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func loadTokens(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tokens []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 2 {
			tokens = append(tokens, fields[1])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%s contains no tokens", path)
	}
	return tokens, nil
}

func worker(wg *sync.WaitGroup, start time.Time, tokens []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		token := tokens[rand.Intn(len(tokens))]
		account := pickAccount()

		payload := map[string]interface{}{
			"account":          account,
			"amount":           fmt.Sprintf("%d.%02d", rand.Intn(1000), rand.Intn(100)),
			"date":             time.Now().Format("2006-01-02"),
			"transaction_type": "DEPOSIT",
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/transactions", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&success201, 1)
		case 403:
			atomic.AddUint64(&denied403, 1)
		case 404:
			atomic.AddUint64(&hidden404, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickAccount() int64 {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes to Account 1 & 2
		if rand.Float32() < 0.90 {
			return int64(rand.Intn(2) + 1)
		}
	}

	// Uniform Random
	return int64(rand.Intn(accounts) + 1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	d403 := atomic.LoadUint64(&denied403)
	h404 := atomic.LoadUint64(&hidden404)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	var denyRate float64
	if total > 0 {
		denyRate = float64(d403+h404) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":       workload,
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_tps": tps,
		"posted":         s201,
		"denied":         d403,
		"hidden":         h404,
		"deny_rate_pct":  denyRate,
		"errors":         fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}

// Command loadgen drives concurrent traffic at a running instance and
// reports the status distribution. Unpaid /refill requests exercise the
// full quote + challenge path without moving funds.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quartzpay/refillgate/internal/ledger"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	recipient   string
)

// Metrics
var (
	totalRequests uint64
	quotes200     uint64
	challenges402 uint64
	rejects4xx    uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "quote", "Workload type: quote | challenge | mixed")
	flag.StringVar(&recipient, "recipient", ledger.EncodeAddress(ledger.AddressVersionTestnet, [20]byte{}), "Recipient address for refill requests")
}

func main() {
	flag.Parse()
	log.Printf("Starting load: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		kind := workload
		if kind == "mixed" {
			if rand.Intn(2) == 0 {
				kind = "quote"
			} else {
				kind = "challenge"
			}
		}

		var resp *http.Response
		var err error
		switch kind {
		case "challenge":
			payload := map[string]interface{}{
				"asset":            "STX",
				"amount":           1_000_000 + rand.Int63n(9_000_000),
				"recipientAddress": recipient,
			}
			body, _ := json.Marshal(payload)
			resp, err = client.Post(targetURL+"/refill", "application/json", bytes.NewBuffer(body))
		default:
			amount := 1_000_000 + rand.Int63n(9_000_000)
			resp, err = client.Get(fmt.Sprintf("%s/quote?asset=STX&amount=%d", targetURL, amount))
		}
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&quotes200, 1)
		case 402:
			atomic.AddUint64(&challenges402, 1)
		case 400, 422:
			atomic.AddUint64(&rejects4xx, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)

	results := map[string]interface{}{
		"workload":       workload,
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_rps": float64(total) / d.Seconds(),
		"quotes_ok":      atomic.LoadUint64(&quotes200),
		"challenges":     atomic.LoadUint64(&challenges402),
		"rejected_input": atomic.LoadUint64(&rejects4xx),
		"errors":         atomic.LoadUint64(&failOther),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}

// loadgen drives a running quote-server with a zipf-skewed stream of
// quote requests over a pool of origin/destination pairs, and writes
// per-request samples plus a latency summary.
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type Config struct {
	TargetURL       string
	Concurrency     int
	Duration        time.Duration
	ZipfS           float64
	ZipfV           float64
	PairCount       int
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8080/quote", "quote-server /quote URL")
	flag.IntVar(&cfg.Concurrency, "concurrency", 32, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.PairCount, "pairs", 128, "Distinct origin/destination pairs in pool")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/loadgen", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append timestamp to output prefix")
	flag.Parse()
	return cfg
}

type point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type quotePayload struct {
	Origin      point    `json:"origin"`
	Destination point    `json:"destination"`
	VehicleID   string   `json:"vehicle_id"`
	Extras      []string `json:"extras,omitempty"`
}

var vehicleMix = []string{"sedan", "sedan", "sedan", "van", "luxury"}

var extrasMix = [][]string{nil, nil, nil, {"child_seat"}, {"meet_and_greet"}, {"child_seat", "extra_stop"}}

// makePairs mixes hot airport-anchored trips with cold city-to-city
// trips so cache behavior under skew is visible.
func makePairs(count int, r *rand.Rand) []quotePayload {
	anchors := [][2]float64{
		{55.3644, 25.2532}, // DXB
		{55.1613, 25.0530}, // DWC side
		{54.6511, 24.4330}, // AUH
		{55.2708, 25.2048}, // Downtown
	}
	pairs := make([]quotePayload, 0, count)

	hot := int(math.Max(8, float64(count/4)))
	for i := 0; i < hot && len(pairs) < count; i++ {
		a := anchors[i%len(anchors)]
		dLon, dLat := (r.Float64()-0.5)*0.3, (r.Float64()-0.5)*0.3
		pairs = append(pairs, quotePayload{
			Origin:      point{Lat: a[1], Lon: a[0]},
			Destination: point{Lat: a[1] + dLat, Lon: a[0] + dLon},
			VehicleID:   vehicleMix[r.Intn(len(vehicleMix))],
			Extras:      extrasMix[r.Intn(len(extrasMix))],
		})
	}

	for len(pairs) < count {
		oLon, oLat := 54.3+r.Float64()*1.4, 24.2+r.Float64()*1.3
		dLon, dLat := 54.3+r.Float64()*1.4, 24.2+r.Float64()*1.3
		pairs = append(pairs, quotePayload{
			Origin:      point{Lat: oLat, Lon: oLon},
			Destination: point{Lat: dLat, Lon: dLon},
			VehicleID:   vehicleMix[r.Intn(len(vehicleMix))],
			Extras:      extrasMix[r.Intn(len(extrasMix))],
		})
	}
	return pairs
}

type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	ErrorMsg  string
	PairIndex int
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	RejectedCount int64     `json:"rejected"`
	ErrorCount    int64     `json:"errors"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	Pairs         int       `json:"pairs"`
	TargetURL     string    `json:"target"`
}

type aggregatedResult struct {
	total    int64
	success  int64
	rejected int64
	errors   int64
	latMs    []float64
}

func main() {
	cfg := loadConfig()
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}

	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
	}

	seed := time.Now().UnixNano()
	r := rand.New(rand.NewSource(seed))
	pairs := makePairs(cfg.PairCount, r)
	if len(pairs) == 0 {
		log.Fatalf("no request pairs generated")
	}
	log.Printf("using %d synthetic origin/destination pairs", len(pairs))
	imax := uint64(len(pairs)) - 1

	bodies := make([][]byte, len(pairs))
	for i, p := range pairs {
		buf, err := json.Marshal(p)
		if err != nil {
			log.Fatalf("marshal payload: %v", err)
		}
		bodies[i] = buf
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          1024,
			MaxIdleConnsPerHost:   256,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   4 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "status", "error", "pair_idx"})
		var agg aggregatedResult
		agg.latMs = make([]float64, 0, 1<<20)
		for s := range samplesChan {
			agg.total++
			switch {
			case s.ErrorMsg == "" && s.Status == http.StatusOK:
				agg.success++
				agg.latMs = append(agg.latMs, float64(s.Latency.Microseconds())/1000.0)
			case s.Status == http.StatusBadRequest:
				// an uncovered random pair is expected load, not a failure
				agg.rejected++
			default:
				agg.errors++
			}
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", float64(s.Latency.Microseconds())/1000.0),
				fmt.Sprintf("%d", s.Status),
				s.ErrorMsg,
				fmt.Sprintf("%d", s.PairIndex),
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Printf("csv flush error: %v", err)
		}
		resultsChan <- agg
	}()

	startTime := time.Now()
	log.Printf("loadgen start target=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) pairs=%d",
		cfg.TargetURL, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, cfg.PairCount)

	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)

	for workerID := 0; workerID < cfg.Concurrency; workerID++ {
		go func(id int) {
			defer wg.Done()

			rWorker := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipfDist := rand.NewZipf(rWorker, cfg.ZipfS, cfg.ZipfV, imax)
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				v := zipfDist.Uint64()
				if v > uint64(math.MaxInt) {
					continue
				}
				idx := int(v)
				if idx >= len(bodies) {
					continue
				}

				startReq := time.Now()
				req, _ := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TargetURL, bytes.NewReader(bodies[idx]))
				req.Header.Set("Content-Type", "application/json")
				resp, err := httpClient.Do(req)
				latency := time.Since(startReq)

				result := sample{
					Timestamp: startReq,
					Latency:   latency,
					PairIndex: idx,
				}
				if err != nil {
					if !strings.Contains(err.Error(), context.DeadlineExceeded.Error()) {
						result.ErrorMsg = err.Error()
					}
				} else {
					result.Status = resp.StatusCode
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
				}

				select {
				case samplesChan <- result:
				case <-ctx.Done():
					return
				}
			}
		}(workerID)
	}

	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	agg := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(agg.latMs)
	p50 := percentile(agg.latMs, 50)
	p95 := percentile(agg.latMs, 95)
	p99 := percentile(agg.latMs, 99)

	runSummary := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: agg.total,
		SuccessCount:  agg.success,
		RejectedCount: agg.rejected,
		ErrorCount:    agg.errors,
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         p50,
		P95Ms:         p95,
		P99Ms:         p99,
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Pairs:         cfg.PairCount,
		TargetURL:     cfg.TargetURL,
	}

	jsonFile, err := os.Create(filepath.Clean(jsonPath))
	if err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(runSummary)
		_ = jsonFile.Close()
	}

	log.Printf("done: total=%d succ=%d rej=%d err=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		agg.total, agg.success, agg.rejected, agg.errors, runSummary.ThroughputRPS, p50, p95, p99)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}

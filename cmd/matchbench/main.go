// README: Benchmark runner for the match engine; executes pipeline, feed, Redis and HTTP checks and prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bench := NewRunner(cfg)
	results := bench.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, pending, skipped := 0, 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusFail:
			fail++
		case StatusPending:
			pending++
		case StatusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d PENDING=%d SKIP=%d\n", pass, fail, pending, skipped)

	if fail > 0 || (cfg.Strict && pending > 0) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL     string
	RedisAddr   string
	Strict      bool
	Timeout     time.Duration
	Concurrency int
	Duration    time.Duration
	Candidates  int
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("GREENPOOL_BENCH_BASE_URL", ""), "API base URL (empty skips HTTP cases)")
	flag.StringVar(&cfg.RedisAddr, "redis", envOrDefault("GREENPOOL_REDIS_ADDR", ""), "Redis address (empty skips cache cases)")
	flag.BoolVar(&cfg.Strict, "strict", envOrDefaultBool("GREENPOOL_BENCH_STRICT", false), "Fail on pending cases")
	flag.DurationVar(&cfg.Timeout, "timeout", envOrDefaultDuration("GREENPOOL_BENCH_TIMEOUT", 60*time.Second), "Total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", envOrDefaultInt("GREENPOOL_BENCH_CONCURRENCY", 8), "Concurrency for perf cases")
	flag.DurationVar(&cfg.Duration, "duration", envOrDefaultDuration("GREENPOOL_BENCH_DURATION", 3*time.Second), "Duration for perf cases")
	flag.IntVar(&cfg.Candidates, "candidates", envOrDefaultInt("GREENPOOL_BENCH_CANDIDATES", 1000), "Candidate routes per pipeline run")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "1" || v == "true" || v == "yes"
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

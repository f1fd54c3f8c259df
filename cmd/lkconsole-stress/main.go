// Command lkconsole-stress drives many concurrent requests through one
// session while the backend expires access tokens, and reports how many
// refresh exchanges each burst needed along with request latencies.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	lkcosmetics "github.com/lk-cosmetics/lkCosmeticsSystemFrontend"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/internal/fakebackend"
)

const (
	stressMatricule = "STRESS-001"
	stressPassword  = "stress-password"
)

func main() {
	var (
		concurrency = flag.Int("concurrency", 64, "concurrent requests per burst")
		bursts      = flag.Int("bursts", 50, "number of expire-then-burst rounds")
		ops         = flag.Int("ops", 20000, "operations in the steady phase")
		expireEvery = flag.Int("expire-every", 500, "steady phase: expire access tokens every N operations")
		redisAddr   = flag.String("redis-addr", "", "redis address for the display cache; if empty, REDIS_ADDR env or miniredis is used")
		holdRefresh = flag.Duration("hold-refresh", 5*time.Millisecond, "delay every refresh exchange by this long so bursts overlap")
	)
	flag.Parse()

	if *concurrency <= 0 || *bursts <= 0 || *ops <= 0 || *expireEvery <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency, bursts, ops, and expire-every must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	backend := fakebackend.New()
	backend.AddAccount(fakebackend.Account{
		ID: 1, Matricule: stressMatricule, Password: stressPassword,
		FullName: "Stress Operator", Role: "SuperAdmin",
	})
	srv := httptest.NewServer(slowRefresh(backend, *holdRefresh))
	defer srv.Close()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer rdb.Close()

	cfg := lkcosmetics.DefaultConfig()
	cfg.API.BaseURL = srv.URL + fakebackend.DefaultPrefix
	cfg.Storage.Backend = lkcosmetics.StorageRedis
	cfg.Storage.RedisAddr = addr
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	client, err := lkcosmetics.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if _, err := client.Login(ctx, lkcosmetics.Credentials{Matricule: stressMatricule, Password: stressPassword}); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	burstStats, perBurst := runBurstPhase(ctx, client, backend, *bursts, *concurrency)
	steadyStats := runSteadyPhase(ctx, client, backend, *ops, *concurrency, *expireEvery)

	snap := client.MetricsSnapshot()
	fmt.Println("---- results ----")
	printStats("burst", burstStats)
	printStats("steady", steadyStats)
	fmt.Printf("refreshes per burst: min=%d max=%d (want 1)\n", perBurst[0], perBurst[len(perBurst)-1])
	fmt.Printf("queued=%d shortcut=%d retried=%d session_expired=%d backend_max_concurrent_refresh=%d\n",
		snap.Counters[lkcosmetics.MetricRefreshQueued],
		snap.Counters[lkcosmetics.MetricRefreshShortcut],
		snap.Counters[lkcosmetics.MetricRequestRetried],
		snap.Counters[lkcosmetics.MetricSessionExpired],
		backend.Stats().MaxConcurrent,
	)
}

// slowRefresh delays refresh exchanges so that a burst's 401s pile up behind
// one in-flight refresh.
func slowRefresh(next http.Handler, delay time.Duration) http.Handler {
	refreshPath := fakebackend.DefaultPrefix + "/auth/refresh/"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 && r.URL.Path == refreshPath {
			time.Sleep(delay)
		}
		next.ServeHTTP(w, r)
	})
}

func runBurstPhase(ctx context.Context, client *lkcosmetics.Client, backend *fakebackend.Server, bursts, concurrency int) (phaseStats, []int64) {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, bursts*concurrency)
		mu        sync.Mutex
		perBurst  = make([]int64, 0, bursts)
	)

	start := time.Now()
	for b := 0; b < bursts; b++ {
		before := backend.Stats().Refreshes
		backend.ExpireAccessTokens()

		var wg sync.WaitGroup
		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				t0 := time.Now()
				err := listCompanies(ctx, client)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}()
		}
		wg.Wait()
		perBurst = append(perBurst, backend.Stats().Refreshes-before)
	}
	total := time.Since(start)

	sort.Slice(perBurst, func(i, j int) bool { return perBurst[i] < perBurst[j] })
	return computeStats(total, latencies, failures), perBurst
}

func runSteadyPhase(ctx context.Context, client *lkcosmetics.Client, backend *fakebackend.Server, ops, concurrency, expireEvery int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				if i%expireEvery == 0 {
					backend.ExpireAccessTokens()
				}

				t0 := time.Now()
				var err error
				if r.Intn(4) == 0 {
					_, err = client.CurrentUser(ctx)
				} else {
					err = listCompanies(ctx, client)
				}
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func listCompanies(ctx context.Context, client *lkcosmetics.Client) error {
	var out []map[string]any
	return client.JSON(ctx, http.MethodGet, "/companies/", nil, &out)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

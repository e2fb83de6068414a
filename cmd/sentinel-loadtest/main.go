package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	goSentinel "github.com/MrEthical07/goSentinel"
	"github.com/MrEthical07/goSentinel/audit"
)

var payloads = [][]byte{
	[]byte(`{"username":"alice","password":"correct horse battery staple"}`),
	[]byte(`{"q":"weekly report","page":2}`),
	[]byte(`{"comment":"looks good to me"}`),
	[]byte(`{"username":"admin' OR '1'='1' --"}`),
	[]byte(`{"bio":"<script>alert(document.cookie)</script>"}`),
	[]byte(`{"file":"../../../../etc/passwd"}`),
	[]byte(`{"host":"127.0.0.1; cat /etc/shadow"}`),
	[]byte(`{"filter":{"$where":"sleep(1000)"}}`),
}

func main() {
	var (
		ips         = flag.Int("ips", 10000, "number of distinct source IPs")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "sentinel-load", "redis key prefix")
	)
	flag.Parse()

	if *ips <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "ips, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := goSentinel.DefaultConfig()
	cfg.JWT.Secret = "loadtest-secret-loadtest-secret-!"
	cfg.Threat.Store = goSentinel.StoreRedis
	cfg.Threat.RedisPrefix = *prefix
	cfg.Session.Store = goSentinel.StoreRedis
	cfg.Session.RedisPrefix = *prefix
	cfg.Audit.DropIfFull = true
	cfg.CSRF.Enabled = false

	engine, err := goSentinel.New().
		WithConfig(cfg).
		WithLogger(zap.NewNop()).
		WithRedis(client).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	sources := make([]string, *ips)
	for i := range sources {
		sources[i] = fmt.Sprintf("10.%d.%d.%d", (i>>16)&0xFF, (i>>8)&0xFF, i&0xFF)
	}

	var rejected atomic.Int64
	screenStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) error {
		d := engine.SecurityCheck(ctx, goSentinel.Request{
			Method:   http.MethodPost,
			Path:     "/api/submit",
			Body:     payloads[r.Intn(len(payloads))],
			Headers:  http.Header{"User-Agent": []string{"loadtest/1.0"}},
			SourceIP: sources[r.Intn(len(sources))],
		})
		if d.Rejected() {
			rejected.Add(1)
		}
		return nil
	})

	recordStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, i int) error {
		_, err := engine.RecordEvent(ctx, fmt.Sprintf("user-%d", i%1000), audit.ActionLogin, audit.StatusSuccess, audit.Meta{
			SourceIP: sources[r.Intn(len(sources))],
		})
		return err
	})

	loginStats := runPhase(*ops, *concurrency, 4099, func(r *rand.Rand, i int) error {
		_, err := engine.RecordLoginFailure(ctx, fmt.Sprintf("user-%d", r.Intn(5000)), sources[r.Intn(len(sources))], audit.Meta{})
		return err
	})

	flushCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := engine.FlushAnchors(flushCtx); err != nil {
		fmt.Fprintf(os.Stderr, "flush anchors: %v\n", err)
	}
	sum, err := engine.VerifyRecent(ctx, 1000)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
	}

	fmt.Println("---- results ----")
	printStats("screen", screenStats)
	printStats("record", recordStats)
	printStats("login-failure", loginStats)
	snap := engine.MetricsSnapshot()
	fmt.Printf("rejected=%d blocked=%d rejected_attack=%d anchors_dropped=%d verified=%d/%d tampered=%d\n",
		rejected.Load(),
		snap.Counters[goSentinel.MetricAutoBlock],
		snap.Counters[goSentinel.MetricRejectedAttack],
		engine.AnchorDropped(),
		sum.Verified, sum.Checked, sum.Tampered,
	)
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
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

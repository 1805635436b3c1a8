package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var defaultQueries = []string{
	"trie", "prefix search", "bm25 ranking", "vacuum", "snapshot reload",
	"shard routing", "kafka consumer", "redis cache", "document removal",
	"field boost", "inverted index", "stem",
}

type loadStats struct {
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int
	errors    int
	cacheHits int
}

func (s *loadStats) record(d time.Duration, code int, cacheHit bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errors++
		return
	}
	s.codes[code]++
	if code < 200 || code >= 300 {
		s.errors++
		return
	}
	s.latencies = append(s.latencies, d)
	if cacheHit {
		s.cacheHits++
	}
}

func newLoadtestCmd() *cobra.Command {
	var (
		baseURL     string
		concurrency int
		duration    time.Duration
		limit       int
		queriesFile string
	)
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive GET /api/v1/search on a running searcher and report latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queries := defaultQueries
			if queriesFile != "" {
				var err error
				if queries, err = readQueries(queriesFile); err != nil {
					return err
				}
			}
			if concurrency < 1 {
				concurrency = 1
			}
			cmd.Printf("target=%s concurrency=%d duration=%s queries=%d\n", baseURL, concurrency, duration, len(queries))

			stats := &loadStats{codes: make(map[int]int)}
			client := &http.Client{
				Timeout: 10 * time.Second,
				Transport: &http.Transport{
					MaxIdleConns:        concurrency * 2,
					MaxIdleConnsPerHost: concurrency * 2,
					IdleConnTimeout:     90 * time.Second,
				},
			}
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, cancel := context.WithTimeout(parent, duration)
			defer cancel()

			g, ctx := errgroup.WithContext(ctx)
			for w := 0; w < concurrency; w++ {
				g.Go(func() error {
					for i := w; ctx.Err() == nil; i++ {
						q := queries[i%len(queries)]
						target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", baseURL, url.QueryEscape(q), limit)
						start := time.Now()
						code, hit, err := searchOnce(ctx, client, target)
						if ctx.Err() != nil {
							return nil
						}
						stats.record(time.Since(start), code, hit, err)
					}
					return nil
				})
			}
			_ = g.Wait()
			return report(cmd, stats, duration)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "base URL of the search service")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 10, "concurrent workers")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 30*time.Second, "test duration")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "results per query")
	cmd.Flags().StringVar(&queriesFile, "queries", "", "file with one query per line")
	return cmd
}

func searchOnce(ctx context.Context, client *http.Client, target string) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	var body struct {
		CacheHit bool `json:"cache_hit"`
	}
	// Error bodies carry no cache_hit field; a failed decode counts as a miss.
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body.CacheHit, nil
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	var queries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" {
			queries = append(queries, q)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s has no queries", path)
	}
	return queries, nil
}

func report(cmd *cobra.Command, s *loadStats, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := len(s.latencies)
	total := ok + s.errors
	cmd.Printf("requests=%d ok=%d errors=%d rps=%.1f\n", total, ok, s.errors, float64(total)/duration.Seconds())
	if total == 0 {
		return errors.New("no requests completed; is the searcher running?")
	}
	if ok > 0 {
		sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
		cmd.Printf("cache_hit_rate=%.1f%%\n", 100*float64(s.cacheHits)/float64(ok))
		cmd.Printf("latency min=%s p50=%s p90=%s p99=%s max=%s\n",
			s.latencies[0],
			percentile(s.latencies, 50),
			percentile(s.latencies, 90),
			percentile(s.latencies, 99),
			s.latencies[ok-1],
		)
	}
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		cmd.Printf("  status %d: %d\n", code, s.codes[code])
	}
	return nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// Package health runs liveness and readiness probes and serves them over HTTP.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lewisedginton/npc_registry/pkg/logger"
)

// Probe selects which endpoint a check belongs to.
type Probe int

const (
	Liveness Probe = iota
	Readiness
)

// CheckFunc returns nil when healthy.
type CheckFunc func(ctx context.Context) error

// Result is the outcome of one check.
type Result struct {
	Name    string
	Healthy bool
	Error   string
	Latency time.Duration
}

// Report aggregates one probe run. Results are sorted by name.
type Report struct {
	Healthy bool
	Results []Result
}

type check struct {
	name string
	fn   CheckFunc
}

// Checker holds the registered checks. A check is reported unhealthy only
// after threshold consecutive failures.
type Checker struct {
	mu        sync.Mutex
	checks    map[Probe][]check
	failures  map[string]int
	timeout   time.Duration
	threshold int
	log       logger.Logger
}

type Option func(*Checker)

// WithTimeout bounds each check. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithFailureThreshold sets how many consecutive failures turn a check
// unhealthy. Default 1.
func WithFailureThreshold(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.threshold = n
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Checker) { c.log = l }
}

func New(opts ...Option) *Checker {
	c := &Checker{
		checks:    map[Probe][]check{},
		failures:  map[string]int{},
		timeout:   5 * time.Second,
		threshold: 1,
		log:       logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a named check to probe.
func (c *Checker) Register(probe Probe, name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[probe] = append(c.checks[probe], check{name: name, fn: fn})
}

// Run executes every check of probe concurrently. With no checks the probe
// is healthy.
func (c *Checker) Run(ctx context.Context, probe Probe) Report {
	c.mu.Lock()
	checks := append([]check(nil), c.checks[probe]...)
	c.mu.Unlock()

	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	for i, chk := range checks {
		wg.Add(1)
		go func(i int, chk check) {
			defer wg.Done()
			results[i] = c.run(ctx, chk)
		}(i, chk)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	report := Report{Healthy: true, Results: results}
	for _, r := range results {
		report.Healthy = report.Healthy && r.Healthy
	}
	return report
}

func (c *Checker) run(parent context.Context, chk check) Result {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	start := time.Now()
	err := chk.fn(ctx)
	res := Result{Name: chk.name, Healthy: true, Latency: time.Since(start)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.failures[chk.name] = 0
		return res
	}

	c.failures[chk.name]++
	n := c.failures[chk.name]
	if n < c.threshold {
		c.log.Debug("Health check failed below threshold",
			logger.StringField("check", chk.name), logger.ErrorField(err), logger.IntField("failures", n))
		return res
	}
	res.Healthy = false
	res.Error = err.Error()
	c.log.Warn("Health check failed",
		logger.StringField("check", chk.name), logger.ErrorField(err),
		logger.IntField("failures", n), logger.DurationField("latency", res.Latency))
	return res
}

// Err summarizes the failed checks of a report, nil when healthy.
func (r Report) Err() error {
	if r.Healthy {
		return nil
	}
	var failed []string
	for _, res := range r.Results {
		if !res.Healthy {
			failed = append(failed, res.Name)
		}
	}
	return fmt.Errorf("health checks failed: %v", failed)
}

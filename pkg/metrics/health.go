package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HealthStatus is the aggregated result of all registered checks.
type HealthStatus struct {
	Healthy   bool             `json:"healthy"`
	Ready     bool             `json:"ready"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Uptime    time.Duration    `json:"uptime"`
}

// Check is a single health check result.
type Check struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency,omitempty"`
}

// HealthCheckFunc performs one check.
type HealthCheckFunc func(ctx context.Context) Check

// HealthChecker runs registered checks and tracks readiness.
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheckFunc
	status    atomic.Pointer[HealthStatus]
	ready     atomic.Bool
	startTime time.Time
	interval  time.Duration
	running   atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// HealthCheckerOption configures a HealthChecker.
type HealthCheckerOption func(*HealthChecker)

// WithHealthCheckInterval sets how often Start re-runs the checks.
func WithHealthCheckInterval(d time.Duration) HealthCheckerOption {
	return func(h *HealthChecker) {
		h.interval = d
	}
}

// NewHealthChecker creates a checker with no checks. It reports healthy
// and not ready until SetReady is called.
func NewHealthChecker(opts ...HealthCheckerOption) *HealthChecker {
	h := &HealthChecker{
		checks:    make(map[string]HealthCheckFunc),
		startTime: time.Now(),
		interval:  10 * time.Second,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.status.Store(&HealthStatus{Healthy: true, Timestamp: h.startTime})
	return h
}

// RegisterCheck adds or replaces a named check.
func (h *HealthChecker) RegisterCheck(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// IsHealthy reports the result of the last check run.
func (h *HealthChecker) IsHealthy() bool {
	return h.status.Load().Healthy
}

// IsReady reports whether the node has been marked ready and is healthy.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load() && h.IsHealthy()
}

// SetReady marks the node ready to serve.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// GetStatus returns the last computed status.
func (h *HealthChecker) GetStatus() *HealthStatus {
	status := *h.status.Load()
	status.Ready = h.IsReady()
	return &status
}

// Check runs every registered check and stores the result.
func (h *HealthChecker) Check(ctx context.Context) *HealthStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	h.mu.RUnlock()
	sort.Strings(names)

	status := &HealthStatus{
		Healthy:   true,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(checks)),
		Uptime:    time.Since(h.startTime),
	}
	var failed []string
	for _, name := range names {
		result := checks[name](ctx)
		result.Name = name
		status.Checks[name] = result
		if !result.Healthy {
			status.Healthy = false
			failed = append(failed, result.Message)
		}
	}
	if len(failed) > 0 {
		status.Message = failed[0]
		if len(failed) > 1 {
			status.Message += " (and more)"
		}
	}

	status.Ready = h.ready.Load() && status.Healthy
	h.status.Store(status)
	return status
}

// Start re-runs the checks every interval until ctx ends or Stop is called.
func (h *HealthChecker) Start(ctx context.Context) {
	if h.running.Swap(true) {
		return
	}
	go func() {
		defer h.running.Store(false)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		h.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.Check(ctx)
			}
		}
	}()
}

// Stop ends the periodic checks.
func (h *HealthChecker) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping() error
}

// RegisterPingCheck registers a check that pings p.
func (h *HealthChecker) RegisterPingCheck(name string, p Pinger) {
	h.RegisterCheck(name, func(ctx context.Context) Check {
		start := time.Now()
		err := p.Ping()
		latency := time.Since(start)
		if err != nil {
			return Check{Message: name + " unreachable: " + err.Error(), Latency: latency}
		}
		return Check{Healthy: true, Latency: latency}
	})
}

// Package health provides liveness and readiness endpoints for the coupon
// service.
//
// Each registered check runs in its own background goroutine at the interval
// passed to Start. A check is marked unhealthy only after FailureThreshold
// consecutive failures, and marked healthy again only after SuccessThreshold
// consecutive successes, so a single slow storage ping does not flip /readyz
// back and forth.
//
// Readiness is the conjunction of a manual gate (SetReady) and every
// readiness check. The gate starts closed; the application opens it after
// the storage layer is connected and closes it at the start of shutdown.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc is a health check function. It returns nil when the checked
// component is healthy, or an error describing the problem. The context
// carries the per-check timeout.
type CheckFunc func(ctx context.Context) error

// Thresholds control when a check changes state. FailureThreshold is the
// number of consecutive failures before a healthy check turns unhealthy;
// SuccessThreshold is the number of consecutive successes before an
// unhealthy check recovers. Values below 1 behave as 1.
type Thresholds struct {
	FailureThreshold int
	SuccessThreshold int
}

// DefaultThresholds are used by AddLivenessCheck and AddReadinessCheck.
var DefaultThresholds = Thresholds{FailureThreshold: 3, SuccessThreshold: 1}

// checkState holds the configuration and runtime state of one registered
// check.
//
// Concurrency model: run is called from exactly one goroutine, the ticker
// loop started by Start. The counters (fails, oks) are only touched by run
// and need no synchronization. healthy and lastErr are read by HTTP handlers
// from arbitrary goroutines, so they are atomics.
type checkState struct {
	name    string
	timeout time.Duration
	check   CheckFunc
	limits  Thresholds

	// healthy starts true; a check is assumed healthy until it has failed
	// FailureThreshold times in a row.
	healthy atomic.Bool

	// lastErr is the result of the most recent run, nil before the first run.
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func newCheckState(name string, timeout time.Duration, check CheckFunc, limits Thresholds) *checkState {
	c := &checkState{name: name, timeout: timeout, check: check, limits: limits}
	c.healthy.Store(true)
	return c
}

func (c *checkState) isHealthy() bool { return c.healthy.Load() }

// lastError returns the error of the most recent run, or nil.
func (c *checkState) lastError() error {
	if e := c.lastErr.Load(); e != nil {
		return *e
	}
	return nil
}

// run executes the check once under its timeout and updates the counters.
// Must be called from a single goroutine.
func (c *checkState) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.check(ctx)
	c.lastErr.Store(&err)

	if err != nil {
		c.oks = 0
		c.fails++
		if c.fails >= c.limits.FailureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.fails = 0
	c.oks++
	if c.oks >= c.limits.SuccessThreshold {
		c.healthy.Store(true)
	}
}

// Health manages the liveness and readiness checks of the service.
type Health struct {
	ready atomic.Bool

	// mu guards the check slices and cancel. It is held for registration,
	// Start and Stop; handlers take a snapshot under RLock and release it
	// before reading check state.
	mu        sync.RWMutex
	liveness  []*checkState
	readiness []*checkState
	cancel    context.CancelFunc
}

// New creates a Health in the not-ready state. Call SetReady(true) once the
// service has finished initialization.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that decides whether the process is
// alive and should keep running, such as goroutine count or GC pause.
// It uses DefaultThresholds.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.AddLivenessCheckWithThresholds(name, timeout, check, DefaultThresholds)
}

// AddLivenessCheckWithThresholds is AddLivenessCheck with custom thresholds.
func (h *Health) AddLivenessCheckWithThresholds(name string, timeout time.Duration, check CheckFunc, limits Thresholds) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newCheckState(name, timeout, check, limits))
}

// AddReadinessCheck registers a check that decides whether the service
// should receive traffic, such as a storage ping or the rate limiter
// backend. It uses DefaultThresholds.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.AddReadinessCheckWithThresholds(name, timeout, check, DefaultThresholds)
}

// AddReadinessCheckWithThresholds is AddReadinessCheck with custom thresholds.
func (h *Health) AddReadinessCheckWithThresholds(name string, timeout time.Duration, check CheckFunc, limits Thresholds) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newCheckState(name, timeout, check, limits))
}

// Start runs every registered check in its own goroutine, once immediately
// and then at interval, until Stop is called or ctx is done. Checks
// registered after Start are not run. Start should be called once.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := make([]*checkState, 0, len(h.liveness)+len(h.readiness))
	checks = append(checks, h.liveness...)
	checks = append(checks, h.readiness...)
	h.mu.Unlock()

	for _, c := range checks {
		go loop(ctx, c, interval)
	}
}

// loop runs a single check on a ticker until ctx is cancelled.
func loop(ctx context.Context, c *checkState, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

// Stop cancels the check goroutines. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady sets the manual readiness gate. The application calls it with
// true once storage is connected, and with false at the beginning of
// graceful shutdown so load balancers stop sending new requests.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is ready to accept traffic: the gate
// is open and every readiness check is currently healthy.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, c := range h.snapshot(false) {
		if !c.isHealthy() {
			return false
		}
	}
	return true
}

func (h *Health) snapshot(liveness bool) []*checkState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if liveness {
		return append([]*checkState(nil), h.liveness...)
	}
	return append([]*checkState(nil), h.readiness...)
}

// statusResponse is the JSON body of both endpoints.
type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez. It responds 200 {"status":"ok"} when every
// liveness check is healthy, and 503 {"status":"unhealthy","checks":{...}}
// naming each failing check and its last error otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(h.snapshot(true)))
}

// ReadyEndpoint serves /readyz. It responds 200 only when the manual gate is
// open and every readiness check is healthy. A closed gate is reported under
// the "_readiness" key.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(false))
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeStatus(w, failed)
}

// failures maps each unhealthy check to its last error. It reads the stored
// result of run and never executes the check itself.
func failures(checks []*checkState) map[string]string {
	out := make(map[string]string)
	for _, c := range checks {
		if c.isHealthy() {
			continue
		}
		if err := c.lastError(); err != nil {
			out[c.name] = err.Error()
		} else {
			out[c.name] = "check is unhealthy"
		}
	}
	return out
}

func writeStatus(w http.ResponseWriter, failed map[string]string) {
	resp := statusResponse{Status: "ok"}
	status := http.StatusOK
	if len(failed) > 0 {
		resp = statusResponse{Status: "unhealthy", Checks: failed}
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already written; an encode error means the client
	// went away.
	_ = json.NewEncoder(w).Encode(resp)
}

// Package health serves liveness and readiness probes backed by periodic
// checks.
//
// A check flips to failing only after FailureThreshold consecutive errors and
// back to passing after SuccessThreshold consecutive successes, so a single
// slow database round trip does not take the pod out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CheckFunc returns nil when the dependency is usable.
type CheckFunc func(ctx context.Context) error

// Kind selects which probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Liveness {
		return "liveness"
	}
	return "readiness"
}

// Check describes one registered check.
type Check struct {
	Name             string
	Kind             Kind
	Timeout          time.Duration
	FailureThreshold int
	SuccessThreshold int
	Func             CheckFunc
}

type probe struct {
	Check

	passing atomic.Bool
	lastErr atomic.Pointer[string]

	// Touched only by the goroutine that runs the check.
	fails, oks int
}

func newProbe(c Check) *probe {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	p := &probe{Check: c}
	p.passing.Store(true)
	return p
}

// observe runs the check once and reports whether its state changed.
func (p *probe) observe(ctx context.Context) (changed bool) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	if err := p.Func(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.oks = 0
		p.fails++
		if p.fails >= p.FailureThreshold && p.passing.Load() {
			p.passing.Store(false)
			return true
		}
		return false
	}

	p.lastErr.Store(nil)
	p.fails = 0
	p.oks++
	if p.oks >= p.SuccessThreshold && !p.passing.Load() {
		p.passing.Store(true)
		return true
	}
	return false
}

func (p *probe) status() string {
	if p.passing.Load() {
		return "ok"
	}
	if msg := p.lastErr.Load(); msg != nil {
		return *msg
	}
	return "failing"
}

// Health aggregates checks. The service reports not ready until MarkReady is
// called.
type Health struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	wg     sync.WaitGroup
}

// New returns an empty Health that logs check transitions to lg.
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg}
}

// Register adds a check. Checks registered after Start are not run.
func (h *Health) Register(c Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, newProbe(c))
}

// Start runs every check immediately and then each interval until ctx is
// cancelled. Wait blocks until the runners exit.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	h.mu.RLock()
	probes := append([]*probe(nil), h.probes...)
	h.mu.RUnlock()

	for _, p := range probes {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.loop(ctx, p, interval)
		}()
	}
}

func (h *Health) loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if p.observe(ctx) {
			h.lg.Warn("Health check changed state",
				zap.String("check", p.Name),
				zap.Stringer("kind", p.Kind),
				zap.String("status", p.status()),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the check runners started by Start have exited.
func (h *Health) Wait() {
	h.wg.Wait()
}

// MarkReady flips the manual readiness gate. Set it false at the start of
// graceful shutdown so load balancers stop routing new requests.
func (h *Health) MarkReady(ready bool) {
	h.ready.Store(ready)
}

// Ready reports whether the gate is open and every readiness check passes.
func (h *Health) Ready() bool {
	if !h.ready.Load() {
		return false
	}
	_, ok := h.report(Readiness)
	return ok
}

func (h *Health) report(kind Kind) (map[string]string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	checks := make(map[string]string)
	ok := true
	for _, p := range h.probes {
		if p.Kind != kind {
			continue
		}
		checks[p.Name] = p.status()
		if !p.passing.Load() {
			ok = false
		}
	}
	return checks, ok
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveHandler serves /livez.
func (h *Health) LiveHandler(w http.ResponseWriter, _ *http.Request) {
	checks, ok := h.report(Liveness)
	write(w, checks, ok)
}

// ReadyHandler serves /readyz.
func (h *Health) ReadyHandler(w http.ResponseWriter, _ *http.Request) {
	checks, ok := h.report(Readiness)
	if !h.ready.Load() {
		checks["server"] = "not ready"
		ok = false
	}
	write(w, checks, ok)
}

func write(w http.ResponseWriter, checks map[string]string, ok bool) {
	resp := response{Status: "ok", Checks: checks}
	code := http.StatusOK
	if !ok {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

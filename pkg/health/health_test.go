package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// --- Mock implementations ---

type mockPinger struct {
	err atomic.Pointer[error]
}

func (m *mockPinger) Ping(context.Context) error {
	if p := m.err.Load(); p != nil {
		return *p
	}
	return nil
}

func (m *mockPinger) fail(err error) { m.err.Store(&err) }

func (m *mockPinger) heal() { m.err.Store(nil) }

// --- Helpers ---

func get(t *testing.T, handler http.HandlerFunc) (int, response) {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

// --- Tests ---

func TestReady_RequiresGate(t *testing.T) {
	h := New(nil)
	h.Register(Check{Name: "postgres", Kind: Readiness, Func: PingCheck("postgres", &mockPinger{})})

	code, body := get(t, h.ReadyHandler)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", body.Checks["server"])
	assert.False(t, h.Ready())

	h.MarkReady(true)
	code, body = get(t, h.ReadyHandler)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.True(t, h.Ready())
}

func TestProbe_Thresholds(t *testing.T) {
	pinger := &mockPinger{}
	pinger.fail(errors.New("connection refused"))
	p := newProbe(Check{Name: "storage", Kind: Readiness, SuccessThreshold: 2, Func: PingCheck("storage", pinger)})
	ctx := context.Background()

	assert.False(t, p.observe(ctx))
	assert.False(t, p.observe(ctx))
	assert.Equal(t, "ok", p.status(), "below failure threshold")

	assert.True(t, p.observe(ctx))
	assert.Equal(t, "ping storage: connection refused", p.status())

	pinger.heal()
	assert.False(t, p.observe(ctx))
	assert.True(t, p.observe(ctx))
	assert.Equal(t, "ok", p.status())
}

func TestProbe_Timeout(t *testing.T) {
	p := newProbe(Check{Name: "slow", Timeout: 10 * time.Millisecond, FailureThreshold: 1, Func: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	assert.True(t, p.observe(context.Background()))
	assert.Equal(t, context.DeadlineExceeded.Error(), p.status())
}

func TestLiveHandler_IgnoresReadinessChecks(t *testing.T) {
	h := New(nil)
	h.Register(Check{Name: "goroutines", Kind: Liveness, Func: GoroutineCheck(1 << 20)})
	h.Register(Check{Name: "postgres", Kind: Readiness, FailureThreshold: 1, Func: func(context.Context) error {
		return errors.New("down")
	}})
	for _, p := range h.probes {
		p.observe(context.Background())
	}

	code, body := get(t, h.LiveHandler)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"goroutines": "ok"}, body.Checks)

	h.MarkReady(true)
	code, body = get(t, h.ReadyHandler)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "down", body.Checks["postgres"])
}

func TestGoroutineCheck(t *testing.T) {
	require.NoError(t, GoroutineCheck(1<<20)(context.Background()))
	require.Error(t, GoroutineCheck(0)(context.Background()))
}

func TestStart_LogsTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	h := New(zap.New(core))

	pinger := &mockPinger{}
	pinger.fail(errors.New("no route to host"))
	h.Register(Check{Name: "storage", Kind: Readiness, FailureThreshold: 1, Func: PingCheck("storage", pinger)})
	h.MarkReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool { return !h.Ready() }, time.Second, 5*time.Millisecond)
	pinger.heal()
	require.Eventually(t, h.Ready, time.Second, 5*time.Millisecond)

	cancel()
	h.Wait()

	entries := logs.FilterMessage("Health check changed state").All()
	require.GreaterOrEqual(t, len(entries), 2)
	assert.Equal(t, "storage", entries[0].ContextMap()["check"])
	assert.Equal(t, "readiness", entries[0].ContextMap()["kind"])
}

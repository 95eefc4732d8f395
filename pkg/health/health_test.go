package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ready(t *testing.T, c *Checker) (int, Report) {
	t.Helper()
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return rec.Code, report
}

func TestRun_WorstStatusWins(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("a", Static(StatusUp, "ok"))
	c.Register("b", Static(StatusDegraded, "cache disabled"))

	code, report := ready(t, c)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "cache disabled", report.Components["b"].Message)
	assert.NotEmpty(t, report.Components["a"].Latency)

	c.Register("c", Static(StatusDown, "db unreachable"))
	code, report = ready(t, c)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDown, report.Status)
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck(func(context.Context) error { return nil }, false)
	assert.Equal(t, StatusUp, ok(context.Background()).Status)

	fail := func(context.Context) error { return errors.New("connection refused") }
	assert.Equal(t, StatusDown, PingCheck(fail, false)(context.Background()).Status)

	got := PingCheck(fail, true)(context.Background())
	assert.Equal(t, StatusDegraded, got.Status)
	assert.Equal(t, "connection refused", got.Message)
}

func TestReadyHandler_AppliesTimeout(t *testing.T) {
	c := NewChecker(10 * time.Millisecond)
	c.Register("slow", PingCheck(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, false))

	code, report := ready(t, c)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, report.Components["slow"].Message, "deadline")
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker(0).LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	closed bool
	gen    uint64
}

func (f *fakeDB) Closed() bool       { return f.closed }
func (f *fakeDB) Generation() uint64 { return f.gen }

func ok(context.Context) error   { return nil }
func fail(context.Context) error { return errors.New("dial tcp: connection refused") }

func TestRunAggregatesWorstStatus(t *testing.T) {
	db := &fakeDB{gen: 3}
	c := NewChecker()
	c.Register("database", DatabaseCheck(db))
	c.Register("kafka", PingCheck(ok))
	c.RegisterOptional("redis", PingCheck(fail))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Components["database"].Status)
	assert.Equal(t, "generation 3", report.Components["database"].Message)
	assert.Equal(t, StatusDegraded, report.Components["redis"].Status)
	assert.Contains(t, report.Components["redis"].Message, "connection refused")
	assert.Equal(t, []string{"database", "kafka", "redis"}, c.Names())

	db.closed = true
	report = c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.RegisterOptional("redis", PingCheck(fail))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("kafka", PingCheck(fail))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusDown, report.Status)
	assert.Len(t, report.Components, 2)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}

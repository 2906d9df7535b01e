package ops

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"marketsim.com/pkg/common"
	"marketsim.com/pkg/ratelimit"
	"marketsim.com/pkg/xerr"
)

type fakeHealth struct {
	done chan struct{}
}

func (f fakeHealth) Done() <-chan struct{} { return f.done }
func (f fakeHealth) MailboxFull() uint64   { return 3 }
func (f fakeHealth) DroppedEvents() uint64 { return 1 }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	fh := fakeHealth{done: make(chan struct{})}
	s := NewServer(":0", fh, prometheus.NewRegistry())

	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(common.HeaderRequestID))

	var resp struct {
		Code int        `json:"code"`
		Data healthView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, xerr.OK, resp.Code)
	assert.Equal(t, "ok", resp.Data.Status)
	assert.Equal(t, uint64(3), resp.Data.MailboxFull)

	close(fh.done)
	rec = get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "marketsim_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := NewServer(":0", fakeHealth{done: make(chan struct{})}, reg)
	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marketsim_test_total 1")
}

func TestRateLimit(t *testing.T) {
	store := ratelimit.NewStore(rate.Every(time.Hour), 2, time.Minute)
	s := NewServer(":0", fakeHealth{done: make(chan struct{})}, prometheus.NewRegistry(), WithRateLimit(store))

	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/healthz").Code)

	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var resp common.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, xerr.RateLimited, resp.Code)
	assert.Nil(t, resp.Data)

	// 路由之间互不影响
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/metrics").Code)
}

func TestRequestIDPassedThrough(t *testing.T) {
	s := NewServer(":0", fakeHealth{done: make(chan struct{})}, prometheus.NewRegistry())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(common.HeaderRequestID, "rid-1")
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "rid-1", rec.Header().Get(common.HeaderRequestID))
}

func TestCORSAndRequestMetrics(t *testing.T) {
	s := NewServer(":0", fakeHealth{done: make(chan struct{})}, prometheus.NewRegistry(), WithRequestMetrics("ops_test"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

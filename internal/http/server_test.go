package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/dashboard"
	"bilancio/internal/log"
	"bilancio/internal/memory"
	"bilancio/internal/seed"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testSeed() seed.Seed {
	day := func(s string) time.Time {
		t, _ := time.Parse(time.DateOnly, s)
		return t
	}
	tx := func(id, cat string, typ core.TransactionType, amount, date string) core.Transaction {
		return core.Transaction{ID: id, AccountID: "acc", CategoryID: cat, Type: typ, Amount: d(amount), Currency: "USD", Date: day(date), Month: core.MonthOf(day(date))}
	}
	march := core.NewMonth(2025, 3)
	return seed.Seed{
		Accounts: []core.Account{{ID: "acc", Name: "Main", Currency: "USD"}},
		Categories: []core.Category{
			{ID: "salary", Name: "Salary", Type: core.Income},
			{ID: "food", Name: "Food", Type: core.Expense},
		},
		Transactions: []core.Transaction{
			tx("t1", "salary", core.Income, "3000", "2025-03-01"),
			tx("t2", "food", core.Expense, "150", "2025-03-10"),
		},
		Budgets: []core.Budget{
			{ID: "b1", AccountID: "acc", CategoryID: "salary", Month: march, Planned: d("3000"), Currency: "USD"},
			{ID: "b2", AccountID: "acc", CategoryID: "food", Month: march, Planned: d("500"), Currency: "USD"},
		},
		Holdings: []core.Holding{
			{ID: "h1", AccountID: "acc", Symbol: "AAPL", Quantity: d("10"), AverageCost: d("150"), Currency: "USD"},
		},
		Rates:  map[string]decimal.Decimal{"USD:EUR": d("0.9")},
		Prices: map[string]core.Quote{"AAPL": {Price: d("180"), FetchedAt: time.Now()}},
	}
}

// countingReporter counts calls that reach the service.
type countingReporter struct {
	Reporter
	reports, holdings atomic.Int32
}

func (c *countingReporter) Report(ctx context.Context, req dashboard.Request) (*dashboard.Report, error) {
	c.reports.Add(1)
	return c.Reporter.Report(ctx, req)
}

func (c *countingReporter) Holdings(ctx context.Context, req dashboard.HoldingsRequest) (*dashboard.HoldingsReport, error) {
	c.holdings.Add(1)
	return c.Reporter.Holdings(ctx, req)
}

type failingRates struct{}

func (failingRates) LoadRates(context.Context, []string) (map[string]decimal.Decimal, error) {
	return nil, errors.New("rates backend down")
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, opts Options) (*Server, *countingReporter) {
	t.Helper()
	store := memory.New(testSeed())
	svc := dashboard.NewService(store, store, store, log.Discard(), dashboard.DefaultServiceConfig())
	rep := &countingReporter{Reporter: svc}
	srv := NewServer(":0", rep, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, rep
}

func get(srv *Server, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "203.0.113.7:5555"
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	assert.Equal(t, http.StatusOK, get(srv, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/readyz").Code)

	notReady, _ := newTestServer(t, Options{Ready: pinger{err: errors.New("db locked")}})
	assert.Equal(t, http.StatusServiceUnavailable, get(notReady, "/readyz").Code)
}

func TestDashboardEndpoint(t *testing.T) {
	srv, rep := newTestServer(t, Options{})

	rr := get(srv, "/api/dashboard?account=acc&month=2025-03&currency=usd")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "MISS", rr.Header().Get("X-Cache"))

	var body struct {
		AccountID string            `json:"accountId"`
		Month     string            `json:"month"`
		Stats     []dashboard.Stat  `json:"stats"`
		Accounts  []AccountResponse `json:"accounts"`
		Display   map[string]string `json:"display"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "acc", body.AccountID)
	assert.Equal(t, "2025-03", body.Month)
	require.Len(t, body.Stats, 4)
	assert.Equal(t, dashboard.StatNet, body.Stats[0].Key)
	assert.True(t, body.Stats[0].Value.Equal(d("2850")))
	assert.Equal(t, "$2,850.00", body.Display[dashboard.StatNet])
	require.Len(t, body.Accounts, 1)
	assert.Equal(t, "Main", body.Accounts[0].Name)

	rr = get(srv, "/api/dashboard?account=acc&month=2025-03&currency=USD")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "HIT", rr.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), rep.reports.Load())
}

func TestDefaultedRequestsShareCacheEntry(t *testing.T) {
	srv, rep := newTestServer(t, Options{})

	targets := []string{
		"/api/dashboard?account=acc&month=2025-03",
		"/api/dashboard?account=acc&month=2025-03&currency=EUR",
		"/api/dashboard?account=acc&month=2025-03&currency=eur&history=6",
	}
	for i, target := range targets {
		rr := get(srv, target)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		if i > 0 {
			assert.Equal(t, "HIT", rr.Header().Get("X-Cache"), target)
		}
	}
	assert.Equal(t, int32(1), rep.reports.Load())

	get(srv, "/api/holdings?account=acc")
	rr := get(srv, "/api/holdings?account=acc&currency=EUR")
	assert.Equal(t, "HIT", rr.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), rep.holdings.Load())

	reports, _ := srv.CacheStats()
	assert.Equal(t, 1, reports.Size)
}

func TestDashboardEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing account", "/api/dashboard?month=2025-03", http.StatusBadRequest},
		{"bad month", "/api/dashboard?account=acc&month=march", http.StatusBadRequest},
		{"unknown currency", "/api/dashboard?account=acc&month=2025-03&currency=ZZZ", http.StatusBadRequest},
		{"unknown holdings currency", "/api/holdings?currency=ZZZ", http.StatusBadRequest},
		{"wrong method path", "/api/nothing", http.StatusNotFound},
	}
	srv, _ := newTestServer(t, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(srv, tt.target)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}
}

func TestDashboardUpstreamFailure(t *testing.T) {
	store := memory.New(testSeed())
	svc := dashboard.NewService(store, failingRates{}, nil, log.Discard(), dashboard.DefaultServiceConfig())
	srv := NewServer(":0", svc, Options{})
	defer srv.Shutdown(context.Background())

	rr := get(srv, "/api/dashboard?account=acc&month=2025-03")
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "upstream error", body.Error)
}

func TestHoldingsEndpoint(t *testing.T) {
	srv, rep := newTestServer(t, Options{})

	rr := get(srv, "/api/holdings?account=acc&currency=USD")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Totals struct {
			MarketValue decimal.Decimal `json:"marketValue"`
		} `json:"totals"`
		Display map[string]string `json:"display"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Totals.MarketValue.Equal(d("1800")))
	assert.Equal(t, "$1,800.00", body.Display["market_value"])

	get(srv, "/api/holdings?account=acc&currency=USD")
	assert.Equal(t, int32(1), rep.holdings.Load())
}

func TestInvalidateDropsAccountEntries(t *testing.T) {
	srv, rep := newTestServer(t, Options{})
	ctx := context.Background()

	get(srv, "/api/dashboard?account=acc&month=2025-03")
	get(srv, "/api/holdings?account=acc")
	get(srv, "/api/holdings")
	require.Equal(t, int32(1), rep.reports.Load())
	require.Equal(t, int32(2), rep.holdings.Load())

	require.NoError(t, srv.Invalidate(ctx, amqp.NewReportInvalidation("other", amqp.ReasonPricesChanged)))
	get(srv, "/api/dashboard?account=acc&month=2025-03")
	assert.Equal(t, int32(1), rep.reports.Load(), "other accounts keep their entries")
	assert.Equal(t, "MISS", get(srv, "/api/holdings").Header().Get("X-Cache"), "the all-accounts view is dropped")

	require.NoError(t, srv.Invalidate(ctx, amqp.NewReportInvalidation("acc", amqp.ReasonPricesChanged)))
	assert.Equal(t, "MISS", get(srv, "/api/dashboard?account=acc&month=2025-03").Header().Get("X-Cache"))
	assert.Equal(t, "MISS", get(srv, "/api/holdings?account=acc").Header().Get("X-Cache"))

	require.NoError(t, srv.Invalidate(ctx, amqp.NewReportInvalidation("", amqp.ReasonRecordsImported)))
	reports, holdings := srv.CacheStats()
	assert.Zero(t, reports.Size)
	assert.Zero(t, holdings.Size)
}

func TestCachingDisabled(t *testing.T) {
	srv, rep := newTestServer(t, Options{CacheSize: -1})
	get(srv, "/api/dashboard?account=acc&month=2025-03")
	get(srv, "/api/dashboard?account=acc&month=2025-03")
	assert.Equal(t, int32(2), rep.reports.Load())
	assert.NoError(t, srv.Invalidate(context.Background(), amqp.NewReportInvalidation("acc", amqp.ReasonPricesChanged)))
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Options{RequestsPerMinute: 2})
	assert.Equal(t, http.StatusOK, get(srv, "/api/holdings").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/api/holdings").Code)

	rr := get(srv, "/api/holdings")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	rr = get(srv, "/api/stats")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, int64(2), srv.metrics.snapshot().RateLimitHits)
}

func TestRateLimiterRefills(t *testing.T) {
	rl := newRateLimiter(60)
	defer rl.stop()
	now := time.Now()

	for i := 0; i < 60; i++ {
		require.True(t, rl.allowAt("1.2.3.4", now, nil))
	}
	assert.False(t, rl.allowAt("1.2.3.4", now, nil))
	assert.True(t, rl.allowAt("5.6.7.8", now, nil), "buckets are per client")
	assert.True(t, rl.allowAt("1.2.3.4", now.Add(time.Second), nil), "one token per second")

	rl.cleanupStaleEntries(now.Add(11 * time.Minute))
	assert.Empty(t, rl.clients)
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	get(srv, "/api/dashboard?account=acc&month=2025-03")
	get(srv, "/api/dashboard?account=acc&month=2025-03")

	rr := get(srv, "/api/stats")
	require.Equal(t, http.StatusOK, rr.Code)
	var body statsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Reports.Size)
	assert.Equal(t, int64(1), body.Reports.Hits)
	assert.Equal(t, int64(1), body.Reports.Misses)
}

// Package http serves the dashboard and holdings reports as JSON.
//
// Finished reports are kept in an LRU cache keyed by account, month and
// currency. Entries for an account are dropped when an invalidation message
// for it arrives.
package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/dashboard"
	"bilancio/internal/log"
)

const (
	reportPrefix   = "report:"
	holdingsPrefix = "holdings:"
	requestTimeout = 10 * time.Second
)

// Reporter is the part of the dashboard service the server calls.
type Reporter interface {
	Normalize(req dashboard.Request) (dashboard.Request, error)
	NormalizeHoldings(req dashboard.HoldingsRequest) (dashboard.HoldingsRequest, error)
	Report(ctx context.Context, req dashboard.Request) (*dashboard.Report, error)
	Holdings(ctx context.Context, req dashboard.HoldingsRequest) (*dashboard.HoldingsReport, error)
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the server. Zero values pick the defaults.
type Options struct {
	// CacheSize caps each report cache; negative disables caching (default: 128)
	CacheSize int
	// CacheTTL bounds the age of a cached report (default: 5m)
	CacheTTL time.Duration
	// RequestsPerMinute is allowed per client IP (default: 60)
	RequestsPerMinute int
	// Ready is checked by /readyz when set.
	Ready  Pinger
	Logger *log.Logger
}

type Server struct {
	http.Server
	reporter    Reporter
	ready       Pinger
	logger      *log.Logger
	rateLimiter *rateLimiter
	metrics     *securityMetrics
	now         func() time.Time

	reports  *cache.LRUCache[*dashboard.Report]
	holdings *cache.LRUCache[*dashboard.HoldingsReport]
	caches   *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(addr string, reporter Reporter, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = 128
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 60
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
		},
		reporter:    reporter,
		ready:       opts.Ready,
		logger:      opts.Logger.WithComponent(log.ComponentHTTP),
		rateLimiter: newRateLimiter(opts.RequestsPerMinute),
		metrics:     &securityMetrics{},
		caches:      cache.NewManager(opts.Logger),
		now:         time.Now,
	}
	if opts.CacheSize > 0 {
		s.reports = cache.NewLRUCache[*dashboard.Report](opts.CacheSize, opts.CacheTTL)
		s.holdings = cache.NewLRUCache[*dashboard.HoldingsReport](opts.CacheSize, opts.CacheTTL)
		s.caches.Register(s.reports)
		s.caches.Register(s.holdings)
		s.caches.StartCleanup(10 * time.Minute)
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/dashboard", s.withGuards(s.handleDashboard))
	mux.HandleFunc("GET /api/holdings", s.withGuards(s.handleHoldings))
	mux.HandleFunc("GET /api/stats", s.withGuards(s.handleStats))

	s.Handler = log.Middleware(opts.Logger)(mux)
	return s
}

// withGuards adds security headers and per-client rate limiting.
func (s *Server) withGuards(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.FromContext(r.Context())
		clientIP := extractClientIP(r)

		if reason := suspicionReason(r, s.metrics); reason != "" {
			logger.WarnContext(r.Context(), "Suspicious request", "client_ip", clientIP, "reason", reason, "user_agent", r.Header.Get("User-Agent"))
		}
		if !s.rateLimiter.allow(clientIP, s.metrics) {
			logger.WarnContext(r.Context(), "Rate limit exceeded", "client_ip", clientIP)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next(w, r)
	}
}

// Invalidate drops cached reports for the message's account, or every
// cached report when it targets all accounts. It satisfies amqp.Handler.
func (s *Server) Invalidate(ctx context.Context, msg *amqp.ReportInvalidation) error {
	if s.reports == nil {
		return nil
	}
	if msg.AllAccounts() {
		s.reports.Purge()
		s.holdings.Purge()
		s.logger.InfoContext(ctx, "Purged report caches", "reason", msg.Reason)
		return nil
	}
	acc := sanitizeInput(msg.AccountID)
	n := s.reports.DeletePrefix(reportPrefix + acc + ":")
	n += s.holdings.DeletePrefix(holdingsPrefix + acc + ":")
	// the all-accounts holdings view includes this account too
	n += s.holdings.DeletePrefix(holdingsPrefix + ":")
	s.logger.DebugContext(ctx, "Invalidated cached reports", log.NewFields().
		WithAccount(acc).
		WithCount(n).
		ToSlice()...)
	return nil
}

// CacheStats reports the counters of the report and holdings caches.
func (s *Server) CacheStats() (reports, holdings cache.Stats) {
	if s.reports == nil {
		return cache.Stats{}, cache.Stats{}
	}
	return s.reports.Stats(), s.holdings.Stats()
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func reportKey(req dashboard.Request) string {
	return reportPrefix + strings.Join([]string{req.AccountID, req.Month.Key(), req.PreferredCurrency, req.UserID, itoa(req.HistoryMonths)}, ":")
}

func holdingsKey(req dashboard.HoldingsRequest) string {
	return holdingsPrefix + req.AccountID + ":" + req.PreferredCurrency
}

package http

import (
	"context"
	"errors"
	"net/http"

	"bilancio/internal/cache"
	"bilancio/internal/currency"
	"bilancio/internal/dashboard"
	"bilancio/internal/log"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	req, err := ParseReportRequest(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// key on the request the service will actually compute
	if req, err = s.reporter.Normalize(req); err != nil {
		s.fail(w, r, "Dashboard request rejected", err)
		return
	}

	key := reportKey(req)
	if s.reports != nil {
		if report, ok := s.reports.Get(key); ok {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, NewReportResponse(report))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	report, err := s.reporter.Report(ctx, req)
	if err != nil {
		s.fail(w, r, "Dashboard report failed", err)
		return
	}
	if s.reports != nil {
		s.reports.Set(key, report)
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, NewReportResponse(report))
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	req, err := s.reporter.NormalizeHoldings(ParseHoldingsRequest(r.URL.Query()))
	if err != nil {
		s.fail(w, r, "Holdings request rejected", err)
		return
	}

	key := holdingsKey(req)
	if s.holdings != nil {
		if report, ok := s.holdings.Get(key); ok {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, NewHoldingsResponse(report))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	report, err := s.reporter.Holdings(ctx, req)
	if err != nil {
		s.fail(w, r, "Holdings report failed", err)
		return
	}
	if s.holdings != nil {
		s.holdings.Set(key, report)
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, NewHoldingsResponse(report))
}

// fail maps an engine error to a status and logs it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger := log.FromContext(r.Context())
	switch {
	case errors.Is(err, dashboard.ErrInvalidRequest):
		logger.WarnContext(r.Context(), msg, log.FieldError, err)
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		logger.ErrorContext(r.Context(), msg, log.FieldError, err)
		writeError(w, http.StatusGatewayTimeout, "upstream timeout")
	case errors.Is(err, currency.ErrIncompleteRates):
		logger.ErrorContext(r.Context(), msg, log.FieldError, err)
		writeError(w, http.StatusBadGateway, "exchange rates unavailable")
	default:
		logger.ErrorContext(r.Context(), msg, log.FieldError, err)
		writeError(w, http.StatusBadGateway, "upstream error")
	}
}

type statsResponse struct {
	Reports  cache.Stats   `json:"reports"`
	Holdings cache.Stats   `json:"holdings"`
	Security SecurityStats `json:"security"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	reports, holdings := s.CacheStats()
	writeJSON(w, http.StatusOK, statsResponse{
		Reports:  reports,
		Holdings: holdings,
		Security: s.metrics.snapshot(),
	})
}

// Package dashboard assembles the composite dashboard and holdings reports.
//
// Each call gathers every raw record set first, concurrently, then loads the
// exchange rates for the currencies those records use, and finally computes
// the report synchronously. Any failed read fails the whole call.
package dashboard

import (
	"errors"
	"time"

	"bilancio/internal/log"
	"bilancio/internal/ports"
	"bilancio/internal/trend"
)

var ErrInvalidRequest = errors.New("invalid report request")

// ServiceConfig holds the defaults applied to requests that leave them unset.
type ServiceConfig struct {
	// HistoryMonths is the trend window width (default: 6)
	HistoryMonths int

	// DefaultCurrency is used when a request has no preferred currency (default: EUR)
	DefaultCurrency string
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		HistoryMonths:   trend.DefaultMonths,
		DefaultCurrency: "EUR",
	}
}

// Service is stateless between calls; it is safe for concurrent use.
type Service struct {
	store  ports.RecordStore
	rates  ports.RateSource
	prices ports.PriceSource // nil disables live prices
	logger *log.Logger
	config ServiceConfig
	now    func() time.Time
}

func NewService(store ports.RecordStore, rates ports.RateSource, prices ports.PriceSource, logger *log.Logger, config ServiceConfig) *Service {
	if config.HistoryMonths <= 0 {
		config.HistoryMonths = trend.DefaultMonths
	}
	if config.DefaultCurrency == "" {
		config.DefaultCurrency = "EUR"
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Service{
		store:  store,
		rates:  rates,
		prices: prices,
		logger: logger.WithComponent(log.ComponentDashboard),
		config: config,
		now:    time.Now,
	}
}

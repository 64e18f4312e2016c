package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/currency"
	"bilancio/internal/holdings"
	"bilancio/internal/log"

	"golang.org/x/sync/errgroup"
)

// HoldingsRequest selects the holdings of one account, or of every account
// when AccountID is empty.
type HoldingsRequest struct {
	AccountID         string
	PreferredCurrency string
}

type HoldingsReport struct {
	AccountID         string               `json:"accountId,omitempty"`
	PreferredCurrency string               `json:"preferredCurrency"`
	Holdings          []holdings.Valuation `json:"holdings"`
	Totals            holdings.Totals      `json:"totals"`
	GeneratedAt       time.Time            `json:"generatedAt"`
}

// Holdings values the portfolio with one batched price lookup.
func (s *Service) Holdings(ctx context.Context, req HoldingsRequest) (*HoldingsReport, error) {
	req, err := s.NormalizeHoldings(req)
	if err != nil {
		return nil, err
	}
	pref, accountID := req.PreferredCurrency, req.AccountID

	list, err := s.store.ListHoldings(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}

	codes := []string{pref}
	for _, h := range list {
		codes = append(codes, h.Currency)
	}
	symbols := holdings.Symbols(list)

	var (
		quotes map[string]core.Quote
		rates  currency.RateCache
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rates, err = currency.Load(gctx, s.rates, codes...)
		return err
	})
	if s.prices != nil && len(symbols) > 0 {
		g.Go(func() (err error) {
			quotes, err = s.prices.LoadPrices(gctx, symbols)
			return wrap("load prices", err)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vals := holdings.Value(list, quotes, pref, rates)
	report := &HoldingsReport{
		AccountID:         accountID,
		PreferredCurrency: pref,
		Holdings:          vals,
		Totals:            holdings.Total(vals, pref),
		GeneratedAt:       s.now(),
	}
	s.logger.DebugContext(ctx, "Holdings valued", log.NewFields().
		WithOperation(log.OpHoldings).
		WithAccount(accountID).
		WithCount(len(vals)).
		ToSlice()...)
	return report, nil
}

// NormalizeHoldings trims the account filter and fills the default currency.
func (s *Service) NormalizeHoldings(req HoldingsRequest) (HoldingsRequest, error) {
	req.AccountID = strings.TrimSpace(req.AccountID)
	req.PreferredCurrency = core.NormalizeCurrency(req.PreferredCurrency)
	if req.PreferredCurrency == "" {
		req.PreferredCurrency = core.NormalizeCurrency(s.config.DefaultCurrency)
	}
	if err := core.ValidateCurrency(req.PreferredCurrency); err != nil {
		return req, fmt.Errorf("%w: preferred currency %q", ErrInvalidRequest, req.PreferredCurrency)
	}
	return req, nil
}

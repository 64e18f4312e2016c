// Package holdings values brokerage holdings against live quotes.
package holdings

import (
	"time"

	"bilancio/internal/core"
	"bilancio/internal/currency"

	"github.com/shopspring/decimal"
)

// Valuation is one holding with its cost basis, market value and gain/loss.
// Native fields are in the holding currency. The *Converted fields are set
// only when the preferred currency differs from it.
type Valuation struct {
	ID              string           `json:"id"`
	AccountID       string           `json:"accountId"`
	CategoryID      string           `json:"categoryId,omitempty"`
	Symbol          string           `json:"symbol"`
	Quantity        decimal.Decimal  `json:"quantity"`
	AverageCost     decimal.Decimal  `json:"averageCost"`
	Currency        string           `json:"currency"`
	CurrentPrice    *decimal.Decimal `json:"currentPrice"`
	ChangePercent   *decimal.Decimal `json:"changePercent,omitempty"`
	FetchedAt       *time.Time       `json:"fetchedAt,omitempty"`
	IsStale         bool             `json:"isStale"`
	CostBasis       decimal.Decimal  `json:"costBasis"`
	MarketValue     decimal.Decimal  `json:"marketValue"`
	GainLoss        decimal.Decimal  `json:"gainLoss"`
	GainLossPercent decimal.Decimal  `json:"gainLossPercent"`

	PreferredCurrency     string           `json:"preferredCurrency"`
	CurrentPriceConverted *decimal.Decimal `json:"currentPriceConverted,omitempty"`
	CostBasisConverted    *decimal.Decimal `json:"costBasisConverted,omitempty"`
	MarketValueConverted  *decimal.Decimal `json:"marketValueConverted,omitempty"`
	GainLossConverted     *decimal.Decimal `json:"gainLossConverted,omitempty"`
}

// Value computes the valuation of every holding. quotes is keyed by upper-case
// symbol. A holding without a quote is valued at cost, so its gain is zero.
func Value(holdings []core.Holding, quotes map[string]core.Quote, preferred string, rates currency.RateCache) []Valuation {
	out := make([]Valuation, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, value(h, quotes, preferred, rates))
	}
	return out
}

func value(h core.Holding, quotes map[string]core.Quote, preferred string, rates currency.RateCache) Valuation {
	v := Valuation{
		ID:                h.ID,
		AccountID:         h.AccountID,
		CategoryID:        h.CategoryID,
		Symbol:            h.Symbol,
		Quantity:          h.Quantity,
		AverageCost:       h.AverageCost,
		Currency:          core.NormalizeCurrency(h.Currency),
		PreferredCurrency: core.NormalizeCurrency(preferred),
		CostBasis:         h.Quantity.Mul(h.AverageCost),
	}

	if q, ok := quotes[h.LookupSymbol()]; ok {
		price, change, fetched := q.Price, q.ChangePercent, q.FetchedAt
		v.CurrentPrice = &price
		v.ChangePercent = &change
		v.FetchedAt = &fetched
		v.IsStale = q.IsStale
		v.MarketValue = h.Quantity.Mul(price)
	} else {
		v.MarketValue = v.CostBasis
	}
	v.GainLoss = v.MarketValue.Sub(v.CostBasis)
	v.GainLossPercent = core.Percent(v.GainLoss, v.CostBasis)

	if v.Currency != v.PreferredCurrency {
		conv := func(x decimal.Decimal) *decimal.Decimal {
			c := currency.Convert(x, v.Currency, v.PreferredCurrency, rates)
			return &c
		}
		v.CostBasisConverted = conv(v.CostBasis)
		v.MarketValueConverted = conv(v.MarketValue)
		gl := v.MarketValueConverted.Sub(*v.CostBasisConverted)
		v.GainLossConverted = &gl
		if v.CurrentPrice != nil {
			v.CurrentPriceConverted = conv(*v.CurrentPrice)
		}
	}
	return v
}

// costIn and marketIn return the preferred-currency value, whichever field carries it.
func (v Valuation) costIn() decimal.Decimal {
	if v.CostBasisConverted != nil {
		return *v.CostBasisConverted
	}
	return core.RoundMoney(v.CostBasis)
}

func (v Valuation) marketIn() decimal.Decimal {
	if v.MarketValueConverted != nil {
		return *v.MarketValueConverted
	}
	return core.RoundMoney(v.MarketValue)
}

// Totals is the whole portfolio in the preferred currency.
type Totals struct {
	CostBasis       decimal.Decimal `json:"costBasis"`
	MarketValue     decimal.Decimal `json:"marketValue"`
	GainLoss        decimal.Decimal `json:"gainLoss"`
	GainLossPercent decimal.Decimal `json:"gainLossPercent"`
	StaleCount      int             `json:"staleCount"`
	UnpricedCount   int             `json:"unpricedCount"`
	Currency        string          `json:"currency"`
}

func Total(vals []Valuation, preferred string) Totals {
	t := Totals{
		CostBasis:   decimal.Zero,
		MarketValue: decimal.Zero,
		Currency:    core.NormalizeCurrency(preferred),
	}
	for _, v := range vals {
		t.CostBasis = t.CostBasis.Add(v.costIn())
		t.MarketValue = t.MarketValue.Add(v.marketIn())
		if v.CurrentPrice == nil {
			t.UnpricedCount++
		} else if v.IsStale {
			t.StaleCount++
		}
	}
	t.GainLoss = t.MarketValue.Sub(t.CostBasis)
	t.GainLossPercent = core.Percent(t.GainLoss, t.CostBasis)
	return t
}

// Symbols returns the distinct lookup symbols of holdings, for one batched
// price request.
func Symbols(holdings []core.Holding) []string {
	seen := make(map[string]struct{}, len(holdings))
	out := make([]string, 0, len(holdings))
	for _, h := range holdings {
		s := h.LookupSymbol()
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Package google reads exchange rates and quotes from a Google spreadsheet.
//
// The spreadsheet is expected to hold two sheets fed by GOOGLEFINANCE
// formulas:
//
//	Rates:  From | To | Rate
//	Prices: Symbol | Price | Change % | Updated
//
// Each sheet is read with a single values request, throttled by a token
// bucket and cached for a short TTL, so a burst of reports costs one call.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/ports"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var (
	_ ports.RateSource  = (*Client)(nil)
	_ ports.PriceSource = (*Client)(nil)
)

// Config holds what New needs to reach the spreadsheet.
type Config struct {
	SpreadsheetID   string
	RatesSheet      string
	PricesSheet     string
	CredentialsJSON string
	CredentialsFile string

	// RequestsPerSecond caps Sheets API calls (default: 1)
	RequestsPerSecond float64
	// StaleAfter marks quotes older than this as stale (default: 15m)
	StaleAfter time.Duration
	// CacheTTL is how long a sheet read is reused (default: 1m)
	CacheTTL time.Duration
}

// valuesFunc reads a range and returns its rows.
type valuesFunc func(ctx context.Context, rng string) ([][]any, error)

type Client struct {
	get         valuesFunc
	ratesSheet  string
	pricesSheet string
	staleAfter  time.Duration
	limiter     *rate.Limiter
	cache       *gocache.Cache
	now         func() time.Time
	logger      *log.Logger
}

// New creates a client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	get := func(ctx context.Context, rng string) ([][]any, error) {
		resp, err := svc.Spreadsheets.Values.Get(cfg.SpreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return resp.Values, nil
	}
	return newClient(get, cfg, logger), nil
}

func newClient(get valuesFunc, cfg Config, logger *log.Logger) *Client {
	if cfg.RatesSheet == "" {
		cfg.RatesSheet = "Rates"
	}
	if cfg.PricesSheet == "" {
		cfg.PricesSheet = "Prices"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Minute
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Client{
		get:         get,
		ratesSheet:  cfg.RatesSheet,
		pricesSheet: cfg.PricesSheet,
		staleAfter:  cfg.StaleAfter,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cache:       gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		now:         time.Now,
		logger:      logger.WithComponent(log.ComponentSheets),
	}
}

// newSheetsService initializes a read-only Sheets service from service
// account credentials, inline JSON first, then the file, then
// GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credsJSON := strings.TrimSpace(cfg.CredentialsJSON)
	credsFile := strings.TrimSpace(cfg.CredentialsFile)
	if credsJSON == "" && credsFile == "" {
		credsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var raw []byte
	switch {
	case credsJSON != "":
		raw = []byte(credsJSON)
	case credsFile != "":
		b, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		raw = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	creds, err := googleauth.CredentialsFromJSON(ctx, raw, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	svc, err := gsheet.NewService(ctx, goption.WithTokenSource(oauth2.ReuseTokenSource(nil, creds.TokenSource)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// readSheet returns the rows of sheet!cols, from the cache when fresh.
func (c *Client) readSheet(ctx context.Context, sheet, cols string) ([][]any, error) {
	rng := fmt.Sprintf("%s!%s", sheet, cols)
	if v, ok := c.cache.Get(rng); ok {
		return v.([][]any), nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for sheets quota: %w", err)
	}
	start := c.now()
	rows, err := c.get(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	c.cache.SetDefault(rng, rows)
	c.logger.DebugContext(ctx, "Sheet read", "range", rng, "rows", len(rows), log.FieldDuration, c.now().Sub(start).Milliseconds())
	return rows, nil
}

// Invalidate drops cached sheet reads.
func (c *Client) Invalidate() {
	c.cache.Flush()
}

// LoadRates returns the pairs of the Rates sheet whose ends are both in currencies.
func (c *Client) LoadRates(ctx context.Context, currencies []string) (map[string]decimal.Decimal, error) {
	rows, err := c.readSheet(ctx, c.ratesSheet, "A:C")
	if err != nil {
		return nil, err
	}
	all := parseRates(rows)
	want := make(map[string]bool, len(currencies))
	for _, code := range currencies {
		want[core.NormalizeCurrency(code)] = true
	}
	out := make(map[string]decimal.Decimal, len(want))
	for key, r := range all {
		from, to, _ := strings.Cut(key, ":")
		if want[from] && want[to] {
			out[key] = r
		}
	}
	return out, nil
}

// LoadPrices returns quotes for the requested symbols found in the Prices sheet.
func (c *Client) LoadPrices(ctx context.Context, symbols []string) (map[string]core.Quote, error) {
	rows, err := c.readSheet(ctx, c.pricesSheet, "A:D")
	if err != nil {
		return nil, err
	}
	now := c.now()
	all := parsePrices(rows, now)
	out := make(map[string]core.Quote, len(symbols))
	for _, s := range symbols {
		s = core.NormalizeSymbol(s)
		q, ok := all[s]
		if !ok {
			continue
		}
		q.IsStale = c.staleAfter > 0 && now.Sub(q.FetchedAt) > c.staleAfter
		out[s] = q
	}
	c.logger.DebugContext(ctx, "Quotes loaded", log.FieldSymbols, len(symbols), log.FieldCount, len(out))
	return out, nil
}

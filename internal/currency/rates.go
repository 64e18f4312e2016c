// Package currency loads exchange rates once per report and converts amounts
// through the loaded cache.
package currency

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/ports"

	"github.com/shopspring/decimal"
)

// inversePrecision is the number of decimals kept when a rate is derived from
// its opposite pair.
const inversePrecision = 10

var ErrIncompleteRates = errors.New("incomplete exchange rates")

// RateCache maps "FROM:TO" to a rate. It is built for the full currency closure
// of one report and passed explicitly to every conversion.
type RateCache map[string]decimal.Decimal

// Key builds the "FROM:TO" cache key.
func Key(from, to string) string {
	return core.NormalizeCurrency(from) + ":" + core.NormalizeCurrency(to)
}

// Closure returns the sorted, upper-cased, de-duplicated set of non-empty codes.
func Closure(codes ...string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = core.NormalizeCurrency(c)
		if c == "" {
			continue
		}
		out = append(out, c)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Load fetches every pair among currencies with a single source call and
// returns a cache that is complete for that set. Identity pairs are always
// present. A pair the source only returns in the opposite direction is derived
// as its inverse. Any pair still missing fails the whole load.
func Load(ctx context.Context, src ports.RateSource, currencies ...string) (RateCache, error) {
	codes := Closure(currencies...)
	cache := make(RateCache, len(codes)*len(codes))
	for _, c := range codes {
		cache[Key(c, c)] = decimal.NewFromInt(1)
	}
	if len(codes) < 2 {
		return cache, nil
	}

	fetched, err := src.LoadRates(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("load rates: %w", err)
	}
	for k, v := range fetched {
		cache[strings.ToUpper(k)] = v
	}

	var missing []string
	for _, from := range codes {
		for _, to := range codes {
			if _, ok := cache[Key(from, to)]; ok {
				continue
			}
			if inv, ok := cache[Key(to, from)]; ok && !inv.IsZero() {
				cache[Key(from, to)] = decimal.NewFromInt(1).DivRound(inv, inversePrecision)
				continue
			}
			missing = append(missing, Key(from, to))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteRates, strings.Join(missing, ", "))
	}
	return cache, nil
}

// Rate returns the cached rate for the pair.
func (c RateCache) Rate(from, to string) (decimal.Decimal, bool) {
	r, ok := c[Key(from, to)]
	return r, ok
}

// Has reports whether code was part of the loaded closure.
func (c RateCache) Has(code string) bool {
	_, ok := c[Key(code, code)]
	return ok
}

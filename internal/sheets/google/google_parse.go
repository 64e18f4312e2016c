package google

import (
	"fmt"
	"strings"
	"time"

	"bilancio/internal/core"

	"github.com/shopspring/decimal"
)

// Layouts accepted in the Updated column, besides Sheets serial numbers.
var timestampLayouts = []string{
	time.RFC3339,
	time.DateTime,
	"2006-01-02 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"02/01/2006 15:04:05",
	time.DateOnly,
}

// sheetsEpoch is day zero of spreadsheet serial dates.
var sheetsEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// parseRates reads From | To | Rate rows. The header row and rows with an
// unknown currency or a non-positive rate are skipped.
func parseRates(values [][]any) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(values))
	for _, row := range values {
		cols := toStrings(row)
		if len(cols) < 3 {
			continue
		}
		from := core.NormalizeCurrency(cols[0])
		to := core.NormalizeCurrency(cols[1])
		if core.ValidateCurrency(from) != nil || core.ValidateCurrency(to) != nil {
			continue
		}
		r, ok := parseDecimal(row[2])
		if !ok || !r.IsPositive() {
			continue
		}
		out[from+":"+to] = r
	}
	return out
}

// parsePrices reads Symbol | Price | Change % | Updated rows. A row without a
// usable timestamp is taken as fetched at now, since the sheet recomputes
// its formulas on read.
func parsePrices(values [][]any, now time.Time) map[string]core.Quote {
	out := make(map[string]core.Quote, len(values))
	for _, row := range values {
		if len(row) < 2 {
			continue
		}
		sym := core.NormalizeSymbol(fmt.Sprint(row[0]))
		price, ok := parseDecimal(row[1])
		if sym == "" || !ok {
			continue
		}
		q := core.Quote{Price: price, FetchedAt: now}
		if len(row) > 2 {
			if ch, ok := parseDecimal(row[2]); ok {
				q.ChangePercent = ch
			}
		}
		if len(row) > 3 {
			if ts, ok := parseTimestamp(row[3]); ok {
				q.FetchedAt = ts
			}
		}
		out[sym] = q
	}
	return out
}

// parseDecimal accepts numbers and formatted strings such as "1,234.56",
// "1.234,56", "12,5", "€ 10" or "1.25%".
func parseDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	}
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			return r
		default:
			return -1
		}
	}, fmt.Sprint(v))
	if s == "" {
		return decimal.Zero, false
	}
	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseTimestamp(v any) (time.Time, bool) {
	if f, ok := v.(float64); ok {
		return sheetsEpoch.Add(time.Duration(f * 24 * float64(time.Hour))), true
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

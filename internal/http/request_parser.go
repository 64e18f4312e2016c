package http

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/dashboard"
)

const maxHistoryMonths = 36

var errMissingAccount = errors.New("missing account")

// ParseMonthParam reads the report month from query parameters.
//
// Accepted forms, in order of precedence:
//
//	month=2025-01
//	year=2025&month=1
//
// With no month at all, the month containing now is used.
func ParseMonthParam(query url.Values, now time.Time) (core.Month, error) {
	raw := strings.TrimSpace(query.Get("month"))
	if raw == "" {
		return core.MonthOf(now), nil
	}
	if strings.Contains(raw, "-") {
		m, err := core.ParseMonth(raw)
		if err != nil {
			return core.Month{}, fmt.Errorf("invalid month %q", raw)
		}
		return m, nil
	}

	month, err := strconv.Atoi(raw)
	if err != nil || month < 1 || month > 12 {
		return core.Month{}, fmt.Errorf("invalid month %q", raw)
	}
	year := now.Year()
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			return core.Month{}, fmt.Errorf("invalid year %q", v)
		}
		year = y
	}
	return core.NewMonth(year, month), nil
}

// ParseReportRequest builds a dashboard request from the query string of
// /api/dashboard.
func ParseReportRequest(query url.Values, now time.Time) (dashboard.Request, error) {
	account := sanitizeInput(query.Get("account"))
	if account == "" {
		return dashboard.Request{}, errMissingAccount
	}
	month, err := ParseMonthParam(query, now)
	if err != nil {
		return dashboard.Request{}, err
	}

	req := dashboard.Request{
		AccountID:         account,
		UserID:            sanitizeInput(query.Get("user")),
		Month:             month,
		PreferredCurrency: core.NormalizeCurrency(sanitizeInput(query.Get("currency"))),
	}
	if v := strings.TrimSpace(query.Get("history")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryMonths {
			return dashboard.Request{}, fmt.Errorf("invalid history %q: must be between 1 and %d", v, maxHistoryMonths)
		}
		req.HistoryMonths = n
	}
	return req, nil
}

// ParseHoldingsRequest reads /api/holdings parameters. Both are optional.
func ParseHoldingsRequest(query url.Values) dashboard.HoldingsRequest {
	return dashboard.HoldingsRequest{
		AccountID:         sanitizeInput(query.Get("account")),
		PreferredCurrency: core.NormalizeCurrency(sanitizeInput(query.Get("currency"))),
	}
}

package http

import (
	"encoding/json"
	"net/http"

	"bilancio/internal/core"
	"bilancio/internal/dashboard"

	"github.com/shopspring/decimal"
)

// AccountResponse is the wire form of an account in the switcher list.
type AccountResponse struct {
	ID                        string           `json:"id"`
	Name                      string           `json:"name"`
	Currency                  string           `json:"currency"`
	DefaultIncomeGoal         *decimal.Decimal `json:"defaultIncomeGoal,omitempty"`
	DefaultIncomeGoalCurrency string           `json:"defaultIncomeGoalCurrency,omitempty"`
}

// ReportResponse is a dashboard report plus display strings for the stat
// cards, formatted with each currency's symbol and fraction.
type ReportResponse struct {
	*dashboard.Report
	Accounts []AccountResponse `json:"accounts"`
	Display  map[string]string `json:"display"`
}

func NewReportResponse(r *dashboard.Report) ReportResponse {
	resp := ReportResponse{
		Report:   r,
		Accounts: make([]AccountResponse, 0, len(r.Accounts)),
		Display:  make(map[string]string, len(r.Stats)+3),
	}
	for _, a := range r.Accounts {
		resp.Accounts = append(resp.Accounts, AccountResponse{
			ID:                        a.ID,
			Name:                      a.Name,
			Currency:                  a.Currency,
			DefaultIncomeGoal:         a.DefaultIncomeGoal,
			DefaultIncomeGoalCurrency: a.DefaultIncomeGoalCurrency,
		})
	}
	for _, st := range r.Stats {
		resp.Display[st.Key] = core.FormatAmount(st.Value, st.Currency)
	}
	resp.Display["actual_income"] = core.FormatAmount(r.ActualIncome, r.PreferredCurrency)
	resp.Display["actual_expense"] = core.FormatAmount(r.ActualExpense, r.PreferredCurrency)
	resp.Display["income_goal"] = core.FormatAmount(r.MonthlyIncomeGoal.Amount, r.MonthlyIncomeGoal.Currency)
	return resp
}

// HoldingsResponse is a holdings report plus display strings for its totals.
type HoldingsResponse struct {
	*dashboard.HoldingsReport
	Display map[string]string `json:"display"`
}

func NewHoldingsResponse(r *dashboard.HoldingsReport) HoldingsResponse {
	cur := r.Totals.Currency
	return HoldingsResponse{
		HoldingsReport: r,
		Display: map[string]string{
			"cost_basis":   core.FormatAmount(r.Totals.CostBasis, cur),
			"market_value": core.FormatAmount(r.Totals.MarketValue, cur),
			"gain_loss":    core.FormatAmount(r.Totals.GainLoss, cur),
		},
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message, Status: status})
}

package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Invalidation reasons.
const (
	ReasonPricesChanged   = "prices_changed"
	ReasonRecordsImported = "records_imported"
	ReasonRatesChanged    = "rates_changed"
)

// ReportInvalidation tells report caches that derived views of an account are
// out of date. An empty AccountID invalidates every account.
type ReportInvalidation struct {
	AccountID string    `json:"accountId,omitempty"`
	Reason    string    `json:"reason"`
	Symbols   []string  `json:"symbols,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReportInvalidation(accountID, reason string, symbols ...string) *ReportInvalidation {
	return &ReportInvalidation{
		AccountID: accountID,
		Reason:    reason,
		Symbols:   symbols,
		Timestamp: time.Now().UTC(),
	}
}

// AllAccounts reports whether the message targets every account.
func (m *ReportInvalidation) AllAccounts() bool {
	return m.AccountID == ""
}

func (m *ReportInvalidation) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReportInvalidationFromJSON(data []byte) (*ReportInvalidation, error) {
	var msg ReportInvalidation
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Reason == "" {
		return nil, errors.New("invalidation without reason")
	}
	return &msg, nil
}

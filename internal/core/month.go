package core

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const monthKeyLayout = "2006-01"

var ErrInvalidMonth = errors.New("invalid month")

// Month is a first-of-month marker in UTC. It is the bucketing key shared by
// transactions, budgets and income goals.
type Month struct {
	time.Time
}

// NewMonth creates a Month from year and month (1-12).
func NewMonth(year, month int) Month {
	return Month{Time: time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)}
}

// MonthOf truncates t to the start of its month, in t's own calendar.
func MonthOf(t time.Time) Month {
	return NewMonth(t.Year(), int(t.Month()))
}

// ParseMonth accepts "2006-01" and "2006-01-02"; the day part is ignored.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(monthKeyLayout) {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return Month{}, ErrInvalidMonth
		}
		return MonthOf(t), nil
	}
	t, err := time.Parse(monthKeyLayout, s)
	if err != nil {
		return Month{}, ErrInvalidMonth
	}
	return MonthOf(t), nil
}

func (m Month) Validate() error {
	if m.IsZero() || m.Day() != 1 {
		return ErrInvalidMonth
	}
	return nil
}

// Key returns the "2006-01" representation.
func (m Month) Key() string {
	return m.Format(monthKeyLayout)
}

// Label returns a short display label such as "Jan 2025".
func (m Month) Label() string {
	return m.Format("Jan 2006")
}

// AddMonths moves the marker by n months (negative goes back).
func (m Month) AddMonths(n int) Month {
	return Month{Time: m.AddDate(0, n, 0)}
}

func (m Month) Previous() Month {
	return m.AddMonths(-1)
}

func (m Month) Equal(o Month) bool {
	return m.Time.Equal(o.Time)
}

// Within reports whether m lies in [from, to], both inclusive.
func (m Month) Within(from, to Month) bool {
	return !m.Before(from.Time) && !m.After(to.Time)
}

func (m Month) String() string {
	return m.Key()
}

func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.Key()), nil
}

// MarshalJSON shadows the promoted time.Time encoding so months travel as
// "2006-01" strings.
func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Key())
}

func (m *Month) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidMonth
	}
	return m.UnmarshalText([]byte(s))
}

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value stores a Month as its "2006-01" key.
func (m Month) Value() (driver.Value, error) {
	return m.Key(), nil
}

func (m *Month) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return m.UnmarshalText([]byte(v))
	case []byte:
		return m.UnmarshalText(v)
	case time.Time:
		*m = MonthOf(v)
		return nil
	default:
		return fmt.Errorf("scan month from %T", src)
	}
}

// Package db keeps the fetched balances and transaction history in an
// in-memory SQLite database for the lifetime of the app.
package db

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a confirmed movement as served by the history endpoint.
type Transaction struct {
	ID     string
	Title  string
	Date   string
	Amount string
	Type   string
	Icon   string
}

// IsIncome reports whether the movement adds money.
func (t Transaction) IsIncome() bool { return t.Type == "income" }

// ParsedDate returns the movement date when it is in a known layout.
func (t Transaction) ParsedDate() (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, t.Date); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Account is an account balance as served by the balance endpoint.
type Account struct {
	ID      string
	Name    string
	Balance decimal.Decimal
}

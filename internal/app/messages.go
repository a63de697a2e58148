package app

import (
	"github.com/shopspring/decimal"

	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/db"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/live"
)

// HistoryLoadedMsg carries the cached history after a refresh. On error
// the previous list stays on screen.
type HistoryLoadedMsg struct {
	Transactions []db.Transaction
	Err          error
}

// BalanceLoadedMsg carries the cached balances after a refresh.
type BalanceLoadedMsg struct {
	Accounts []db.Account
	Total    decimal.Decimal
	Err      error
}

// InvalidatedMsg is a server push saying cached data is stale.
type InvalidatedMsg struct {
	Event live.Event
}

// PushStateMsg reports a change in the push connection.
type PushStateMsg struct {
	State live.ConnectionState
}

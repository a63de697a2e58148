package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS transactions (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		title TEXT NOT NULL,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		type TEXT NOT NULL,
		icon TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		balance TEXT NOT NULL
	);
`

// Store caches ledger data. Nothing is written to disk.
type Store struct {
	db *sql.DB
}

// Open creates the in-memory database and its schema.
func Open() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceTransactions swaps the cached history for txs, keeping their order.
// Concurrent refreshes resolve last-write-wins.
func (s *Store) ReplaceTransactions(ctx context.Context, txs []Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}
	for i, t := range txs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (position, id, title, date, amount, type, icon)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, i, t.ID, t.Title, t.Date, t.Amount, t.Type, t.Icon); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}
	return tx.Commit()
}

// Transactions returns the cached history in server order.
func (s *Store) Transactions(ctx context.Context) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, date, amount, type, icon
		FROM transactions
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.Title, &t.Date, &t.Amount, &t.Type, &t.Icon); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// ReplaceAccounts swaps the cached balances for accounts.
func (s *Store) ReplaceAccounts(ctx context.Context, accounts []Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
		return fmt.Errorf("clear accounts: %w", err)
	}
	for i, a := range accounts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (position, id, name, balance)
			VALUES (?, ?, ?, ?)
		`, i, a.ID, a.Name, a.Balance.String()); err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
	}
	return tx.Commit()
}

// Accounts returns the cached balances in server order.
func (s *Store) Accounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, balance
		FROM accounts
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		var balance string
		if err := rows.Scan(&a.ID, &a.Name, &balance); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Balance, err = decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("parse balance %q: %w", balance, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// TotalBalance sums all cached account balances.
func (s *Store) TotalBalance(ctx context.Context) (decimal.Decimal, error) {
	accounts, err := s.Accounts(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total, nil
}

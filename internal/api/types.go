// Package api is the HTTP client for the assistant backend: chat,
// transcription, confirmed actions, balances and history.
package api

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/conversation"
)

// FlexString decodes JSON strings and numbers alike. The backend is not
// consistent about ids and display amounts.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

// Transaction is one item of GET /historial.
type Transaction struct {
	ID     FlexString `json:"id"`
	Title  string     `json:"title"`
	Date   string     `json:"date"`
	Amount FlexString `json:"amount"`
	Type   string     `json:"type"`
	Icon   string     `json:"icon"`
}

type historyResponse struct {
	Transactions []Transaction `json:"transactions"`
}

// Account is one item of GET /balance.
type Account struct {
	ID      FlexString      `json:"id"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

type balanceResponse struct {
	Accounts []Account `json:"accounts"`
}

type chatRequest struct {
	Messages []conversation.Message `json:"messages"`
}

type legacyChatRequest struct {
	Prompt string `json:"prompt"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type transcribeResponse struct {
	Text string `json:"text"`
}

type actionResponse struct {
	Status string `json:"status"`
}

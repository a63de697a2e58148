// Package devserver is a local stand-in for the assistant backend. It
// serves every endpoint the terminal client uses and pushes REFRESH on
// the websocket after each accepted action.
package devserver

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/api"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/conversation"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/draft"
)

// DefaultTranscript is returned by /transcribir unless overridden.
const DefaultTranscript = "I spent 12.50 on lunch"

const maxUpload = 10 << 20

type account struct {
	id      string
	name    string
	balance decimal.Decimal
}

// Server holds the fake ledger and the push hub.
type Server struct {
	router *mux.Router
	hub    *Hub
	log    *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	transactions []api.Transaction
	accounts     []account
	transcript   string
	actions      []draft.Submission
}

// Option configures a Server.
type Option func(*Server)

// WithTranscript fixes the text /transcribir returns.
func WithTranscript(text string) Option {
	return func(s *Server) { s.transcript = text }
}

// WithClock replaces time.Now for generated dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a server seeded with two accounts and no history.
func New(log *slog.Logger, opts ...Option) *Server {
	s := &Server{
		hub:        NewHub(log),
		log:        log,
		now:        time.Now,
		transcript: DefaultTranscript,
		accounts: []account{
			{id: uuid.NewString(), name: "Checking", balance: decimal.RequireFromString("1250.00")},
			{id: uuid.NewString(), name: "Savings", balance: decimal.RequireFromString("4300.00")},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.newRouter()
	return s
}

// Handler returns the HTTP handler for all endpoints.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the push hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Actions returns the accepted submissions in arrival order.
func (s *Server) Actions() []draft.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]draft.Submission(nil), s.actions...)
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods("GET")
	r.HandleFunc("/historial", s.handleHistory).Methods("GET")
	r.HandleFunc("/balance", s.handleBalance).Methods("GET")
	r.HandleFunc("/chat", s.handleChat).Methods("POST")
	r.HandleFunc("/transcribir", s.handleTranscribe).Methods("POST")
	r.HandleFunc("/accion", s.handleAction).Methods("POST")
	r.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	r.Handle("/ws", s.hub)
	return r
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	txs := make([]api.Transaction, len(s.transactions))
	// Newest first.
	for i, tx := range s.transactions {
		txs[len(txs)-1-i] = tx
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	accts := make([]api.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accts = append(accts, api.Account{ID: api.FlexString(a.id), Name: a.name, Balance: a.balance})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"accounts": accts})
}

type chatBody struct {
	Messages []conversation.Message `json:"messages"`
	Prompt   string                 `json:"prompt"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	prompt := body.Prompt
	for i := len(body.Messages) - 1; i >= 0 && prompt == ""; i-- {
		if body.Messages[i].Role == conversation.WireUser {
			prompt = body.Messages[i].Content
		}
	}
	if strings.TrimSpace(prompt) == "" {
		http.Error(w, "empty prompt", http.StatusBadRequest)
		return
	}

	reply := s.reply(prompt, len(body.Messages))
	s.log.Debug("chat", "prompt", prompt, "history", len(body.Messages))
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer f.Close()

	n, _ := io.Copy(io.Discard, f)
	if n == 0 {
		http.Error(w, "empty audio", http.StatusUnprocessableEntity)
		return
	}
	s.log.Debug("transcribe", "filename", hdr.Filename, "bytes", n)

	s.mu.Lock()
	text := s.transcript
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var sub draft.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(sub.Amount)
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(sub.Concept) == "" || (sub.Kind != draft.KindExpense && sub.Kind != draft.KindIncome) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
		return
	}

	s.apply(sub, amount)
	s.log.Info("action accepted", "draft_id", sub.DraftID, "kind", sub.Kind, "amount", sub.Amount)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	s.hub.Broadcast(RefreshMessage)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.hub.Broadcast(RefreshMessage)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apply(sub draft.Submission, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actions = append(s.actions, sub)

	sign, icon := "-", "cart"
	delta := amount.Neg()
	if sub.Kind == draft.KindIncome {
		sign, icon = "+", "cash"
		delta = amount
	}

	date := sub.Date
	if date == "" {
		date = s.now().Format(draft.DateLayout)
	}
	s.transactions = append(s.transactions, api.Transaction{
		ID:     api.FlexString(uuid.NewString()),
		Title:  sub.Concept,
		Date:   date,
		Amount: api.FlexString(sign + amount.StringFixed(2) + " €"),
		Type:   string(sub.Kind),
		Icon:   icon,
	})

	idx := 0
	for i, a := range s.accounts {
		if strings.EqualFold(a.name, sub.Account) {
			idx = i
			break
		}
	}
	s.accounts[idx].balance = s.accounts[idx].balance.Add(delta)
}

var (
	amountPattern  = regexp.MustCompile(`\d+(?:[.,]\d{1,2})?`)
	expensePattern = regexp.MustCompile(`(?i)(spent|paid|bought|gast|pagu|compr)`)
	incomePattern  = regexp.MustCompile(`(?i)(earned|received|salary|cobr|ingres|n[oó]mina)`)
)

// reply proposes a draft when the prompt reads like a movement with an
// amount, and otherwise answers with a short balance summary.
func (s *Server) reply(prompt string, historyLen int) string {
	amount := amountPattern.FindString(prompt)
	tag := ""
	switch {
	case amount == "":
	case incomePattern.MatchString(prompt):
		tag = draft.TagIncome
	case expensePattern.MatchString(prompt):
		tag = draft.TagExpense
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tag == "" {
		total := decimal.Zero
		for _, a := range s.accounts {
			total = total.Add(a.balance)
		}
		return fmt.Sprintf("You have %d accounts with a total of %s €. (%d messages so far)",
			len(s.accounts), total.StringFixed(2), historyLen)
	}

	concept := []rune(strings.TrimSpace(prompt))
	if len(concept) > 40 {
		concept = concept[:40]
	}
	payload := map[string]any{
		"type":     tag,
		"concept":  string(concept),
		"amount":   strings.ReplaceAll(amount, ",", "."),
		"date":     s.now().Format(draft.DateLayout),
		"account":  s.accounts[0].name,
		"category": draft.DefaultCategory,
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/api"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/conversation"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/db"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/draft"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/live"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/session"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusChat PanelFocus = iota
	FocusLedger
)

// Ledger fetches balances and history from the backend.
type Ledger interface {
	FetchHistory(ctx context.Context) ([]api.Transaction, error)
	FetchBalance(ctx context.Context) ([]api.Account, error)
}

// Push delivers invalidation events and connection state.
type Push interface {
	Events() <-chan live.Event
	States() <-chan live.ConnectionState
}

// Options are the collaborators of the root model.
type Options struct {
	Controller *session.Controller
	Ledger     Ledger
	Store      *db.Store
	Push       Push // optional
	UserName   string
	Log        *slog.Logger
}

// Model is the root bubbletea model for the jarvis TUI.
type Model struct {
	ctrl   *session.Controller
	ledger Ledger
	store  *db.Store
	push   Push
	log    *slog.Logger

	userName string

	// Ledger state, orthogonal to the conversation
	transactions   []db.Transaction
	accounts       []db.Account
	total          decimal.Decimal
	historyPending int // in-flight history fetches
	balancePending int // in-flight balance fetches
	historyLoaded  bool

	// Push channel
	pushState live.ConnectionState

	// UI state
	focusedPanel PanelFocus
	selectedTurn int // turn index of the selected draft, -1 when none
	width        int
	height       int
}

// New creates the root model with the compose field focused. Init triggers
// the first refresh.
func New(opts Options) Model {
	opts.Controller.Focus()
	return Model{
		ctrl:           opts.Controller,
		ledger:         opts.Ledger,
		store:          opts.Store,
		push:           opts.Push,
		log:            opts.Log,
		userName:       opts.UserName,
		historyPending: 1,
		balancePending: 1,
		pushState:      live.ConnectionState{Status: live.StatusConnecting},
		focusedPanel:   FocusChat,
		selectedTurn:   -1,
	}
}

// Init loads the ledger and starts listening for pushes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		historyCmd(m.ledger, m.store),
		balanceCmd(m.ledger, m.store),
		waitForInvalidation(m.push),
		waitForPushState(m.push),
	)
}

// historyCmd fetches history, writes it to the cache and reads it back.
func historyCmd(ledger Ledger, store *db.Store) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		txs, err := ledger.FetchHistory(ctx)
		if err != nil {
			return HistoryLoadedMsg{Err: err}
		}
		rows := make([]db.Transaction, 0, len(txs))
		for _, t := range txs {
			rows = append(rows, db.Transaction{
				ID:     string(t.ID),
				Title:  t.Title,
				Date:   t.Date,
				Amount: string(t.Amount),
				Type:   t.Type,
				Icon:   t.Icon,
			})
		}
		if err := store.ReplaceTransactions(ctx, rows); err != nil {
			return HistoryLoadedMsg{Err: err}
		}
		cached, err := store.Transactions(ctx)
		return HistoryLoadedMsg{Transactions: cached, Err: err}
	}
}

// balanceCmd fetches balances, writes them to the cache and reads them back.
func balanceCmd(ledger Ledger, store *db.Store) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		accts, err := ledger.FetchBalance(ctx)
		if err != nil {
			return BalanceLoadedMsg{Err: err}
		}
		rows := make([]db.Account, 0, len(accts))
		for _, a := range accts {
			rows = append(rows, db.Account{ID: string(a.ID), Name: a.Name, Balance: a.Balance})
		}
		if err := store.ReplaceAccounts(ctx, rows); err != nil {
			return BalanceLoadedMsg{Err: err}
		}
		cached, err := store.Accounts(ctx)
		if err != nil {
			return BalanceLoadedMsg{Err: err}
		}
		total, err := store.TotalBalance(ctx)
		return BalanceLoadedMsg{Accounts: cached, Total: total, Err: err}
	}
}

// waitForInvalidation blocks on the next push event. It is re-armed after
// every event.
func waitForInvalidation(p Push) tea.Cmd {
	if p == nil {
		return nil
	}
	events := p.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return InvalidatedMsg{Event: ev}
	}
}

// waitForPushState blocks on the next connection state change.
func waitForPushState(p Push) tea.Cmd {
	if p == nil {
		return nil
	}
	states := p.States()
	return func() tea.Msg {
		st, ok := <-states
		if !ok {
			return nil
		}
		return PushStateMsg{State: st}
	}
}

func (m Model) loadingHistory() bool { return m.historyPending > 0 }
func (m Model) loadingBalance() bool { return m.balancePending > 0 }

// refresh reloads history and balances. Concurrent refreshes are
// last-write-wins.
func (m *Model) refresh() tea.Cmd {
	m.historyPending++
	m.balancePending++
	return tea.Batch(historyCmd(m.ledger, m.store), balanceCmd(m.ledger, m.store))
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case HistoryLoadedMsg:
		m.historyPending = max(0, m.historyPending-1)
		if msg.Err != nil {
			m.log.Warn("history refresh failed", "error", msg.Err)
			return m, nil
		}
		m.transactions = msg.Transactions
		m.historyLoaded = true
		return m, nil

	case BalanceLoadedMsg:
		m.balancePending = max(0, m.balancePending-1)
		if msg.Err != nil {
			m.log.Warn("balance refresh failed", "error", msg.Err)
			return m, nil
		}
		m.accounts = msg.Accounts
		m.total = msg.Total
		return m, nil

	case InvalidatedMsg:
		m.log.Debug("ledger invalidated by push")
		cmd := m.refresh()
		return m, tea.Batch(cmd, waitForInvalidation(m.push))

	case PushStateMsg:
		m.pushState = msg.State
		return m, waitForPushState(m.push)

	case session.ReplyMsg:
		cmd := m.ctrl.Update(msg)
		if idx := m.draftTurns(); len(idx) > 0 {
			m.selectedTurn = idx[len(idx)-1]
		}
		return m, cmd
	}

	// Everything else belongs to the conversation.
	return m, m.ctrl.Update(msg)
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyCtrlC:
		return m.quit()

	case KeyTalk:
		if m.ctrl.Mode() == session.ModeRecording {
			return m, m.ctrl.ReleaseMic()
		}
		return m, m.ctrl.HoldMic()

	case KeyCancel:
		return m, m.ctrl.CancelRecording()

	case KeyTab:
		if m.focusedPanel == FocusChat {
			m.focusedPanel = FocusLedger
			m.ctrl.Blur()
		} else {
			m.focusedPanel = FocusChat
			m.ctrl.Focus()
		}
		return m, nil
	}

	if m.focusedPanel == FocusChat {
		return m.handleChatKey(msg)
	}
	return m.handleLedgerKey(msg)
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		return m, m.ctrl.Submit()
	case tea.KeyBackspace:
		if r := []rune(m.ctrl.Input()); len(r) > 0 {
			m.ctrl.SetInput(string(r[:len(r)-1]))
		}
	case tea.KeySpace:
		m.ctrl.SetInput(m.ctrl.Input() + " ")
	case tea.KeyRunes:
		m.ctrl.SetInput(m.ctrl.Input() + string(msg.Runes))
	}
	return m, nil
}

func (m Model) handleLedgerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit:
		return m.quit()

	case KeyRefresh:
		cmd := m.refresh()
		return m, cmd

	case KeyDown, KeyJ:
		m.moveSelection(1)

	case KeyUp, KeyK:
		m.moveSelection(-1)

	case KeyConfirm:
		if m.selectedTurn >= 0 {
			return m, m.ctrl.ConfirmDraft(m.selectedTurn)
		}

	case KeyMoreInstall, KeyLessInstall:
		step := 1
		if msg.String() == KeyLessInstall {
			step = -1
		}
		m.editSelected(func(d *draft.Draft) error {
			return d.SetInstallments(d.Fields().Installments + step)
		})

	case KeyMoreInterest, KeyLessInterest:
		step := decimal.NewFromInt(1)
		if msg.String() == KeyLessInterest {
			step = step.Neg()
		}
		m.editSelected(func(d *draft.Draft) error {
			return d.SetInterestRate(d.Fields().InterestRate.Add(step))
		})
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.ctrl.Dispose(context.Background())
	return m, tea.Quit
}

func (m *Model) editSelected(fn func(*draft.Draft) error) {
	if m.selectedTurn < 0 {
		return
	}
	if err := m.ctrl.EditDraft(m.selectedTurn, fn); err != nil {
		m.log.Debug("draft edit ignored", "turn", m.selectedTurn, "error", err)
	}
}

// draftTurns returns the indexes of assistant turns that carry drafts.
func (m Model) draftTurns() []int {
	var idx []int
	for i, t := range m.ctrl.Turns() {
		if t.Role != conversation.RoleAssistant {
			continue
		}
		if _, ok := m.ctrl.DraftAt(i); ok {
			idx = append(idx, i)
		}
	}
	return idx
}

func (m *Model) moveSelection(delta int) {
	idx := m.draftTurns()
	if len(idx) == 0 {
		m.selectedTurn = -1
		return
	}
	pos := len(idx) - 1
	for i, v := range idx {
		if v == m.selectedTurn {
			pos = i
			break
		}
	}
	pos = min(max(pos+delta, 0), len(idx)-1)
	m.selectedTurn = idx[pos]
}

func (m Model) contentHeight() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + dividers(2) + notice(1) + input(1) + footer(1) + padding
	reserved := 8
	return max(5, m.height-reserved)
}

func (m Model) ledgerPanelWidth() int {
	if m.width == 0 {
		return 36
	}
	return max(24, m.width*38/100)
}

func (m Model) chatPanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.ledgerPanelWidth()-1)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderMainContent())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	if n := m.ctrl.Notice(); n != "" {
		sections = append(sections, ui.ErrorStyle.Render("! ")+ui.ErrorTextStyle.Render(n))
	}
	sections = append(sections, m.renderInput())
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	greeting := "Hello!"
	if m.userName != "" {
		greeting = "Hello, " + m.userName + "!"
	}
	title := ui.TitleStyle.Render("JARVIS") + "  " + greeting

	balance := ui.DimStyle.Render("Total balance ") + ui.BalanceStyle.Render(formatMoney(m.total))
	if m.loadingBalance() && len(m.accounts) == 0 {
		balance = ui.DimStyle.Render("Total balance …")
	}
	return title + "   " + balance
}

func (m Model) renderStatusBar() string {
	var mode string
	switch m.ctrl.Mode() {
	case session.ModeRecording:
		mode = ui.RecordingDotStyle.Render("● REC")
	case session.ModeTranscribing:
		mode = ui.BusyStyle.Render("⟳ Transcribing")
	case session.ModeSending:
		mode = ui.BusyStyle.Render("⟳ Sending")
	default:
		mode = ui.IdleDotStyle.Render("○ Ready")
	}

	if m.push == nil {
		return mode
	}
	var push string
	switch {
	case m.pushState.Status == live.StatusOpen:
		push = ui.OnlineStyle.Render("● Live")
	case m.pushState.RetryCount == 0:
		push = ui.DimStyle.Render("Connecting...")
	default:
		push = ui.OfflineStyle.Render(fmt.Sprintf("Reconnecting... (retry %d)", m.pushState.RetryCount))
	}
	return mode + "  " + push
}

func (m Model) renderMainContent() string {
	ledgerW := m.ledgerPanelWidth()
	chatW := m.chatPanelWidth()
	contentH := m.contentHeight()

	ledgerLines := strings.Split(m.renderLedgerPanel(ledgerW, contentH), "\n")
	chatLines := strings.Split(m.renderChatPanel(chatW, contentH), "\n")

	divider := ui.DividerStyle.Render("│")
	rows := make([]string, 0, contentH)
	for i := 0; i < contentH; i++ {
		left := strings.Repeat(" ", ledgerW)
		if i < len(ledgerLines) {
			left = ledgerLines[i]
		}
		right := ""
		if i < len(chatLines) {
			right = chatLines[i]
		}
		rows = append(rows, left+divider+right)
	}
	return strings.Join(rows, "\n")
}

func (m Model) panelTitle(text string, panel PanelFocus) string {
	if m.focusedPanel == panel {
		return ui.PanelTitleActiveStyle.Render(text)
	}
	return ui.PanelTitleStyle.Render(text)
}

func (m Model) renderLedgerPanel(width, height int) string {
	var lines []string
	lines = append(lines, m.panelTitle("ACCOUNTS", FocusLedger))
	if len(m.accounts) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No accounts"))
	}
	for _, a := range m.accounts {
		amount := formatMoney(a.Balance)
		name := truncateToWidth("  "+a.Name, max(4, width-lipgloss.Width(amount)-1))
		lines = append(lines, padRight(name, width-lipgloss.Width(amount))+ui.BalanceStyle.Render(amount))
	}

	lines = append(lines, "")
	header := fmt.Sprintf("HISTORY (%d)", len(m.transactions))
	if m.loadingHistory() {
		header += " ⟳"
	}
	lines = append(lines, m.panelTitle(header, FocusLedger))

	switch {
	case !m.historyLoaded && m.loadingHistory():
		lines = append(lines, ui.DimStyle.Render("  Loading..."))
	case len(m.transactions) == 0:
		lines = append(lines, ui.DimStyle.Render("  No movements yet."))
	default:
		for _, tx := range m.transactions {
			style := ui.ExpenseStyle
			if tx.IsIncome() {
				style = ui.IncomeStyle
			}
			amount := tx.Amount
			title := truncateToWidth("  "+tx.Title, max(4, width-lipgloss.Width(amount)-1))
			lines = append(lines, padRight(title, width-lipgloss.Width(amount))+style.Render(amount))

			date := tx.Date
			if t, ok := tx.ParsedDate(); ok {
				date = longDate(t)
			}
			lines = append(lines, ui.DimStyle.Render(truncateToWidth("    "+date, width)))
		}
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderChatPanel(width, height int) string {
	lines := []string{m.panelTitle("CHAT", FocusChat)}
	bodyH := height - 1

	var body []string
	turns := m.ctrl.Turns()
	if len(turns) == 0 {
		body = append(body, "", ui.DimStyle.Render("  Ask about your finances, or press ctrl+r to talk."))
	}
	textW := max(10, width-4)
	for i, t := range turns {
		label := ui.UserLabelStyle.Render("You")
		if t.Role == conversation.RoleAssistant {
			label = ui.AssistantLabelStyle.Render("Jarvis")
		}
		body = append(body, " "+label+ui.DimStyle.Render(" "+t.CreatedAt.Format("15:04")))

		if d, ok := m.ctrl.DraftAt(i); ok {
			for _, l := range strings.Split(m.renderDraft(d, i == m.selectedTurn, textW), "\n") {
				body = append(body, "  "+l)
			}
			continue
		}
		for _, wl := range wrapText(t.Content, textW) {
			body = append(body, "  "+wl)
		}
	}
	if m.ctrl.Mode() == session.ModeSending {
		body = append(body, ui.DimStyle.Render("  Jarvis is typing..."))
	}

	// Follow the tail of the conversation.
	if len(body) > bodyH {
		body = body[len(body)-bodyH:]
	}
	lines = append(lines, body...)
	return strings.Join(lines, "\n")
}

func (m Model) renderDraft(d *draft.Draft, selected bool, width int) string {
	f := d.Fields()

	kind, amountStyle := "Expense", ui.ExpenseStyle
	if f.Kind == draft.KindIncome {
		kind, amountStyle = "Income", ui.IncomeStyle
	}

	lines := []string{
		ui.PanelTitleStyle.Render(kind + " · " + f.Concept),
		"Amount    " + amountStyle.Render(formatMoney(f.Amount)),
		"Date      " + longDate(f.Date),
	}
	if f.Account != "" {
		lines = append(lines, "Account   "+f.Account)
	}
	lines = append(lines, "Category  "+f.Category)
	if f.Notes != "" {
		lines = append(lines, "Notes     "+f.Notes)
	}
	if b := d.Breakdown(); b.Show() {
		lines = append(lines, fmt.Sprintf("Financed  %d × %s (%s%% interest, total %s)",
			b.Count, formatMoney(b.Monthly), b.RatePercent.String(), formatMoney(b.Total)))
	}

	if d.Confirmed() {
		lines = append(lines, ui.ConfirmedStyle.Render("✓ Confirmed"))
	} else if selected && m.focusedPanel == FocusLedger {
		lines = append(lines, ui.DimStyle.Render("c confirm  +/- installments  [/] interest"))
	} else {
		lines = append(lines, ui.DimStyle.Render("Pending confirmation"))
	}

	style := ui.DraftBoxStyle
	if selected {
		style = ui.DraftSelectedBoxStyle
	}
	return style.Width(max(20, width-2)).Render(strings.Join(lines, "\n"))
}

func (m Model) renderInput() string {
	prompt := ui.TitleStyle.Render("> ")
	input := m.ctrl.Input()
	if input != "" {
		cursor := ""
		if m.focusedPanel == FocusChat && m.ctrl.Focused() {
			cursor = "▌"
		}
		return prompt + ui.InputStyle.Render(input) + cursor
	}

	var hint string
	switch m.ctrl.Mode() {
	case session.ModeRecording:
		hint = "Listening... ctrl+r to send, esc to cancel"
	case session.ModeTranscribing:
		hint = "Transcribing..."
	case session.ModeSending:
		hint = "Waiting for Jarvis..."
	default:
		hint = "Type a message"
	}
	return prompt + ui.PlaceholderStyle.Render(hint)
}

func (m Model) renderFooter() string {
	var parts []string

	if m.ctrl.Mode() == session.ModeRecording {
		parts = append(parts, ui.FooterKeyStyle.Render("ctrl+r")+ui.FooterDescStyle.Render(" Send audio"))
		parts = append(parts, ui.FooterKeyStyle.Render("esc")+ui.FooterDescStyle.Render(" Cancel"))
	} else {
		parts = append(parts, ui.FooterKeyStyle.Render("ctrl+r")+ui.FooterDescStyle.Render(" Talk"))
	}
	parts = append(parts, ui.FooterKeyStyle.Render("Tab")+ui.FooterDescStyle.Render(" Focus"))
	if m.focusedPanel == FocusLedger {
		parts = append(parts, ui.FooterKeyStyle.Render("r")+ui.FooterDescStyle.Render(" Refresh"))
		parts = append(parts, ui.FooterKeyStyle.Render("j/k")+ui.FooterDescStyle.Render(" Drafts"))
		parts = append(parts, ui.FooterKeyStyle.Render("c")+ui.FooterDescStyle.Render(" Confirm"))
		parts = append(parts, ui.FooterKeyStyle.Render("q")+ui.FooterDescStyle.Render(" Quit"))
	} else {
		parts = append(parts, ui.FooterKeyStyle.Render("Enter")+ui.FooterDescStyle.Render(" Send"))
		parts = append(parts, ui.FooterKeyStyle.Render("ctrl+c")+ui.FooterDescStyle.Render(" Quit"))
	}

	return strings.Join(parts, "  ")
}

// Helpers

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2) + " €"
}

// longDate renders a date the way the history list shows it.
func longDate(t time.Time) string {
	return t.Format("Monday, 2 January 2006")
}

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if width > 1 && len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len([]rune(current))+1+len([]rune(word)) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

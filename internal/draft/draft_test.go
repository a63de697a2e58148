package draft

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func fixClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func TestParseFullDraft(t *testing.T) {
	content := `{"type":"draft_gasto","kind":"expense","concept":"Portátil","amount":1200,` +
		`"date":"2026-03-14","account":"Bancaria","category":"Tecnología","notes":"tienda",` +
		`"installments":12,"interest_rate":10}`

	d, ok := Parse(content)
	if !ok {
		t.Fatal("expected draft")
	}

	f := d.Fields()
	if f.Kind != KindExpense {
		t.Errorf("kind = %q, want %q", f.Kind, KindExpense)
	}
	if f.Concept != "Portátil" {
		t.Errorf("concept = %q", f.Concept)
	}
	if !f.Amount.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("amount = %s, want 1200", f.Amount)
	}
	if f.Date.Format(DateLayout) != "2026-03-14" {
		t.Errorf("date = %s", f.Date.Format(DateLayout))
	}
	if f.Account != "Bancaria" || f.Category != "Tecnología" || f.Notes != "tienda" {
		t.Errorf("account/category/notes = %q/%q/%q", f.Account, f.Category, f.Notes)
	}
	if f.Installments != 12 {
		t.Errorf("installments = %d, want 12", f.Installments)
	}
	if !f.InterestRate.Equal(decimal.NewFromInt(10)) {
		t.Errorf("interest = %s, want 10", f.InterestRate)
	}
	if d.ID() == "" {
		t.Error("draft id should be set")
	}
}

func TestParseDefaults(t *testing.T) {
	fixClock(t, time.Date(2026, 10, 16, 15, 30, 0, 0, time.Local))

	d, ok := Parse(`{"type":"draft_gasto"}`)
	if !ok {
		t.Fatal("expected draft for bare tag")
	}

	f := d.Fields()
	if f.Concept != DefaultConcept {
		t.Errorf("concept = %q, want %q", f.Concept, DefaultConcept)
	}
	if !f.Amount.IsZero() {
		t.Errorf("amount = %s, want 0", f.Amount)
	}
	if f.Category != DefaultCategory {
		t.Errorf("category = %q, want %q", f.Category, DefaultCategory)
	}
	if f.Installments != 1 {
		t.Errorf("installments = %d, want 1", f.Installments)
	}
	if !f.InterestRate.IsZero() {
		t.Errorf("interest = %s, want 0", f.InterestRate)
	}
	if f.Date.Format(DateLayout) != "2026-10-16" {
		t.Errorf("date = %s, want today", f.Date.Format(DateLayout))
	}
}

func TestParseIncomeTagAndAliases(t *testing.T) {
	d, ok := Parse(`{"type":"draft_ingreso","concepto":"Nómina","importe":"1.850,25","cuenta":"PayPal","cuotas":"3"}`)
	if !ok {
		t.Fatal("expected draft")
	}
	f := d.Fields()
	if f.Kind != KindIncome {
		t.Errorf("kind = %q, want income", f.Kind)
	}
	if f.Concept != "Nómina" || f.Account != "PayPal" {
		t.Errorf("concept/account = %q/%q", f.Concept, f.Account)
	}
	if f.Amount.StringFixed(2) != "1850.25" {
		t.Errorf("amount = %s, want 1850.25", f.Amount.StringFixed(2))
	}
	if f.Installments != 3 {
		t.Errorf("installments = %d, want 3", f.Installments)
	}
}

func TestParseCoercesBadNumbers(t *testing.T) {
	d, ok := Parse(`{"type":"draft_gasto","amount":"mucho","installments":0,"interest_rate":-5}`)
	if !ok {
		t.Fatal("expected draft")
	}
	f := d.Fields()
	if !f.Amount.IsZero() {
		t.Errorf("amount = %s, want 0", f.Amount)
	}
	if f.Installments != 1 {
		t.Errorf("installments = %d, want 1", f.Installments)
	}
	if !f.InterestRate.IsZero() {
		t.Errorf("interest = %s, want 0", f.InterestRate)
	}
}

func TestParseCodeFence(t *testing.T) {
	content := "```json\n{\"type\":\"draft_gasto\",\"amount\":9.99}\n```"
	d, ok := Parse(content)
	if !ok {
		t.Fatal("expected fenced draft")
	}
	if d.Fields().Amount.StringFixed(2) != "9.99" {
		t.Errorf("amount = %s", d.Fields().Amount)
	}
}

func TestParseRejects(t *testing.T) {
	inputs := []string{
		"",
		"Hola, ¿qué tal?",
		"He preparado un draft_gasto para ti.",
		`Aquí va: {"type":"draft_gasto","amount":3}`,
		`{"type":"draft_gasto","amount":3`,
		`{"type":"draft_transferencia","note":"draft_gasto"}`,
		`{"kind":"expense","concept":"draft_gasto"}`,
		`["draft_gasto"]`,
		`{"type":7,"x":"draft_gasto"}`,
		"```\n```",
		"```draft_gasto",
	}
	for _, in := range inputs {
		if d, ok := Parse(in); ok || d != nil {
			t.Errorf("Parse(%q) = %v, %v; want nil, false", in, d, ok)
		}
		if IsPayload(in) {
			t.Errorf("IsPayload(%q) = true, want false", in)
		}
	}
}

// Parse must return for arbitrary input without panicking.
func TestParseIsTotal(t *testing.T) {
	inputs := []string{
		`{"type":"draft_gasto","amount":1e400}`,
		`{"type":"draft_gasto","installments":99999999999999999999999}`,
		`{"type":"draft_gasto","installments":1e999999999}`,
		`{"type":"draft_gasto","amount":1e999999999}`,
		`{"type":"draft_gasto","amount":1e-999999999}`,
		`{"type":"draft_gasto","amount":"1e999999999"}`,
		`{"type":"draft_ingreso","interest_rate":1e999999999,"installments":-1e999999999}`,
		`{"type":"draft_gasto","date":12,"concept":null,"amount":null}`,
		`{"type":"draft_gasto","amount":{"nested":true},"notes":["a"]}`,
		"\x00\xffdraft_gasto{",
		`{"type":"draft_ingreso","interest_rate":"NaN","amount":"Inf"}`,
	}
	for _, in := range inputs {
		done := make(chan struct{})
		go func() {
			defer close(done)
			d, ok := Parse(in)
			if ok && d == nil {
				t.Errorf("Parse(%q) returned ok with nil draft", in)
				return
			}
			if !ok {
				return
			}
			if n := d.Fields().Installments; n < 1 || n > MaxInstallments {
				t.Errorf("Parse(%q) installments = %d", in, n)
			}
			d.Breakdown()
			if _, err := d.Confirm(); err != nil {
				t.Errorf("Parse(%q) Confirm: %v", in, err)
			}
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("Parse(%q) did not return", in)
		}
	}
}

func TestParseOutOfRangeNumbersUseDefaults(t *testing.T) {
	d, ok := Parse(`{"type":"draft_gasto","amount":1e999999999,"interest_rate":1e30,"installments":1e999999999}`)
	if !ok {
		t.Fatal("Parse rejected draft")
	}
	f := d.Fields()
	if !f.Amount.IsZero() {
		t.Errorf("amount = %s, want 0", f.Amount)
	}
	if !f.InterestRate.IsZero() {
		t.Errorf("interest = %s, want 0", f.InterestRate)
	}
	if f.Installments != 1 {
		t.Errorf("installments = %d, want 1", f.Installments)
	}

	sub, err := d.Confirm()
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if sub.Amount != "0.00" || sub.Total != "0.00" {
		t.Errorf("amount/total = %s/%s, want 0.00/0.00", sub.Amount, sub.Total)
	}
}

func TestParseClampsInstallments(t *testing.T) {
	d, _ := Parse(`{"type":"draft_gasto","amount":100,"installments":99999999999999999999999}`)
	if n := d.Fields().Installments; n != MaxInstallments {
		t.Errorf("installments = %d, want %d", n, MaxInstallments)
	}

	d, _ = Parse(`{"type":"draft_gasto","amount":100,"cuotas":"12"}`)
	if n := d.Fields().Installments; n != 12 {
		t.Errorf("installments = %d, want 12", n)
	}

	if err := d.SetInstallments(MaxInstallments + 5); err != nil {
		t.Fatalf("SetInstallments: %v", err)
	}
	if n := d.Fields().Installments; n != MaxInstallments {
		t.Errorf("installments after edit = %d, want %d", n, MaxInstallments)
	}
}

func TestConfirmAtMostOnce(t *testing.T) {
	d, _ := Parse(`{"type":"draft_gasto","concept":"Café","amount":"2.40","date":"2026-10-01"}`)

	sub, err := d.Confirm()
	if err != nil {
		t.Fatalf("first Confirm: %v", err)
	}
	if sub.DraftID != d.ID() {
		t.Errorf("draft_id = %q, want %q", sub.DraftID, d.ID())
	}
	if sub.Amount != "2.40" || sub.Total != "2.40" || sub.MonthlyPayment != "2.40" {
		t.Errorf("amount/total/monthly = %s/%s/%s", sub.Amount, sub.Total, sub.MonthlyPayment)
	}
	if sub.Date != "2026-10-01" {
		t.Errorf("date = %q", sub.Date)
	}

	if _, err := d.Confirm(); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Errorf("second Confirm err = %v, want ErrAlreadyConfirmed", err)
	}
	if err := d.SetAmount(decimal.NewFromInt(5)); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Errorf("edit after confirm err = %v, want ErrAlreadyConfirmed", err)
	}
}

func TestEditBeforeConfirm(t *testing.T) {
	d, _ := Parse(`{"type":"draft_gasto","amount":1200}`)

	if err := d.SetInstallments(0); err != nil {
		t.Fatalf("SetInstallments: %v", err)
	}
	if d.Fields().Installments != 1 {
		t.Errorf("installments = %d, want 1", d.Fields().Installments)
	}
	d.SetInstallments(12)
	d.SetInterestRate(decimal.NewFromInt(10))
	d.SetKind(KindIncome)

	sub, err := d.Confirm()
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if sub.Kind != KindIncome {
		t.Errorf("kind = %q", sub.Kind)
	}
	if sub.Total != "1320.00" || sub.MonthlyPayment != "110.00" {
		t.Errorf("total/monthly = %s/%s, want 1320.00/110.00", sub.Total, sub.MonthlyPayment)
	}
}

func TestSubmissionWireShape(t *testing.T) {
	d, _ := Parse(`{"type":"draft_gasto","concept":"Gym","amount":30,"date":"2026-01-02"}`)
	sub, _ := d.Confirm()

	data, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	json.Unmarshal(data, &raw)

	for _, key := range []string{"draft_id", "kind", "concept", "amount", "date", "account",
		"category", "notes", "installments", "interest_rate", "total", "monthly_payment"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("submission missing %q", key)
		}
	}
}

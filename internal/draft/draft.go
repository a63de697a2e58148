// Package draft extracts structured action drafts from assistant replies
// and computes the financed-payment figures shown before confirmation.
package draft

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrAlreadyConfirmed is returned when a confirmed draft is edited or
// confirmed again.
var ErrAlreadyConfirmed = errors.New("draft already confirmed")

// Kind is the direction of the proposed movement.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// Known discriminator values of a draft payload.
const (
	TagExpense = "draft_gasto"
	TagIncome  = "draft_ingreso"
)

// Defaults applied to fields the assistant left out.
const (
	DefaultConcept  = "New movement"
	DefaultCategory = "Other"
)

// MaxInstallments caps the number of payments of a financed draft.
const MaxInstallments = 360

// DateLayout is the wire format of draft and submission dates.
const DateLayout = "2006-01-02"

// Fields are the editable values of a draft.
type Fields struct {
	Kind         Kind
	Concept      string
	Amount       decimal.Decimal
	Date         time.Time
	Account      string
	Category     string
	Notes        string
	Installments int
	InterestRate decimal.Decimal
}

// Draft is an editable proposed transaction. A draft instance can be
// confirmed at most once; afterwards it is read-only.
type Draft struct {
	id        string
	tag       string
	fields    Fields
	confirmed bool
}

func newDraft(tag string, f Fields) *Draft {
	return &Draft{id: uuid.NewString(), tag: tag, fields: f}
}

// ID identifies this draft instance.
func (d *Draft) ID() string { return d.id }

// Tag returns the discriminator the draft was parsed from.
func (d *Draft) Tag() string { return d.tag }

// Fields returns a copy of the current values.
func (d *Draft) Fields() Fields { return d.fields }

// Confirmed reports whether Confirm has succeeded.
func (d *Draft) Confirmed() bool { return d.confirmed }

// Breakdown computes the installment figures for the current values.
func (d *Draft) Breakdown() Breakdown {
	return Installments(d.fields.Amount, d.fields.Installments, d.fields.InterestRate)
}

func (d *Draft) edit(fn func(f *Fields)) error {
	if d.confirmed {
		return ErrAlreadyConfirmed
	}
	fn(&d.fields)
	return nil
}

func (d *Draft) SetKind(k Kind) error {
	if k != KindIncome {
		k = KindExpense
	}
	return d.edit(func(f *Fields) { f.Kind = k })
}

func (d *Draft) SetConcept(s string) error {
	return d.edit(func(f *Fields) { f.Concept = s })
}

func (d *Draft) SetAmount(v decimal.Decimal) error {
	return d.edit(func(f *Fields) { f.Amount = v })
}

func (d *Draft) SetDate(t time.Time) error {
	return d.edit(func(f *Fields) { f.Date = t })
}

func (d *Draft) SetAccount(s string) error {
	return d.edit(func(f *Fields) { f.Account = s })
}

func (d *Draft) SetCategory(s string) error {
	return d.edit(func(f *Fields) { f.Category = s })
}

func (d *Draft) SetNotes(s string) error {
	return d.edit(func(f *Fields) { f.Notes = s })
}

// SetInstallments sets the number of payments, clamped to
// [1, MaxInstallments].
func (d *Draft) SetInstallments(n int) error {
	return d.edit(func(f *Fields) { f.Installments = min(max(1, n), MaxInstallments) })
}

// SetInterestRate sets the total interest in percent; negatives become 0.
func (d *Draft) SetInterestRate(v decimal.Decimal) error {
	if v.IsNegative() {
		v = decimal.Zero
	}
	return d.edit(func(f *Fields) { f.InterestRate = v })
}

// Submission is the immutable payload sent to the action endpoint.
type Submission struct {
	DraftID        string `json:"draft_id"`
	Kind           Kind   `json:"kind"`
	Concept        string `json:"concept"`
	Amount         string `json:"amount"`
	Date           string `json:"date"`
	Account        string `json:"account"`
	Category       string `json:"category"`
	Notes          string `json:"notes"`
	Installments   int    `json:"installments"`
	InterestRate   string `json:"interest_rate"`
	Total          string `json:"total"`
	MonthlyPayment string `json:"monthly_payment"`
}

// Confirm freezes the draft and returns its submission. The second call on
// the same instance fails with ErrAlreadyConfirmed.
func (d *Draft) Confirm() (Submission, error) {
	if d.confirmed {
		return Submission{}, ErrAlreadyConfirmed
	}
	d.confirmed = true

	f := d.fields
	b := d.Breakdown()
	return Submission{
		DraftID:        d.id,
		Kind:           f.Kind,
		Concept:        f.Concept,
		Amount:         f.Amount.StringFixed(2),
		Date:           f.Date.Format(DateLayout),
		Account:        f.Account,
		Category:       f.Category,
		Notes:          f.Notes,
		Installments:   b.Count,
		InterestRate:   b.RatePercent.String(),
		Total:          b.Total.StringFixed(2),
		MonthlyPayment: b.Monthly.StringFixed(2),
	}, nil
}

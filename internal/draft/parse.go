package draft

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/shopspring/decimal"
)

var now = time.Now

// Field aliases accepted from the assistant, first match wins.
var (
	kindKeys         = []string{"kind", "tipo"}
	conceptKeys      = []string{"concept", "concepto"}
	amountKeys       = []string{"amount", "importe", "cantidad"}
	dateKeys         = []string{"date", "fecha"}
	accountKeys      = []string{"account", "cuenta"}
	categoryKeys     = []string{"category", "categoria"}
	notesKeys        = []string{"notes", "notas"}
	installmentsKeys = []string{"installments", "cuotas"}
	interestKeys     = []string{"interest_rate", "interes"}
)

// Parse returns the draft embedded in an assistant turn. It never fails:
// content that is not a complete JSON object tagged with a known draft type
// yields (nil, false) and renders as plain text.
func Parse(content string) (*Draft, bool) {
	data, tag, ok := payload(content)
	if !ok {
		return nil, false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}

	f := Fields{
		Kind:         kindFor(tag),
		Concept:      DefaultConcept,
		Amount:       decimal.Zero,
		Date:         today(),
		Category:     DefaultCategory,
		Installments: 1,
		InterestRate: decimal.Zero,
	}

	if s, ok := stringField(raw, kindKeys); ok {
		f.Kind = parseKind(s, f.Kind)
	}
	if s, ok := stringField(raw, conceptKeys); ok && s != "" {
		f.Concept = s
	}
	if v, ok := decimalField(raw, amountKeys); ok {
		f.Amount = v
	}
	if s, ok := stringField(raw, dateKeys); ok {
		if t, ok := parseDate(s); ok {
			f.Date = t
		}
	}
	if s, ok := stringField(raw, accountKeys); ok {
		f.Account = s
	}
	if s, ok := stringField(raw, categoryKeys); ok && s != "" {
		f.Category = s
	}
	if s, ok := stringField(raw, notesKeys); ok {
		f.Notes = s
	}
	if v, ok := decimalField(raw, installmentsKeys); ok {
		f.Installments = clampInstallments(v)
	}
	if v, ok := decimalField(raw, interestKeys); ok && !v.IsNegative() {
		f.InterestRate = v
	}

	return newDraft(tag, f), true
}

// IsPayload reports whether content is a draft payload. Used to keep the
// assistant's own structured output out of the chat history.
func IsPayload(content string) bool {
	_, _, ok := payload(content)
	return ok
}

// payload strips code fences and confirms the discriminator. The substring
// check is only a fast path; classification is decided by the decoded
// "type" field.
func payload(content string) ([]byte, string, bool) {
	if !strings.Contains(content, TagExpense) && !strings.Contains(content, TagIncome) {
		return nil, "", false
	}

	data := []byte(stripFences(content))
	if len(data) == 0 || data[0] != '{' || !json.Valid(data) {
		return nil, "", false
	}

	tag, err := jsonparser.GetString(data, "type")
	if err != nil {
		return nil, "", false
	}
	if tag != TagExpense && tag != TagIncome {
		return nil, "", false
	}
	return data, tag, true
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func kindFor(tag string) Kind {
	if tag == TagIncome {
		return KindIncome
	}
	return KindExpense
}

func parseKind(s string, def Kind) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expense", "gasto":
		return KindExpense
	case "income", "ingreso":
		return KindIncome
	}
	return def
}

func stringField(raw map[string]json.RawMessage, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			// Numbers and other scalars are still usable as text.
			s = strings.Trim(string(bytes.TrimSpace(v)), `"`)
			if s == "null" {
				return "", false
			}
		}
		return strings.TrimSpace(s), true
	}
	return "", false
}

// decimalField accepts JSON numbers and numeric strings such as "12,50" or
// "12.50 €". Anything else is reported as absent so the default applies.
func decimalField(raw map[string]json.RawMessage, keys []string) (decimal.Decimal, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		var num json.Number
		if err := json.Unmarshal(v, &num); err == nil {
			d, err := decimal.NewFromString(num.String())
			if err != nil || !inRange(d) {
				return decimal.Zero, false
			}
			return d, true
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return decimal.Zero, false
		}
		d, ok := parseLooseDecimal(s)
		if !ok || !inRange(d) {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}

// Bounds for numbers read from a draft. Larger exponents make decimal
// arithmetic allocate 10^exp, so such values are treated as absent.
const (
	maxExponent = 18
	minExponent = -18
)

var maxMagnitude = decimal.New(1, 15)

// inRange must check the exponent before comparing: Cmp rescales both
// operands to a common exponent.
func inRange(d decimal.Decimal) bool {
	if exp := d.Exponent(); exp > maxExponent || exp < minExponent {
		return false
	}
	return !d.Abs().GreaterThan(maxMagnitude)
}

func clampInstallments(v decimal.Decimal) int {
	if v.GreaterThan(decimal.NewFromInt(MaxInstallments)) {
		return MaxInstallments
	}
	return max(1, int(v.IntPart()))
}

func parseLooseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "€$ %")
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
		}
		s = strings.ReplaceAll(s, ",", ".")
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	return d, err == nil
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{DateLayout, time.RFC3339, "02/01/2006"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func today() time.Time {
	y, m, d := now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

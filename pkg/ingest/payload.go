package ingest

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"

	"github.com/confluencr/webhookd/pkg/canonicalize"
	"github.com/confluencr/webhookd/pkg/money"
)

const maxFieldLen = 128

// Payload is a validated webhook body: the five business fields after
// normalization.
type Payload struct {
	TransactionID      string
	SourceAccount      string
	DestinationAccount string
	Amount             money.Amount
	Currency           string
}

// ValidationError reports why a payload was rejected. It maps to a 422
// and never reaches the Store.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid payload: " + strings.Join(e.Issues, "; ")
}

// Normalized returns the payload with identifiers trimmed and the
// currency trimmed and uppercased. Recognized ISO 4217 codes are replaced
// by their canonical unit string; unknown 3-letter codes pass through
// unchanged.
func (p Payload) Normalized() Payload {
	cur := strings.ToUpper(strings.TrimSpace(p.Currency))
	if unit, err := currency.ParseISO(cur); err == nil {
		cur = unit.String()
	}
	return Payload{
		TransactionID:      strings.TrimSpace(p.TransactionID),
		SourceAccount:      strings.TrimSpace(p.SourceAccount),
		DestinationAccount: strings.TrimSpace(p.DestinationAccount),
		Amount:             p.Amount,
		Currency:           cur,
	}
}

// Validate checks the ingest constraints on a normalized payload:
// identifiers nonempty and at most 128 chars, amount strictly positive,
// currency exactly three chars.
func (p Payload) Validate() error {
	var issues []string
	checkID := func(name, v string) {
		if v == "" {
			issues = append(issues, name+" must not be empty")
		} else if len(v) > maxFieldLen {
			issues = append(issues, fmt.Sprintf("%s exceeds %d characters", name, maxFieldLen))
		}
	}
	checkID("transaction_id", p.TransactionID)
	checkID("source_account", p.SourceAccount)
	checkID("destination_account", p.DestinationAccount)
	if !p.Amount.IsPositive() {
		issues = append(issues, "amount must be greater than zero")
	}
	if len(p.Currency) != 3 {
		issues = append(issues, "currency must be exactly 3 characters")
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// Hash returns the canonical payload fingerprint.
func (p Payload) Hash() (string, error) {
	return canonicalize.Normalize(
		p.TransactionID, p.SourceAccount, p.DestinationAccount, p.Amount, p.Currency,
	).Hash()
}

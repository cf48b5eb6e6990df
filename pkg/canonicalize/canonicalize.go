// Package canonicalize produces the canonical serialization of a webhook
// payload and its SHA-256 fingerprint. The canonical form is the contract:
// equivalent inputs (whitespace-padded strings, lowercase currency, any
// numeric rendering of the amount) must hash identically so that true
// duplicates can be told apart from conflicting ones.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/confluencr/webhookd/pkg/money"
)

// Payload is the fixed, normalized mapping of the five business fields.
// Field order in the struct is irrelevant: serialization sorts keys.
type Payload struct {
	TransactionID      string `json:"transaction_id"`
	SourceAccount      string `json:"source_account"`
	DestinationAccount string `json:"destination_account"`
	Amount             string `json:"amount"`
	Currency           string `json:"currency"`
}

// Normalize builds the canonical payload: identifiers trimmed of
// surrounding whitespace, amount rendered with exactly two fractional
// digits, currency uppercased and trimmed.
func Normalize(transactionID, sourceAccount, destinationAccount string, amount money.Amount, currency string) Payload {
	return Payload{
		TransactionID:      strings.TrimSpace(transactionID),
		SourceAccount:      strings.TrimSpace(sourceAccount),
		DestinationAccount: strings.TrimSpace(destinationAccount),
		Amount:             amount.String(),
		Currency:           strings.ToUpper(strings.TrimSpace(currency)),
	}
}

// Serialize returns the RFC 8785 canonical JSON bytes of the payload:
// lexicographically sorted keys, compact separators, no HTML escaping.
func (p Payload) Serialize() ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: transform: %w", err)
	}
	return canonical, nil
}

// Hash returns the lowercase 64-hex SHA-256 digest of the canonical
// serialization.
func (p Payload) Hash() (string, error) {
	b, err := p.Serialize()
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

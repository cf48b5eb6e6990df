package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confluencr/webhookd/pkg/money"
)

func mustAmount(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := money.Parse(s)
	require.NoError(t, err)
	return a
}

func TestSerializeSortsKeysCompact(t *testing.T) {
	p := Normalize("txn_ack_1", "acc_user_789", "acc_merchant_456", mustAmount(t, "1500"), "INR")
	b, err := p.Serialize()
	require.NoError(t, err)
	assert.Equal(t,
		`{"amount":"1500.00","currency":"INR","destination_account":"acc_merchant_456","source_account":"acc_user_789","transaction_id":"txn_ack_1"}`,
		string(b))
}

func TestHashGoldenVector(t *testing.T) {
	p := Normalize("txn_ack_1", "acc_user_789", "acc_merchant_456", mustAmount(t, "1500"), "INR")
	h, err := p.Hash()
	require.NoError(t, err)
	assert.Equal(t, "cd554bec1f1f7abf2ac18a659eccd7b42b9f995ef1fecbf698fb17f19f1ace51", h)
}

func TestHashStableUnderEquivalentInputs(t *testing.T) {
	base := Normalize("txn_1", "acc_a", "acc_b", mustAmount(t, "1500"), "INR")
	want, err := base.Hash()
	require.NoError(t, err)

	variants := []Payload{
		Normalize("  txn_1  ", "acc_a", "acc_b", mustAmount(t, "1500"), "INR"),
		Normalize("txn_1", " acc_a ", "\tacc_b\n", mustAmount(t, "1500"), "INR"),
		Normalize("txn_1", "acc_a", "acc_b", mustAmount(t, "1500.0"), "inr"),
		Normalize("txn_1", "acc_a", "acc_b", mustAmount(t, "1500.00"), " inr "),
	}
	for i, v := range variants {
		got, err := v.Hash()
		require.NoError(t, err)
		assert.Equal(t, want, got, "variant %d", i)
	}
}

func TestHashDiffersOnBusinessFieldChange(t *testing.T) {
	a := Normalize("txn_1", "acc_a", "acc_b", mustAmount(t, "1500"), "INR")
	b := Normalize("txn_1", "acc_a", "acc_b", mustAmount(t, "1600"), "INR")
	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestHashIdempotentOnCanonicalInput(t *testing.T) {
	// Canonicalizing an already-canonical payload is a fixed point.
	p := Normalize("txn_1", "acc_a", "acc_b", mustAmount(t, "42.10"), "USD")
	again := Normalize(p.TransactionID, p.SourceAccount, p.DestinationAccount, mustAmount(t, p.Amount), p.Currency)
	h1, err := p.Hash()
	require.NoError(t, err)
	h2, err := again.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepresentations(t *testing.T) {
	// 1500, 1500.0 and 1500.00 must all parse to the same amount.
	for _, in := range []string{"1500", "1500.0", "1500.00", "1.5e3", " 1500 "} {
		a, err := Parse(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, Amount(150000), a, "input %q", in)
	}
}

func TestParseFractional(t *testing.T) {
	cases := map[string]Amount{
		"0.01":     1,
		"0.1":      10,
		"99.99":    9999,
		"1500.5":   150050,
		"1500.005": 150001, // rounds half-up
		"1500.004": 150000,
	}
	for in, want := range cases {
		a, err := Parse(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, a, "input %q", in)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "--1"} {
		_, err := Parse(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "1500.00", Amount(150000).String())
	assert.Equal(t, "0.05", Amount(5).String())
	assert.Equal(t, "1500.50", Amount(150050).String())
	assert.Equal(t, "-12.34", Amount(-1234).String())
}

func TestIsPositive(t *testing.T) {
	assert.True(t, Amount(1).IsPositive())
	assert.False(t, Amount(0).IsPositive())
	assert.False(t, Amount(-1).IsPositive())
}

func TestJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(Amount(150000))
	require.NoError(t, err)
	assert.Equal(t, "1500.00", string(b))

	var a Amount
	require.NoError(t, json.Unmarshal([]byte("1500"), &a))
	assert.Equal(t, Amount(150000), a)
	require.NoError(t, json.Unmarshal([]byte(`"1500.00"`), &a))
	assert.Equal(t, Amount(150000), a)
}

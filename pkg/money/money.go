// Package money provides fixed-point monetary amounts with two fractional
// digits. Amounts are held as integer minor units to avoid floating point
// errors.
package money

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Amount is a scale-2 fixed-point value in minor units (paise, cents).
// An Amount of 150000 renders as "1500.00".
type Amount int64

var hundred = big.NewInt(100)

// Parse converts a decimal string into an Amount. It accepts plain
// integers ("1500"), one or two fractional digits ("1500.0", "1500.00")
// and exponent notation ("1.5e3"). More than two fractional digits are
// rounded half-up.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty amount")
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return 0, fmt.Errorf("money: invalid amount %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt(hundred))

	// Round half-up to an integer count of minor units.
	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	neg := num.Sign() < 0
	num.Abs(num)

	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Mul(rem, big.NewInt(2)).Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	if neg {
		q.Neg(q)
	}
	if !q.IsInt64() {
		return 0, fmt.Errorf("money: amount %q out of range", s)
	}
	return Amount(q.Int64()), nil
}

// ParseNumber converts a JSON number into an Amount.
func ParseNumber(n json.Number) (Amount, error) {
	return Parse(n.String())
}

// String renders the amount with exactly two fractional digits and no
// exponent, e.g. "1500.00". This is the canonical representation used for
// payload hashing and persistence.
func (a Amount) String() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }

// MarshalJSON renders the amount as a JSON number with two fractional
// digits.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Package money implements exact arithmetic for monetary minor-unit amounts
// and exchange rates. Amounts are unsigned and may exceed 2^64 (wei-scale
// ETH/STQ transfers), so they're backed by math/big.Int rather than any
// fixed-width integer; rates are shopspring/decimal.Decimal so they never
// lose precision to a binary float. Nothing here touches I/O.
package money

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Amount is an unsigned integer number of minor units (wei, satoshi, cents —
// whichever the currency tag on the caller's side implies).
type Amount struct {
	v *big.Int
}

// Zero is the additive identity.
func Zero() Amount { return Amount{v: big.NewInt(0)} }

// FromInt64 builds an Amount from a non-negative int64 (cents-scale fiat
// amounts fit comfortably here).
func FromInt64(v int64) (Amount, error) {
	if v < 0 {
		return Amount{}, fmt.Errorf("money: negative amount %d", v)
	}
	return Amount{v: big.NewInt(v)}, nil
}

// Parse reads an unsigned base-10 integer string (the wire format for
// amount_captured in both directions) into an Amount.
func Parse(s string) (Amount, error) {
	bi, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("money: invalid integer amount %q", s)
	}
	if bi.Sign() < 0 {
		return Amount{}, fmt.Errorf("money: negative amount %q", s)
	}
	return Amount{v: bi}, nil
}

// MustFromInt64 panics on error; for test fixtures and constants only.
func MustFromInt64(v int64) Amount {
	a, err := FromInt64(v)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return a.v
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), b.big())}
}

// Sub returns a - b, or an error if the result would be negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	r := new(big.Int).Sub(a.big(), b.big())
	if r.Sign() < 0 {
		return Amount{}, fmt.Errorf("money: subtraction underflow %s - %s", a, b)
	}
	return Amount{v: r}, nil
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int { return a.big().Cmp(b.big()) }

// IsZero reports whether a is exactly zero.
func (a Amount) IsZero() bool { return a.big().Sign() == 0 }

// String renders the unsigned base-10 integer, the wire format.
func (a Amount) String() string { return a.big().String() }

// MarshalJSON encodes Amount as a JSON string, matching the
// amountCaptured: string-decimal wire contract.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes a JSON string amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Decimal returns the Amount as a decimal.Decimal (exact, since big.Int is
// exact), for interop with rate arithmetic.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.big(), 0)
}

// Int64 narrows the Amount to an int64, failing if it doesn't fit. Card-PSP
// wire amounts are fiat-scale and always fit; crypto wei-scale amounts
// generally don't and must stay on the big.Int path.
func (a Amount) Int64() (int64, error) {
	if !a.big().IsInt64() {
		return 0, fmt.Errorf("money: amount %s does not fit in int64", a)
	}
	return a.big().Int64(), nil
}

// ToSuper converts a minor-unit amount to super-units (whole coins / whole
// currency units) given the currency's decimal places, e.g. 18 for ETH/STQ
// wei, 2 for fiat cents.
func (a Amount) ToSuper(decimalPlaces int32) decimal.Decimal {
	divisor := decimal.New(1, decimalPlaces)
	return a.Decimal().DivRound(divisor, decimalPlaces+8)
}

// FromSuper converts a super-units decimal back to a minor-unit Amount,
// rounding half-to-even. If exact is true, the conversion fails loudly when
// the super-units value doesn't divide evenly into minor units (used for
// card-PSP amounts, which must be exact per spec).
func FromSuper(super decimal.Decimal, decimalPlaces int32, exact bool) (Amount, error) {
	if super.Sign() < 0 {
		return Amount{}, fmt.Errorf("money: negative super-unit amount %s", super)
	}
	multiplier := decimal.New(1, decimalPlaces)
	scaled := super.Mul(multiplier)
	rounded := scaled.RoundBank(0)
	if exact && !scaled.Equal(rounded) {
		return Amount{}, fmt.Errorf("money: %s does not convert exactly to an integer minor-unit amount", super)
	}
	return Amount{v: rounded.BigInt()}, nil
}

package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyphera/paymentd/internal/money"
)

func TestParseLargeWeiAmount(t *testing.T) {
	// 100 STQ at 18 decimals, well beyond 2^64.
	a, err := money.Parse("100000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000000", a.String())

	super := a.ToSuper(18)
	assert.True(t, super.Equal(decimal.NewFromInt(100)), "got %s", super)
}

func TestParseRejectsNegative(t *testing.T) {
	_, err := money.Parse("-5")
	assert.Error(t, err)
}

func TestAddAndSub(t *testing.T) {
	a := money.MustFromInt64(700)
	b := money.MustFromInt64(300)
	sum := a.Add(b)
	assert.Equal(t, "1000", sum.String())

	diff, err := b.Sub(a)
	assert.Error(t, err, "subtraction underflow must be rejected")

	diff, err = a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, "400", diff.String())
}

func TestFromSuperExactRequired(t *testing.T) {
	// 10.005 at 2 decimal places doesn't convert exactly.
	super := decimal.RequireFromString("10.005")
	_, err := money.FromSuper(super, 2, true)
	assert.Error(t, err)

	a, err := money.FromSuper(super, 2, false)
	require.NoError(t, err)
	// round-half-to-even at the 2nd decimal: 10.005 -> 10.00
	assert.Equal(t, "1000", a.String())
}

func TestConvertBySellerRejectsNonPositiveRate(t *testing.T) {
	_, err := money.ConvertBySeller(decimal.NewFromInt(10), decimal.Zero)
	assert.Error(t, err)
}

func TestConvertBySellerDummyRate(t *testing.T) {
	out, err := money.ConvertBySeller(decimal.NewFromInt(10), money.DummyRate())
	require.NoError(t, err)
	assert.True(t, out.Equal(decimal.NewFromInt(10)))
}

func TestJSONRoundTrip(t *testing.T) {
	a := money.MustFromInt64(123456789)
	data, err := a.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"123456789"`, string(data))

	var back money.Amount
	require.NoError(t, back.UnmarshalJSON(data))
	assert.Equal(t, 0, a.Cmp(back))
}

package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ratePrecision is the number of fractional digits kept when dividing by a
// rate; generous enough that downstream rounding to minor units never loses
// a meaningful digit.
const ratePrecision = 24

// ConvertBySeller divides a seller-side super-units amount by an exchange
// rate to obtain the equivalent buyer-side super-units amount:
// buyer_super_units = seller_super_units / rate.
func ConvertBySeller(sellerSuper decimal.Decimal, rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("money: rate must be > 0, got %s", rate)
	}
	return sellerSuper.DivRound(rate, ratePrecision), nil
}

// DummyRate is the 1:1 rate used whenever buyer and seller currency coincide.
func DummyRate() decimal.Decimal { return decimal.NewFromInt(1) }

package money

import "fmt"

// CurrencyKind distinguishes fiat currencies (cents-scale, ISO codes) from
// crypto currencies (wei/satoshi-scale, ticker codes).
type CurrencyKind int

const (
	Fiat CurrencyKind = iota
	Crypto
)

// Currency describes a code's kind and minor-unit scale.
type Currency struct {
	Code          string
	Kind          CurrencyKind
	DecimalPlaces int32
}

// registry is the known currency table, grounded on the supported-token and
// supported-currency lists the teacher's ExchangeRateService/CurrencyService
// hard-code (GetSupportedTokens, GetSupportedCurrencies).
var registry = map[string]Currency{
	"USD": {"USD", Fiat, 2},
	"EUR": {"EUR", Fiat, 2},
	"GBP": {"GBP", Fiat, 2},
	"JPY": {"JPY", Fiat, 0},
	"CAD": {"CAD", Fiat, 2},
	"AUD": {"AUD", Fiat, 2},

	"BTC":  {"BTC", Crypto, 8},
	"ETH":  {"ETH", Crypto, 18},
	"STQ":  {"STQ", Crypto, 18},
	"USDC": {"USDC", Crypto, 6},
	"USDT": {"USDT", Crypto, 6},
	"MATIC": {"MATIC", Crypto, 18},
}

// Lookup returns the Currency for code, or an error if unknown.
func Lookup(code string) (Currency, error) {
	c, ok := registry[code]
	if !ok {
		return Currency{}, fmt.Errorf("money: unknown currency %q", code)
	}
	return c, nil
}

// IsFiat reports whether code is a known fiat currency.
func IsFiat(code string) bool {
	c, err := Lookup(code)
	return err == nil && c.Kind == Fiat
}

// IsCrypto reports whether code is a known crypto currency.
func IsCrypto(code string) bool {
	c, err := Lookup(code)
	return err == nil && c.Kind == Crypto
}

package pricing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cyphera/paymentd/internal/ledger"
	"github.com/cyphera/paymentd/internal/money"
)

func TestCompute_FiatSameCurrencyRoundTrips(t *testing.T) {
	invoice := ledger.Invoice{ID: uuid.New(), BuyerCurrency: "EUR"}
	order := ledger.Order{
		ID:             uuid.New(),
		SellerCurrency: "EUR",
		TotalAmount:    money.MustFromInt64(1000),
		CashbackAmount: decimal.Zero,
	}

	dump, err := Compute(invoice, []OrderInput{{Order: order}}, nil)
	require.NoError(t, err)
	require.False(t, dump.HasMissingRates)
	require.True(t, dump.TotalPrice.Equal(decimal.NewFromInt(10))) // 1000 cents = 10.00 EUR
}

func TestCompute_MissingRateAcrossCurrencies(t *testing.T) {
	invoice := ledger.Invoice{ID: uuid.New(), BuyerCurrency: "ETH"}
	order := ledger.Order{
		ID:             uuid.New(),
		SellerCurrency: "STQ",
		TotalAmount:    money.MustFromInt64(1),
		CashbackAmount: decimal.Zero,
	}

	dump, err := Compute(invoice, []OrderInput{{Order: order}}, nil)
	require.NoError(t, err)
	require.True(t, dump.HasMissingRates)
}

func TestCompute_AppliesActiveRate(t *testing.T) {
	invoice := ledger.Invoice{ID: uuid.New(), BuyerCurrency: "ETH"}
	order := ledger.Order{
		ID:             uuid.New(),
		SellerCurrency: "STQ",
		TotalAmount:    money.MustFromInt64(2_000_000_000_000_000_000), // 2 STQ wei-scale
		CashbackAmount: decimal.NewFromFloat(0.5),
	}
	rate := ledger.OrderExchangeRate{
		OrderID: order.ID,
		Rate:    decimal.NewFromInt(2), // 2 STQ per 1 ETH
		Status:  ledger.RateActive,
	}

	dump, err := Compute(invoice, []OrderInput{{Order: order, Rates: []ledger.OrderExchangeRate{rate}}}, nil)
	require.NoError(t, err)
	require.False(t, dump.HasMissingRates)
	require.True(t, dump.TotalPrice.Equal(decimal.NewFromInt(1))) // 2 STQ / rate 2 = 1 ETH
	require.True(t, dump.TotalCashback.Equal(decimal.NewFromFloat(0.5)))
}

func TestCompute_IgnoresExpiredRate(t *testing.T) {
	invoice := ledger.Invoice{ID: uuid.New(), BuyerCurrency: "ETH"}
	order := ledger.Order{
		ID:             uuid.New(),
		SellerCurrency: "STQ",
		TotalAmount:    money.MustFromInt64(1_000_000_000_000_000_000),
		CashbackAmount: decimal.Zero,
	}
	expired := ledger.OrderExchangeRate{OrderID: order.ID, Rate: decimal.NewFromInt(3), Status: ledger.RateExpired}

	dump, err := Compute(invoice, []OrderInput{{Order: order, Rates: []ledger.OrderExchangeRate{expired}}}, nil)
	require.NoError(t, err)
	require.True(t, dump.HasMissingRates)
}

func TestHasMissingRates(t *testing.T) {
	order := ledger.Order{ID: uuid.New(), SellerCurrency: "BTC"}
	require.True(t, HasMissingRates("ETH", []OrderInput{{Order: order}}))
	require.False(t, HasMissingRates("BTC", []OrderInput{{Order: order}}))
}

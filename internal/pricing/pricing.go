// Package pricing computes an invoice's current total price and cashback
// from its orders and their currently reserved exchange rates. It mirrors
// the teacher's TaxService.CalculateTax in spirit — a pure calculation over
// caller-supplied inputs, returning a breakdown struct — generalized from
// tax percentages against a jurisdiction table to currency division against
// a reserved exchange rate. Nothing here performs I/O or writes anything;
// every mutation implied by a computed breakdown happens in the invoice
// service (internal/invoice).
package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cyphera/paymentd/internal/ledger"
	"github.com/cyphera/paymentd/internal/money"
)

// OrderInput pairs one order with the exchange-rate rows to consider for
// it. Callers pass just the active rate for the common "current state"
// computation, or every rate row (active and expired) for the "full dump"
// form used by event handlers that need to see rate history.
type OrderInput struct {
	Order ledger.Order
	Rates []ledger.OrderExchangeRate
}

// OrderBreakdown is the per-order contribution to an InvoiceDump.
type OrderBreakdown struct {
	OrderID          uuid.UUID
	SellerCurrency   string
	TotalAmountSuper decimal.Decimal
	BuyerAmountSuper decimal.Decimal
	CashbackAmount   decimal.Decimal
	RateUsed         decimal.Decimal
	HasRate          bool
}

// InvoiceDump is the pricing engine's full output: the invoice's current
// total price and cashback in buyer super-units, whether any order is still
// missing a usable rate, and the per-order detail behind those totals.
type InvoiceDump struct {
	InvoiceID       uuid.UUID
	BuyerCurrency   string
	TotalPrice      decimal.Decimal
	TotalCashback   decimal.Decimal
	HasMissingRates bool
	Orders          []OrderBreakdown
	WalletAddress   *string
}

// Compute builds an InvoiceDump for invoice given its orders (each paired
// with the rate rows to consider) and an optional pooled-account wallet
// address. It never touches the database or a PSP client.
func Compute(invoice ledger.Invoice, orders []OrderInput, walletAddress *string) (InvoiceDump, error) {
	dump := InvoiceDump{
		InvoiceID:     invoice.ID,
		BuyerCurrency: invoice.BuyerCurrency,
		TotalPrice:    decimal.Zero,
		TotalCashback: decimal.Zero,
		WalletAddress: walletAddress,
	}

	for _, in := range orders {
		breakdown, err := priceOrder(invoice.BuyerCurrency, in)
		if err != nil {
			return InvoiceDump{}, err
		}
		if !breakdown.HasRate {
			dump.HasMissingRates = true
		} else {
			dump.TotalPrice = dump.TotalPrice.Add(breakdown.BuyerAmountSuper)
		}
		dump.TotalCashback = dump.TotalCashback.Add(breakdown.CashbackAmount)
		dump.Orders = append(dump.Orders, breakdown)
	}

	return dump, nil
}

// priceOrder converts one order's seller-currency minor-unit total into
// buyer super-units via the order's active rate, falling back to the
// dummy 1:1 rate implied when buyer and seller currencies coincide and no
// rate row exists yet.
func priceOrder(buyerCurrency string, in OrderInput) (OrderBreakdown, error) {
	sellerCurrency, err := money.Lookup(in.Order.SellerCurrency)
	if err != nil {
		return OrderBreakdown{}, err
	}
	sellerSuper := in.Order.TotalAmount.ToSuper(sellerCurrency.DecimalPlaces)

	breakdown := OrderBreakdown{
		OrderID:          in.Order.ID,
		SellerCurrency:   in.Order.SellerCurrency,
		TotalAmountSuper: sellerSuper,
		CashbackAmount:   in.Order.CashbackAmount,
	}

	active, found := activeRate(in.Rates)
	switch {
	case found:
		breakdown.HasRate = true
		breakdown.RateUsed = active.Rate
		breakdown.BuyerAmountSuper = sellerSuper.DivRound(active.Rate, sellerCurrency.DecimalPlaces+8)

	case buyerCurrency == in.Order.SellerCurrency:
		// No rate row yet, but same-currency orders imply a dummy 1:1 rate.
		breakdown.HasRate = true
		breakdown.RateUsed = decimal.NewFromInt(1)
		breakdown.BuyerAmountSuper = sellerSuper

	default:
		breakdown.HasRate = false
	}

	return breakdown, nil
}

// activeRate picks the Active row out of rates, if any.
func activeRate(rates []ledger.OrderExchangeRate) (ledger.OrderExchangeRate, bool) {
	for _, r := range rates {
		if r.Status == ledger.RateActive {
			return r, true
		}
	}
	return ledger.OrderExchangeRate{}, false
}

// HasMissingRates reports whether any order in orders lacks a usable rate
// against buyerCurrency, without computing the full dump, for callers that
// only need the boolean gate. The paid-detection check in the invoice
// service reads InvoiceDump.HasMissingRates from Compute instead.
func HasMissingRates(buyerCurrency string, orders []OrderInput) bool {
	for _, in := range orders {
		if _, found := activeRate(in.Rates); found {
			continue
		}
		if buyerCurrency != in.Order.SellerCurrency {
			return true
		}
	}
	return false
}

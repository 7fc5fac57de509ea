package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cyphera/paymentd/internal/eventqueue"
	"github.com/cyphera/paymentd/internal/ledger"
	"github.com/cyphera/paymentd/internal/money"
	"github.com/cyphera/paymentd/internal/pricing"
	"github.com/cyphera/paymentd/pkg/errs"
)

// RecalculateInvoice implements 4.E.2. A paid invoice's prices are frozen —
// it returns the stored breakdown computed over every rate row ever issued,
// never touching the PSP. An unpaid invoice gets each order's rate
// refreshed or reserved, then is checked for the paid transition. A missing
// invoice yields a zero InvoiceDump and a nil error.
func (s *Service) RecalculateInvoice(ctx context.Context, invoiceID uuid.UUID) (pricing.InvoiceDump, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return pricing.InvoiceDump{}, nil
		}
		return pricing.InvoiceDump{}, err
	}

	if inv.IsPaid() {
		return s.dumpInvoice(ctx, invoiceID)
	}

	orders, err := s.store.GetOrdersByInvoice(ctx, invoiceID)
	if err != nil {
		return pricing.InvoiceDump{}, errs.Wrap(errs.Internal, err, "invoice: load orders")
	}

	type refreshed struct {
		orderID    uuid.UUID
		exchangeID *string
		rate       decimal.Decimal
		changed    bool
	}
	results := make([]refreshed, 0, len(orders))

	for _, o := range orders {
		active, err := s.store.GetActiveRateForOrder(ctx, o.ID)
		if err != nil && !errs.Is(err, errs.NotFound) {
			return pricing.InvoiceDump{}, errs.Wrap(errs.Internal, err, "invoice: load active rate")
		}
		var current *ledger.OrderExchangeRate
		if err == nil {
			current = active
		}

		r, err := s.reserveOrRefreshRate(ctx, inv.BuyerCurrency, o, current)
		if err != nil {
			return pricing.InvoiceDump{}, err
		}
		if r != nil {
			results = append(results, refreshed{orderID: o.ID, exchangeID: r.ExchangeID, rate: r.Rate, changed: true})
		}
	}

	err = s.store.WithTx(ctx, func(tx ledger.Store) error {
		for _, r := range results {
			if !r.changed {
				continue
			}
			if _, err := tx.CreateRate(ctx, ledger.NewRate{OrderID: r.orderID, ExchangeID: r.exchangeID, Rate: r.rate}); err != nil {
				return errs.Wrap(errs.Internal, err, "invoice: create refreshed rate")
			}
		}

		dump, err := s.computeCurrentDump(ctx, tx, *inv)
		if err != nil {
			return err
		}

		if dump.HasMissingRates {
			return nil
		}

		amountCapturedSuper, err := amountCapturedInBuyerSuperUnits(inv, dump.BuyerCurrency)
		if err != nil {
			return err
		}
		if amountCapturedSuper.LessThan(dump.TotalPrice) {
			return nil
		}

		// Fast path only — READ COMMITTED doesn't make this read block a
		// concurrent transition, so it cannot by itself prevent a double
		// enqueue. SetInvoicePaid's WHERE paid_at IS NULL guard below is
		// the actual race winner; its returned bool is what gates the
		// enqueue.
		fresh, err := tx.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if fresh.IsPaid() {
			return nil
		}

		upd := ledger.PaidUpdate{
			FinalAmountPaid:     dump.TotalPrice,
			FinalCashbackAmount: dump.TotalCashback,
			PaidAt:              time.Now(),
		}
		ok, err := tx.SetInvoicePaid(ctx, invoiceID, upd)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "invoice: set invoice paid")
		}
		if !ok {
			// Lost the race to a concurrent transition; the winner already
			// enqueues (or already enqueued) the one InvoicePaid event.
			return nil
		}

		payload, err := eventqueue.EncodeInvoicePaid(invoiceID)
		if err != nil {
			return err
		}
		if _, err := tx.EnqueueEvent(ctx, payload, nil); err != nil {
			return errs.Wrap(errs.Internal, err, "invoice: enqueue invoice paid event")
		}
		return nil
	})
	if err != nil {
		return pricing.InvoiceDump{}, err
	}

	return s.dumpInvoice(ctx, invoiceID)
}

// rateQuote is the outcome of reserveOrRefreshRate: nil means "leave the
// existing rate row alone, nothing to insert".
type rateQuote struct {
	ExchangeID *string
	Rate       decimal.Decimal
}

// reserveOrRefreshRate implements 4.E.2 step 1's three cases.
func (s *Service) reserveOrRefreshRate(ctx context.Context, buyerCurrency string, o ledger.Order, current *ledger.OrderExchangeRate) (*rateQuote, error) {
	switch {
	case current == nil && buyerCurrency != o.SellerCurrency:
		rate, err := s.cryptoPSP.GetRate(ctx, buyerCurrency, o.SellerCurrency, o.TotalAmount.Decimal())
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "invoice: get rate")
		}
		return &rateQuote{ExchangeID: &rate.ExchangeID, Rate: rate.Rate}, nil

	case current == nil:
		return &rateQuote{Rate: decimal.NewFromInt(1)}, nil

	case current.ExchangeID == nil:
		return nil, nil

	default:
		res, err := s.cryptoPSP.RefreshRate(ctx, *current.ExchangeID)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "invoice: refresh rate")
		}
		if !res.IsNewRate {
			return nil, nil
		}
		return &rateQuote{ExchangeID: current.ExchangeID, Rate: res.Rate}, nil
	}
}

// computeCurrentDump builds an InvoiceDump from each order's active rate
// only (the "current state" form, as opposed to dumpInvoice's full-history
// form used for already-paid invoices).
func (s *Service) computeCurrentDump(ctx context.Context, tx ledger.Store, inv ledger.Invoice) (pricing.InvoiceDump, error) {
	orders, err := tx.GetOrdersByInvoice(ctx, inv.ID)
	if err != nil {
		return pricing.InvoiceDump{}, errs.Wrap(errs.Internal, err, "invoice: load orders")
	}

	inputs := make([]pricing.OrderInput, 0, len(orders))
	for _, o := range orders {
		rate, err := tx.GetActiveRateForOrder(ctx, o.ID)
		var rates []ledger.OrderExchangeRate
		if err == nil {
			rates = []ledger.OrderExchangeRate{*rate}
		} else if !errs.Is(err, errs.NotFound) {
			return pricing.InvoiceDump{}, errs.Wrap(errs.Internal, err, "invoice: load active rate")
		}
		inputs = append(inputs, pricing.OrderInput{Order: o, Rates: rates})
	}

	return pricing.Compute(inv, inputs, nil)
}

// amountCapturedInBuyerSuperUnits converts the invoice's raw minor-unit
// amount_captured into buyer super-units for comparison against total_price.
func amountCapturedInBuyerSuperUnits(inv *ledger.Invoice, buyerCurrency string) (decimal.Decimal, error) {
	ccy, err := money.Lookup(buyerCurrency)
	if err != nil {
		return decimal.Zero, errs.Wrap(errs.Internal, err, "invoice: lookup buyer currency")
	}
	return inv.AmountCaptured.ToSuper(ccy.DecimalPlaces), nil
}

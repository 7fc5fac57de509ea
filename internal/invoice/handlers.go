package invoice

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cyphera/paymentd/internal/ledger"
	"github.com/cyphera/paymentd/internal/money"
	"github.com/cyphera/paymentd/pkg/errs"
)

// SagaNotifier is the saga service's HTTP surface the InvoicePaid handler
// needs. Defined here, not in internal/sagaclient, so this package never
// imports the HTTP client package — sagaclient.Client satisfies this
// structurally.
type SagaNotifier interface {
	NotifyInvoicePaid(ctx context.Context, invoiceID uuid.UUID) error
}

// SetSagaNotifier wires the saga HTTP client in after construction, keeping
// NewService's signature stable for callers (tests, mostly) that never
// exercise the InvoicePaid handler.
func (s *Service) SetSagaNotifier(n SagaNotifier) { s.saga = n }

// HandlePaymentIntentSucceeded and HandlePaymentIntentAmountCapturableUpdated
// both implement 4.F's shared contract for the two card-PSP "money has
// moved" events: recalculate the invoice (which marks it paid once the
// captured amount covers the total) and, the first time it becomes paid,
// create one NotPaid Fee row per order.

func (s *Service) HandlePaymentIntentSucceeded(ctx context.Context, paymentIntentID string) error {
	return s.markInvoicePaidFromCardIntent(ctx, paymentIntentID)
}

func (s *Service) HandlePaymentIntentAmountCapturableUpdated(ctx context.Context, paymentIntentID string) error {
	return s.markInvoicePaidFromCardIntent(ctx, paymentIntentID)
}

func (s *Service) markInvoicePaidFromCardIntent(ctx context.Context, paymentIntentID string) error {
	inv, err := s.store.GetInvoiceByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		return err
	}
	if inv.IsPaid() {
		return nil
	}

	if _, err := s.RecalculateInvoice(ctx, inv.ID); err != nil {
		return err
	}

	refreshed, err := s.store.GetInvoice(ctx, inv.ID)
	if err != nil {
		return err
	}
	if !refreshed.IsPaid() {
		return nil
	}

	return s.createOrderFees(ctx, inv.ID)
}

// createOrderFees inserts one NotPaid Fee row per order of invoiceID, sized
// at feeOrderPercent of the order's seller-currency total.
func (s *Service) createOrderFees(ctx context.Context, invoiceID uuid.UUID) error {
	orders, err := s.store.GetOrdersByInvoice(ctx, invoiceID)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "invoice: load orders for fee creation")
	}

	for _, o := range orders {
		feeAmount, err := applyPercent(o.TotalAmount, o.SellerCurrency, s.feeOrderPercent)
		if err != nil {
			return err
		}
		fee := ledger.Fee{
			ID:       uuid.New(),
			OrderID:  o.ID,
			Currency: o.SellerCurrency,
			Amount:   feeAmount,
			Status:   ledger.FeeNotPaid,
		}
		if err := s.store.CreateFee(ctx, &fee); err != nil {
			return errs.Wrap(errs.Internal, err, "invoice: create fee")
		}
	}
	return nil
}

// applyPercent computes percent% of amount, staying in currency's minor
// units throughout (rounds to the nearest minor unit, half-to-even).
func applyPercent(amount money.Amount, currency string, percent decimal.Decimal) (money.Amount, error) {
	ccy, err := money.Lookup(currency)
	if err != nil {
		return money.Amount{}, errs.Wrap(errs.Internal, err, "invoice: lookup currency for fee")
	}
	super := amount.ToSuper(ccy.DecimalPlaces).Mul(percent).Div(decimal.NewFromInt(100))
	return money.FromSuper(super, ccy.DecimalPlaces, false)
}

// HandlePaymentIntentPaymentFailed marks the cached PaymentIntent's status;
// it never touches the invoice or its orders.
func (s *Service) HandlePaymentIntentPaymentFailed(ctx context.Context, paymentIntentID string) error {
	if err := s.store.UpdatePaymentIntentStatus(ctx, paymentIntentID, "payment_failed"); err != nil {
		return errs.Wrap(errs.Internal, err, "invoice: update payment intent status")
	}
	s.log.Warn("card PSP payment intent failed", zap.String("payment_intent_id", paymentIntentID))
	return nil
}

// HandlePaymentExpired implements the expiry handler: an invoice that's
// still unpaid by its PaymentExpired deadline is dropped — deleting it both
// cancels the card PaymentIntent (card flow, via DeleteInvoice's existing
// best-effort cancellation) and frees its pooled account for reuse (crypto
// flow, since a free account is simply one with no invoice row pointing at
// it). A paid invoice ignores its own expiry event.
func (s *Service) HandlePaymentExpired(ctx context.Context, invoiceID uuid.UUID) error {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil
		}
		return err
	}
	if inv.IsPaid() {
		return nil
	}
	return s.DeleteInvoice(ctx, invoiceID)
}

// HandleInvoicePaid notifies the saga service that an invoice has
// transitioned to paid.
func (s *Service) HandleInvoicePaid(ctx context.Context, invoiceID uuid.UUID) error {
	if s.saga == nil {
		return errs.Internalf("invoice: no saga notifier configured")
	}
	return s.saga.NotifyInvoicePaid(ctx, invoiceID)
}

// HandlePaymentIntentCapture records a capture request for the PaymentIntent
// backing orderID's invoice: it sets the cached PaymentIntent row's status to
// capture_requested. It makes no call to the card PSP.
func (s *Service) HandlePaymentIntentCapture(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	link, err := s.store.GetPaymentIntentLinkByInvoice(ctx, order.InvoiceID)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePaymentIntentStatus(ctx, link.PaymentIntentID, "capture_requested"); err != nil {
		return errs.Wrap(errs.Internal, err, "invoice: mark payment intent capture requested")
	}
	return nil
}

// HandlePayoutInitiated acknowledges a payout lifecycle event. The payout
// subsystem itself (seller payouts out of pooled accounts) sits outside
// this module's scope; the handler only records that the event was seen.
func (s *Service) HandlePayoutInitiated(_ context.Context, payoutID string) error {
	s.log.Info("payout initiated", zap.String("payout_id", payoutID))
	return nil
}

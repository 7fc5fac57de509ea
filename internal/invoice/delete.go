package invoice

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cyphera/paymentd/internal/ledger"
	"github.com/cyphera/paymentd/pkg/errs"
)

// DeleteInvoice implements 4.E.5: delete the invoice and its orders/rates
// and its PaymentIntent link/row in one transaction, then — only once that
// transaction has committed — best-effort cancel the PaymentIntent at the
// card PSP. A cancellation failure here never undoes the already-committed
// DB delete.
func (s *Service) DeleteInvoice(ctx context.Context, invoiceID uuid.UUID) error {
	var deletedPaymentIntentID string

	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.DeleteOrdersByInvoice(ctx, invoiceID); err != nil {
			return errs.Wrap(errs.Internal, err, "invoice: delete orders")
		}

		link, err := tx.GetPaymentIntentLinkByInvoice(ctx, invoiceID)
		switch {
		case err == nil:
			deletedPaymentIntentID = link.PaymentIntentID
			if err := tx.DeletePaymentIntentLink(ctx, invoiceID); err != nil {
				return errs.Wrap(errs.Internal, err, "invoice: delete payment intent link")
			}
			if err := tx.DeletePaymentIntent(ctx, link.PaymentIntentID); err != nil {
				return errs.Wrap(errs.Internal, err, "invoice: delete payment intent")
			}
		case errs.Is(err, errs.NotFound):
			// crypto flow, nothing to unlink
		default:
			return errs.Wrap(errs.Internal, err, "invoice: load payment intent link")
		}

		if err := tx.DeleteInvoice(ctx, invoiceID); err != nil {
			return errs.Wrap(errs.Internal, err, "invoice: delete invoice")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if deletedPaymentIntentID != "" {
		if err := s.cardPSP.CancelPaymentIntent(ctx, deletedPaymentIntentID); err != nil {
			s.log.Warn("best-effort payment intent cancellation failed after invoice delete",
				zap.String("payment_intent_id", deletedPaymentIntentID),
				zap.String("invoice_id", invoiceID.String()),
				zap.Error(err))
		}
	}

	return nil
}

package eventqueue

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/cyphera/paymentd/pkg/errs"
)

// Kind tags one of the durable queue's payload variants. Every variant
// carries only ids, never mutable state — handlers re-read current state
// from the ledger at dispatch time.
type Kind string

const (
	KindNoOp                                 Kind = "no_op"
	KindInvoicePaid                          Kind = "invoice_paid"
	KindPaymentIntentPaymentFailed            Kind = "payment_intent_payment_failed"
	KindPaymentIntentAmountCapturableUpdated Kind = "payment_intent_amount_capturable_updated"
	KindPaymentIntentSucceeded                Kind = "payment_intent_succeeded"
	KindPaymentIntentCapture                  Kind = "payment_intent_capture"
	KindPaymentExpired                        Kind = "payment_expired"
	KindPayoutInitiated                       Kind = "payout_initiated"
)

// Payload is the tagged-union JSON envelope stored in EventEntry.Payload.
// Only the fields relevant to Kind are populated.
type Payload struct {
	Kind            Kind       `json:"kind"`
	InvoiceID       *uuid.UUID `json:"invoice_id,omitempty"`
	PaymentIntentID *string    `json:"payment_intent_id,omitempty"`
	OrderID         *uuid.UUID `json:"order_id,omitempty"`
	PayoutID        *string    `json:"payout_id,omitempty"`
}

// Decode parses a stored payload back into its tagged-union form.
func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, errs.Wrap(errs.Internal, err, "eventqueue: decode payload")
	}
	return p, nil
}

func encode(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "eventqueue: encode payload")
	}
	return data, nil
}

// EncodeNoOp builds a no-op payload, used by tests and as a harmless filler.
func EncodeNoOp() ([]byte, error) { return encode(Payload{Kind: KindNoOp}) }

// EncodeInvoicePaid builds an InvoicePaid payload.
func EncodeInvoicePaid(invoiceID uuid.UUID) ([]byte, error) {
	return encode(Payload{Kind: KindInvoicePaid, InvoiceID: &invoiceID})
}

// EncodePaymentIntentPaymentFailed builds a PaymentIntentPaymentFailed payload.
func EncodePaymentIntentPaymentFailed(paymentIntentID string) ([]byte, error) {
	return encode(Payload{Kind: KindPaymentIntentPaymentFailed, PaymentIntentID: &paymentIntentID})
}

// EncodePaymentIntentAmountCapturableUpdated builds a
// PaymentIntentAmountCapturableUpdated payload.
func EncodePaymentIntentAmountCapturableUpdated(paymentIntentID string) ([]byte, error) {
	return encode(Payload{Kind: KindPaymentIntentAmountCapturableUpdated, PaymentIntentID: &paymentIntentID})
}

// EncodePaymentIntentSucceeded builds a PaymentIntentSucceeded payload.
func EncodePaymentIntentSucceeded(paymentIntentID string) ([]byte, error) {
	return encode(Payload{Kind: KindPaymentIntentSucceeded, PaymentIntentID: &paymentIntentID})
}

// EncodePaymentIntentCapture builds a PaymentIntentCapture payload.
func EncodePaymentIntentCapture(orderID uuid.UUID) ([]byte, error) {
	return encode(Payload{Kind: KindPaymentIntentCapture, OrderID: &orderID})
}

// EncodePaymentExpired builds a PaymentExpired payload.
func EncodePaymentExpired(invoiceID uuid.UUID) ([]byte, error) {
	return encode(Payload{Kind: KindPaymentExpired, InvoiceID: &invoiceID})
}

// EncodePayoutInitiated builds a PayoutInitiated payload.
func EncodePayoutInitiated(payoutID string) ([]byte, error) {
	return encode(Payload{Kind: KindPayoutInitiated, PayoutID: &payoutID})
}

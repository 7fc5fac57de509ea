// Package ledger is the transactional store for invoices, orders, exchange
// rates, pooled accounts, payment-intents, fees, and the event journal. It
// exposes a narrow Store interface (find/create/update/delete plus the
// handful of domain queries the invoice service and event engine need) so
// callers never see SQL directly, mirroring the teacher's db.Querier split
// between generated queries and hand-written service logic — except here the
// queries are hand-written too, since the teacher's sqlc-generated package
// isn't something we can regenerate.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cyphera/paymentd/internal/money"
)

// OrderState is the lifecycle state of one store line within an invoice.
type OrderState string

const (
	OrderInitial  OrderState = "initial"
	OrderCaptured OrderState = "captured"
	OrderRefunded OrderState = "refunded"
)

// RateStatus marks whether an OrderExchangeRate is the currently applicable
// one for its order.
type RateStatus string

const (
	RateActive  RateStatus = "active"
	RateExpired RateStatus = "expired"
)

// FeeStatus is the lifecycle of a marketplace commission row.
type FeeStatus string

const (
	FeeNotPaid FeeStatus = "not_paid"
	FeePaid    FeeStatus = "paid"
	FeeFail    FeeStatus = "fail"
)

// EventStatus is the lifecycle of a durable queue entry.
type EventStatus string

const (
	EventPending    EventStatus = "pending"
	EventInProgress EventStatus = "in_progress"
	EventCompleted  EventStatus = "completed"
	EventFailed     EventStatus = "failed"
)

// Invoice is one per customer checkout.
type Invoice struct {
	ID                  uuid.UUID
	BuyerUserID         uuid.UUID
	BuyerCurrency       string
	AmountCaptured      money.Amount
	AccountID           *uuid.UUID
	FinalAmountPaid     *decimal.Decimal
	FinalCashbackAmount *decimal.Decimal
	PaidAt              *time.Time
	CreatedAt           time.Time
}

// IsPaid reports whether the invoice has already transitioned to paid.
func (i *Invoice) IsPaid() bool { return i.PaidAt != nil }

// Order is one store line within an invoice.
type Order struct {
	ID             uuid.UUID
	InvoiceID      uuid.UUID
	SellerCurrency string
	TotalAmount    money.Amount
	CashbackAmount decimal.Decimal
	StoreID        uuid.UUID
	State          OrderState
	StripeFee      *money.Amount
}

// OrderExchangeRate is a versioned rate row for one order.
type OrderExchangeRate struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	ExchangeID *string
	Rate       decimal.Decimal
	Status     RateStatus
	CreatedAt  time.Time
}

// Account is a pooled wallet supplied by the crypto PSP.
type Account struct {
	ID            uuid.UUID
	Currency      string
	WalletAddress string
	IsPooled      bool
}

// PaymentIntentLink joins an invoice to its external card-PSP PaymentIntent.
type PaymentIntentLink struct {
	InvoiceID       uuid.UUID
	PaymentIntentID string
}

// PaymentIntent mirrors the card PSP's representation, cached locally.
type PaymentIntent struct {
	ID             string
	Amount         money.Amount
	AmountReceived money.Amount
	Currency       string
	Status         string
	ChargeID       *string
}

// Fee is a marketplace commission recognized against a captured order.
type Fee struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	Currency       string
	Amount         money.Amount
	Status         FeeStatus
	ChargeID       *string
	CryptoCurrency *string
	CryptoAmount   *money.Amount
}

// EventEntry is a durable journal row driving asynchronous side effects.
type EventEntry struct {
	ID           uuid.UUID
	Payload      []byte // tagged-union JSON, see internal/eventqueue
	Status       EventStatus
	ScheduledFor *time.Time
	Attempts     int
	LeaseUntil   *time.Time
	CreatedAt    time.Time
}

package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cyphera/paymentd/internal/money"
)

// NewRate describes a rate row to insert for an order; the store expires any
// currently Active rate for the same order atomically as part of the insert.
type NewRate struct {
	OrderID    uuid.UUID
	ExchangeID *string
	Rate       decimal.Decimal
}

// PaidUpdate carries the three fields that become non-null atomically when
// an invoice transitions to paid.
type PaidUpdate struct {
	FinalAmountPaid     decimal.Decimal
	FinalCashbackAmount decimal.Decimal
	PaidAt              time.Time
}

// Store is the ledger's transactional repository surface. Every method that
// spans more than one row is implemented to execute inside a single
// transaction at the Postgres implementation; WithTx lets the invoice
// service compose several calls into one.
type Store interface {
	// --- Invoice ---
	GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetInvoiceByAccountID(ctx context.Context, accountID uuid.UUID) (*Invoice, error)
	GetInvoiceByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Invoice, error)
	CreateInvoice(ctx context.Context, inv *Invoice) error
	// SetInvoicePaid applies upd only if the invoice is still unpaid (the
	// WHERE paid_at IS NULL guard that makes first-committer-wins safe under
	// concurrent callers). It reports whether its UPDATE actually affected a
	// row — false means someone else already won the race (or the invoice
	// doesn't exist) and the caller must not treat this as its own
	// transition.
	SetInvoicePaid(ctx context.Context, invoiceID uuid.UUID, upd PaidUpdate) (bool, error)
	DeleteInvoice(ctx context.Context, id uuid.UUID) error

	// --- Order ---
	GetOrdersByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	CreateOrder(ctx context.Context, o *Order) error
	DeleteOrdersByInvoice(ctx context.Context, invoiceID uuid.UUID) error

	// --- OrderExchangeRate ---
	GetActiveRateForOrder(ctx context.Context, orderID uuid.UUID) (*OrderExchangeRate, error)
	GetAllRatesForOrder(ctx context.Context, orderID uuid.UUID) ([]OrderExchangeRate, error)
	CreateRate(ctx context.Context, r NewRate) (*OrderExchangeRate, error)

	// --- Account ---
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByWalletAddress(ctx context.Context, addr string) (*Account, error)
	UpsertAccount(ctx context.Context, a *Account) error

	// --- capture / idempotency ---
	// IncreaseAmountCaptured credits delta onto the invoice linked to
	// accountID and returns the updated invoice. Returns an *errs.Error of
	// kind AlreadyApplied if (accountID, transactionID) was already applied.
	IncreaseAmountCaptured(ctx context.Context, accountID uuid.UUID, transactionID string, delta money.Amount) (*Invoice, error)

	// --- PaymentIntent ---
	GetPaymentIntentLinkByInvoice(ctx context.Context, invoiceID uuid.UUID) (*PaymentIntentLink, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	CreatePaymentIntent(ctx context.Context, pi *PaymentIntent, invoiceID uuid.UUID) error
	UpdatePaymentIntentStatus(ctx context.Context, id string, status string) error
	DeletePaymentIntentLink(ctx context.Context, invoiceID uuid.UUID) error
	DeletePaymentIntent(ctx context.Context, id string) error

	// --- Fee ---
	CreateFee(ctx context.Context, f *Fee) error
	GetFeesByOrder(ctx context.Context, orderID uuid.UUID) ([]Fee, error)

	// --- Event queue ---
	EnqueueEvent(ctx context.Context, payload []byte, scheduledFor *time.Time) (uuid.UUID, error)
	ResetStuckEvents(ctx context.Context, now time.Time) (int, error)
	DequeuePendingEvent(ctx context.Context, now time.Time, leaseFor time.Duration) (*EventEntry, error)
	CompleteEvent(ctx context.Context, id uuid.UUID) error
	FailEvent(ctx context.Context, id uuid.UUID) error

	// WithTx runs fn with a Store bound to a single transaction; if fn
	// returns an error the transaction rolls back, otherwise it commits.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

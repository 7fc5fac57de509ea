package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/cyphera/paymentd/internal/money"
	"github.com/cyphera/paymentd/pkg/errs"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// PostgresStore method run either standalone or inside a caller's
// transaction without duplicating SQL.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresStore is the Store implementation backed by jackc/pgx/v5, grounded
// on the teacher's internal/db (pgxpool.Pool + pgtype) access pattern.
type PostgresStore struct {
	db   querier
	pool *pgxpool.Pool // nil when this instance is bound to an existing transaction
}

// NewPostgresStore wraps an established connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, pool: pool}
}

// WithTx begins a transaction (or, if already inside one, runs fn directly
// against it — WithTx calls don't nest) and commits iff fn returns nil.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txStore := &PostgresStore{db: tx}
	if err := fn(txStore); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: commit transaction")
	}
	return nil
}

// --- Invoice ---

func (s *PostgresStore) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, buyer_user_id, buyer_currency, amount_captured, account_id,
		       final_amount_paid, final_cashback_amount, paid_at, created_at
		FROM invoices WHERE id = $1`, uuidToPg(id))
	inv, err := scanInvoiceRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("invoice %s", id)
		}
		return nil, errs.Wrap(errs.Internal, err, "ledger: get invoice")
	}
	return inv, nil
}

func (s *PostgresStore) GetInvoiceByAccountID(ctx context.Context, accountID uuid.UUID) (*Invoice, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, buyer_user_id, buyer_currency, amount_captured, account_id,
		       final_amount_paid, final_cashback_amount, paid_at, created_at
		FROM invoices WHERE account_id = $1`, uuidToPg(accountID))
	inv, err := scanInvoiceRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("invoice for account %s", accountID)
		}
		return nil, errs.Wrap(errs.Internal, err, "ledger: get invoice by account")
	}
	return inv, nil
}

func (s *PostgresStore) GetInvoiceByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Invoice, error) {
	row := s.db.QueryRow(ctx, `
		SELECT i.id, i.buyer_user_id, i.buyer_currency, i.amount_captured, i.account_id,
		       i.final_amount_paid, i.final_cashback_amount, i.paid_at, i.created_at
		FROM invoices i
		JOIN payment_intent_links l ON l.invoice_id = i.id
		WHERE l.payment_intent_id = $1`, paymentIntentID)
	inv, err := scanInvoiceRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("invoice for payment intent %s", paymentIntentID)
		}
		return nil, errs.Wrap(errs.Internal, err, "ledger: get invoice by payment intent")
	}
	return inv, nil
}

func (s *PostgresStore) CreateInvoice(ctx context.Context, inv *Invoice) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO invoices (id, buyer_user_id, buyer_currency, amount_captured, account_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuidToPg(inv.ID), uuidToPg(inv.BuyerUserID), inv.BuyerCurrency,
		amountToNumeric(inv.AmountCaptured), uuidPtrToPg(inv.AccountID), timeToPg(inv.CreatedAt))
	if err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: create invoice")
	}
	return nil
}

func (s *PostgresStore) SetInvoicePaid(ctx context.Context, invoiceID uuid.UUID, upd PaidUpdate) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE invoices
		SET final_amount_paid = $2, final_cashback_amount = $3, paid_at = $4
		WHERE id = $1 AND paid_at IS NULL`,
		uuidToPg(invoiceID), decimalToNumeric(upd.FinalAmountPaid),
		decimalToNumeric(upd.FinalCashbackAmount), timeToPg(upd.PaidAt))
	if err != nil {
		return false, errs.Wrap(errs.Internal, err, "ledger: set invoice paid")
	}
	// Either the invoice doesn't exist or it's already paid — either way
	// this call didn't transition it, and the caller must not act as if it
	// did (no second InvoicePaid enqueue, per spec.md 4.A's no-op clause).
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, uuidToPg(id))
	if err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: delete invoice")
	}
	return nil
}

// --- Order ---

func (s *PostgresStore) GetOrdersByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, invoice_id, seller_currency, total_amount, cashback_amount, store_id, state, stripe_fee
		FROM orders WHERE invoice_id = $1 ORDER BY id`, uuidToPg(invoiceID))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "ledger: get orders by invoice")
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "ledger: scan order")
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, invoice_id, seller_currency, total_amount, cashback_amount, store_id, state, stripe_fee
		FROM orders WHERE id = $1`, uuidToPg(id))
	o, err := scanOrderRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("order %s", id)
		}
		return nil, errs.Wrap(errs.Internal, err, "ledger: get order")
	}
	return o, nil
}

func (s *PostgresStore) CreateOrder(ctx context.Context, o *Order) error {
	var stripeFee interface{}
	if o.StripeFee != nil {
		stripeFee = amountToNumeric(*o.StripeFee)
	} else {
		stripeFee = pgtype.Numeric{Valid: false}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO orders (id, invoice_id, seller_currency, total_amount, cashback_amount, store_id, state, stripe_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuidToPg(o.ID), uuidToPg(o.InvoiceID), o.SellerCurrency, amountToNumeric(o.TotalAmount),
		decimalToNumeric(o.CashbackAmount), uuidToPg(o.StoreID), string(o.State), stripeFee)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: create order")
	}
	return nil
}

func (s *PostgresStore) DeleteOrdersByInvoice(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM orders WHERE invoice_id = $1`, uuidToPg(invoiceID))
	if err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: delete orders by invoice")
	}
	return nil
}

// --- OrderExchangeRate ---

func (s *PostgresStore) GetActiveRateForOrder(ctx context.Context, orderID uuid.UUID) (*OrderExchangeRate, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, order_id, exchange_id, rate, status, created_at
		FROM order_exchange_rates WHERE order_id = $1 AND status = 'active'`, uuidToPg(orderID))
	r, err := scanRateRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("active rate for order %s", orderID)
		}
		return nil, errs.Wrap(errs.Internal, err, "ledger: get active rate for order")
	}
	return r, nil
}

func (s *PostgresStore) GetAllRatesForOrder(ctx context.Context, orderID uuid.UUID) ([]OrderExchangeRate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, exchange_id, rate, status, created_at
		FROM order_exchange_rates WHERE order_id = $1 ORDER BY created_at`, uuidToPg(orderID))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "ledger: get all rates for order")
	}
	defer rows.Close()

	var out []OrderExchangeRate
	for rows.Next() {
		r, err := scanRateRowScanner(rows)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "ledger: scan rate")
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CreateRate expires the current Active rate for the order (if any) and
// inserts the new one as Active, atomically. When not already inside a
// caller-managed transaction, it opens its own.
func (s *PostgresStore) CreateRate(ctx context.Context, r NewRate) (*OrderExchangeRate, error) {
	var result *OrderExchangeRate
	err := s.runAtomic(ctx, func(db querier) error {
		if _, err := db.Exec(ctx, `
			UPDATE order_exchange_rates SET status = 'expired'
			WHERE order_id = $1 AND status = 'active'`, uuidToPg(r.OrderID)); err != nil {
			return errs.Wrap(errs.Internal, err, "ledger: expire active rate")
		}

		id := uuid.New()
		now := timeNow()
		row := db.QueryRow(ctx, `
			INSERT INTO order_exchange_rates (id, order_id, exchange_id, rate, status, created_at)
			VALUES ($1, $2, $3, $4, 'active', $5)
			RETURNING id, order_id, exchange_id, rate, status, created_at`,
			uuidToPg(id), uuidToPg(r.OrderID), textPtrToPg(r.ExchangeID), decimalToNumeric(r.Rate), timeToPg(now))
		rr, err := scanRateRow(row)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "ledger: insert rate")
		}
		result = rr
		return nil
	})
	return result, err
}

// --- Account ---

func (s *PostgresStore) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := s.db.QueryRow(ctx, `SELECT id, currency, wallet_address, is_pooled FROM accounts WHERE id = $1`, uuidToPg(id))
	a, err := scanAccountRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("account %s", id)
		}
		return nil, errs.Wrap(errs.Internal, err, "ledger: get account")
	}
	return a, nil
}

func (s *PostgresStore) GetAccountByWalletAddress(ctx context.Context, addr string) (*Account, error) {
	row := s.db.QueryRow(ctx, `SELECT id, currency, wallet_address, is_pooled FROM accounts WHERE wallet_address = $1`, addr)
	a, err := scanAccountRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("account with wallet %s", addr)
		}
		return nil, errs.Wrap(errs.Internal, err, "ledger: get account by wallet address")
	}
	return a, nil
}

func (s *PostgresStore) UpsertAccount(ctx context.Context, a *Account) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (id, currency, wallet_address, is_pooled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET currency = $2, wallet_address = $3, is_pooled = $4`,
		uuidToPg(a.ID), a.Currency, a.WalletAddress, a.IsPooled)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: upsert account")
	}
	return nil
}

// --- capture / idempotency ---

func (s *PostgresStore) IncreaseAmountCaptured(ctx context.Context, accountID uuid.UUID, transactionID string, delta money.Amount) (*Invoice, error) {
	var result *Invoice
	err := s.runAtomic(ctx, func(db querier) error {
		_, err := db.Exec(ctx, `
			INSERT INTO captured_transactions (account_id, transaction_id, amount, created_at)
			VALUES ($1, $2, $3, $4)`,
			uuidToPg(accountID), transactionID, amountToNumeric(delta), timeToPg(timeNow()))
		if err != nil {
			if isUniqueViolation(err) {
				return errs.AlreadyAppliedErr()
			}
			return errs.Wrap(errs.Internal, err, "ledger: record captured transaction")
		}

		row := db.QueryRow(ctx, `
			UPDATE invoices SET amount_captured = amount_captured + $2
			WHERE account_id = $1
			RETURNING id, buyer_user_id, buyer_currency, amount_captured, account_id,
			          final_amount_paid, final_cashback_amount, paid_at, created_at`,
			uuidToPg(accountID), amountToNumeric(delta))
		inv, err := scanInvoiceRow(row)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "ledger: increase amount captured")
		}
		result = inv
		return nil
	})
	return result, err
}

// --- PaymentIntent ---

func (s *PostgresStore) GetPaymentIntentLinkByInvoice(ctx context.Context, invoiceID uuid.UUID) (*PaymentIntentLink, error) {
	row := s.db.QueryRow(ctx, `SELECT invoice_id, payment_intent_id FROM payment_intent_links WHERE invoice_id = $1`, uuidToPg(invoiceID))
	var link PaymentIntentLink
	var invID pgtype.UUID
	if err := row.Scan(&invID, &link.PaymentIntentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("payment intent link for invoice %s", invoiceID)
		}
		return nil, errs.Wrap(errs.Internal, err, "ledger: get payment intent link")
	}
	link.InvoiceID = pgToUUID(invID)
	return &link, nil
}

func (s *PostgresStore) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, amount, amount_received, currency, status, charge_id
		FROM payment_intents WHERE id = $1`, id)
	pi, err := scanPaymentIntentRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFoundf("payment intent %s", id)
		}
		return nil, errs.Wrap(errs.Internal, err, "ledger: get payment intent")
	}
	return pi, nil
}

func (s *PostgresStore) CreatePaymentIntent(ctx context.Context, pi *PaymentIntent, invoiceID uuid.UUID) error {
	return s.runAtomic(ctx, func(db querier) error {
		_, err := db.Exec(ctx, `
			INSERT INTO payment_intents (id, amount, amount_received, currency, status, charge_id)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			pi.ID, amountToNumeric(pi.Amount), amountToNumeric(pi.AmountReceived), pi.Currency, pi.Status, textPtrToPg(pi.ChargeID))
		if err != nil {
			return errs.Wrap(errs.Internal, err, "ledger: create payment intent")
		}
		_, err = db.Exec(ctx, `
			INSERT INTO payment_intent_links (invoice_id, payment_intent_id) VALUES ($1, $2)`,
			uuidToPg(invoiceID), pi.ID)
		if err != nil {
			return errs.Wrap(errs.Internal, err, "ledger: link payment intent")
		}
		return nil
	})
}

func (s *PostgresStore) UpdatePaymentIntentStatus(ctx context.Context, id string, status string) error {
	_, err := s.db.Exec(ctx, `UPDATE payment_intents SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: update payment intent status")
	}
	return nil
}

func (s *PostgresStore) DeletePaymentIntentLink(ctx context.Context, invoiceID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM payment_intent_links WHERE invoice_id = $1`, uuidToPg(invoiceID))
	if err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: delete payment intent link")
	}
	return nil
}

func (s *PostgresStore) DeletePaymentIntent(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM payment_intents WHERE id = $1`, id)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: delete payment intent")
	}
	return nil
}

// --- Fee ---

func (s *PostgresStore) CreateFee(ctx context.Context, f *Fee) error {
	var cryptoCurrency pgtype.Text
	var cryptoAmount pgtype.Numeric
	if f.CryptoCurrency != nil {
		cryptoCurrency = textPtrToPg(f.CryptoCurrency)
	}
	if f.CryptoAmount != nil {
		cryptoAmount = amountToNumeric(*f.CryptoAmount)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO fees (id, order_id, currency, amount, status, charge_id, crypto_currency, crypto_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuidToPg(f.ID), uuidToPg(f.OrderID), f.Currency, amountToNumeric(f.Amount), string(f.Status),
		textPtrToPg(f.ChargeID), cryptoCurrency, cryptoAmount)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: create fee")
	}
	return nil
}

func (s *PostgresStore) GetFeesByOrder(ctx context.Context, orderID uuid.UUID) ([]Fee, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, currency, amount, status, charge_id, crypto_currency, crypto_amount
		FROM fees WHERE order_id = $1`, uuidToPg(orderID))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "ledger: get fees by order")
	}
	defer rows.Close()

	var out []Fee
	for rows.Next() {
		f, err := scanFeeRowScanner(rows)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "ledger: scan fee")
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// --- Event queue ---

func (s *PostgresStore) EnqueueEvent(ctx context.Context, payload []byte, scheduledFor *time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.Exec(ctx, `
		INSERT INTO event_store (id, payload, status, scheduled_for, attempts, created_at)
		VALUES ($1, $2, 'pending', $3, 0, $4)`,
		uuidToPg(id), payload, timePtrToPg(scheduledFor), timeToPg(timeNow()))
	if err != nil {
		return uuid.Nil, errs.Wrap(errs.Internal, err, "ledger: enqueue event")
	}
	return id, nil
}

func (s *PostgresStore) ResetStuckEvents(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE event_store SET status = 'pending', lease_until = NULL
		WHERE status = 'in_progress' AND lease_until IS NOT NULL AND lease_until < $1`, timeToPg(now))
	if err != nil {
		return 0, errs.Wrap(errs.Internal, err, "ledger: reset stuck events")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DequeuePendingEvent(ctx context.Context, now time.Time, leaseFor time.Duration) (*EventEntry, error) {
	var entry *EventEntry
	err := s.runAtomic(ctx, func(db querier) error {
		row := db.QueryRow(ctx, `
			SELECT id, payload, status, scheduled_for, attempts, lease_until, created_at
			FROM event_store
			WHERE status = 'pending' AND (scheduled_for IS NULL OR scheduled_for <= $1)
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED`, timeToPg(now))
		e, err := scanEventRow(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				entry = nil
				return nil
			}
			return errs.Wrap(errs.Internal, err, "ledger: dequeue pending event")
		}

		leaseUntil := now.Add(leaseFor)
		_, err = db.Exec(ctx, `
			UPDATE event_store SET status = 'in_progress', lease_until = $2, attempts = attempts + 1
			WHERE id = $1`, uuidToPg(e.ID), timeToPg(leaseUntil))
		if err != nil {
			return errs.Wrap(errs.Internal, err, "ledger: lease event")
		}
		e.Status = EventInProgress
		e.LeaseUntil = &leaseUntil
		e.Attempts++
		entry = e
		return nil
	})
	return entry, err
}

func (s *PostgresStore) CompleteEvent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE event_store SET status = 'completed', lease_until = NULL WHERE id = $1`, uuidToPg(id))
	if err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: complete event")
	}
	return nil
}

func (s *PostgresStore) FailEvent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE event_store SET status = 'failed', lease_until = NULL WHERE id = $1`, uuidToPg(id))
	if err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: fail event")
	}
	return nil
}

// runAtomic executes fn against a fresh transaction unless s is already
// tx-bound (s.pool == nil), in which case it reuses s.db directly.
func (s *PostgresStore) runAtomic(ctx context.Context, fn func(db querier) error) error {
	if s.pool == nil {
		return fn(s.db)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Wrap(errs.Internal, err, "ledger: commit transaction")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func timeNow() time.Time { return time.Now().UTC() }

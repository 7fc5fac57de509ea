// Package invoice orchestrates invoice creation, recalculation, and
// deletion, and reconciles inbound crypto transactions — dispatching the
// right sub-flow by buyer currency (fiat vs crypto). It is grounded
// directly on the teacher's invoice_service.go: one service struct holding
// the ledger and PSP-client dependencies, context.Context as the first
// parameter of every method, and helper functions for struct conversion
// collected at the bottom of each file.
package invoice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cyphera/paymentd/internal/cardpsp"
	"github.com/cyphera/paymentd/internal/cryptopsp"
	"github.com/cyphera/paymentd/internal/eventqueue"
	"github.com/cyphera/paymentd/internal/ledger"
	"github.com/cyphera/paymentd/internal/money"
	"github.com/cyphera/paymentd/internal/pricing"
	"github.com/cyphera/paymentd/pkg/errs"
)

// Service orchestrates the payment lifecycle across the ledger and the two
// PSP clients. It holds no per-request state; every method takes its
// inputs as parameters, matching the teacher's InvoiceService shape.
type Service struct {
	store     ledger.Store
	cryptoPSP cryptopsp.Client
	cardPSP   cardpsp.Client
	log       *zap.Logger
	saga      SagaNotifier

	cryptoExpiry    time.Duration
	fiatExpiry      time.Duration
	feeOrderPercent decimal.Decimal
	maxAccounts     int
}

// NewService builds an invoice orchestrator. feeOrderPercent is a plain
// percentage (e.g. 2.5 meaning 2.5%).
func NewService(
	store ledger.Store,
	cryptoPSP cryptopsp.Client,
	cardPSP cardpsp.Client,
	log *zap.Logger,
	cryptoExpiry, fiatExpiry time.Duration,
	feeOrderPercent float64,
	maxAccounts int,
) *Service {
	return &Service{
		store:           store,
		cryptoPSP:       cryptoPSP,
		cardPSP:         cardPSP,
		log:             log,
		cryptoExpiry:    cryptoExpiry,
		fiatExpiry:      fiatExpiry,
		feeOrderPercent: decimal.NewFromFloat(feeOrderPercent),
		maxAccounts:     maxAccounts,
	}
}

// NewOrderInput is one caller-supplied order line for CreateInvoice.
type NewOrderInput struct {
	OrderID         uuid.UUID
	StoreID         uuid.UUID
	SellerCurrency  string
	SellerTotal     money.Amount
	CashbackPercent *decimal.Decimal
}

// CreateInvoiceInput gathers 4.E.1's preconditions.
type CreateInvoiceInput struct {
	SagaID        uuid.UUID // used as the invoice id
	BuyerCurrency string
	BuyerUserID   uuid.UUID
	Orders        []NewOrderInput
}

type pricedOrder struct {
	order      ledger.Order
	exchangeID *string
	rate       decimal.Decimal
}

// CreateInvoice implements 4.E.1: prices every order, then in one DB
// transaction inserts the invoice, its orders and initial rates, the
// expiry event, and — depending on buyer currency — either a PaymentIntent
// (card flow) or a pooled account link (crypto flow).
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (pricing.InvoiceDump, error) {
	priced := make([]pricedOrder, 0, len(in.Orders))
	for _, o := range in.Orders {
		p, err := s.priceNewOrder(ctx, in.BuyerCurrency, o)
		if err != nil {
			return pricing.InvoiceDump{}, err
		}
		priced = append(priced, p)
	}

	isCardFlow := money.IsFiat(in.BuyerCurrency)

	var piLink *ledger.PaymentIntent
	if isCardFlow {
		pi, err := s.createCardPaymentIntent(ctx, priced, in.BuyerCurrency)
		if err != nil {
			return pricing.InvoiceDump{}, err
		}
		piLink = pi
	}

	var accountID *uuid.UUID
	if !isCardFlow {
		id, err := s.getOrCreateFreePooledAccount(ctx, in.BuyerCurrency)
		if err != nil {
			return pricing.InvoiceDump{}, err
		}
		accountID = &id
	}

	expiry := s.fiatExpiry
	if !isCardFlow {
		expiry = s.cryptoExpiry
	}
	scheduledFor := time.Now().Add(expiry)

	invoice := ledger.Invoice{
		ID:            in.SagaID,
		BuyerUserID:   in.BuyerUserID,
		BuyerCurrency: in.BuyerCurrency,
		AmountCaptured: money.Zero(),
		AccountID:     accountID,
		CreatedAt:     time.Now(),
	}

	err := s.store.WithTx(ctx, func(tx ledger.Store) error {
		payload, err := eventqueue.EncodePaymentExpired(invoice.ID)
		if err != nil {
			return err
		}
		if _, err := tx.EnqueueEvent(ctx, payload, &scheduledFor); err != nil {
			return errs.Wrap(errs.Internal, err, "invoice: enqueue payment expiry")
		}

		if piLink != nil {
			if err := tx.CreatePaymentIntent(ctx, piLink, invoice.ID); err != nil {
				return errs.Wrap(errs.Internal, err, "invoice: persist payment intent")
			}
		}

		if err := tx.CreateInvoice(ctx, &invoice); err != nil {
			return errs.Wrap(errs.Internal, err, "invoice: create invoice")
		}

		for _, p := range priced {
			order := p.order
			order.InvoiceID = invoice.ID
			if err := tx.CreateOrder(ctx, &order); err != nil {
				return errs.Wrap(errs.Internal, err, "invoice: create order")
			}
			if _, err := tx.CreateRate(ctx, ledger.NewRate{
				OrderID:    order.ID,
				ExchangeID: p.exchangeID,
				Rate:       p.rate,
			}); err != nil {
				return errs.Wrap(errs.Internal, err, "invoice: create initial rate")
			}
		}
		return nil
	})
	if err != nil {
		return pricing.InvoiceDump{}, err
	}

	return s.dumpInvoice(ctx, invoice.ID)
}

// priceNewOrder computes the initial (order, exchange_id, rate) triple for
// one caller-supplied order, per 4.E.1's pricing rules.
func (s *Service) priceNewOrder(ctx context.Context, buyerCurrency string, in NewOrderInput) (pricedOrder, error) {
	cashbackPercent := decimal.Zero
	if in.CashbackPercent != nil {
		cashbackPercent = *in.CashbackPercent
	}
	cashbackAmount := in.SellerTotal.Decimal().Mul(cashbackPercent).Div(decimal.NewFromInt(100))

	order := ledger.Order{
		ID:             in.OrderID,
		SellerCurrency: in.SellerCurrency,
		TotalAmount:    in.SellerTotal,
		CashbackAmount: cashbackAmount,
		StoreID:        in.StoreID,
		State:          ledger.OrderInitial,
	}

	buyerIsFiat := money.IsFiat(buyerCurrency)
	sellerIsFiat := money.IsFiat(in.SellerCurrency)

	switch {
	case buyerIsFiat && sellerIsFiat:
		if buyerCurrency != in.SellerCurrency {
			return pricedOrder{}, errs.Validationf(
				map[string]interface{}{"buyer_currency": buyerCurrency, "seller_currency": in.SellerCurrency},
				"buyer_currency and seller_currency must match for fiat orders")
		}
		return pricedOrder{order: order, rate: decimal.NewFromInt(1)}, nil

	case !buyerIsFiat && !sellerIsFiat:
		if buyerCurrency == in.SellerCurrency {
			return pricedOrder{order: order, rate: decimal.NewFromInt(1)}, nil
		}
		rate, err := s.cryptoPSP.GetRate(ctx, buyerCurrency, in.SellerCurrency, in.SellerTotal.Decimal())
		if err != nil {
			return pricedOrder{}, errs.Wrap(errs.Internal, err, "invoice: get rate")
		}
		exchangeID := rate.ExchangeID
		return pricedOrder{order: order, exchangeID: &exchangeID, rate: rate.Rate}, nil

	default:
		return pricedOrder{}, errs.Internalf("not supported yet")
	}
}

// dumpInvoice reloads the invoice and its orders/rates and runs the
// pricing engine to produce the caller-facing InvoiceDump.
func (s *Service) dumpInvoice(ctx context.Context, invoiceID uuid.UUID) (pricing.InvoiceDump, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return pricing.InvoiceDump{}, err
	}

	orders, err := s.store.GetOrdersByInvoice(ctx, invoiceID)
	if err != nil {
		return pricing.InvoiceDump{}, errs.Wrap(errs.Internal, err, "invoice: load orders")
	}

	inputs := make([]pricing.OrderInput, 0, len(orders))
	for _, o := range orders {
		rates, err := s.store.GetAllRatesForOrder(ctx, o.ID)
		if err != nil {
			return pricing.InvoiceDump{}, errs.Wrap(errs.Internal, err, "invoice: load rates")
		}
		inputs = append(inputs, pricing.OrderInput{Order: o, Rates: rates})
	}

	var wallet *string
	if inv.AccountID != nil {
		acc, err := s.store.GetAccount(ctx, *inv.AccountID)
		if err == nil {
			wallet = &acc.WalletAddress
		}
	}

	return pricing.Compute(*inv, inputs, wallet)
}

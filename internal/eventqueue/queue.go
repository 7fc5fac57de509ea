// Package eventqueue drives the durable event journal's single-threaded
// consumer loop: reset stuck leases, dequeue one pending entry per tick,
// dispatch it by payload kind, and mark it Completed or Failed. The ticker
// loop is grounded on the teacher's ScheduledChangesProcessor — a
// Start/Stop pair around a goroutine selecting on a ticker and a stop
// channel, processing immediately on startup.
package eventqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cyphera/paymentd/internal/ledger"
	"github.com/cyphera/paymentd/pkg/errs"
)

// Dispatcher is the handler surface the event engine calls into for each
// payload kind. internal/invoice.Service satisfies this structurally; the
// event engine never imports internal/invoice, avoiding the import cycle
// that would otherwise result from invoice needing to enqueue events that
// this package's handlers dispatch back into invoice.
type Dispatcher interface {
	HandleInvoicePaid(ctx context.Context, invoiceID uuid.UUID) error
	HandlePaymentIntentPaymentFailed(ctx context.Context, paymentIntentID string) error
	HandlePaymentIntentAmountCapturableUpdated(ctx context.Context, paymentIntentID string) error
	HandlePaymentIntentSucceeded(ctx context.Context, paymentIntentID string) error
	HandlePaymentIntentCapture(ctx context.Context, orderID uuid.UUID) error
	HandlePaymentExpired(ctx context.Context, invoiceID uuid.UUID) error
	HandlePayoutInitiated(ctx context.Context, payoutID string) error
}

// Engine runs the consumer loop against a ledger.Store, dispatching
// decoded payloads to a Dispatcher.
type Engine struct {
	store      ledger.Store
	dispatcher Dispatcher
	log        *zap.Logger

	interval time.Duration
	leaseFor time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEngine builds an Engine. interval is the tick period; leaseFor is how
// long a dequeued entry's InProgress lease is held before reset_stuck_events
// considers it abandoned.
func NewEngine(store ledger.Store, dispatcher Dispatcher, log *zap.Logger, interval, leaseFor time.Duration) *Engine {
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		log:        log,
		interval:   interval,
		leaseFor:   leaseFor,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the consumer loop in a background goroutine.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.run()
	e.log.Info("event engine started", zap.Duration("interval", e.interval))
}

// Stop signals the loop to exit and waits for it to finish.
func (e *Engine) Stop() {
	e.log.Info("stopping event engine...")
	close(e.stopCh)
	e.wg.Wait()
	e.log.Info("event engine stopped")
}

func (e *Engine) run() {
	defer e.wg.Done()

	e.Tick()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Tick()
		case <-e.stopCh:
			return
		}
	}
}

// Tick implements one pass of 4.F's queue semantics: reset stuck leases,
// dequeue at most one pending entry, dispatch it, and record the outcome.
func (e *Engine) Tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now()
	if n, err := e.store.ResetStuckEvents(ctx, now); err != nil {
		e.log.Error("failed to reset stuck events", zap.Error(err))
	} else if n > 0 {
		e.log.Info("reset stuck events", zap.Int("count", n))
	}

	entry, err := e.store.DequeuePendingEvent(ctx, now, e.leaseFor)
	if err != nil {
		if !errs.Is(err, errs.NotFound) {
			e.log.Error("failed to dequeue pending event", zap.Error(err))
		}
		return
	}
	if entry == nil {
		return // queue empty
	}

	if err := e.dispatch(ctx, entry); err != nil {
		e.log.Error("event handler failed", zap.String("event_id", entry.ID.String()), zap.Error(err))
		if failErr := e.store.FailEvent(ctx, entry.ID); failErr != nil {
			e.log.Error("failed to mark event failed", zap.String("event_id", entry.ID.String()), zap.Error(failErr))
		}
		return
	}

	if err := e.store.CompleteEvent(ctx, entry.ID); err != nil {
		e.log.Error("failed to mark event completed", zap.String("event_id", entry.ID.String()), zap.Error(err))
	}
}

// dispatch decodes entry's payload and routes it to the matching handler.
// Events of different ids may be processed out of order across restarts,
// so every handler must be idempotent against its own effects.
func (e *Engine) dispatch(ctx context.Context, entry *ledger.EventEntry) error {
	payload, err := Decode(entry.Payload)
	if err != nil {
		return err
	}

	switch payload.Kind {
	case KindNoOp:
		return nil

	case KindInvoicePaid:
		return e.dispatcher.HandleInvoicePaid(ctx, mustUUID(payload.InvoiceID))

	case KindPaymentIntentPaymentFailed:
		return e.dispatcher.HandlePaymentIntentPaymentFailed(ctx, mustString(payload.PaymentIntentID))

	case KindPaymentIntentAmountCapturableUpdated:
		return e.dispatcher.HandlePaymentIntentAmountCapturableUpdated(ctx, mustString(payload.PaymentIntentID))

	case KindPaymentIntentSucceeded:
		return e.dispatcher.HandlePaymentIntentSucceeded(ctx, mustString(payload.PaymentIntentID))

	case KindPaymentIntentCapture:
		return e.dispatcher.HandlePaymentIntentCapture(ctx, mustUUID(payload.OrderID))

	case KindPaymentExpired:
		return e.dispatcher.HandlePaymentExpired(ctx, mustUUID(payload.InvoiceID))

	case KindPayoutInitiated:
		return e.dispatcher.HandlePayoutInitiated(ctx, mustString(payload.PayoutID))

	default:
		return errs.Internalf("eventqueue: unknown payload kind %q", payload.Kind)
	}
}

func mustUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

func mustString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

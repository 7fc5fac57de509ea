// Package webhookingress exposes the two inbound webhook endpoints the rest
// of this module depends on to learn about money movement: the crypto PSP's
// signed transaction callback and the card PSP's Stripe-shaped event
// stream. Grounded on the teacher's gin handler struct pattern
// (PaymentSyncHandlers): one struct holding its dependencies, one
// constructor, http.Status* written directly via gin.Context rather than a
// shared response helper.
package webhookingress

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cyphera/paymentd/internal/cardpsp"
	"github.com/cyphera/paymentd/internal/cryptopsp"
	"github.com/cyphera/paymentd/internal/eventqueue"
	"github.com/cyphera/paymentd/internal/invoice"
	"github.com/cyphera/paymentd/internal/ledger"
	"github.com/cyphera/paymentd/pkg/errs"
)

// Handlers wires the two PSP clients (needed for signature verification and
// webhook parsing) and the ledger store (to enqueue card-PSP events for the
// event engine to pick up later) into gin routes.
type Handlers struct {
	invoice *invoice.Service
	signer  *cryptopsp.Signer
	cardPSP cardpsp.Client
	store   ledger.Store
	log     *zap.Logger
}

// New builds Handlers. signer verifies the crypto PSP's inbound webhook
// signature; cardPSP.ParseWebhook verifies the card PSP's.
func New(invoiceSvc *invoice.Service, signer *cryptopsp.Signer, cardPSP cardpsp.Client, store ledger.Store, log *zap.Logger) *Handlers {
	return &Handlers{invoice: invoiceSvc, signer: signer, cardPSP: cardPSP, store: store, log: log}
}

// Register mounts the webhook routes and a plain health check onto router.
func (h *Handlers) Register(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.POST("/callback/crypto", h.CryptoCallback)
	router.POST("/callback/card", h.CardWebhook)
}

// Health reports the process is up. It does not probe the database or
// either PSP — a liveness check, not a readiness check.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type cryptoCallbackRequest struct {
	TransactionID  string  `json:"transactionId"`
	AccountID      *string `json:"accountId"`
	AmountCaptured string  `json:"amountCaptured"`
	Address        string  `json:"address"`
	Currency       string  `json:"currency"`
}

// CryptoCallback implements 4.E.4's ingress: verify the Sign header against
// the raw body, parse it, and hand it to the invoice service. Success, an
// unknown account and an already-applied transaction are all acknowledged
// with 200, per the crypto PSP's "don't retry me" contract. A signature
// failure gets 403, a malformed body 400, and any other processing error
// the status its error kind maps to.
func (h *Handlers) CryptoCallback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if err := h.signer.VerifyWebhook(body, c.GetHeader("Sign")); err != nil {
		h.log.Warn("crypto webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusForbidden, gin.H{"error": "signature verification failed"})
		return
	}

	var req cryptoCallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.log.Warn("crypto webhook malformed body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	cb, err := parseCryptoCallback(req)
	if err != nil {
		h.log.Warn("crypto webhook invalid account id", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	if err := h.invoice.HandleCryptoCallback(c.Request.Context(), cb); err != nil {
		if errs.Is(err, errs.NotFound) || errs.Is(err, errs.AlreadyApplied) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		h.log.Error("crypto webhook processing failed", zap.Error(err))
		c.JSON(errs.HTTPStatus(err), gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// CardWebhook implements the card PSP side of 4.F's ingress: parse and
// verify via cardpsp.Client.ParseWebhook, then enqueue the matching durable
// event for the event engine to dispatch asynchronously. This handler never
// touches the invoice directly — it only ever writes one EventEntry row.
func (h *Handlers) CardWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	event, err := h.cardPSP.ParseWebhook(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.log.Warn("card webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusForbidden, gin.H{"error": "signature verification failed"})
		return
	}

	payload, err := encodeCardEvent(event)
	if err != nil {
		h.log.Error("card webhook encode failed", zap.String("raw_type", event.RawType), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}
	if payload == nil {
		h.log.Info("card webhook event ignored", zap.String("raw_type", event.RawType))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if _, err := h.store.EnqueueEvent(c.Request.Context(), payload, nil); err != nil {
		h.log.Error("card webhook enqueue failed", zap.String("raw_type", event.RawType), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// encodeCardEvent maps a parsed card-PSP event to its queue payload. Events
// outside our three kinds of interest (EventKindOther) return a nil payload
// so the caller can acknowledge without enqueuing anything.
func encodeCardEvent(event cardpsp.Event) ([]byte, error) {
	switch event.Kind {
	case cardpsp.EventKindPaymentIntentAmountCapturableUpdated:
		return eventqueue.EncodePaymentIntentAmountCapturableUpdated(event.PaymentIntentID)
	case cardpsp.EventKindPaymentIntentPaymentFailed:
		return eventqueue.EncodePaymentIntentPaymentFailed(event.PaymentIntentID)
	case cardpsp.EventKindPaymentIntentSucceeded:
		return eventqueue.EncodePaymentIntentSucceeded(event.PaymentIntentID)
	default:
		return nil, nil
	}
}

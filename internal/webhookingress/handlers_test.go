package webhookingress

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cyphera/paymentd/internal/cardpsp"
	"github.com/cyphera/paymentd/internal/cryptopsp"
	"github.com/cyphera/paymentd/internal/invoice"
	"github.com/cyphera/paymentd/internal/ledger"
	"github.com/cyphera/paymentd/internal/money"
)

func newTestSigner(t *testing.T) (*cryptopsp.Signer, func(body []byte) string) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	privHex := hex.EncodeToString(crypto.FromECDSA(priv))
	pubHex := hex.EncodeToString(crypto.FromECDSAPub(&priv.PublicKey))

	signer, err := cryptopsp.NewSigner(privHex, pubHex)
	require.NoError(t, err)

	sign := func(body []byte) string {
		hash := sha256.Sum256(body)
		sig, err := crypto.Sign(hash[:], priv)
		require.NoError(t, err)
		return hex.EncodeToString(sig)
	}
	return signer, sign
}

func newTestHandlers(t *testing.T) (*Handlers, *ledger.FakeStore, *cardpsp.FakeClient, func([]byte) string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := ledger.NewFakeStore()
	cryptoPSP := cryptopsp.NewFakeClient()
	cardPSP := cardpsp.NewFakeClient()
	svc := invoice.NewService(store, cryptoPSP, cardPSP, zap.NewNop(), time.Hour, 30*time.Minute, 2.5, 3)
	signer, sign := newTestSigner(t)

	return New(svc, signer, cardPSP, store, zap.NewNop()), store, cardPSP, sign
}

func TestHealth_ReturnsOK(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)
	router := gin.New()
	h.Register(router)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCryptoCallback_RejectsBadSignature(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)
	router := gin.New()
	h.Register(router)

	body := []byte(`{"transactionId":"tx-1","amountCaptured":"1000","address":"0xabc","currency":"USDC"}`)
	req := httptest.NewRequest(http.MethodPost, "/callback/crypto", bytes.NewReader(body))
	req.Header.Set("Sign", "deadbeef")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCryptoCallback_UnknownAccountIsAcknowledged(t *testing.T) {
	h, _, _, sign := newTestHandlers(t)
	router := gin.New()
	h.Register(router)

	body := []byte(`{"transactionId":"tx-1","amountCaptured":"1000","address":"0xnope","currency":"USDC"}`)
	req := httptest.NewRequest(http.MethodPost, "/callback/crypto", bytes.NewReader(body))
	req.Header.Set("Sign", sign(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCardWebhook_SignatureFailureReturnsForbidden(t *testing.T) {
	h, _, cardPSP, _ := newTestHandlers(t)
	cardPSP.VerifyFails = true
	router := gin.New()
	h.Register(router)

	req := httptest.NewRequest(http.MethodPost, "/callback/card", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "bad")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCardWebhook_EnqueuesAmountCapturableUpdatedEvent(t *testing.T) {
	h, store, cardPSP, _ := newTestHandlers(t)
	cardPSP.SetNextAmountCapturableUpdated("pi_123", money.Zero(), money.Zero())
	router := gin.New()
	h.Register(router)

	req := httptest.NewRequest(http.MethodPost, "/callback/card", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "sig")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	entry, err := store.DequeuePendingEvent(req.Context(), time.Now(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, entry)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Payload, &decoded))
	require.Equal(t, "payment_intent_amount_capturable_updated", decoded["kind"])
}

func TestCardWebhook_IgnoresOtherEventKinds(t *testing.T) {
	h, store, _, _ := newTestHandlers(t)
	router := gin.New()
	h.Register(router)

	req := httptest.NewRequest(http.MethodPost, "/callback/card", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "sig")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	entry, err := store.DequeuePendingEvent(req.Context(), time.Now(), time.Minute)
	require.NoError(t, err)
	require.Nil(t, entry)
}

package cryptopsp

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func newTestKeyPair(t *testing.T) (privHex, pubHex string) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return hex.EncodeToString(crypto.FromECDSA(priv)), hex.EncodeToString(crypto.FromECDSAPub(&priv.PublicKey))
}

func TestSignOutbound_ProducesHexSignature(t *testing.T) {
	privHex, pubHex := newTestKeyPair(t)
	s, err := NewSigner(privHex, pubHex)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	ts, sigHex, err := s.SignOutbound(now)
	require.NoError(t, err)
	require.NotEmpty(t, ts)
	require.NotEmpty(t, sigHex)

	sigBytes, err := hex.DecodeString(sigHex)
	require.NoError(t, err)
	require.Len(t, sigBytes, 65) // crypto.Sign returns a 65-byte [R||S||V] compact signature
}

func TestVerifyWebhook_AcceptsMatchingSignature(t *testing.T) {
	privHex, pubHex := newTestKeyPair(t)
	s, err := NewSigner(privHex, pubHex)
	require.NoError(t, err)

	body := []byte(`{"transaction_id":"tx-1","amount_captured":"1000"}`)
	hash := sha256.Sum256(body)
	sig, err := crypto.Sign(hash[:], s.privateKey)
	require.NoError(t, err)

	require.NoError(t, s.VerifyWebhook(body, hex.EncodeToString(sig)))
}

func TestVerifyWebhook_RejectsTamperedBody(t *testing.T) {
	privHex, pubHex := newTestKeyPair(t)
	s, err := NewSigner(privHex, pubHex)
	require.NoError(t, err)

	body := []byte(`{"transaction_id":"tx-1"}`)
	hash := sha256.Sum256(body)
	sig, err := crypto.Sign(hash[:], s.privateKey)
	require.NoError(t, err)

	err = s.VerifyWebhook([]byte(`{"transaction_id":"tx-2"}`), hex.EncodeToString(sig))
	require.Error(t, err)
}

func TestVerifyWebhook_RejectsGarbageSignature(t *testing.T) {
	_, pubHex := newTestKeyPair(t)
	privHex, _ := newTestKeyPair(t)
	s, err := NewSigner(privHex, pubHex)
	require.NoError(t, err)

	err = s.VerifyWebhook([]byte("body"), "not-hex")
	require.Error(t, err)
}

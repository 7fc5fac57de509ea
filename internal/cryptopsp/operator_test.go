package cryptopsp

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newTestRSAKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return priv, base64.StdEncoding.EncodeToString(pemBytes)
}

func signTestToken(t *testing.T, priv *rsa.PrivateKey, userID string, issuedAt time.Time) string {
	t.Helper()
	claims := operatorClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func TestParseOperatorJWT_ExtractsUserID(t *testing.T) {
	priv, pubB64 := newTestRSAKeyPair(t)
	token := signTestToken(t, priv, "operator-123", time.Now())

	identity, err := ParseOperatorJWT(token, pubB64)
	require.NoError(t, err)
	require.Equal(t, "operator-123", identity.UserID)
}

func TestParseOperatorJWT_RejectsWrongKey(t *testing.T) {
	priv, _ := newTestRSAKeyPair(t)
	_, otherPubB64 := newTestRSAKeyPair(t)
	token := signTestToken(t, priv, "operator-123", time.Now())

	_, err := ParseOperatorJWT(token, otherPubB64)
	require.Error(t, err)
}

func TestParseOperatorJWT_RejectsMissingUserID(t *testing.T) {
	priv, pubB64 := newTestRSAKeyPair(t)
	claims := operatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(priv)
	require.NoError(t, err)

	_, err = ParseOperatorJWT(signed, pubB64)
	require.Error(t, err)
}

package cryptopsp

import (
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// OperatorIdentity is extracted once at startup from the configured JWT's
// user_id claim — simplified from the teacher's Auth0/JWKS-fetching
// middleware (internal/auth/middleware.go) down to one static, pre-issued
// token and one configured RS256 public key, since there is no Auth0 tenant
// in scope here.
type OperatorIdentity struct {
	UserID string
}

type operatorClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// ParseOperatorJWT verifies tokenString against the base64-encoded RS256
// public key with 60s leeway and extracts the user_id claim.
func ParseOperatorJWT(tokenString, publicKeyBase64 string) (*OperatorIdentity, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return nil, errors.Wrap(err, "cryptopsp: decode operator public key")
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(keyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "cryptopsp: parse operator public key")
	}

	claims := &operatorClaims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return pubKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithLeeway(60*time.Second))
	if err != nil {
		return nil, errors.Wrap(err, "cryptopsp: validate operator JWT")
	}
	if claims.UserID == "" {
		return nil, errors.New("cryptopsp: operator JWT missing user_id claim")
	}
	return &OperatorIdentity{UserID: claims.UserID}, nil
}

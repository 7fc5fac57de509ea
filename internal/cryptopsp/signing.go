package cryptopsp

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Signer produces the signature + timestamp headers every outgoing crypto
// PSP request carries, and verifies the inbound webhook signature. Both
// directions hash with SHA-256 and sign/verify secp256k1 compact signatures,
// per the wire contract's "body hash = SHA-256(timestamp || device_id)".
type Signer struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey // webhook counterparty's key
}

// NewSigner builds a Signer from hex-encoded operator private key bytes and
// the hex-encoded public key used to verify inbound webhooks.
func NewSigner(privateKeyHex, webhookPublicKeyHex string) (*Signer, error) {
	priv, err := crypto.HexToECDSA(trim0x(privateKeyHex))
	if err != nil {
		return nil, errors.Wrap(err, "cryptopsp: parse operator private key")
	}
	pubBytes, err := hex.DecodeString(trim0x(webhookPublicKeyHex))
	if err != nil {
		return nil, errors.Wrap(err, "cryptopsp: decode webhook public key")
	}
	pub, err := crypto.UnmarshalPubkey(pubBytes)
	if err != nil {
		return nil, errors.Wrap(err, "cryptopsp: parse webhook public key")
	}
	return &Signer{privateKey: priv, publicKey: pub}, nil
}

// SignOutbound computes the signature headers for an outbound request: the
// unix timestamp used in the hash, and the hex-encoded compact signature.
// The device_id half of the hash is always empty — preserved byte-for-byte
// per the wire contract, even though that looks like an odd choice.
func (s *Signer) SignOutbound(now time.Time) (timestamp string, signatureHex string, err error) {
	ts := strconv.FormatInt(now.Unix(), 10)
	hash := sha256.Sum256([]byte(ts + ""))
	sig, err := crypto.Sign(hash[:], s.privateKey)
	if err != nil {
		return "", "", errors.Wrap(err, "cryptopsp: sign outbound request")
	}
	return ts, hex.EncodeToString(sig), nil
}

// VerifyWebhook checks the hex-encoded `Sign` header against SHA-256(body).
func (s *Signer) VerifyWebhook(body []byte, signHeaderHex string) error {
	sig, err := hex.DecodeString(signHeaderHex)
	if err != nil {
		return errors.Wrap(err, "cryptopsp: decode Sign header")
	}
	if len(sig) == 65 {
		sig = sig[:64] // drop recovery id, VerifySignature wants R||S only
	}
	hash := sha256.Sum256(body)
	pubBytes := crypto.FromECDSAPub(s.publicKey)
	if !crypto.VerifySignature(pubBytes, hash[:], sig) {
		return fmt.Errorf("cryptopsp: webhook signature verification failed")
	}
	return nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

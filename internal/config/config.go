// Package config loads process configuration from the environment (and a
// local .env file in development), mirroring cmd/api's loading style but
// collecting everything into one typed struct instead of scattered
// os.Getenv calls sprinkled through main.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the process needs.
type Config struct {
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	EventTickInterval time.Duration

	CryptoPSPURL                string
	CryptoPSPJWTPublicKeyBase64 string
	CryptoPSPUserJWT            string
	CryptoPSPUserPrivateKeyHex  string
	CryptoPSPMaxAccounts        int
	CryptoPSPSignPublicKey      string

	CardPSPSecretKey      string
	CardPSPWebhookSecret string

	PaymentExpiryCryptoTimeout time.Duration
	PaymentExpiryFiatTimeout   time.Duration

	FeeOrderPercent float64

	SagaBaseURL string

	HTTPPort string
}

// Load reads a .env file if present (missing is not an error — this mirrors
// production where env vars are injected directly) and then populates Config
// from the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "config: no .env file loaded: %v\n", err)
	}

	cfg := &Config{
		DatabaseURL:                  os.Getenv("DATABASE_URL"),
		CryptoPSPURL:                 os.Getenv("CRYPTO_PSP_URL"),
		CryptoPSPJWTPublicKeyBase64:  os.Getenv("CRYPTO_PSP_JWT_PUBLIC_KEY_BASE64"),
		CryptoPSPUserJWT:             os.Getenv("CRYPTO_PSP_USER_JWT"),
		CryptoPSPUserPrivateKeyHex:   os.Getenv("CRYPTO_PSP_USER_PRIVATE_KEY_HEX"),
		CryptoPSPSignPublicKey:       os.Getenv("CRYPTO_PSP_SIGN_PUBLIC_KEY"),
		CardPSPSecretKey:             os.Getenv("CARD_PSP_SECRET_KEY"),
		CardPSPWebhookSecret:         os.Getenv("CARD_PSP_WEBHOOK_SECRET"),
		SagaBaseURL:                  os.Getenv("SAGA_BASE_URL"),
		HTTPPort:                     getenvDefault("HTTP_PORT", "8080"),
	}

	var err error
	if cfg.DBMaxConns, err = getenvInt32Default("DB_MAX_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.DBMinConns, err = getenvInt32Default("DB_MIN_CONNS", 2); err != nil {
		return nil, err
	}
	if cfg.CryptoPSPMaxAccounts, err = getenvIntDefault("CRYPTO_PSP_MAX_ACCOUNTS", 1); err != nil {
		return nil, err
	}

	tick, err := getenvDurationDefault("EVENT_TICK_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.EventTickInterval = tick

	cryptoTimeoutMin, err := getenvIntDefault("PAYMENT_EXPIRY_CRYPTO_TIMEOUT_MIN", 60)
	if err != nil {
		return nil, err
	}
	cfg.PaymentExpiryCryptoTimeout = time.Duration(cryptoTimeoutMin) * time.Minute

	fiatTimeoutMin, err := getenvIntDefault("PAYMENT_EXPIRY_FIAT_TIMEOUT_MIN", 30)
	if err != nil {
		return nil, err
	}
	cfg.PaymentExpiryFiatTimeout = time.Duration(fiatTimeoutMin) * time.Minute

	feePercent, err := getenvFloatDefault("FEE_ORDER_PERCENT", 2.5)
	if err != nil {
		return nil, err
	}
	cfg.FeeOrderPercent = feePercent

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}

func getenvInt32Default(key string, def int32) (int32, error) {
	n, err := getenvIntDefault(key, int(def))
	return int32(n), err
}

func getenvFloatDefault(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s=%q: %w", key, v, err)
	}
	return f, nil
}

func getenvDurationDefault(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s=%q: %w", key, v, err)
	}
	return d, nil
}

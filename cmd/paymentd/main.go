// Command paymentd is the payment-orchestration daemon: one process
// serving the inbound webhook endpoints and driving the durable event
// queue's consumer loop against the same database. Wiring follows
// cmd/api/main.go's shape (gin.Default(), godotenv, required-env check,
// graceful shutdown over a signal-derived context) generalized to this
// module's own dependency set.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cyphera/paymentd/internal/cardpsp"
	"github.com/cyphera/paymentd/internal/config"
	"github.com/cyphera/paymentd/internal/cryptopsp"
	"github.com/cyphera/paymentd/internal/eventqueue"
	"github.com/cyphera/paymentd/internal/invoice"
	"github.com/cyphera/paymentd/internal/ledger"
	"github.com/cyphera/paymentd/internal/logger"
	"github.com/cyphera/paymentd/internal/sagaclient"
	"github.com/cyphera/paymentd/internal/webhookingress"
)

func main() {
	log, err := logger.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "paymentd: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(log); err != nil {
		log.Fatal("paymentd: fatal error", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MinConns = cfg.DBMinConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()

	store := ledger.NewPostgresStore(pool)

	operator, err := cryptopsp.ParseOperatorJWT(cfg.CryptoPSPUserJWT, cfg.CryptoPSPJWTPublicKeyBase64)
	if err != nil {
		return fmt.Errorf("parse crypto PSP operator JWT: %w", err)
	}
	log.Info("crypto PSP operator identity resolved", zap.String("user_id", operator.UserID))

	signer, err := cryptopsp.NewSigner(cfg.CryptoPSPUserPrivateKeyHex, cfg.CryptoPSPSignPublicKey)
	if err != nil {
		return fmt.Errorf("build crypto PSP signer: %w", err)
	}
	cryptoHTTP := cryptopsp.NewHTTPClient(log, cryptopsp.WithBaseURL(cfg.CryptoPSPURL))
	cryptoPSP := cryptopsp.NewRealClient(cryptoHTTP, signer, cfg.CryptoPSPUserJWT, log)

	cardPSP := cardpsp.NewRealClient(log, cfg.CardPSPSecretKey, cfg.CardPSPWebhookSecret)

	saga := sagaclient.NewHTTPClient(cfg.SagaBaseURL)

	invoiceSvc := invoice.NewService(
		store,
		cryptoPSP,
		cardPSP,
		log,
		cfg.PaymentExpiryCryptoTimeout,
		cfg.PaymentExpiryFiatTimeout,
		cfg.FeeOrderPercent,
		cfg.CryptoPSPMaxAccounts,
	)
	invoiceSvc.SetSagaNotifier(saga)

	const eventLeaseFor = 5 * time.Minute
	engine := eventqueue.NewEngine(store, invoiceSvc, log, cfg.EventTickInterval, eventLeaseFor)
	engine.Start()
	defer engine.Stop()

	router := gin.Default()
	webhookingress.New(invoiceSvc, signer, cardPSP, store, log).Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("paymentd listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

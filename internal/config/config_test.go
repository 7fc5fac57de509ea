package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyphera/paymentd/internal/config"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/paymentd")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, 5*time.Second, cfg.EventTickInterval)
	assert.Equal(t, 60*time.Minute, cfg.PaymentExpiryCryptoTimeout)
	assert.Equal(t, "8080", cfg.HTTPPort)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/paymentd")
	t.Setenv("EVENT_TICK_INTERVAL", "250ms")
	t.Setenv("FEE_ORDER_PERCENT", "3.75")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.EventTickInterval)
	assert.Equal(t, 3.75, cfg.FeeOrderPercent)
}

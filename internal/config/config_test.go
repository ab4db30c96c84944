package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	err := env.ParseWithOptions(cfg, env.Options{Environment: vars})
	return cfg, err
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := parse(map[string]string{
		"AUTH_JWT_SECRET": "s3cret",
		"COMMISSION_RATE": "0.25",
	})
	require.NoError(t, err)

	assert.True(t, cfg.Commission.Rate.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, int32(2), cfg.Commission.MinorUnits)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "https://api.paystack.co", cfg.Paystack.BaseApiURL)
	assert.Equal(t, "NGN", cfg.Paystack.Currency)
	assert.Equal(t, 30*time.Second, cfg.Paystack.Timeout)
	assert.Equal(t, time.Hour, cfg.Download.TokenTTL)
	assert.Equal(t, 72*time.Hour, cfg.Download.GuestTokenTTL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "http://localhost:3000/payment/callback", cfg.CallbackURL())
}

func TestParse_RequiresCommissionRate(t *testing.T) {
	_, err := parse(map[string]string{"AUTH_JWT_SECRET": "s3cret"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMMISSION_RATE")
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := parse(map[string]string{
		"AUTH_JWT_SECRET":       "s3cret",
		"COMMISSION_RATE":       "0.04",
		"DATABASE_DRIVER":       "postgres",
		"PAYSTACK_CALLBACK_URL": "https://shop.example/cb",
		"KAFKA_BROKERS":         "k1:9092,k2:9092",
		"DOWNLOAD_TOKEN_TTL":    "15m",
	})
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "https://shop.example/cb", cfg.CallbackURL())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Minute, cfg.Download.TokenTTL)
}

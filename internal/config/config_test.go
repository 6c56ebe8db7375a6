package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, int64(49000), cfg.Pricing.ShippingFee)
	assert.Equal(t, 0.1, cfg.Pricing.TaxRate)
	assert.Equal(t, int64(1000), cfg.Pricing.LoyaltyPointValue)
	assert.Equal(t, 0.5, cfg.Pricing.LoyaltyRedemptionCap)
	assert.Equal(t, 10*time.Second, cfg.CheckoutTimeout)
	assert.Empty(t, cfg.OTLPEndpoint)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("SHIPPING_FEE", "30000")
	t.Setenv("TAX_RATE", "0.08")
	t.Setenv("CHECKOUT_TIMEOUT", "3s")
	t.Setenv("NOTIFIER_WORKERS", "16")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, int64(30000), cfg.Pricing.ShippingFee)
	assert.Equal(t, 0.08, cfg.Pricing.TaxRate)
	assert.Equal(t, 3*time.Second, cfg.CheckoutTimeout)
	assert.Equal(t, 16, cfg.NotifierWorkers)
}

func TestLoadInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("SHIPPING_FEE", "free")
	t.Setenv("TAX_RATE", "-1")
	t.Setenv("CHECKOUT_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, int64(49000), cfg.Pricing.ShippingFee)
	assert.Equal(t, 0.1, cfg.Pricing.TaxRate)
	assert.Equal(t, 10*time.Second, cfg.CheckoutTimeout)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"STOREFRONT_API_URL", "STOREFRONT_HTTP_TIMEOUT", "KAFKA_BROKERS",
		"CHECKOUT_TICK", "CHECKOUT_LAPSE_CHECK", "FAKEAPI_RESERVATION_TTL",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, time.Second, cfg.CheckoutTick)
	assert.Equal(t, 10*time.Second, cfg.CheckoutLapseCheck)
	assert.Equal(t, 15*time.Minute, cfg.FakeAPI.ReservationTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "checkout_events", cfg.KafkaTopic)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STOREFRONT_API_URL", "https://shop.example.com/api/v1/")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("CHECKOUT_TICK", "250ms")
	t.Setenv("FAKEAPI_RESERVATION_TTL", "60")

	cfg := Load()

	assert.Equal(t, "https://shop.example.com/api/v1", cfg.APIURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.CheckoutTick)
	assert.Equal(t, time.Minute, cfg.FakeAPI.ReservationTTL)
}

func TestEnvDurationDefault_Invalid(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, 3*time.Second, EnvDurationDefault("SOME_DURATION", 3*time.Second))

	t.Setenv("SOME_DURATION", "-5s")
	assert.Equal(t, 3*time.Second, EnvDurationDefault("SOME_DURATION", 3*time.Second))
}

func TestEnvIntDefault(t *testing.T) {
	t.Setenv("SOME_INT", "42")
	assert.Equal(t, 42, EnvIntDefault("SOME_INT", 1))

	t.Setenv("SOME_INT", "x")
	assert.Equal(t, 1, EnvIntDefault("SOME_INT", 1))
}

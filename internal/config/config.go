package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL      = "http://localhost:8080/api/v1"
	DefaultHTTPTimeout = 15 * time.Second
)

type Config struct {
	APIURL      string
	HTTPTimeout time.Duration
	StateDSN    string
	LogLevel    string
	// LogFile receives the terminal client's logs; empty means stderr.
	LogFile string

	KafkaBrokers []string
	KafkaTopic   string

	MetricsAddr string

	CheckoutTick       time.Duration
	CheckoutLapseCheck time.Duration

	FakeAPI FakeAPI
}

// FakeAPI configures the in-memory backend served by cmd/fakeapi.
type FakeAPI struct {
	Addr           string
	JWTSecret      []byte
	ReservationTTL time.Duration
	AdminEmail     string
	AdminPassword  string
}

// Load reads .env when present and then the process environment.
func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		slog.Debug("notice: .env file not found, using system environment variables", "error", err)
	}

	return Config{
		APIURL:      strings.TrimRight(EnvDefault("STOREFRONT_API_URL", DefaultAPIURL), "/"),
		HTTPTimeout: EnvDurationDefault("STOREFRONT_HTTP_TIMEOUT", DefaultHTTPTimeout),
		StateDSN:    EnvDefault("STOREFRONT_STATE_DSN", "file:storefront.db"),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),
		LogFile:     os.Getenv("STOREFRONT_LOG_FILE"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   EnvDefault("KAFKA_TOPIC", "checkout_events"),

		MetricsAddr: os.Getenv("METRICS_ADDR"),

		CheckoutTick:       EnvDurationDefault("CHECKOUT_TICK", time.Second),
		CheckoutLapseCheck: EnvDurationDefault("CHECKOUT_LAPSE_CHECK", 10*time.Second),

		FakeAPI: FakeAPI{
			Addr:           EnvDefault("FAKEAPI_ADDR", ":8080"),
			JWTSecret:      []byte(EnvDefault("FAKEAPI_JWT_SECRET", "dev-secret")),
			ReservationTTL: EnvDurationDefault("FAKEAPI_RESERVATION_TTL", 15*time.Minute),
			AdminEmail:     EnvDefault("FAKEAPI_ADMIN_EMAIL", "admin@shop.local"),
			AdminPassword:  EnvDefault("FAKEAPI_ADMIN_PASSWORD", "admin123"),
		},
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// EnvDurationDefault accepts Go durations ("15s") or bare seconds ("15").
func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n := EnvIntDefault(key, 0); n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

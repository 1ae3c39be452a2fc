package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the storefront API settings. Values come from the environment, optionally
// seeded from a .env file in the working directory.
type Config struct {
	Port        string
	LogLevel    string
	PostgresURL string
	JWTSecret   string

	KafkaBrokers []string

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	Currency            string

	UploadDir      string
	PublicBaseURL  string
	InternalAPIKey string
	CookieSecure   bool
	ServiceVersion string
}

// LoadDotEnv reads .env if present. Variables already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func Load() (Config, error) {
	LoadDotEnv()

	cfg := Config{
		Port:                Getenv("PORT", "8080"),
		LogLevel:            Getenv("LOG_LEVEL", "info"),
		PostgresURL:         os.Getenv("POSTGRES_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		KafkaBrokers:        SplitList(os.Getenv("KAFKA_BROKERS")),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  Getenv("CHECKOUT_SUCCESS_URL", "http://localhost:5173/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:   Getenv("CHECKOUT_CANCEL_URL", "http://localhost:5173/payment/cancel"),
		Currency:            strings.ToLower(Getenv("CURRENCY", "usd")),
		UploadDir:           Getenv("UPLOAD_DIR", "public"),
		PublicBaseURL:       strings.TrimRight(Getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		InternalAPIKey:      os.Getenv("INTERNAL_API_KEY"),
		CookieSecure:        GetenvBool("COOKIE_SECURE", true),
		ServiceVersion:      Getenv("SERVICE_VERSION", "0.1.0"),
	}

	var errs []error
	if cfg.PostgresURL == "" {
		errs = append(errs, errors.New("POSTGRES_URL environment variable is required"))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func GetenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

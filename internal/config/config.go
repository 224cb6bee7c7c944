package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything the checkout service reads from the environment.
type Config struct {
	Port        string
	PostgresURL string

	KafkaBrokers []string

	RedisAddr string

	FastPayBaseURL string
	FastPayAPIKey  string
	PayMintBaseURL string
	PayMintSecret  string

	Currency    string
	FrontendURL string

	OTLPEndpoint string

	EmailServiceURL string
}

// Load reads the environment, with a .env file as a convenience for local
// runs. Only the gateway credentials are validated here; everything else has
// a sensible development default or is optional.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		FastPayBaseURL:  getEnv("FASTPAY_BASE_URL", "https://api.fastpay.example"),
		FastPayAPIKey:   os.Getenv("FASTPAY_API_KEY"),
		PayMintBaseURL:  getEnv("PAYMINT_BASE_URL", "https://api.paymint.example"),
		PayMintSecret:   os.Getenv("PAYMINT_SECRET"),
		Currency:        getEnv("CURRENCY", "bdt"),
		FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:3000"),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		EmailServiceURL: os.Getenv("EMAIL_SERVICE_URL"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("POSTGRES_URL is required")
	}
	if cfg.FastPayAPIKey == "" {
		return nil, fmt.Errorf("FASTPAY_API_KEY is required")
	}
	if cfg.PayMintSecret == "" {
		return nil, fmt.Errorf("PAYMINT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting of the gateway.
type Config struct {
	Port string
	Env  string

	BackendURL     string
	BackendTimeout time.Duration

	RPCURL            string
	ContractAddress   string
	WalletPrivateKey  string
	ChainPollInterval time.Duration
	CatalogSource     string // backend | contract

	ReceiverAddress string
	RateURL         string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	SessionSecret string
	LandingRoute  string
}

// Load reads .env (when present) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded (%v), relying on process environment", err)
	}

	return &Config{
		Port:              getEnv("APP_PORT", "8080"),
		Env:               getEnv("APP_ENV", "development"),
		BackendURL:        getEnv("BACKEND_URL", "http://127.0.0.1:8000"),
		BackendTimeout:    getEnvAsDuration("BACKEND_TIMEOUT", 10*time.Second),
		RPCURL:            getEnv("RPC_URL", ""),
		ContractAddress:   getEnv("CONTRACT_ADDRESS", ""),
		WalletPrivateKey:  getEnv("WALLET_PRIVATE_KEY", ""),
		ChainPollInterval: getEnvAsDuration("CHAIN_POLL_INTERVAL", 5*time.Second),
		CatalogSource:     getEnv("CATALOG_SOURCE", "backend"),
		ReceiverAddress:   getEnv("RECEIVER_ADDRESS", ""),
		RateURL:           getEnv("RATE_URL", "https://api.coinbase.com/v2/exchange-rates?currency=ETH"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvAsInt("REDIS_DB", 0),
		CacheTTL:          getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		SessionSecret:     getEnv("SESSION_SECRET", "change-me"),
		LandingRoute:      getEnv("LANDING_ROUTE", "/product"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration falls back to defaultValue for unparsable or non-positive
// durations.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

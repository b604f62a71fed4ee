package config

import (
	"fmt"
	"os"
	"time"

	"github.com/quartzpay/refillgate/internal/ledger"
)

// Config holds all process configuration, loaded once at startup.
type Config struct {
	Port    string
	Env     string
	Network string
	NodeURL string

	// PayToAddress receives payment transfers.
	PayToAddress string

	// FundingKey signs refill transfers. Empty disables refill
	// delivery; /refill then answers 503 before any verification.
	FundingKey string

	// DBSource selects the postgres reconciliation journal when set;
	// otherwise records append to JournalFile.
	DBSource    string
	JournalFile string

	PricingFile  string
	ChallengeTTL time.Duration
	NodeTimeout  time.Duration
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	payTo := os.Getenv("PAY_TO_ADDRESS")
	if payTo == "" {
		return nil, fmt.Errorf("PAY_TO_ADDRESS environment variable is required")
	}
	if !ledger.ValidAddress(payTo) {
		return nil, fmt.Errorf("PAY_TO_ADDRESS %q is not a valid address", payTo)
	}

	network := getEnvString("NETWORK", ledger.NetworkTestnet)
	if network != ledger.NetworkMainnet && network != ledger.NetworkTestnet {
		return nil, fmt.Errorf("NETWORK must be %q or %q, got %q",
			ledger.NetworkMainnet, ledger.NetworkTestnet, network)
	}

	nodeURL := os.Getenv("NODE_URL")
	if nodeURL == "" {
		if network == ledger.NetworkMainnet {
			nodeURL = "https://api.hiro.so"
		} else {
			nodeURL = "https://api.testnet.hiro.so"
		}
	}

	challengeTTL, err := getEnvDuration("CHALLENGE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	nodeTimeout, err := getEnvDuration("NODE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:         getEnvString("SERVER_PORT", "8080"),
		Env:          getEnvString("ENVIRONMENT", "development"),
		Network:      network,
		NodeURL:      nodeURL,
		PayToAddress: payTo,
		FundingKey:   os.Getenv("FUNDING_KEY"),
		DBSource:     os.Getenv("DB_SOURCE"),
		JournalFile:  getEnvString("RECONCILE_JOURNAL", "reconcile.jsonl"),
		PricingFile:  os.Getenv("PRICING_FILE"),
		ChallengeTTL: challengeTTL,
		NodeTimeout:  nodeTimeout,
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

// Package server wires the priced Ordinals API together: configuration,
// route pricing, and the gin router with the payment gate in front of the
// paid endpoints.
package server

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// usdcMinorUnits scales dollar prices to USDC's 6-decimal representation.
var usdcMinorUnits = decimal.New(1, 6)

// Config is the server's environment-driven configuration.
type Config struct {
	ListenAddr     string `validate:"required"`
	Network        string `validate:"required,oneof=base base-sepolia"`
	PayTo          string `validate:"required,eth_addr"`
	FacilitatorURL string `validate:"required,url"`
	BitcoinNetwork string `validate:"required,oneof=mainnet testnet signet"`
	MempoolURL     string `validate:"omitempty,url"`
	JournalPath    string
	LogLevel       string `validate:"required,oneof=debug info warn error"`

	Routes RoutesConfig
}

// RoutePrice prices one protected route.
type RoutePrice struct {
	Price       int64
	Description string
}

// RoutesConfig maps protected route paths to their price.
type RoutesConfig map[string]RoutePrice

var validate = validator.New()

// LoadConfig reads configuration from the environment, after loading a
// .env file if one is present.
func LoadConfig() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:     envOr("ORDINALS_LISTEN_ADDR", ":8080"),
		Network:        envOr("ORDINALS_PAYMENT_NETWORK", "base-sepolia"),
		PayTo:          os.Getenv("ORDINALS_PAY_TO"),
		FacilitatorURL: envOr("ORDINALS_FACILITATOR_URL", "https://x402.org/facilitator"),
		BitcoinNetwork: envOr("ORDINALS_BITCOIN_NETWORK", "mainnet"),
		MempoolURL:     os.Getenv("ORDINALS_MEMPOOL_URL"),
		JournalPath:    envOr("ORDINALS_JOURNAL_PATH", "ordinals-x402.db"),
		LogLevel:       envOr("ORDINALS_LOG_LEVEL", "info"),
	}

	routes, err := loadRoutePrices()
	if err != nil {
		return nil, err
	}
	cfg.Routes = routes

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadRoutePrices() (RoutesConfig, error) {
	defaults := []struct {
		envKey      string
		path        string
		price       string
		description string
	}{
		{"ORDINALS_PRICE_INSCRIPTION", "/api/v1/inscriptions", "$1.00", "create an Ordinals inscription"},
		{"ORDINALS_PRICE_ADDRESS", "/api/v1/address", "$0.01", "address balance and activity"},
		{"ORDINALS_PRICE_TX", "/api/v1/tx", "$0.01", "transaction lookup"},
		{"ORDINALS_PRICE_FEES", "/api/v1/fees", "$0.001", "recommended fee rates"},
	}

	routes := make(RoutesConfig, len(defaults))
	for _, d := range defaults {
		price, err := ParsePrice(envOr(d.envKey, d.price))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.envKey, err)
		}
		routes[d.path] = RoutePrice{Price: price, Description: d.description}
	}
	return routes, nil
}

// ParsePrice converts a dollar string such as "$0.01" into USDC minor
// units. The result must be a positive whole number of minor units.
func ParsePrice(price string) (int64, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(price), "$")
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("unparseable price %q: %w", price, err)
	}

	units := d.Mul(usdcMinorUnits)
	if !units.IsInteger() {
		return 0, fmt.Errorf("price %q is finer than USDC's 6 decimals", price)
	}
	if !units.IsPositive() {
		return 0, fmt.Errorf("price %q must be positive", price)
	}
	return units.IntPart(), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

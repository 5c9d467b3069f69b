// Package config loads the command line client's configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration loaded from environment variables.
type Config struct {
	// Wallets; at least one is needed to pay
	EVMPrivateKey string `validate:"omitempty,hexadecimal,min=64,max=66"`
	SVMPrivateKey string `validate:"omitempty,min=32"`

	// Chain access
	EVMRPCURL          string `validate:"omitempty,url"`
	SolanaRPCURL       string `validate:"omitempty,url"`
	SolanaDevnetRPCURL string `validate:"omitempty,url"`

	// Client behaviour
	MaxAmount     string        `validate:"omitempty,number"`
	PaymentHeader string        `validate:"omitempty,printascii"`
	Timeout       time.Duration `validate:"gte=0"`
	LogLevel      string        `validate:"oneof=debug info warn error"`
	MetricsAddr   string        `validate:"omitempty,listenaddr"`

	// Local paywall
	PaywallAddr    string `validate:"listenaddr"`
	PaywallPayTo   string `validate:"omitempty,eth_addr"`
	PaywallNetwork string `validate:"startswith=eip155:"`
	PaywallPrice   string `validate:"numeric"`
	PaywallVersion int    `validate:"oneof=1 2"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("listenaddr", validateListenAddr)
}

func validateListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 0 && n <= 65535
}

// Load reads configuration from the process environment. Call godotenv.Load
// first to pick up a .env file.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads configuration through getenv and validates it. All problems
// are reported at once.
func LoadFrom(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		EVMPrivateKey:      getenv("EVM_PRIVATE_KEY"),
		SVMPrivateKey:      getenv("SVM_PRIVATE_KEY"),
		EVMRPCURL:          getenv("EVM_RPC_URL"),
		SolanaRPCURL:       getenv("SOLANA_RPC_URL"),
		SolanaDevnetRPCURL: getenv("SOLANA_DEVNET_RPC_URL"),
		MaxAmount:          getenv("X402_MAX_AMOUNT"),
		PaymentHeader:      getenv("X402_PAYMENT_HEADER"),
		LogLevel:           get("LOG_LEVEL", "info"),
		MetricsAddr:        getenv("METRICS_ADDR"),
		PaywallAddr:        get("PAYWALL_ADDR", ":4021"),
		PaywallPayTo:       getenv("PAYWALL_PAY_TO"),
		PaywallNetwork:     get("PAYWALL_NETWORK", "eip155:84532"),
		PaywallPrice:       get("PAYWALL_PRICE", "0.01"),
	}

	var errs []error

	timeout, err := time.ParseDuration(get("X402_TIMEOUT", "30s"))
	if err != nil {
		errs = append(errs, fmt.Errorf("X402_TIMEOUT: %w", err))
	}
	cfg.Timeout = timeout

	version, err := strconv.Atoi(get("PAYWALL_VERSION", "2"))
	if err != nil {
		errs = append(errs, fmt.Errorf("PAYWALL_VERSION: %w", err))
	}
	cfg.PaywallVersion = version

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// Validate checks the struct tags. Each failing field is its own error.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("%s: failed %q validation", fe.Field(), fe.Tag()))
	}
	return errors.Join(errs...)
}

// Ceiling returns the configured price ceiling in smallest units, or nil
// when none is set.
func (c *Config) Ceiling() *big.Int {
	if c.MaxAmount == "" {
		return nil
	}
	ceiling, ok := new(big.Int).SetString(c.MaxAmount, 10)
	if !ok {
		return nil
	}
	return ceiling
}

// HasWallet reports whether any signing key is configured.
func (c *Config) HasWallet() bool {
	return c.EVMPrivateKey != "" || c.SVMPrivateKey != ""
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Exchange API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Risk Parameters
	QuoteAsset          string  // Quote asset used for margin and P&L (e.g., "USDT")
	MaxLossPerTrade     float64 // Fixed fiat risk per trade
	Leverage            int     // Leverage applied to every copied trade
	MarginUsageFraction float64 // Fraction of free margin usable when scaling down
	EntryCooldown       time.Duration

	// Lifecycle Parameters
	Tier1ExitPercent float64 // Fraction of original quantity exited at TP1
	Tier2ExitPercent float64 // Fraction of original quantity exited at TP2
	BreakevenFeePad  float64 // Fee pad applied to instruction-driven breakeven stops
	RemainderEpsilon float64 // Remaining quantity below this is treated as closed

	// Polling
	MessagePollInterval time.Duration
	PricePollInterval   time.Duration
	SignalLookback      time.Duration // How far back the message loop scans for signals
	UpdateLookback      time.Duration // How far back the message loop scans for updates

	// Persistence
	DBPath string

	// Update policy table
	PolicyPath string // YAML file mapping R-value bands to partial/stop actions

	// Enrichment collaborator (optional)
	EnrichmentURL     string // Empty disables enrichment entirely
	EnrichmentTimeout time.Duration

	// Logging
	LogLevel string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	cfg.APIKey = getEnv("EXCHANGE_API_KEY", "")
	cfg.SecretKey = getEnv("EXCHANGE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "EXCHANGE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "EXCHANGE_API_SECRET must be set")
	}

	cfg.QuoteAsset = getEnv("QUOTE_ASSET", "USDT")
	if cfg.QuoteAsset == "" {
		errs = append(errs, "QUOTE_ASSET must be set")
	}

	cfg.MaxLossPerTrade, err = getEnvAsFloatRequired("MAX_LOSS_PER_TRADE", 25.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_LOSS_PER_TRADE: %v", err))
	} else if cfg.MaxLossPerTrade <= 0 {
		errs = append(errs, "MAX_LOSS_PER_TRADE must be positive")
	}

	cfg.Leverage, err = getEnvAsIntRequired("LEVERAGE", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE: %v", err))
	} else if cfg.Leverage <= 0 {
		errs = append(errs, "LEVERAGE must be positive")
	}

	cfg.MarginUsageFraction, err = getEnvAsFloatRequired("MARGIN_USAGE_FRACTION", 0.9)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MARGIN_USAGE_FRACTION: %v", err))
	} else if cfg.MarginUsageFraction <= 0 || cfg.MarginUsageFraction > 1.0 {
		errs = append(errs, "MARGIN_USAGE_FRACTION must be within (0.0, 1.0]")
	}

	cooldownMinutes := getEnvAsInt("ENTRY_COOLDOWN_MINUTES", 5)
	if cooldownMinutes < 0 {
		errs = append(errs, "ENTRY_COOLDOWN_MINUTES cannot be negative")
	}
	cfg.EntryCooldown = time.Duration(cooldownMinutes) * time.Minute

	cfg.Tier1ExitPercent, err = getEnvAsFloatRequired("TIER1_EXIT_PERCENT", 0.4)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TIER1_EXIT_PERCENT: %v", err))
	}
	cfg.Tier2ExitPercent, err = getEnvAsFloatRequired("TIER2_EXIT_PERCENT", 0.3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TIER2_EXIT_PERCENT: %v", err))
	}
	if cfg.Tier1ExitPercent <= 0 || cfg.Tier1ExitPercent >= 1.0 ||
		cfg.Tier2ExitPercent <= 0 || cfg.Tier2ExitPercent >= 1.0 {
		errs = append(errs, "tier exit percentages must be within (0.0, 1.0)")
	}

	cfg.BreakevenFeePad = getEnvAsFloat("BREAKEVEN_FEE_PAD", 0.001)
	if cfg.BreakevenFeePad < 0 {
		errs = append(errs, "BREAKEVEN_FEE_PAD cannot be negative")
	}

	cfg.RemainderEpsilon = getEnvAsFloat("REMAINDER_EPSILON", 0.0001)
	if cfg.RemainderEpsilon <= 0 {
		errs = append(errs, "REMAINDER_EPSILON must be positive")
	}

	messagePollSeconds := getEnvAsInt("MESSAGE_POLL_SECONDS", 60)
	if messagePollSeconds <= 0 {
		errs = append(errs, "MESSAGE_POLL_SECONDS must be positive")
	}
	cfg.MessagePollInterval = time.Duration(messagePollSeconds) * time.Second

	pricePollSeconds := getEnvAsInt("PRICE_POLL_SECONDS", 5)
	if pricePollSeconds <= 0 {
		errs = append(errs, "PRICE_POLL_SECONDS must be positive")
	}
	cfg.PricePollInterval = time.Duration(pricePollSeconds) * time.Second

	signalLookbackHours := getEnvAsInt("SIGNAL_LOOKBACK_HOURS", 24)
	if signalLookbackHours <= 0 {
		errs = append(errs, "SIGNAL_LOOKBACK_HOURS must be positive")
	}
	cfg.SignalLookback = time.Duration(signalLookbackHours) * time.Hour

	updateLookbackHours := getEnvAsInt("UPDATE_LOOKBACK_HOURS", 6)
	if updateLookbackHours <= 0 {
		errs = append(errs, "UPDATE_LOOKBACK_HOURS must be positive")
	}
	cfg.UpdateLookback = time.Duration(updateLookbackHours) * time.Hour

	cfg.DBPath = getEnv("DB_PATH", "./data/copytrader.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.PolicyPath = getEnv("POLICY_PATH", "")

	cfg.EnrichmentURL = getEnv("ENRICHMENT_URL", "")
	enrichmentTimeoutSeconds := getEnvAsInt("ENRICHMENT_TIMEOUT_SECONDS", 10)
	if enrichmentTimeoutSeconds <= 0 {
		errs = append(errs, "ENRICHMENT_TIMEOUT_SECONDS must be positive")
	}
	cfg.EnrichmentTimeout = time.Duration(enrichmentTimeoutSeconds) * time.Second

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

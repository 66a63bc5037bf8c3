package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full runtime configuration of the trading core,
// loaded from environment variables (optionally seeded from a .env file).
type Config struct {
	Environment string
	LogLevel    string

	Exchange struct {
		Name      string
		APIKey    string
		APISecret string
		Testnet   bool
		Demo      bool
		Category  string
		Timeout   time.Duration
	}

	Portfolio struct {
		InitialBalance float64
		CommissionRate float64
		MaxPositions   int
		StateFile      string
	}

	Sizing struct {
		RiskPerTrade    float64
		MaxPositionSize float64
		MinPositionSize float64
		TargetVol       float64
		DefaultVol      float64
	}

	Risk struct {
		MaxPortfolioRisk  float64
		MaxSinglePosition float64
		MaxDrawdown       float64
		MaxConcentration  float64
		Confidence        float64
		RiskFreeRate      float64
		MetricsHistory    int
		AlertHistory      int
		AlertDedupWindow  time.Duration
		RecomputeInterval time.Duration
	}

	Orders struct {
		PollInterval    time.Duration
		MaxRetries      int
		HistorySize     int
		CleanupInterval time.Duration
	}

	Monitoring struct {
		PrometheusPort int
		HealthPort     int
	}

	Notifications struct {
		TelegramToken  string
		TelegramChatID string
	}
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	cfg.Exchange.Name = getEnv("EXCHANGE_NAME", "paper")
	cfg.Exchange.APIKey = getEnv("EXCHANGE_API_KEY", "")
	cfg.Exchange.APISecret = getEnv("EXCHANGE_API_SECRET", "")
	cfg.Exchange.Testnet = getEnvBool("EXCHANGE_TESTNET", true)
	cfg.Exchange.Demo = getEnvBool("EXCHANGE_DEMO", false)
	cfg.Exchange.Category = getEnv("EXCHANGE_CATEGORY", "spot")
	cfg.Exchange.Timeout = getEnvDuration("EXCHANGE_TIMEOUT", 10*time.Second)

	cfg.Portfolio.InitialBalance = getEnvFloat("INITIAL_BALANCE", 10000.0)
	cfg.Portfolio.CommissionRate = getEnvFloat("COMMISSION_RATE", 0.001)
	cfg.Portfolio.MaxPositions = getEnvInt("MAX_POSITIONS", 20)
	cfg.Portfolio.StateFile = getEnv("PORTFOLIO_STATE_FILE", "data/portfolio_state.json")

	cfg.Sizing.RiskPerTrade = getEnvFloat("RISK_PER_TRADE", 0.02)
	cfg.Sizing.MaxPositionSize = getEnvFloat("MAX_POSITION_SIZE", 0.10)
	cfg.Sizing.MinPositionSize = getEnvFloat("MIN_POSITION_SIZE", 0.001)
	cfg.Sizing.TargetVol = getEnvFloat("TARGET_VOLATILITY", 0.15)
	cfg.Sizing.DefaultVol = getEnvFloat("DEFAULT_VOLATILITY", 0.20)

	cfg.Risk.MaxPortfolioRisk = getEnvFloat("MAX_PORTFOLIO_RISK", 0.10)
	cfg.Risk.MaxSinglePosition = getEnvFloat("MAX_SINGLE_POSITION", 0.05)
	cfg.Risk.MaxDrawdown = getEnvFloat("MAX_DRAWDOWN", 0.15)
	cfg.Risk.MaxConcentration = getEnvFloat("MAX_CONCENTRATION", 0.30)
	cfg.Risk.Confidence = getEnvFloat("VAR_CONFIDENCE", 0.95)
	cfg.Risk.RiskFreeRate = getEnvFloat("RISK_FREE_RATE", 0.02)
	cfg.Risk.MetricsHistory = getEnvInt("RISK_METRICS_HISTORY", 1000)
	cfg.Risk.AlertHistory = getEnvInt("RISK_ALERT_HISTORY", 500)
	cfg.Risk.AlertDedupWindow = getEnvDuration("ALERT_DEDUP_WINDOW", 5*time.Minute)
	cfg.Risk.RecomputeInterval = getEnvDuration("RISK_RECOMPUTE_INTERVAL", 30*time.Second)

	cfg.Orders.PollInterval = getEnvDuration("ORDER_POLL_INTERVAL", time.Second)
	cfg.Orders.MaxRetries = getEnvInt("ORDER_MAX_RETRIES", 3)
	cfg.Orders.HistorySize = getEnvInt("ORDER_HISTORY_SIZE", 1000)
	cfg.Orders.CleanupInterval = getEnvDuration("ORDER_CLEANUP_INTERVAL", time.Minute)

	cfg.Monitoring.PrometheusPort = getEnvInt("PROMETHEUS_PORT", 8080)
	cfg.Monitoring.HealthPort = getEnvInt("HEALTH_PORT", 8081)

	cfg.Notifications.TelegramToken = getEnv("TELEGRAM_TOKEN", "")
	cfg.Notifications.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot produce correct accounting.
func (c *Config) Validate() error {
	if c.Portfolio.InitialBalance <= 0 {
		return fmt.Errorf("initial balance must be positive, got %.2f", c.Portfolio.InitialBalance)
	}
	if c.Portfolio.CommissionRate < 0 || c.Portfolio.CommissionRate >= 1 {
		return fmt.Errorf("commission rate must be in [0, 1), got %.4f", c.Portfolio.CommissionRate)
	}
	if c.Portfolio.MaxPositions <= 0 {
		return fmt.Errorf("max positions must be positive, got %d", c.Portfolio.MaxPositions)
	}
	if c.Sizing.MinPositionSize <= 0 || c.Sizing.MinPositionSize > c.Sizing.MaxPositionSize {
		return fmt.Errorf("position size band invalid: min=%.4f max=%.4f",
			c.Sizing.MinPositionSize, c.Sizing.MaxPositionSize)
	}
	if c.Risk.Confidence <= 0 || c.Risk.Confidence >= 1 {
		return fmt.Errorf("VaR confidence must be in (0, 1), got %.4f", c.Risk.Confidence)
	}
	if c.Orders.MaxRetries < 1 {
		return fmt.Errorf("order max retries must be at least 1, got %d", c.Orders.MaxRetries)
	}
	if c.Exchange.Name != "paper" && c.Exchange.APIKey == "" {
		return fmt.Errorf("exchange %s requires EXCHANGE_API_KEY", c.Exchange.Name)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

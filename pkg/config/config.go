package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Run modes.
const (
	ModeServe   = "serve"
	ModeAnalyze = "analyze"
)

// Config holds environment-driven settings for the signal service.
type Config struct {
	Mode     string
	Port     string
	LogLevel string

	// Strategy record file; empty means built-in defaults.
	StrategyConfigPath string

	// Market data
	Pairs          []string
	UseMockFeed    bool
	BinanceTestnet bool
	PollEvery      time.Duration

	// Analysis
	WarmupLimit int
	MaxWindow   int
	CandlesCSV  string // batch input for analyze mode

	// Database
	DBPath string

	// API
	JWTSecret      string // empty disables auth
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/signals.db")
	}

	cfg := &Config{
		Mode:               strings.ToLower(getEnv("MODE", ModeServe)),
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		StrategyConfigPath: getEnv("STRATEGY_CONFIG", ""),
		Pairs:              splitAndTrim(strings.ToUpper(getEnv("PAIRS", "BTCUSDT,ETHUSDT"))),
		UseMockFeed:        getEnv("USE_MOCK_FEED", "true") == "true",
		BinanceTestnet:     getEnv("BINANCE_TESTNET", "false") == "true",
		PollEvery:          getEnvDuration("POLL_INTERVAL", 5*time.Minute),
		WarmupLimit:        getEnvInt("WARMUP_LIMIT", 500),
		MaxWindow:          getEnvInt("MAX_WINDOW", 500),
		CandlesCSV:         getEnv("CANDLES_CSV", ""),
		DBPath:             dbPath,
		JWTSecret:          os.Getenv("API_JWT_SECRET"),
		RateLimitRPS:       getEnvFloat("API_RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvInt("API_RATE_LIMIT_BURST", 50),
		AllowedOrigins:     splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeServe, ModeAnalyze:
	default:
		return fmt.Errorf("MODE %q: want %s or %s", c.Mode, ModeServe, ModeAnalyze)
	}
	if len(c.Pairs) == 0 {
		return fmt.Errorf("PAIRS is empty")
	}
	if c.Mode == ModeAnalyze && c.CandlesCSV == "" && c.UseMockFeed {
		return fmt.Errorf("analyze mode needs CANDLES_CSV or USE_MOCK_FEED=false")
	}
	if c.WarmupLimit < 0 || c.MaxWindow < 0 {
		return fmt.Errorf("WARMUP_LIMIT and MAX_WINDOW must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

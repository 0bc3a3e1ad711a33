package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/wonny/portfolioviz/pkg/date"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Remote portfolio backend
	Backend BackendConfig

	// Dashboard defaults and chart policy
	Dashboard DashboardConfig

	// Redis (optional response cache)
	Redis RedisConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// BackendConfig holds the remote portfolio backend configuration
type BackendConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 = unlimited
	Burst     int
	Retries   int // 0 = no automatic retry
	CacheTTL  time.Duration

	MemoryCache bool // in-process response cache when Redis is disabled

	ProbeSchedule string // cron schedule of the /ping/ probe
}

// DashboardConfig holds dashboard defaults
type DashboardConfig struct {
	DefaultPortfolioID string
	DefaultStartDate   string

	TickInterval int

	// Fixed value-chart domain; both NaN means data-derived
	ValueDomainMin float64
	ValueDomainMax float64
	ValueMargin    float64

	WeightEpsilon float64

	SessionIdleTTL       time.Duration
	SessionSweepSchedule string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "3000"),
		Env:  getEnv("ENV", "development"),

		Backend: BackendConfig{
			BaseURL:   getEnv("BACKEND_URL", "http://localhost:8000"),
			Timeout:   getEnvAsDuration("BACKEND_TIMEOUT", "15s"),
			RateLimit: getEnvAsFloat("BACKEND_RATE_LIMIT", 20),
			Burst:     getEnvAsInt("BACKEND_BURST", 10),
			Retries:   getEnvAsInt("BACKEND_RETRIES", 0),
			CacheTTL:  getEnvAsDuration("BACKEND_CACHE_TTL", "1m"),

			MemoryCache:   getEnvAsBool("BACKEND_MEMORY_CACHE", false),
			ProbeSchedule: getEnv("BACKEND_PROBE_SCHEDULE", "@every 1m"),
		},

		Dashboard: DashboardConfig{
			DefaultPortfolioID:   getEnv("DEFAULT_PORTFOLIO_ID", "1"),
			DefaultStartDate:     getEnv("DEFAULT_START_DATE", "2022-01-01"),
			TickInterval:         getEnvAsInt("TICK_INTERVAL", 32),
			ValueDomainMin:       getEnvAsFloat("VALUE_DOMAIN_MIN", math.NaN()),
			ValueDomainMax:       getEnvAsFloat("VALUE_DOMAIN_MAX", math.NaN()),
			ValueMargin:          getEnvAsFloat("VALUE_DOMAIN_MARGIN", 0.05),
			WeightEpsilon:        getEnvAsFloat("WEIGHT_DOMAIN_EPSILON", 0.01),
			SessionIdleTTL:       getEnvAsDuration("SESSION_IDLE_TTL", "30m"),
			SessionSweepSchedule: getEnv("SESSION_SWEEP_SCHEDULE", "0 */5 * * * *"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// HasFixedValueDomain reports whether the value chart uses a configured y range
func (c DashboardConfig) HasFixedValueDomain() bool {
	return !math.IsNaN(c.ValueDomainMin) && !math.IsNaN(c.ValueDomainMax)
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" && c.Env != "test" {
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	if _, err := date.Parse(c.Dashboard.DefaultStartDate); err != nil {
		return fmt.Errorf("DEFAULT_START_DATE: %w", err)
	}

	if c.Dashboard.TickInterval < 1 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %d", c.Dashboard.TickInterval)
	}

	// 둘 중 하나만 설정된 경우는 오류
	if math.IsNaN(c.Dashboard.ValueDomainMin) != math.IsNaN(c.Dashboard.ValueDomainMax) {
		return fmt.Errorf("VALUE_DOMAIN_MIN and VALUE_DOMAIN_MAX must be set together")
	}
	if c.Dashboard.HasFixedValueDomain() && c.Dashboard.ValueDomainMin >= c.Dashboard.ValueDomainMax {
		return fmt.Errorf("VALUE_DOMAIN_MIN must be below VALUE_DOMAIN_MAX")
	}

	if c.Dashboard.WeightEpsilon < 0 {
		return fmt.Errorf("WEIGHT_DOMAIN_EPSILON must not be negative")
	}

	if c.Backend.RateLimit < 0 || c.Backend.Retries < 0 {
		return fmt.Errorf("BACKEND_RATE_LIMIT and BACKEND_RETRIES must not be negative")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

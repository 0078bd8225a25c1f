package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	SnowflakeNode int64
	CatalogFile   string
	TokenDecimals int

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Quota     QuotaConfig
	Redis     RedisConfig
	Wallet    WalletConfig
	RateLimit RateLimitConfig
	Janitor   JanitorConfig
}

type QuotaConfig struct {
	Backend string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type WalletConfig struct {
	Mode            string
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	StartingBalance string
}

type RateLimitConfig struct {
	Enabled        bool
	AuthorizeRate  float64
	AuthorizeBurst int
}

type JanitorConfig struct {
	Enabled       bool
	Interval      time.Duration
	RetentionDays int
}

const (
	QuotaBackendSQL   = "sql"
	QuotaBackendRedis = "redis"

	WalletModeSimulated = "simulated"
	WalletModeHTTP      = "http"
)

var Module = fx.Module("config",
	fx.Provide(Load),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "mlgledger"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),
		CatalogFile:   strings.TrimSpace(getenv("CATALOG_FILE", "")),
		TokenDecimals: getenvInt("TOKEN_DECIMALS", 9),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "mlgledger"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "mlgledger.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Quota: QuotaConfig{
			Backend: normalizeQuotaBackend(getenv("QUOTA_BACKEND", QuotaBackendSQL)),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Wallet: WalletConfig{
			Mode:            normalizeWalletMode(getenv("WALLET_MODE", WalletModeSimulated)),
			BaseURL:         strings.TrimRight(strings.TrimSpace(getenv("WALLET_BASE_URL", "")), "/"),
			APIKey:          strings.TrimSpace(getenv("WALLET_API_KEY", "")),
			Timeout:         time.Duration(getenvInt("WALLET_TIMEOUT_MS", 5000)) * time.Millisecond,
			StartingBalance: strings.TrimSpace(getenv("SIMULATED_STARTING_BALANCE", "1000")),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getenvBool("RATE_LIMIT_ENABLED", false),
			AuthorizeRate:  getenvFloat("RATE_LIMIT_AUTHORIZE_RATE", 5),
			AuthorizeBurst: getenvInt("RATE_LIMIT_AUTHORIZE_BURST", 10),
		},
		Janitor: JanitorConfig{
			Enabled:       getenvBool("JANITOR_ENABLED", true),
			Interval:      time.Duration(getenvInt("JANITOR_INTERVAL_SECONDS", 3600)) * time.Second,
			RetentionDays: getenvInt("JANITOR_RETENTION_DAYS", 30),
		},
	}

	return cfg
}

// NeedsRedis reports whether any component is configured to use redis.
func (c Config) NeedsRedis() bool {
	return c.Quota.Backend == QuotaBackendRedis || c.RateLimit.Enabled
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func normalizeQuotaBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case QuotaBackendRedis:
		return QuotaBackendRedis
	default:
		return QuotaBackendSQL
	}
}

func normalizeWalletMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case WalletModeHTTP:
		return WalletModeHTTP
	default:
		return WalletModeSimulated
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

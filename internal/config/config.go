package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName         string
	AppVersion      string
	Environment     string
	HTTPAddr        string
	DefaultSchoolID int64
	SchedulerJobs   string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis        RedisConfig
	MobileMoney  MobileMoneyConfig
	FinanceStats FinanceMetricsConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type MobileMoneyConfig struct {
	Sandbox               bool
	SandboxDelaySeconds   int
	CallbackSecret        string
	CallbackLockTTL       int
	InboxPollSeconds      int
	InboxBatchSize        int
	InitiateRatePerMinute float64
	InitiateBurst         int
}

type FinanceMetricsConfig struct {
	Enabled         bool
	Exporter        string
	Endpoint        string
	AuthToken       string
	IntervalMinutes int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:         getenv("APP_SERVICE", "bursar"),
		AppVersion:      getenv("APP_VERSION", "0.1.0"),
		Environment:     getenv("ENVIRONMENT", "development"),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		DefaultSchoolID: getenvInt64("DEFAULT_SCHOOL", 0),
		SchedulerJobs:   getenv("SCHEDULER_JOBS", ""),
		OTLPEndpoint:    getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "bursar"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		MobileMoney: MobileMoneyConfig{
			Sandbox:             getenvBool("MOBILE_MONEY_SANDBOX", false),
			SandboxDelaySeconds: getenvInt("MOBILE_MONEY_SANDBOX_DELAY_SECONDS", 3),
			CallbackSecret:      strings.TrimSpace(getenv("MOBILE_MONEY_CALLBACK_SECRET", "")),
			CallbackLockTTL:     getenvInt("MOBILE_MONEY_CALLBACK_LOCK_TTL_SECONDS", 30),
			InboxPollSeconds:    getenvInt("MOBILE_MONEY_INBOX_POLL_SECONDS", 5),
			InboxBatchSize:      getenvInt("MOBILE_MONEY_INBOX_BATCH_SIZE", 50),

			InitiateRatePerMinute: getenvFloat("MOBILE_MONEY_INITIATE_RATE_PER_MINUTE", 6),
			InitiateBurst:         getenvInt("MOBILE_MONEY_INITIATE_BURST", 3),
		},
		FinanceStats: FinanceMetricsConfig{
			Enabled:         getenvBool("FINANCE_METRICS_ENABLED", false),
			Exporter:        strings.ToLower(getenv("FINANCE_METRICS_EXPORTER", "")),
			Endpoint:        strings.TrimSpace(getenv("FINANCE_METRICS_ENDPOINT", "")),
			AuthToken:       strings.TrimSpace(getenv("FINANCE_METRICS_AUTH_TOKEN", "")),
			IntervalMinutes: getenvInt("FINANCE_METRICS_INTERVAL_MINUTES", 15),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
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

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
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

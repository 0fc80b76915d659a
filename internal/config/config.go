package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	SQLite       SQLiteConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Ledger       LedgerConfig
	Records      RecordsConfig
	Jobs         JobsConfig
	Rules        RulesConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces every key the service writes.
	KeyPrefix string
}

// SQLiteConfig points at the single-node ledger database.
type SQLiteConfig struct {
	Path string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines caller token parameters.
type AuthConfig struct {
	JWTSecret       string
	TokenTTLMinutes int
	Issuer          string
	// Disabled skips token checks; only honored outside production.
	Disabled bool
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// LedgerConfig selects the idempotency store and its timing.
type LedgerConfig struct {
	Backend             string
	ClaimTimeoutSeconds int
	WaitSeconds         int
	RetentionHours      int
	// PurgeSchedule is a five-field cron expression.
	PurgeSchedule string
}

// RecordsConfig selects the record-service adapter.
type RecordsConfig struct {
	Backend string
}

// JobsConfig selects the job-scheduling collaborator.
type JobsConfig struct {
	Backend string
	Queue   string
}

// RulesConfig locates the rule tables.
type RulesConfig struct {
	// Path is empty to use the embedded default document.
	Path  string
	Watch bool
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	SMSFrom    string
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "dispatch-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "dispatch"),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "dispatch-ledger.db"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("AUTH_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes: getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 60),
			Issuer:          getEnv("AUTH_ISSUER", "dispatch-engine"),
			Disabled:        getEnvAsBool("AUTH_DISABLED", false),
		},
		Ledger: LedgerConfig{
			Backend:             strings.ToLower(getEnv("LEDGER_BACKEND", BackendMemory)),
			ClaimTimeoutSeconds: getEnvAsInt("LEDGER_CLAIM_TIMEOUT_SECONDS", 30),
			WaitSeconds:         getEnvAsInt("LEDGER_WAIT_SECONDS", 5),
			RetentionHours:      getEnvAsInt("LEDGER_RETENTION_HOURS", 72),
			PurgeSchedule:       getEnv("LEDGER_PURGE_SCHEDULE", "*/15 * * * *"),
		},
		Records: RecordsConfig{
			Backend: strings.ToLower(getEnv("RECORD_BACKEND", BackendMemory)),
		},
		Jobs: JobsConfig{
			Backend: strings.ToLower(getEnv("JOBS_BACKEND", BackendMemory)),
			Queue:   getEnv("JOBS_QUEUE", "jobs"),
		},
		Rules: RulesConfig{
			Path:  os.Getenv("RULES_PATH"),
			Watch: getEnvAsBool("RULES_WATCH", false),
		},
		Notification: NotificationConfig{
			SMSFrom:    getEnv("NOTIFY_SMS_FROM", "+13125550100"),
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Ledger.Backend {
	case BackendMemory, BackendSQLite, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("invalid LEDGER_BACKEND %q", c.Ledger.Backend)
	}
	switch c.Records.Backend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("invalid RECORD_BACKEND %q", c.Records.Backend)
	}
	switch c.Jobs.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("invalid JOBS_BACKEND %q", c.Jobs.Backend)
	}
	if c.Ledger.Backend == BackendPostgres || c.Records.Backend == BackendPostgres {
		if c.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres backend")
		}
	}
	if c.Auth.Disabled && c.App.Env == "production" {
		return fmt.Errorf("AUTH_DISABLED cannot be set in production")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func (l LedgerConfig) ClaimTimeout() time.Duration {
	return time.Duration(l.ClaimTimeoutSeconds) * time.Second
}

func (l LedgerConfig) WaitTimeout() time.Duration {
	return time.Duration(l.WaitSeconds) * time.Second
}

func (l LedgerConfig) Retention() time.Duration {
	return time.Duration(l.RetentionHours) * time.Hour
}

// TokenTTL returns the lifetime of minted caller tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

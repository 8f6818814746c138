package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string
	Telemetry    TelemetryConfig

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
	DBRunMigrations   bool

	Payment   PaymentConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Alert     AlertConfig
	Reconcile ReconcileConfig
	Outbox    OutboxConfig
	Admin     AdminConfig
	Export    MetricsExportConfig
}

type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

// PaymentConfig controls the webhook and confirm endpoints.
type PaymentConfig struct {
	DefaultProvider     string
	Providers           []string
	SecretsFile         string
	WebhookMaxBodyBytes int64
	RequestTimeout      time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address has been configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type RateLimitConfig struct {
	Enabled      bool
	WebhookRate  float64
	WebhookBurst int
}

type AlertConfig struct {
	SlackWebhookURL  string
	SlackChannel     string
	FailureThreshold int64
	FailureWindow    time.Duration
}

type ReconcileConfig struct {
	Enabled     bool
	Interval    time.Duration
	Grace       time.Duration
	BatchSize   int
	MaxAttempts int
	LockTTL     time.Duration
}

type OutboxConfig struct {
	RabbitURL      string
	Exchange       string
	PollInterval   time.Duration
	BatchSize      int
	PublishTimeout time.Duration
}

type AdminConfig struct {
	APIToken     string
	APITokenHash string
}

// MetricsExportConfig configures pushing the process metrics to a remote
// Prometheus endpoint for deployments that cannot be scraped.
type MetricsExportConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	defaultProvider := strings.ToLower(strings.TrimSpace(getenv("PAYMENT_PROVIDER", "razorpay")))
	providers := parseList(getenv("PAYMENT_PROVIDERS", defaultProvider))
	if !contains(providers, defaultProvider) {
		providers = append(providers, defaultProvider)
	}

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "paysync"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            getenvInt64("SNOWFLAKE_NODE_ID", 1),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Telemetry: TelemetryConfig{
			LogLevel:      getenv("LOG_LEVEL", "info"),
			LogFormat:     getenv("LOG_FORMAT", "json"),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelProtocol:  getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBRunMigrations:   getenvBool("DATABASE_RUN_MIGRATIONS", true),
		Payment: PaymentConfig{
			DefaultProvider:     defaultProvider,
			Providers:           providers,
			SecretsFile:         strings.TrimSpace(getenv("PAYMENT_SECRETS_FILE", "")),
			WebhookMaxBodyBytes: getenvInt64("WEBHOOK_MAX_BODY_BYTES", 1<<20),
			RequestTimeout:      getenvDuration("HTTP_REQUEST_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("WEBHOOK_RATE_LIMIT_ENABLED", false),
			WebhookRate:  getenvFloat("WEBHOOK_RATE_LIMIT_RPS", 20),
			WebhookBurst: int(getenvInt64("WEBHOOK_RATE_LIMIT_BURST", 40)),
		},
		Alert: AlertConfig{
			SlackWebhookURL:  strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
			SlackChannel:     strings.TrimSpace(getenv("SLACK_ALERT_CHANNEL", "#payments-alerts")),
			FailureThreshold: getenvInt64("ALERT_FAILURE_THRESHOLD", 5),
			FailureWindow:    getenvDuration("ALERT_FAILURE_WINDOW", 10*time.Minute),
		},
		Reconcile: ReconcileConfig{
			Enabled:     getenvBool("RECONCILE_ENABLED", true),
			Interval:    getenvDuration("RECONCILE_INTERVAL", time.Minute),
			Grace:       getenvDuration("RECONCILE_GRACE", 30*time.Second),
			BatchSize:   int(getenvInt64("RECONCILE_BATCH_SIZE", 100)),
			MaxAttempts: int(getenvInt64("RECONCILE_MAX_ATTEMPTS", 10)),
			LockTTL:     getenvDuration("RECONCILE_LOCK_TTL", 2*time.Minute),
		},
		Outbox: OutboxConfig{
			RabbitURL:      strings.TrimSpace(getenv("RABBITMQ_URL", "")),
			Exchange:       getenv("RABBITMQ_EXCHANGE", "order.payment_updated"),
			PollInterval:   getenvDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:      int(getenvInt64("OUTBOX_BATCH_SIZE", 50)),
			PublishTimeout: getenvDuration("OUTBOX_PUBLISH_TIMEOUT", 5*time.Second),
		},
		Admin: AdminConfig{
			APIToken:     strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
			APITokenHash: strings.TrimSpace(getenv("ADMIN_API_TOKEN_HASH", "")),
		},
		Export: MetricsExportConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_EXPORT_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_EXPORT_TOKEN", "")),
			Interval:  getenvDuration("METRICS_EXPORT_INTERVAL", time.Minute),
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || contains(out, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

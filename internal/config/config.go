package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const EnvironmentProduction = "production"

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

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
	DBAutoMigrate     bool

	Redis         RedisConfig
	Payment       PaymentConfig
	Email         EmailConfig
	Scheduler     SchedulerConfig
	Observability ObservabilityConfig

	// PublicBaseURL is the externally reachable origin of this service.
	PublicBaseURL string
	Currency      string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	CheckoutLockTTLSeconds int
	CheckoutOwnerRate      float64
	CheckoutOwnerBurst     int
}

type PaymentConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	GatewayTimeout      time.Duration
	WebhookTolerance    time.Duration
	SuccessURL          string
	CancelURL           string
}

type SchedulerConfig struct {
	Enabled      bool
	RunInterval  time.Duration
	BatchSize    int
	ReplayAfter  time.Duration
	ReplayWindow time.Duration
}

type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	publicBaseURL := strings.TrimRight(strings.TrimSpace(getenv("PUBLIC_BASE_URL", "http://localhost:8080")), "/")

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "quoteflow"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  strings.ToLower(strings.TrimSpace(getenv("ENVIRONMENT", "development"))),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "quoteflow"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),

		Redis: RedisConfig{
			Addr:                   strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:               strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:                     int(getenvInt64("REDIS_DB", 0)),
			CheckoutLockTTLSeconds: int(getenvInt64("CHECKOUT_LOCK_TTL_SECONDS", 30)),
			CheckoutOwnerRate:      getenvFloat("CHECKOUT_OWNER_RATE", 1),
			CheckoutOwnerBurst:     int(getenvInt64("CHECKOUT_OWNER_BURST", 10)),
		},

		Payment: PaymentConfig{
			StripeSecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			StripeWebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			GatewayTimeout:      getenvDuration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
			WebhookTolerance:    getenvDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
			SuccessURL:          getenv("CHECKOUT_SUCCESS_URL", publicBaseURL+"/checkout/success"),
			CancelURL:           getenv("CHECKOUT_CANCEL_URL", publicBaseURL+"/checkout/cancel"),
		},

		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     strings.TrimSpace(getenv("SMTP_FROM", "quotes@localhost")),
		},

		Scheduler: SchedulerConfig{
			Enabled:      getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:  getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			BatchSize:    int(getenvInt64("SCHEDULER_BATCH_SIZE", 50)),
			ReplayAfter:  getenvDuration("SCHEDULER_REPLAY_AFTER", 5*time.Minute),
			ReplayWindow: getenvDuration("SCHEDULER_REPLAY_WINDOW", 72*time.Hour),
		},

		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		PublicBaseURL: publicBaseURL,
		Currency:      strings.ToUpper(strings.TrimSpace(getenv("QUOTE_CURRENCY", "EUR"))),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
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

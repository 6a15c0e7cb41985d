package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Provide(Load)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// Quota window policies. The reset boundary is deliberately configurable;
// calendar_month matches the billing cadence most plans are sold on.
const (
	QuotaWindowCalendarMonth = "calendar_month"
	QuotaWindowRolling30d    = "rolling_30d"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

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

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Webhook ingestion.
	SignatureTolerance time.Duration
	DedupWindow        time.Duration

	// Tenant quota.
	QuotaWindow string

	// Circuit breaker per (tenant, destination).
	BreakerThreshold     int
	BreakerFailureWindow time.Duration
	BreakerCooldown      time.Duration

	// Outbound delivery.
	DeliveryTimeout    time.Duration
	DeliveryMaxRetries int

	// Enrichment.
	BrandfetchAPIKey   string
	BrandfetchBaseURL  string
	EnrichmentTimeout  time.Duration
	EnrichmentCacheTTL time.Duration

	// Recent activity log.
	ActivityRetention time.Duration

	// Development bootstrap. When SeedTenantToken is set outside
	// production, startup ensures a tenant with that token plus one
	// integration per provider that has a secret configured.
	SeedTenantToken     string
	SeedSlackWebhookURL string
	SeedShopifySecret   string
	SeedChargifySecret  string
	SeedStripeSecret    string

	// allowUnverified permits skipping signature verification for tenants
	// without a configured secret. Load refuses to set it outside
	// development/test, so there is no way to enable it in production.
	allowUnverified bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := strings.ToLower(getenv("ENVIRONMENT", EnvDevelopment))

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "notipus"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "notipus"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		SignatureTolerance: getenvDuration("WEBHOOK_SIGNATURE_TOLERANCE", 5*time.Minute),
		DedupWindow:        getenvDuration("WEBHOOK_DEDUP_WINDOW", 24*time.Hour),

		QuotaWindow: normalizeQuotaWindow(getenv("QUOTA_WINDOW", QuotaWindowCalendarMonth)),

		BreakerThreshold:     getenvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerFailureWindow: getenvDuration("BREAKER_FAILURE_WINDOW", 10*time.Minute),
		BreakerCooldown:      getenvDuration("BREAKER_COOLDOWN", 5*time.Minute),

		DeliveryTimeout:    getenvDuration("DELIVERY_TIMEOUT", 10*time.Second),
		DeliveryMaxRetries: getenvInt("DELIVERY_MAX_RETRIES", 3),

		BrandfetchAPIKey:   strings.TrimSpace(getenv("BRANDFETCH_API_KEY", "")),
		BrandfetchBaseURL:  getenv("BRANDFETCH_BASE_URL", "https://api.brandfetch.io/v2"),
		EnrichmentTimeout:  getenvDuration("ENRICHMENT_TIMEOUT", 10*time.Second),
		EnrichmentCacheTTL: getenvDuration("ENRICHMENT_CACHE_TTL", 24*time.Hour),

		ActivityRetention: getenvDuration("ACTIVITY_RETENTION", 7*24*time.Hour),

		SeedTenantToken:     getenv("SEED_TENANT_TOKEN", ""),
		SeedSlackWebhookURL: getenv("SEED_SLACK_WEBHOOK_URL", ""),
		SeedShopifySecret:   getenv("SHOPIFY_WEBHOOK_SECRET", ""),
		SeedChargifySecret:  getenv("CHARGIFY_WEBHOOK_SECRET", ""),
		SeedStripeSecret:    getenv("STRIPE_WEBHOOK_SECRET", ""),
	}

	if environment != EnvProduction {
		cfg.allowUnverified = getenvBool("WEBHOOK_ALLOW_UNVERIFIED", false)
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// VerificationBypassAllowed reports whether webhooks without a configured
// signing secret may be accepted unverified. Always false in production.
func (c Config) VerificationBypassAllowed() bool {
	if c.Environment == EnvProduction {
		return false
	}
	return c.allowUnverified
}

func normalizeQuotaWindow(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case QuotaWindowRolling30d:
		return QuotaWindowRolling30d
	default:
		return QuotaWindowCalendarMonth
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

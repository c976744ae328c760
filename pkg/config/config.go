package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// Store drivers accepted by BILLING_STORE_DRIVER
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Payment providers accepted by STRIPE_PROVIDER
const (
	ProviderStripe = "stripe"
	ProviderMock   = "mock"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// StripeConfig holds payment provider configuration
type StripeConfig struct {
	// Provider is "mock" for local runs without a Stripe account
	Provider         string
	SecretKey        string
	WebhookSecret    string
	SuccessURL       string
	CancelURL        string
	Timeout          time.Duration
	WebhookBodyLimit int64
}

// BillingConfig holds billing subsystem tuning
type BillingConfig struct {
	StoreDriver   string
	InvoiceLimit  int
	PlanCacheSize int
	PlanCacheTTL  time.Duration
	PlanSeedFile  string
}

// Config holds all configuration
type Config struct {
	ServiceName string
	DB          DBConfig
	Server      ServerConfig
	JWT         JWTConfig
	Log         LogConfig
	Metrics     MetricsConfig
	Stripe      StripeConfig
	Billing     BillingConfig
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	config := &Config{
		ServiceName: getEnv("SERVICE_NAME", "billing-service"),
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", "billing_service"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8085"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", "defaultsecretkey"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "billing"),
		},
		Stripe: StripeConfig{
			Provider:         getEnv("STRIPE_PROVIDER", ProviderStripe),
			SecretKey:        getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:    getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:       getEnv("STRIPE_SUCCESS_URL", "http://localhost:3000/billing?checkout=success"),
			CancelURL:        getEnv("STRIPE_CANCEL_URL", "http://localhost:3000/billing?checkout=cancelled"),
			Timeout:          getEnvAsDuration("STRIPE_TIMEOUT", 10*time.Second),
			WebhookBodyLimit: int64(getEnvAsInt("STRIPE_WEBHOOK_BODY_LIMIT", 1024*1024)),
		},
		Billing: BillingConfig{
			StoreDriver:   getEnv("BILLING_STORE_DRIVER", StoreDriverPostgres),
			InvoiceLimit:  getEnvAsInt("BILLING_INVOICE_LIMIT", 10),
			PlanCacheSize: getEnvAsInt("BILLING_PLAN_CACHE_SIZE", 64),
			PlanCacheTTL:  getEnvAsDuration("BILLING_PLAN_CACHE_TTL", 5*time.Minute),
			PlanSeedFile:  getEnv("BILLING_PLAN_SEED_FILE", ""),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports configuration that would keep the service from starting.
// An empty webhook secret is allowed: the webhook endpoint fails closed instead.
func (c *Config) Validate() error {
	var errs []error
	switch c.Billing.StoreDriver {
	case StoreDriverPostgres:
		if c.DB.DBName == "" {
			errs = append(errs, errors.New("DB_NAME is required for the postgres store"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown BILLING_STORE_DRIVER %q", c.Billing.StoreDriver))
	}
	switch c.Stripe.Provider {
	case ProviderStripe, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown STRIPE_PROVIDER %q", c.Stripe.Provider))
	}
	if c.Billing.InvoiceLimit <= 0 || c.Billing.InvoiceLimit > 100 {
		errs = append(errs, fmt.Errorf("BILLING_INVOICE_LIMIT must be between 1 and 100, got %d", c.Billing.InvoiceLimit))
	}
	if c.Billing.PlanCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("BILLING_PLAN_CACHE_SIZE must be positive, got %d", c.Billing.PlanCacheSize))
	}
	if c.Stripe.WebhookBodyLimit <= 0 {
		errs = append(errs, fmt.Errorf("STRIPE_WEBHOOK_BODY_LIMIT must be positive, got %d", c.Stripe.WebhookBodyLimit))
	}
	return errors.Join(errs...)
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("store_driver", c.Billing.StoreDriver),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_user", c.DB.User),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.String("stripe_provider", c.Stripe.Provider),
		zap.Bool("stripe_key_set", c.Stripe.SecretKey != ""),
		zap.Bool("webhook_secret_set", c.Stripe.WebhookSecret != ""),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}

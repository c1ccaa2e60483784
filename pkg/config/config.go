package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD" envDefault:"password"`
	DBName          string        `env:"DB_NAME" envDefault:"tenant_service"`
	SSLMode         string        `env:"DB_SSL_MODE" envDefault:"disable"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"100"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	LogLevel        string        `env:"DB_LOG_LEVEL" envDefault:"warn"`
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GormLogLevel maps DB_LOG_LEVEL onto gorm's logger levels
func (c *DBConfig) GormLogLevel() logger.LogLevel {
	switch c.LogLevel {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string `env:"SERVER_PORT" envDefault:"8080"`
	Env  string `env:"APP_ENV" envDefault:"development"`
	// TrustedProxies are the CIDR ranges allowed to set X-Forwarded-For.
	// When empty the peer address is the client address.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

// SessionConfig holds the signing contexts for both actor classes.
// The two keys must differ so a token of one class never verifies as the other.
type SessionConfig struct {
	CompanyKey        string        `env:"COMPANY_SESSION_KEY"`
	ManagerKey        string        `env:"MANAGER_SESSION_KEY"`
	TTL               time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	Issuer            string        `env:"SESSION_ISSUER" envDefault:"tenant-service"`
	CompanyCookieName string        `env:"COMPANY_COOKIE_NAME" envDefault:"company_session"`
	ManagerCookieName string        `env:"MANAGER_COOKIE_NAME" envDefault:"manager_session"`
	SecureCookies     bool          `env:"SECURE_COOKIES" envDefault:"true"`
}

// ProvisioningConfig bounds the slug retry loop and password hashing cost
type ProvisioningConfig struct {
	MaxSlugAttempts int `env:"PROVISION_MAX_SLUG_ATTEMPTS" envDefault:"50"`
	BcryptCost      int `env:"BCRYPT_COST" envDefault:"10"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Version string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
}

// TelemetryConfig holds OTLP exporter configuration; tracing is off when Endpoint is empty
type TelemetryConfig struct {
	Endpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
}

// AuditConfig configures the optional Kafka mirror of audit rows
type AuditConfig struct {
	KafkaBrokers string `env:"AUDIT_KAFKA_BROKERS"`
	KafkaTopic   string `env:"AUDIT_KAFKA_TOPIC" envDefault:"tenant.audit"`
}

// Config holds all configuration
type Config struct {
	ServiceName  string `env:"SERVICE_NAME" envDefault:"tenant-service"`
	DB           DBConfig
	Server       ServerConfig
	Session      SessionConfig
	Provisioning ProvisioningConfig
	Log          LogConfig
	Metrics      MetricsConfig
	Telemetry    TelemetryConfig
	Audit        AuditConfig
}

// Load loads configuration from an optional .env file and the environment
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would weaken session isolation
func (c *Config) Validate() error {
	if c.Session.CompanyKey == "" || c.Session.ManagerKey == "" {
		return errors.New("COMPANY_SESSION_KEY and MANAGER_SESSION_KEY must be set")
	}
	if c.Session.CompanyKey == c.Session.ManagerKey {
		return errors.New("company and manager session keys must differ")
	}
	if c.Session.TTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.Provisioning.MaxSlugAttempts <= 0 {
		return errors.New("PROVISION_MAX_SLUG_ATTEMPTS must be positive")
	}
	return nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.Duration("session_ttl", c.Session.TTL),
		zap.Int("max_slug_attempts", c.Provisioning.MaxSlugAttempts),
	}
}

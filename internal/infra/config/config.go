package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	StoreDriver string `validate:"oneof=postgres memory"`
	DatabaseURL string `validate:"required_if=StoreDriver postgres"`

	DBMaxOpenConns    int           `validate:"min=1"`
	DBMaxIdleConns    int           `validate:"min=0,ltefield=DBMaxOpenConns"`
	DBConnMaxLifetime time.Duration `validate:"gt=0"`

	LogLevel    string
	Environment string
	HTTPAddr    string `validate:"required"`

	CronSpecScan            string        `validate:"required"`
	ScanTimeout             time.Duration `validate:"gt=0"`
	DeliveryTimeout         time.Duration `validate:"gt=0"`
	MaxConcurrentDeliveries int           `validate:"min=1"`

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	PushTTLSeconds  int `validate:"min=0"`

	// Optional cross-process scan lease. Empty RedisURL disables it. The TTL
	// must outlast ScanTimeout so a running pass never loses its lease.
	RedisURL     string        `validate:"omitempty,url"`
	ScanLeaseKey string        `validate:"required_with=RedisURL"`
	ScanLeaseTTL time.Duration `validate:"required_with=RedisURL"`

	// Optional ops alerts. Both or neither.
	TelegramToken   string `validate:"required_with=AdminTelegramID"`
	AdminTelegramID int64  `validate:"required_with=TelegramToken"`
}

// PushEnabled reports whether VAPID keys are configured.
func (c *AppConfig) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// AlertsEnabled reports whether scan failures are reported over Telegram.
func (c *AppConfig) AlertsEnabled() bool {
	return c.TelegramToken != "" && c.AdminTelegramID != 0
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return nil, err
	}
	if cfg.DBConnMaxLifetime, err = getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute); err != nil {
		return nil, err
	}
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.CronSpecScan = getEnv("CRON_SPEC_SCAN", "@every 60s")

	if cfg.ScanTimeout, err = getDuration("SCAN_TIMEOUT", 55*time.Second); err != nil {
		return nil, err
	}
	if cfg.DeliveryTimeout, err = getDuration("DELIVERY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentDeliveries, err = getInt("MAX_CONCURRENT_DELIVERIES", 8); err != nil {
		return nil, err
	}

	cfg.VAPIDPublicKey = os.Getenv("VAPID_PUBLIC_KEY")
	cfg.VAPIDPrivateKey = os.Getenv("VAPID_PRIVATE_KEY")
	cfg.VAPIDSubject = getEnv("VAPID_SUBJECT", "mailto:admin@localhost")
	if cfg.PushTTLSeconds, err = getInt("PUSH_TTL_SECONDS", 86400); err != nil {
		return nil, err
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.ScanLeaseKey = getEnv("SCAN_LEASE_KEY", "household_scheduler:scan_lease")
	if cfg.ScanLeaseTTL, err = getDuration("SCAN_LEASE_TTL", 70*time.Second); err != nil {
		return nil, err
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints of a loaded config.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.RedisURL != "" && c.ScanLeaseTTL <= c.ScanTimeout {
		return fmt.Errorf("invalid configuration: SCAN_LEASE_TTL (%s) must be greater than SCAN_TIMEOUT (%s)", c.ScanLeaseTTL, c.ScanTimeout)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

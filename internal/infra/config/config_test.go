package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for _, k := range []string{
		"STORE_DRIVER", "DATABASE_URL", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "LOG_LEVEL", "ENVIRONMENT", "HTTP_ADDR", "CRON_SPEC_SCAN",
		"SCAN_TIMEOUT", "DELIVERY_TIMEOUT", "MAX_CONCURRENT_DELIVERIES", "VAPID_PUBLIC_KEY",
		"VAPID_PRIVATE_KEY", "VAPID_SUBJECT", "PUSH_TTL_SECONDS", "REDIS_URL", "SCAN_LEASE_KEY",
		"SCAN_LEASE_TTL", "TELEGRAM_TOKEN", "ADMIN_TELEGRAM_ID",
	} {
		t.Setenv(k, "")
	}
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, map[string]string{"STORE_DRIVER": "memory"})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "@every 60s", cfg.CronSpecScan)
	assert.Equal(t, 55*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 10*time.Second, cfg.DeliveryTimeout)
	assert.Equal(t, 8, cfg.MaxConcurrentDeliveries)
	assert.Equal(t, 10, cfg.DBMaxOpenConns)
	assert.Equal(t, 5, cfg.DBMaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.DBConnMaxLifetime)
	assert.False(t, cfg.PushEnabled())
	assert.False(t, cfg.AlertsEnabled())
}

func TestLoad_PostgresNeedsDatabaseURL(t *testing.T) {
	setEnv(t, nil)
	_, err := Load()
	require.Error(t, err)

	setEnv(t, map[string]string{"DATABASE_URL": "postgres://localhost/household?sslmode=disable"})
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, map[string]string{
		"STORE_DRIVER":              "memory",
		"DELIVERY_TIMEOUT":          "3s",
		"MAX_CONCURRENT_DELIVERIES": "2",
		"VAPID_PUBLIC_KEY":          "pub",
		"VAPID_PRIVATE_KEY":         "priv",
		"REDIS_URL":                 "redis://localhost:6379/0",
		"TELEGRAM_TOKEN":            "123:abc",
		"ADMIN_TELEGRAM_ID":         "42",
	})
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.DeliveryTimeout)
	assert.Equal(t, 2, cfg.MaxConcurrentDeliveries)
	assert.True(t, cfg.PushEnabled())
	assert.True(t, cfg.AlertsEnabled())
	assert.Equal(t, int64(42), cfg.AdminTelegramID)
	assert.Equal(t, "household_scheduler:scan_lease", cfg.ScanLeaseKey)
	assert.Greater(t, cfg.ScanLeaseTTL, cfg.ScanTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown driver":          {"STORE_DRIVER": "mongo"},
		"bad duration":            {"STORE_DRIVER": "memory", "DELIVERY_TIMEOUT": "soon"},
		"zero concurrency":        {"STORE_DRIVER": "memory", "MAX_CONCURRENT_DELIVERIES": "0"},
		"idle above open conns":   {"STORE_DRIVER": "memory", "DB_MAX_OPEN_CONNS": "2", "DB_MAX_IDLE_CONNS": "3"},
		"token without admin id":  {"STORE_DRIVER": "memory", "TELEGRAM_TOKEN": "123:abc"},
		"admin id without token":  {"STORE_DRIVER": "memory", "ADMIN_TELEGRAM_ID": "42"},
		"non-numeric admin id":    {"STORE_DRIVER": "memory", "ADMIN_TELEGRAM_ID": "me"},
		"lease ttl without value": {"STORE_DRIVER": "memory", "REDIS_URL": "redis://localhost:6379", "SCAN_LEASE_TTL": "0s"},
		"lease shorter than scan": {"STORE_DRIVER": "memory", "REDIS_URL": "redis://localhost:6379", "SCAN_LEASE_TTL": "30s"},
		"scan outlasts lease":     {"STORE_DRIVER": "memory", "REDIS_URL": "redis://localhost:6379", "SCAN_TIMEOUT": "2m"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setEnv(t, env)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

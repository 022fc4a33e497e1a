package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-utility/models"
	"go-utility/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Address)
	assert.Equal(t, store.DriverFile, cfg.Storage.Driver)
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.Equal(t, 8*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Metrics.Enabled)

	rates, err := cfg.ServiceRates()
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRates(), rates)
}

func TestLoadConfigFile(t *testing.T) {
	dir := writeConfig(t, `
server:
  address: 127.0.0.1:9090
  read_timeout: 3s
storage:
  driver: sqlite
  sqlite_path: /tmp/utility.db
logging:
  level: debug
  format: console
rates:
  electricity:
    unit_charge: 2.0
    service_charge: 10.0
`)
	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Address)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, store.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "console", cfg.Logging.Format)

	rates, err := cfg.ServiceRates()
	require.NoError(t, err)
	assert.Equal(t, models.Rate{UnitCharge: 2.0, ServiceCharge: 10.0}, rates[models.Electricity])
	assert.Equal(t, models.DefaultRates()[models.Gas], rates[models.Gas])
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("UTILITY_SERVER_ADDRESS", "127.0.0.1:7070")
	t.Setenv("UTILITY_ADMIN_PASSWORD", "s3cret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7070", cfg.Server.Address)
	assert.Equal(t, "s3cret", cfg.Admin.Password)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad address", "server:\n  address: nowhere\n"},
		{"bad driver", "storage:\n  driver: postgres\n"},
		{"bad format", "logging:\n  format: xml\n"},
		{"negative charge", "rates:\n  gas:\n    unit_charge: -1\n"},
		{"unknown service", "rates:\n  steam:\n    unit_charge: 1\n"},
		{"empty admin", "admin:\n  password: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"go-utility/models"
	"go-utility/store"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig           `mapstructure:"server"`
	Storage store.Config           `mapstructure:"storage"`
	Logging LoggingConfig          `mapstructure:"logging"`
	Admin   AdminConfig            `mapstructure:"admin"`
	Auth    AuthConfig             `mapstructure:"auth"`
	Metrics MetricsConfig          `mapstructure:"metrics"`
	Rates   map[string]models.Rate `mapstructure:"rates"`
}

// ServerConfig defines HTTP server settings.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AdminConfig holds the staff login.
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AuthConfig defines session and login throttling settings.
type AuthConfig struct {
	TokenTTL           time.Duration `mapstructure:"token_ttl"`
	LoginRatePerSecond float64       `mapstructure:"login_rate_per_second"`
	LoginBurst         int           `mapstructure:"login_burst"`
}

// MetricsConfig defines metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

const envPrefix = "UTILITY"

// LoadConfig loads configuration from a .env file, config.yaml and
// environment variables, in increasing order of precedence.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.go-utility")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1:8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})

	v.SetDefault("storage.driver", store.DriverFile)
	v.SetDefault("storage.dir", "data")
	v.SetDefault("storage.sqlite_path", "data/utility.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "admin")

	v.SetDefault("auth.token_ttl", 8*time.Hour)
	v.SetDefault("auth.login_rate_per_second", 1.0)
	v.SetDefault("auth.login_burst", 5)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	for t, r := range models.DefaultRates() {
		key := "rates." + strings.ToLower(t.String())
		v.SetDefault(key+".unit_charge", r.UnitCharge)
		v.SetDefault(key+".service_charge", r.ServiceCharge)
	}
}

// Validate checks the values LoadConfig cannot default.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		return fmt.Errorf("server.address %q: %w", c.Server.Address, err)
	}
	switch c.Storage.Driver {
	case store.DriverFile:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir must be specified")
		}
	case store.DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path must be specified")
		}
	default:
		return fmt.Errorf("storage.driver must be %q or %q", store.DriverFile, store.DriverSQLite)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Admin.Username == "" || c.Admin.Password == "" {
		return errors.New("admin.username and admin.password must be specified")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Auth.LoginRatePerSecond <= 0 || c.Auth.LoginBurst <= 0 {
		return errors.New("auth.login_rate_per_second and auth.login_burst must be positive")
	}
	if _, err := c.ServiceRates(); err != nil {
		return err
	}
	return nil
}

// ServiceRates returns the configured charges keyed by service type.
func (c *Config) ServiceRates() (map[models.ServiceType]models.Rate, error) {
	out := make(map[models.ServiceType]models.Rate, len(c.Rates))
	for name, r := range c.Rates {
		t, err := models.ParseServiceType(name)
		if err != nil {
			return nil, fmt.Errorf("rates: %w", err)
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rates.%s: %w", name, err)
		}
		out[t] = r
	}
	return out, nil
}

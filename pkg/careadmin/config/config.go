// Package config loads the careadmin configuration from an optional YAML file
// and CAREADMIN_* environment variables using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CAREADMIN_DATABASE_DRIVER.
const EnvPrefix = "CAREADMIN"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Provider ProviderConfig `mapstructure:"provider"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr               string `mapstructure:"addr"`
	CookieName         string `mapstructure:"cookie_name"`
	SecureCookies      bool   `mapstructure:"secure_cookies"`
	LoginRatePerMinute int    `mapstructure:"login_rate_per_minute"`
	WebDistPath        string `mapstructure:"web_dist_path"`
}

// DatabaseConfig selects and configures the relational database.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders the libpq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// AuthConfig configures admin session reconciliation.
type AuthConfig struct {
	// LinkSecret keys the HMAC that derives each admin's provider password.
	LinkSecret string `mapstructure:"link_secret"`
	// PlaceholderDomain replaces admin email domains the provider would reject.
	PlaceholderDomain string `mapstructure:"placeholder_domain"`
	// ContextCacheSize bounds the number of live browser contexts.
	ContextCacheSize int             `mapstructure:"context_cache_size"`
	Bootstrap        BootstrapConfig `mapstructure:"bootstrap"`
}

// BootstrapConfig describes the super admin created when none exists.
type BootstrapConfig struct {
	Email    string `mapstructure:"email"`
	Name     string `mapstructure:"name"`
	Password string `mapstructure:"password"`
}

// ProviderConfig configures the embedded identity provider.
type ProviderConfig struct {
	Issuer                   string `mapstructure:"issuer"`
	SigningSecret            string `mapstructure:"signing_secret"`
	AccessTTL                string `mapstructure:"access_ttl"`
	RefreshTTL               string `mapstructure:"refresh_ttl"`
	RequireEmailConfirmation bool   `mapstructure:"require_email_confirmation"`
}

// FallbackConfig selects where fallback identity records are kept.
type FallbackConfig struct {
	Driver    string `mapstructure:"driver"`
	Directory string `mapstructure:"directory"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the YAML file at path (if non-empty), applies CAREADMIN_* overrides
// and defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cookie_name", "careadmin_ctx")
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.login_rate_per_minute", 20)
	v.SetDefault("server.web_dist_path", "./web/dist")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", "careadmin.db")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "careadmin")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "careadmin")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("auth.link_secret", "")
	v.SetDefault("auth.placeholder_domain", "admins.careadmin.app")
	v.SetDefault("auth.context_cache_size", 4096)
	v.SetDefault("auth.bootstrap.email", "admin@careadmin.app")
	v.SetDefault("auth.bootstrap.name", "Super Admin")
	v.SetDefault("auth.bootstrap.password", "")

	v.SetDefault("provider.issuer", "careadmin-identity")
	v.SetDefault("provider.signing_secret", "")
	v.SetDefault("provider.access_ttl", "1h")
	v.SetDefault("provider.refresh_ttl", "720h")
	v.SetDefault("provider.require_email_confirmation", false)

	v.SetDefault("fallback.driver", "file")
	v.SetDefault("fallback.directory", "./fallback")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.LoginRatePerMinute <= 0 {
		return errors.New("config: server.login_rate_per_minute must be positive")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return errors.New("config: database.sqlite.path must be set")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" || c.Database.Postgres.Database == "" {
			return errors.New("config: database.postgres.host and database.postgres.database must be set")
		}
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}

	if c.Auth.LinkSecret == "" {
		return errors.New("config: auth.link_secret must be set")
	}
	if c.Auth.PlaceholderDomain == "" || !strings.Contains(c.Auth.PlaceholderDomain, ".") {
		return errors.New("config: auth.placeholder_domain must be a fully qualified domain")
	}
	if c.Auth.ContextCacheSize <= 0 {
		return errors.New("config: auth.context_cache_size must be positive")
	}

	if c.Provider.SigningSecret == "" {
		return errors.New("config: provider.signing_secret must be set")
	}
	if _, err := c.Provider.AccessDuration(); err != nil {
		return err
	}
	if _, err := c.Provider.RefreshDuration(); err != nil {
		return err
	}

	switch c.Fallback.Driver {
	case "memory":
	case "file":
		if c.Fallback.Directory == "" {
			return errors.New("config: fallback.directory must be set for the file driver")
		}
	default:
		return fmt.Errorf("config: unsupported fallback driver %q", c.Fallback.Driver)
	}

	return nil
}

// AccessDuration parses the access token lifetime.
func (p ProviderConfig) AccessDuration() (time.Duration, error) {
	return parsePositiveDuration("provider.access_ttl", p.AccessTTL)
}

// RefreshDuration parses the refresh token lifetime.
func (p ProviderConfig) RefreshDuration() (time.Duration, error) {
	return parsePositiveDuration("provider.refresh_ttl", p.RefreshTTL)
}

func parsePositiveDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return d, nil
}

// Package config loads storefront settings from .env, an optional YAML file,
// FARMSTAND_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "FARMSTAND"

type Config struct {
	ListenAddr string         `mapstructure:"listen_addr"`
	DBPath     string         `mapstructure:"db_path"`
	API        APIConfig      `mapstructure:"api"`
	Log        LogConfig      `mapstructure:"log"`
	Admin      AdminConfig    `mapstructure:"admin"`
	Temporal   TemporalConfig `mapstructure:"temporal"`
	Session    SessionConfig  `mapstructure:"session"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`
}

type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// Timeout of zero means API calls never time out.
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

type AdminConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// TemporalConfig selects the checkout orchestrator. An empty HostPort runs
// checkouts inline.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	// Worker hosts the checkout worker inside serve.
	Worker bool `mapstructure:"worker"`
}

type SessionConfig struct {
	CookieName    string        `mapstructure:"cookie_name"`
	SecureCookie  bool          `mapstructure:"secure_cookie"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TemporalEnabled reports whether checkouts go through a Temporal workflow.
func (c Config) TemporalEnabled() bool {
	return strings.TrimSpace(c.Temporal.HostPort) != ""
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"listen":             "listen_addr",
	"db":                 "db_path",
	"api-url":            "api.base_url",
	"api-timeout":        "api.timeout",
	"log-format":         "log.format",
	"log-level":          "log.level",
	"admin-page-size":    "admin.page_size",
	"temporal":           "temporal.host_port",
	"temporal-namespace": "temporal.namespace",
	"temporal-worker":    "temporal.worker",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("db_path", "farmstand.db")
	v.SetDefault("api.base_url", "http://127.0.0.1:8002")
	v.SetDefault("api.timeout", time.Duration(0))
	v.SetDefault("log.format", "json")
	v.SetDefault("log.level", "info")
	v.SetDefault("admin.page_size", 10)
	v.SetDefault("temporal.host_port", "")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.worker", true)
	v.SetDefault("session.cookie_name", "farmstand_sid")
	v.SetDefault("session.secure_cookie", false)
	v.SetDefault("session.idle_ttl", 24*time.Hour)
	v.SetDefault("session.sweep_interval", 10*time.Minute)
	v.SetDefault("metrics.enabled", true)
}

// Load reads the configuration. cfgFile, when set, must exist; otherwise a
// farmstand.yaml in the working directory is used if present. flags may be
// nil; only flags that were set on the command line override other sources.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("farmstand")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the storefront cannot start with.
func (c Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: api.base_url %q must be an absolute http(s) URL", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("config: api.timeout must not be negative")
	}
	if c.Admin.PageSize <= 0 {
		return fmt.Errorf("config: admin.page_size must be positive, got %d", c.Admin.PageSize)
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("config: listen_addr is required")
	}
	if c.Session.IdleTTL <= 0 {
		return fmt.Errorf("config: session.idle_ttl must be positive")
	}
	return nil
}

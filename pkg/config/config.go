package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port            string        `mapstructure:"port"`
	AppEnv          string        `mapstructure:"app_env"`
	LogLevel        string        `mapstructure:"log_level"`
	BaseURL         string        `mapstructure:"base_url"`
	DatabaseURL     string        `mapstructure:"database_url"`
	AgentJWTSecret  string        `mapstructure:"agent_jwt_secret"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Links LinkSettings `mapstructure:",squash"`
	Sync  SyncSettings `mapstructure:",squash"`
}

// LinkSettings configures the link registry.
type LinkSettings struct {
	// TTLOptions is the ordered list of accepted expiry labels, e.g. "7d".
	TTLOptions    []string      `mapstructure:"link_ttl_options"`
	DefaultTTL    string        `mapstructure:"link_default_ttl"`
	FallbackTTL   string        `mapstructure:"link_fallback_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	AccessLogCap  int           `mapstructure:"access_log_cap"`
	RedirectDelay time.Duration `mapstructure:"redirect_delay"`
}

// SyncSettings configures the agent hub and its transport.
type SyncSettings struct {
	QueueSize          int           `mapstructure:"agent_queue_size"`
	WriteTimeout       time.Duration `mapstructure:"agent_write_timeout"`
	ActionDedupeWindow time.Duration `mapstructure:"action_dedupe_window"`
}

var defaults = map[string]any{
	"port":                 "8080",
	"app_env":              "local",
	"log_level":            "info",
	"base_url":             "http://localhost:8080",
	"database_url":         "",
	"agent_jwt_secret":     "",
	"shutdown_timeout":     "30s",
	"link_ttl_options":     "1h,6h,24h,7d,30d",
	"link_default_ttl":     "1h",
	"link_fallback_ttl":    "24h",
	"sweep_interval":       "30m",
	"access_log_cap":       1000,
	"redirect_delay":       "3s",
	"agent_queue_size":     64,
	"agent_write_timeout":  "10s",
	"action_dedupe_window": "30s",
}

// Load reads .env (if present), an optional CONFIG_FILE and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if _, err := cfg.Links.TTLTable(); err != nil {
		return nil, err
	}
	if cfg.Links.AccessLogCap < 1 {
		return nil, fmt.Errorf("access_log_cap must be positive, got %d", cfg.Links.AccessLogCap)
	}
	if cfg.Sync.QueueSize < 1 {
		return nil, fmt.Errorf("agent_queue_size must be positive, got %d", cfg.Sync.QueueSize)
	}
	return &cfg, nil
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// TTLTable maps every accepted label to its duration. Both the default and the
// fallback label must be in the table.
func (s LinkSettings) TTLTable() (map[string]time.Duration, error) {
	table := make(map[string]time.Duration, len(s.TTLOptions))
	for _, label := range s.TTLOptions {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		d, err := ParseTTL(label)
		if err != nil {
			return nil, err
		}
		table[label] = d
	}
	for _, required := range []string{s.DefaultTTL, s.FallbackTTL} {
		if _, ok := table[required]; !ok {
			return nil, fmt.Errorf("ttl %q is not in link_ttl_options", required)
		}
	}
	return table, nil
}

// ParseTTL accepts time.ParseDuration syntax plus a whole-day suffix ("7d").
func ParseTTL(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid ttl %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid ttl %q", s)
	}
	return d, nil
}

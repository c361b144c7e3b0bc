package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Notifier drivers.
const (
	NotifierLog     = "log"
	NotifierWebhook = "webhook"
	NotifierEmail   = "email"
)

// Config is the relay process configuration.
type Config struct {
	HTTPAddr string        `yaml:"http_addr" env:"HTTP_ADDR"`
	Auth     AuthConfig    `yaml:"auth"`
	Storage  StorageConfig `yaml:"storage"`
	Notifier NotifyConfig  `yaml:"notifier"`
	Jobs     JobsConfig    `yaml:"jobs"`
}

// AuthConfig configures operator tokens.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL"`
}

// StorageConfig selects the credential store.
type StorageConfig struct {
	Driver      string `yaml:"driver" env:"STORAGE_DRIVER"`
	SQLitePath  string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	PostgresDSN string `yaml:"postgres_dsn" env:"PG_DSN"`
}

// NotifyConfig selects how codes and keys reach operators.
type NotifyConfig struct {
	Driver        string        `yaml:"driver" env:"NOTIFIER"`
	WebhookURL    string        `yaml:"webhook_url" env:"WEBHOOK_URL"`
	EmailEndpoint string        `yaml:"email_endpoint" env:"EMAIL_ENDPOINT"`
	EmailAPIKey   string        `yaml:"email_api_key" env:"EMAIL_API_KEY"`
	EmailFrom     string        `yaml:"email_from" env:"EMAIL_FROM"`
	Timeout       time.Duration `yaml:"timeout" env:"NOTIFY_TIMEOUT"`
}

// JobsConfig schedules housekeeping.
type JobsConfig struct {
	CodeSweepInterval    time.Duration `yaml:"code_sweep_interval" env:"CODE_SWEEP_INTERVAL"`
	GaugeRefreshInterval time.Duration `yaml:"gauge_refresh_interval" env:"GAUGE_REFRESH_INTERVAL"`
	CommandSweepInterval time.Duration `yaml:"command_sweep_interval" env:"COMMAND_SWEEP_INTERVAL"`
	CommandRetention     time.Duration `yaml:"command_retention" env:"COMMAND_RETENTION"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
		Storage: StorageConfig{
			Driver:     StorageMemory,
			SQLitePath: "var/relay.db",
		},
		Notifier: NotifyConfig{
			Driver:        NotifierLog,
			EmailEndpoint: "https://api.resend.com/emails",
			Timeout:       5 * time.Second,
		},
		Jobs: JobsConfig{
			CodeSweepInterval:    5 * time.Minute,
			GaugeRefreshInterval: 30 * time.Second,
			CommandSweepInterval: 10 * time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the optional RELAY_CONFIG yaml
// file and the process environment, in that order.
func Load() (Config, error) {
	return LoadFrom(environMap(os.Environ()))
}

// LoadFrom is Load over an explicit environment.
func LoadFrom(environ map[string]string) (Config, error) {
	cfg := Default()
	if path := environ["RELAY_CONFIG"]; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return cfg, fmt.Errorf("config: parse env: %w", err)
	}
	if cfg.Storage.PostgresDSN == "" {
		cfg.Storage.PostgresDSN = environ["DATABASE_URL"]
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = environ["JWT_SECRET"]
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Notifier.Driver = strings.ToLower(strings.TrimSpace(cfg.Notifier.Driver))
	return cfg, cfg.Validate()
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for sqlite storage"))
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("PG_DSN or DATABASE_URL is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}

	drivers := c.Notifier.Drivers()
	if len(drivers) == 0 {
		errs = append(errs, errors.New("NOTIFIER is required"))
	}
	for _, driver := range drivers {
		switch driver {
		case NotifierLog:
		case NotifierWebhook:
			if c.Notifier.WebhookURL == "" {
				errs = append(errs, errors.New("WEBHOOK_URL is required for webhook notifier"))
			}
		case NotifierEmail:
			if c.Notifier.EmailAPIKey == "" || c.Notifier.EmailFrom == "" {
				errs = append(errs, errors.New("EMAIL_API_KEY and EMAIL_FROM are required for email notifier"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown NOTIFIER %q", driver))
		}
	}

	if c.Jobs.CodeSweepInterval <= 0 || c.Jobs.GaugeRefreshInterval <= 0 || c.Jobs.CommandSweepInterval <= 0 {
		errs = append(errs, errors.New("job intervals must be positive"))
	}
	if c.Jobs.CommandRetention < 0 {
		errs = append(errs, errors.New("COMMAND_RETENTION must not be negative"))
	}
	return errors.Join(errs...)
}

// Drivers returns the configured notifier drivers. NOTIFIER may list several, comma separated.
func (n NotifyConfig) Drivers() []string {
	var out []string
	for _, part := range strings.Split(n.Driver, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func environMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if ok {
			out[key] = value
		}
	}
	return out
}

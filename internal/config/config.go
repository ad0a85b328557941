// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling"`                // enable sampling in prod
}

type DatabaseConfig struct {
	URL            string `yaml:"url" env:"DATABASE_URL"`
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start" env:"DATABASE_MIGRATE"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // user cache entries
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer     string        `yaml:"issuer"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	CookieName string        `yaml:"cookie_name"`
}

const (
	PaymentModeSimulated = "simulated"
	PaymentModeDaraja    = "daraja"
)

type SimulatedPaymentConfig struct {
	InitiateLatency time.Duration `yaml:"initiate_latency"`
	StatusLatency   time.Duration `yaml:"status_latency"`
	SuccessRate     float64       `yaml:"success_rate"`
	Seed            int64         `yaml:"seed"`
}

type DarajaConfig struct {
	BaseURL        string        `yaml:"base_url" env:"MPESA_BASE_URL"`
	ConsumerKey    string        `yaml:"consumer_key" env:"MPESA_CONSUMER_KEY"`
	ConsumerSecret string        `yaml:"consumer_secret" env:"MPESA_CONSUMER_SECRET"`
	ShortCode      string        `yaml:"short_code" env:"MPESA_SHORTCODE"`
	PassKey        string        `yaml:"pass_key" env:"MPESA_PASSKEY"`
	CallbackURL    string        `yaml:"callback_url" env:"MPESA_CALLBACK_URL"`
	Timeout        time.Duration `yaml:"timeout"`
}

type PaymentConfig struct {
	Mode      string                 `yaml:"mode" env:"PAYMENT_MODE"` // simulated | daraja
	Simulated SimulatedPaymentConfig `yaml:"simulated"`
	Daraja    DarajaConfig           `yaml:"daraja"`

	// MaxConcurrent caps in-flight provider calls; 0 means unlimited.
	MaxConcurrent int `yaml:"max_concurrent"`
}

type UpgradeConfig struct {
	PromptDelay    time.Duration `yaml:"prompt_delay"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
	RateLimit      int           `yaml:"rate_limit"`
	RateWindow     time.Duration `yaml:"rate_window"`
	SnapshotTTL    time.Duration `yaml:"snapshot_ttl"`
	RedirectTo     string        `yaml:"redirect_to"`

	// PendingMaxAge bounds how long the reconciler keeps re-checking an unanswered payment.
	PendingMaxAge time.Duration `yaml:"pending_max_age"`
}

type CreditsConfig struct {
	FreeDefault int64 `yaml:"free_default"`
}

type PlanConfig struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Duration        string   `yaml:"duration"`
	PriceKES        int64    `yaml:"price_kes"`
	Features        []string `yaml:"features"`
	CreditsPerMonth *int64   `yaml:"credits_per_month"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
}

type WorkersConfig struct {
	PoolSize  int `yaml:"pool_size"`
	QueueSize int `yaml:"queue_size"`
}

type ReconcilerConfig struct {
	Interval       time.Duration `yaml:"interval"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	BatchSize      int           `yaml:"batch_size"`
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
}

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Payment    PaymentConfig    `yaml:"payment"`
	Upgrade    UpgradeConfig    `yaml:"upgrade"`
	Credits    CreditsConfig    `yaml:"credits"`
	Plans      []PlanConfig     `yaml:"plans"`
	Security   SecurityConfig   `yaml:"security"`
	Workers    WorkersConfig    `yaml:"workers"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses -config and -dev, then delegates to Load.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return Load(configPath, dev)
}

// Load reads the YAML file (optional when every required value comes from the
// environment), applies .env and environment overrides, fills defaults and validates.
func Load(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only deployment
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// The .env file might not exist and that's ok.
	_ = godotenv.Load()
	for _, section := range []any{&cfg.HTTP, &cfg.Log, &cfg.Database, &cfg.Redis, &cfg.Auth, &cfg.Payment, &cfg.Security} {
		if err := env.Parse(section); err != nil {
			return nil, fmt.Errorf("parse env: %w", err)
		}
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	cfg.HTTP.ReadTimeout = orDuration(cfg.HTTP.ReadTimeout, 10*time.Second)
	cfg.HTTP.WriteTimeout = orDuration(cfg.HTTP.WriteTimeout, 35*time.Second)
	cfg.HTTP.ShutdownTimeout = orDuration(cfg.HTTP.ShutdownTimeout, 10*time.Second)

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = orDuration(cfg.Redis.TTL, time.Hour)

	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "teamchat"
	}
	cfg.Auth.TokenTTL = orDuration(cfg.Auth.TokenTTL, 24*time.Hour)
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "session"
	}

	cfg.Payment.Mode = strings.ToLower(strings.TrimSpace(cfg.Payment.Mode))
	if cfg.Payment.Mode == "" {
		cfg.Payment.Mode = PaymentModeSimulated
	}
	sim := &cfg.Payment.Simulated
	sim.InitiateLatency = orDuration(sim.InitiateLatency, 2*time.Second)
	sim.StatusLatency = orDuration(sim.StatusLatency, time.Second)
	if sim.SuccessRate <= 0 || sim.SuccessRate > 1 {
		sim.SuccessRate = 0.9
	}
	if cfg.Payment.Daraja.BaseURL == "" {
		cfg.Payment.Daraja.BaseURL = "https://sandbox.safaricom.co.ke"
	}
	cfg.Payment.Daraja.Timeout = orDuration(cfg.Payment.Daraja.Timeout, 30*time.Second)

	up := &cfg.Upgrade
	up.PromptDelay = orDuration(up.PromptDelay, 5*time.Second)
	if up.MaxAttempts <= 0 {
		up.MaxAttempts = 1
	}
	up.InitialBackoff = orDuration(up.InitialBackoff, 2*time.Second)
	up.MaxBackoff = orDuration(up.MaxBackoff, 30*time.Second)
	up.LockTTL = orDuration(up.LockTTL, 10*time.Minute)
	if up.RateLimit <= 0 {
		up.RateLimit = 5
	}
	up.RateWindow = orDuration(up.RateWindow, 10*time.Minute)
	up.SnapshotTTL = orDuration(up.SnapshotTTL, time.Hour)
	up.PendingMaxAge = orDuration(up.PendingMaxAge, 24*time.Hour)
	if up.RedirectTo == "" {
		up.RedirectTo = "/home"
	}

	if cfg.Credits.FreeDefault <= 0 {
		cfg.Credits.FreeDefault = 100
	}
	if cfg.Workers.PoolSize <= 0 {
		cfg.Workers.PoolSize = 8
	}
	if cfg.Workers.QueueSize <= 0 {
		cfg.Workers.QueueSize = 128
	}
	cfg.Reconciler.Interval = orDuration(cfg.Reconciler.Interval, time.Minute)
	cfg.Reconciler.StaleAfter = orDuration(cfg.Reconciler.StaleAfter, 5*time.Minute)
	if cfg.Reconciler.BatchSize <= 0 {
		cfg.Reconciler.BatchSize = 50
	}
	cfg.Reconciler.ExpiryInterval = orDuration(cfg.Reconciler.ExpiryInterval, time.Hour)
}

// Validate performs minimal validation of required settings.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch c.Payment.Mode {
	case PaymentModeSimulated:
	case PaymentModeDaraja:
		d := c.Payment.Daraja
		if d.ConsumerKey == "" || d.ConsumerSecret == "" || d.ShortCode == "" || d.PassKey == "" {
			return errors.New("payment.daraja requires consumer_key, consumer_secret, short_code and pass_key")
		}
	default:
		return fmt.Errorf("payment.mode %q is not supported", c.Payment.Mode)
	}
	// security.encryption_key is checked by security.NewEncryptionService at startup.
	return nil
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PublicBaseURL  string        `yaml:"public_base_url"` // default origin for provider return urls
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // pending order lifetime
}

type PlanPriceConfig struct {
	Monthly int64 `yaml:"monthly"` // minor units
	Yearly  int64 `yaml:"yearly"`
}

type FeeConfig struct {
	PercentBps int64 `yaml:"percent_bps"`
	FixedMinor int64 `yaml:"fixed_minor"`
}

type StripeConfig struct {
	SecretKey string `yaml:"secret_key"`
	BaseURL   string `yaml:"base_url"`
}

type PayPalConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sandbox      bool   `yaml:"sandbox"`
	ReturnURL    string `yaml:"return_url"`
	CancelURL    string `yaml:"cancel_url"`
}

type AlipayConfig struct {
	AppID      string `yaml:"app_id"`
	PrivateKey string `yaml:"private_key"` // application RSA private key, PEM or bare base64
	PublicKey  string `yaml:"public_key"`  // platform RSA public key, PEM or bare base64
}

// PaymentConfig carries provider credentials. It is passed explicitly to
// each adapter; nothing reads it from package state.
type PaymentConfig struct {
	Currency        string                     `yaml:"currency"`
	ProviderTimeout time.Duration              `yaml:"provider_timeout"`
	Plans           map[string]PlanPriceConfig `yaml:"plans"`
	Fees            map[string]FeeConfig       `yaml:"fees"`
	Stripe          StripeConfig               `yaml:"stripe"`
	PayPal          PayPalConfig               `yaml:"paypal"`
	Alipay          AlipayConfig               `yaml:"alipay"`
}

type SchedulerConfig struct {
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Security  SecurityConfig  `yaml:"security"`
	Kafka     KafkaConfig     `yaml:"kafka"`

	Runtime RuntimeConfig `yaml:"-"`
}

// PayPalCapturePath is where PayPal sends the buyer back after approval.
const PayPalCapturePath = "/api/v1/payment/paypal/capture"

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 30 * time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "USD"
	}
	cfg.Payment.Currency = strings.ToUpper(cfg.Payment.Currency)
	if cfg.Payment.ProviderTimeout <= 0 {
		cfg.Payment.ProviderTimeout = 10 * time.Second
	}
	if cfg.Payment.PayPal.ReturnURL == "" && cfg.HTTP.PublicBaseURL != "" {
		cfg.Payment.PayPal.ReturnURL = strings.TrimRight(cfg.HTTP.PublicBaseURL, "/") + PayPalCapturePath
	}
	if cfg.Payment.Stripe.BaseURL == "" {
		cfg.Payment.Stripe.BaseURL = "https://api.stripe.com"
	}
	if cfg.Scheduler.ExpiryInterval <= 0 {
		cfg.Scheduler.ExpiryInterval = 10 * time.Minute
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "subscription-events"
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "bookmarks-billing"
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	for name, fee := range cfg.Payment.Fees {
		if fee.PercentBps < 0 || fee.PercentBps > 10000 || fee.FixedMinor < 0 {
			return nil, fmt.Errorf("payment.fees.%s: out of range", name)
		}
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 3 * time.Hour
	}
	return d
}

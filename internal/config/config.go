package config

import (
	"gopkg.in/yaml.v3"
	"io/ioutil"
	"os"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// LedgerConfig resolves the behaviors the ledger core leaves configurable.
type LedgerConfig struct {
	// CurrencyExponent is the number of decimal places between major and
	// minor units (2 for cents).
	CurrencyExponent int32 `yaml:"currency_exponent"`
	// TreatUnappliedPaymentAsCredit keeps payments with applied_to_debt=false
	// as credit balance instead of zero-impact events.
	TreatUnappliedPaymentAsCredit bool `yaml:"treat_unapplied_payment_as_credit"`
	// RefundOvershootPolicy: convert_to_credit (default) or clip_to_zero.
	RefundOvershootPolicy string `yaml:"refund_overshoot_policy"`
}

type ReconcileConfig struct {
	// BatchSize bounds how many customers one full reconciliation pass loads
	// per page.
	BatchSize int `yaml:"batch_size"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if cfg.Ledger.CurrencyExponent == 0 {
		cfg.Ledger.CurrencyExponent = 2
	}
	if cfg.Ledger.RefundOvershootPolicy == "" {
		cfg.Ledger.RefundOvershootPolicy = "convert_to_credit"
	}
	if cfg.Reconcile.BatchSize == 0 {
		cfg.Reconcile.BatchSize = 200
	}
	return &cfg, nil
}

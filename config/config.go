package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	AES            AESConfig            `mapstructure:"aes"`
	Log            LogConfig            `mapstructure:"log"`
	Ledger         LedgerConfig         `mapstructure:"ledger"`
	Escrow         EscrowConfig         `mapstructure:"escrow"`
	Risk           RiskConfig           `mapstructure:"risk"`
	Withdrawal     WithdrawalConfig     `mapstructure:"withdrawal"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Alert          AlertConfig          `mapstructure:"alert"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// LedgerConfig controls ledger entry integrity hashing.
type LedgerConfig struct {
	HashKey string `mapstructure:"hash_key"` // empty = plain SHA-256
}

// EscrowConfig controls the order escrow lifecycle.
type EscrowConfig struct {
	FeePercent      string        `mapstructure:"fee_percent"` // decimal string, e.g. "2"
	AutoFinalize    time.Duration `mapstructure:"auto_finalize"`
	FeeAccountID    string        `mapstructure:"fee_account_id"` // empty = fee not credited
	FinalizeBatch   int           `mapstructure:"finalize_batch"`
	FinalizeEvery   time.Duration `mapstructure:"finalize_every"`
	FinalizeEnabled bool          `mapstructure:"finalize_enabled"`
}

// RiskConfig holds per-currency large-withdrawal thresholds.
type RiskConfig struct {
	LargeAmountBTC string `mapstructure:"large_amount_btc"`
	LargeAmountXMR string `mapstructure:"large_amount_xmr"`
}

type WithdrawalConfig struct {
	VelocityLimit  int64         `mapstructure:"velocity_limit"`
	VelocityWindow time.Duration `mapstructure:"velocity_window"`
	AutoApprove    bool          `mapstructure:"auto_approve"`
}

// ReconciliationConfig controls the background balance verification job.
type ReconciliationConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Interval       time.Duration `mapstructure:"interval"`
	PageSize       int           `mapstructure:"page_size"`
	AutoFix        bool          `mapstructure:"auto_fix"`
	MinorBTC       string        `mapstructure:"minor_btc"`
	MinorXMR       string        `mapstructure:"minor_xmr"`
	AlertBTC       string        `mapstructure:"alert_btc"`
	AlertXMR       string        `mapstructure:"alert_xmr"`
	PassTimeout    time.Duration `mapstructure:"pass_timeout"`
	RecordClean    bool          `mapstructure:"record_clean"`
	AlertOnMajor   bool          `mapstructure:"alert_on_major"`
	StartupDelay   time.Duration `mapstructure:"startup_delay"`
	MaxWalletsPass int           `mapstructure:"max_wallets_pass"` // 0 = no cap
}

// AlertConfig points at the operator alert webhook.
type AlertConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"` // empty = log only
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// KafkaConfig enables the audit event stream.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"` // empty = disabled
	Topic   string   `mapstructure:"topic"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: CLG_ (Custody LedGer).
// Nested keys use underscore: CLG_DATABASE_HOST, CLG_ESCROW_FEE_PERCENT, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "custody_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_timeout", "5s")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "12h")
	v.SetDefault("jwt.issuer", "custody-ledger")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("ledger.hash_key", "")
	v.SetDefault("escrow.fee_percent", "2")
	v.SetDefault("escrow.auto_finalize", "336h")
	v.SetDefault("escrow.fee_account_id", "")
	v.SetDefault("escrow.finalize_batch", 100)
	v.SetDefault("escrow.finalize_every", "10m")
	v.SetDefault("escrow.finalize_enabled", true)
	v.SetDefault("risk.large_amount_btc", "0.5")
	v.SetDefault("risk.large_amount_xmr", "25")
	v.SetDefault("withdrawal.velocity_limit", 5)
	v.SetDefault("withdrawal.velocity_window", "1h")
	v.SetDefault("withdrawal.auto_approve", true)
	v.SetDefault("reconciliation.enabled", true)
	v.SetDefault("reconciliation.interval", "1h")
	v.SetDefault("reconciliation.page_size", 500)
	v.SetDefault("reconciliation.auto_fix", false)
	v.SetDefault("reconciliation.minor_btc", "0.000001")
	v.SetDefault("reconciliation.minor_xmr", "0.000000001")
	v.SetDefault("reconciliation.alert_btc", "0.001")
	v.SetDefault("reconciliation.alert_xmr", "0.1")
	v.SetDefault("reconciliation.pass_timeout", "30m")
	v.SetDefault("reconciliation.record_clean", true)
	v.SetDefault("reconciliation.alert_on_major", false)
	v.SetDefault("reconciliation.startup_delay", "1m")
	v.SetDefault("reconciliation.max_wallets_pass", 0)
	v.SetDefault("alert.webhook_url", "")
	v.SetDefault("alert.timeout", "10s")
	v.SetDefault("alert.max_retries", 3)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "ledger.audit")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: CLG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("CLG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Reconciliation.PageSize <= 0 {
		return fmt.Errorf("reconciliation.page_size must be positive")
	}
	return nil
}

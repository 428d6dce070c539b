// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port          int           `yaml:"port" validate:"gt=0"`
	APIKey        string        `yaml:"api_key"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=postgres redis"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RatesConfig struct {
	OracleURL string        `yaml:"oracle_url"`
	TTL       time.Duration `yaml:"ttl"`
}

type PixConfig struct {
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`
	WebhookURL  string `yaml:"webhook_url"`
	Sandbox     bool   `yaml:"sandbox"`
}

type BitcoinConfig struct {
	EsploraURL string `yaml:"esplora_url"`
}

type UsdtConfig struct {
	EtherscanURL string `yaml:"etherscan_url"`
	EtherscanKey string `yaml:"etherscan_key"`
	RPCURL       string `yaml:"rpc_url"`
	Contract     string `yaml:"contract"`
	ChainID      int64  `yaml:"chain_id"`
}

type GitHubConfig struct {
	Username string `yaml:"username"`
}

type PaymentConfig struct {
	Pix     PixConfig     `yaml:"pix"`
	Bitcoin BitcoinConfig `yaml:"bitcoin"`
	Usdt    UsdtConfig    `yaml:"usdt"`
	GitHub  GitHubConfig  `yaml:"github"`
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	Workers    int           `yaml:"workers"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Rates      RatesConfig      `yaml:"rates"`
	Payment    PaymentConfig    `yaml:"payment"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, overlays secrets from the environment
// (a .env file is honored when present) and validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load() // missing .env is fine

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev

	// environment overrides for secrets and connection strings
	overlay(&cfg.Server.APIKey, "ADMIN_API_KEY")
	overlay(&cfg.Server.SessionSecret, "SESSION_SECRET")
	overlay(&cfg.Database.URL, "DATABASE_URL")
	overlay(&cfg.Redis.URL, "REDIS_URL")
	overlay(&cfg.Payment.Pix.AccessToken, "MERCADOPAGO_ACCESS_TOKEN")
	overlay(&cfg.Payment.Usdt.EtherscanKey, "ETHERSCAN_API_KEY")
	overlay(&cfg.Payment.Usdt.RPCURL, "ETHEREUM_RPC_URL")

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.SessionTTL <= 0 {
		cfg.Server.SessionTTL = 30 * time.Minute
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "redis"
	}
	if cfg.Rates.OracleURL == "" {
		cfg.Rates.OracleURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Rates.TTL <= 0 {
		cfg.Rates.TTL = 5 * time.Minute
	}
	if cfg.Payment.Bitcoin.EsploraURL == "" {
		cfg.Payment.Bitcoin.EsploraURL = "https://blockstream.info/api"
	}
	if cfg.Payment.Usdt.EtherscanURL == "" {
		cfg.Payment.Usdt.EtherscanURL = "https://api.etherscan.io/api"
	}
	if cfg.Payment.Usdt.ChainID == 0 {
		cfg.Payment.Usdt.ChainID = 1
	}
	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 10 * time.Minute
	}
	if cfg.Reconciler.Workers <= 0 {
		cfg.Reconciler.Workers = 4
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func overlay(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

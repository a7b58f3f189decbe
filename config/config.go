package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const DefaultPath = "config/config.yaml"

type Config struct {
	Environment string           `mapstructure:"environment"` // "dev" or "prod"
	Exchange    ExchangeConfig   `mapstructure:"exchange"`
	MarketData  MarketDataConfig `mapstructure:"market_data"`
	Bots        BotsConfig       `mapstructure:"bots"`
	Telegram    TelegramConfig   `mapstructure:"telegram"`
	Log         LogConfig        `mapstructure:"log"`
	Postgres    PostgresConfig   `mapstructure:"postgres"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Influx      InfluxConfig     `mapstructure:"influx"`
}

// ExchangeConfig selects the upstream kline source.
type ExchangeConfig struct {
	Provider   string        `mapstructure:"provider"` // "binance" or "bybit"
	Market     string        `mapstructure:"market"`   // binance: "spot" or "futures"
	Category   string        `mapstructure:"category"` // bybit: "linear", "spot", "inverse"
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	KlineLimit int           `mapstructure:"kline_limit"`
}

type MarketDataConfig struct {
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type BotsConfig struct {
	StopTimeout       time.Duration `mapstructure:"stop_timeout"`
	LoadActiveOnStart bool          `mapstructure:"load_active_on_start"`
}

type TelegramConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type InfluxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("exchange.provider", "binance")
	v.SetDefault("exchange.market", "spot")
	v.SetDefault("exchange.category", "linear")
	v.SetDefault("exchange.timeout", 10*time.Second)
	v.SetDefault("exchange.kline_limit", 500)

	v.SetDefault("market_data.fetch_timeout", 15*time.Second)
	v.SetDefault("market_data.shutdown_timeout", 10*time.Second)

	v.SetDefault("bots.stop_timeout", 5*time.Second)
	v.SetDefault("bots.load_active_on_start", true)

	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("exchange.base_url", "")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "signalbots")
	v.SetDefault("postgres.timezone", "")
	v.SetDefault("postgres.create_db", false)
	v.SetDefault("postgres.kline_sink", false)
	v.SetDefault("postgres.kline_retention", 0)
	v.SetDefault("postgres.ssm_prefix", "/signalbots/db/")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)

	v.SetDefault("log.output_file", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "signalbots:klines:")

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "klines")
}

// Load reads the YAML file at path and overrides it with environment
// variables (e.g. EXCHANGE_PROVIDER for exchange.provider). A .env file in
// the working directory is loaded first when present. A missing config file
// leaves the defaults and environment in effect.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = DefaultPath
	}
	v.SetConfigFile(path)

	// Support environment variables with dot notation (e.g., POSTGRES_HOST)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Log.Environment == "" {
		cfg.Log.Environment = cfg.Environment
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Exchange.Provider {
	case "binance", "bybit":
	default:
		return fmt.Errorf("unknown exchange provider %q", c.Exchange.Provider)
	}
	if c.Exchange.KlineLimit <= 0 {
		return fmt.Errorf("exchange.kline_limit must be positive, got %d", c.Exchange.KlineLimit)
	}
	if c.Influx.Enabled && (c.Influx.URL == "" || c.Influx.Org == "" || c.Influx.Bucket == "") {
		return fmt.Errorf("influx.url, influx.org and influx.bucket are required when influx is enabled")
	}
	return nil
}

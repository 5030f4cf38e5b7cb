package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Exchanges Exchanges `mapstructure:"exchanges"`
	Trading   Trading   `mapstructure:"trading"`
	Gate      Gate      `mapstructure:"gate"`
	Backtest  Backtest  `mapstructure:"backtest"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Exchanges holds API credentials for every supported exchange.
type Exchanges struct {
	Binance ExchangeAPI `mapstructure:"binance"`
	OKX     ExchangeAPI `mapstructure:"okx"`
}

// ExchangeAPI holds the configuration for one exchange REST API.
type ExchangeAPI struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	Passphrase     string  `mapstructure:"passphrase"`
	Testnet        bool    `mapstructure:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Server holds the configuration for the status API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Trading holds the configuration for the live decision loop.
type Trading struct {
	TickInterval int    `mapstructure:"tick_interval"` // seconds between polling cycles
	MaxWorkers   int    `mapstructure:"max_workers"`   // bound on concurrent account cycles
	DryRun       bool   `mapstructure:"dry_run"`
	QuoteAsset   string `mapstructure:"quote_asset"`
}

// Gate holds the configuration for the eligibility filter pipeline.
type Gate struct {
	CooldownMinutes      int     `mapstructure:"cooldown_minutes"`
	DefaultMinConfidence float64 `mapstructure:"default_min_confidence"`
}

// Backtest holds the parameters for the simulation engine.
type Backtest struct {
	FastPeriod   int     `mapstructure:"fast_period"`
	SlowPeriod   int     `mapstructure:"slow_period"`
	RSIPeriod    int     `mapstructure:"rsi_period"`
	EquityStride int     `mapstructure:"equity_stride"`
	MakerFee     float64 `mapstructure:"maker_fee"`
	TakerFee     float64 `mapstructure:"taker_fee"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("exchanges.binance.rate_limit", 20) // requests per second
	viper.SetDefault("exchanges.binance.rate_limit_burst", 5)
	viper.SetDefault("exchanges.okx.rate_limit", 10)
	viper.SetDefault("exchanges.okx.rate_limit_burst", 5)
	viper.SetDefault("trading.tick_interval", 30)
	viper.SetDefault("trading.max_workers", 8)
	viper.SetDefault("trading.quote_asset", "USDT")
	viper.SetDefault("gate.cooldown_minutes", 15)
	viper.SetDefault("gate.default_min_confidence", 60)
	viper.SetDefault("backtest.fast_period", 10)
	viper.SetDefault("backtest.slow_period", 30)
	viper.SetDefault("backtest.rsi_period", 14)
	viper.SetDefault("backtest.equity_stride", 10)
	viper.SetDefault("backtest.maker_fee", 0.001)
	viper.SetDefault("backtest.taker_fee", 0.001)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

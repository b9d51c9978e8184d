package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	API       APIConfig       `mapstructure:"api"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name      string `mapstructure:"name"`
	Version   string `mapstructure:"version"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	URL      string `mapstructure:"database_url"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains optional Redis candle cache settings.
// An empty Addr disables the Redis layer.
type RedisConfig struct {
	Addr     string `mapstructure:"redis_addr"`
	Password string `mapstructure:"redis_password"`
	DB       int    `mapstructure:"redis_db"`
}

// NATSConfig contains message bus settings. An empty URL starts an
// embedded in-process server.
type NATSConfig struct {
	URL string `mapstructure:"nats_url"`
}

// ExchangeConfig contains market data source settings
type ExchangeConfig struct {
	BaseURL        string  `mapstructure:"binance_base_url"`
	RequestsPerSec float64 `mapstructure:"exchange_requests_per_sec"`
}

// TradingConfig contains scan and sizing settings
type TradingConfig struct {
	Symbols                []string `mapstructure:"default_symbols"`
	CandleInterval         string   `mapstructure:"candle_interval"`
	CandleLimit            int      `mapstructure:"candle_limit"`
	DefaultQuantity        float64  `mapstructure:"default_quantity"`
	MinConsensusConfidence float64  `mapstructure:"min_consensus_confidence"`
}

// RiskConfig contains risk management limits
type RiskConfig struct {
	MaxOpenPositions     int     `mapstructure:"max_open_positions"`
	MaxDailyTrades       int     `mapstructure:"max_daily_trades"`
	DailyLossLimitPct    float64 `mapstructure:"daily_loss_limit_pct"`
	KillSwitchDrawdown   float64 `mapstructure:"kill_switch_drawdown"`
	CooldownAfterLossSec int     `mapstructure:"cool_down_after_loss_seconds"`
	MaxRiskPerTrade      float64 `mapstructure:"max_risk_per_trade"`
	MaxSingleAssetRatio  float64 `mapstructure:"max_single_asset_ratio"`
	MaxConcentrationPct  float64 `mapstructure:"max_concentration_pct"`
	VolatilityThreshold  float64 `mapstructure:"volatility_threshold"`
}

// SchedulerConfig contains job cadence settings
type SchedulerConfig struct {
	ScanIntervalSeconds      int `mapstructure:"scan_interval_seconds"`
	RiskCheckIntervalSeconds int `mapstructure:"risk_check_interval_seconds"`
	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds"`
}

// APIConfig contains HTTP server settings
type APIConfig struct {
	Addr string `mapstructure:"api_addr"`
}

// TelegramConfig contains alert delivery settings. An empty token
// disables alerting.
type TelegramConfig struct {
	BotToken string `mapstructure:"telegram_bot_token"`
	ChatID   int64  `mapstructure:"telegram_chat_id"`
}

// Load builds configuration from environment variables with the U2ALGO
// prefix (e.g. U2ALGO_DATABASE_URL, U2ALGO_SCAN_INTERVAL_SECONDS).
func Load() (*Config, error) {
	v := viper.New()

	v.AutomaticEnv()
	v.SetEnvPrefix("U2ALGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name:      v.GetString("app_name"),
			Version:   v.GetString("app_version"),
			LogLevel:  v.GetString("log_level"),
			LogFormat: v.GetString("log_format"),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("database_url"),
			PoolSize: v.GetInt("database_pool_size"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		NATS: NATSConfig{
			URL: v.GetString("nats_url"),
		},
		Exchange: ExchangeConfig{
			BaseURL:        v.GetString("binance_base_url"),
			RequestsPerSec: v.GetFloat64("exchange_requests_per_sec"),
		},
		Trading: TradingConfig{
			Symbols:                splitSymbols(v.GetString("default_symbols")),
			CandleInterval:         v.GetString("candle_interval"),
			CandleLimit:            v.GetInt("candle_limit"),
			DefaultQuantity:        v.GetFloat64("default_quantity"),
			MinConsensusConfidence: v.GetFloat64("min_consensus_confidence"),
		},
		Risk: RiskConfig{
			MaxOpenPositions:     v.GetInt("max_open_positions"),
			MaxDailyTrades:       v.GetInt("max_daily_trades"),
			DailyLossLimitPct:    v.GetFloat64("daily_loss_limit_pct"),
			KillSwitchDrawdown:   v.GetFloat64("kill_switch_drawdown"),
			CooldownAfterLossSec: v.GetInt("cool_down_after_loss_seconds"),
			MaxRiskPerTrade:      v.GetFloat64("max_risk_per_trade"),
			MaxSingleAssetRatio:  v.GetFloat64("max_single_asset_ratio"),
			MaxConcentrationPct:  v.GetFloat64("max_concentration_pct"),
			VolatilityThreshold:  v.GetFloat64("volatility_threshold"),
		},
		Scheduler: SchedulerConfig{
			ScanIntervalSeconds:      v.GetInt("scan_interval_seconds"),
			RiskCheckIntervalSeconds: v.GetInt("risk_check_interval_seconds"),
			HeartbeatIntervalSeconds: v.GetInt("heartbeat_interval_seconds"),
		},
		API: APIConfig{
			Addr: v.GetString("api_addr"),
		},
		Telegram: TelegramConfig{
			BotToken: v.GetString("telegram_bot_token"),
			ChatID:   v.GetInt64("telegram_chat_id"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "ualgo-engine")
	v.SetDefault("app_version", "0.1.0")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("database_url", "")
	v.SetDefault("database_pool_size", 10)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("nats_url", "")

	v.SetDefault("binance_base_url", "https://api.binance.com")
	v.SetDefault("exchange_requests_per_sec", 5.0)

	v.SetDefault("default_symbols", "BTCUSDT,ETHUSDT,SOLUSDT")
	v.SetDefault("candle_interval", "1h")
	v.SetDefault("candle_limit", 100)
	v.SetDefault("default_quantity", 0.01)
	v.SetDefault("min_consensus_confidence", 0.55)

	v.SetDefault("max_open_positions", 5)
	v.SetDefault("max_daily_trades", 10)
	v.SetDefault("daily_loss_limit_pct", -3.0)
	v.SetDefault("kill_switch_drawdown", -10.0)
	v.SetDefault("cool_down_after_loss_seconds", 3600)
	v.SetDefault("max_risk_per_trade", 0.02)
	v.SetDefault("max_single_asset_ratio", 0.25)
	v.SetDefault("max_concentration_pct", 0.40)
	v.SetDefault("volatility_threshold", 0.30)

	v.SetDefault("scan_interval_seconds", 60)
	v.SetDefault("risk_check_interval_seconds", 5)
	v.SetDefault("heartbeat_interval_seconds", 30)

	v.SetDefault("api_addr", ":8000")

	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_chat_id", 0)
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.Trading.MinConsensusConfidence < 0 || c.Trading.MinConsensusConfidence > 1 {
		return fmt.Errorf("min_consensus_confidence must be in [0, 1], got %f", c.Trading.MinConsensusConfidence)
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be positive, got %d", c.Risk.MaxOpenPositions)
	}
	if c.Risk.DailyLossLimitPct >= 0 {
		return fmt.Errorf("daily_loss_limit_pct must be negative, got %f", c.Risk.DailyLossLimitPct)
	}
	if c.Risk.KillSwitchDrawdown >= 0 {
		return fmt.Errorf("kill_switch_drawdown must be negative, got %f", c.Risk.KillSwitchDrawdown)
	}
	if c.Scheduler.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("scan_interval_seconds must be positive, got %d", c.Scheduler.ScanIntervalSeconds)
	}
	return nil
}

func splitSymbols(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ScanInterval returns the scan cadence as a Duration
func (c *SchedulerConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

// RiskCheckInterval returns the risk check cadence as a Duration
func (c *SchedulerConfig) RiskCheckInterval() time.Duration {
	return time.Duration(c.RiskCheckIntervalSeconds) * time.Second
}

// HeartbeatInterval returns the heartbeat cadence as a Duration
func (c *SchedulerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// TradeCooldown returns the after-loss cooldown as a Duration
func (c *RiskConfig) TradeCooldown() time.Duration {
	return time.Duration(c.CooldownAfterLossSec) * time.Second
}

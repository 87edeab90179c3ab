package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration. One struct is shared by the three
// services; each binary only reads the sections it needs.
type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Database  DatabaseConfig   `mapstructure:"database"`
	LLM       LLMConfig        `mapstructure:"llm"`
	News      NewsConfig       `mapstructure:"news"`
	Signals   SignalsConfig    `mapstructure:"signals"`
	Portfolio PortfolioConfig  `mapstructure:"portfolio"`
	Market    MarketDataConfig `mapstructure:"market"`
	Alerts    AlertsConfig     `mapstructure:"alerts"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Vault     VaultConfig      `mapstructure:"vault"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	PoolSize int    `mapstructure:"pool_size"`
}

// LLMConfig contains the OpenRouter chat-completions settings
type LLMConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// NewsConfig contains News Analyzer settings
type NewsConfig struct {
	FinnhubAPIKey         string `mapstructure:"finnhub_api_key"`
	SignificanceThreshold int    `mapstructure:"significance_threshold"`
	CheckIntervalSeconds  int    `mapstructure:"check_interval_seconds"`
	SkipOlderHours        int    `mapstructure:"skip_older_hours"`
	MaxPerCheck           int    `mapstructure:"max_per_check"`
}

// SignalsConfig contains Signal Extractor settings
type SignalsConfig struct {
	MinExpectedMovePercent float64 `mapstructure:"min_expected_move_percent"`
	MinConfidence          int     `mapstructure:"min_confidence"`
	MaxSignalsPerNews      int     `mapstructure:"max_signals_per_news"`
	DefaultStopLossPct     float64 `mapstructure:"default_stop_loss_percent"`
	DefaultTakeProfitPct   float64 `mapstructure:"default_take_profit_percent"`
	DefaultMaxHoldHours    int     `mapstructure:"default_max_hold_hours"`
	PendingSweepLimit      int     `mapstructure:"pending_sweep_limit"`
}

// PortfolioConfig contains the Experiment Manager risk parameters
type PortfolioConfig struct {
	InitialCapital          float64 `mapstructure:"initial_capital"`
	MinCashReservePercent   float64 `mapstructure:"min_cash_reserve_percent"`
	MaxPositionPercent      float64 `mapstructure:"max_position_percent"`
	MinPositionSize         float64 `mapstructure:"min_position_size"`
	MaxConcurrentPositions  int     `mapstructure:"max_concurrent_positions"`
	DailyLossLimitPercent   float64 `mapstructure:"daily_loss_limit_percent"`
	DefaultStopLossPct      float64 `mapstructure:"default_stop_loss_percent"`
	DefaultTakeProfitPct    float64 `mapstructure:"default_take_profit_percent"`
	TrailingActivationPct   float64 `mapstructure:"trailing_stop_activation_percent"`
	TrailingDistancePct     float64 `mapstructure:"trailing_stop_distance_percent"`
	CommissionFixed         float64 `mapstructure:"commission_fixed"`
	CommissionPercent       float64 `mapstructure:"commission_percent"`
	SlippageLiquidPct       float64 `mapstructure:"slippage_liquid_percent"`
	SlippageIlliquidPct     float64 `mapstructure:"slippage_illiquid_percent"`
	SpreadPercent           float64 `mapstructure:"spread_percent"`
	LiquidityThresholdVol   int64   `mapstructure:"liquidity_threshold_volume"`
	BasePositionPercent     float64 `mapstructure:"base_position_percent"`
	ConfidenceFactorMin     float64 `mapstructure:"confidence_factor_min"`
	ConfidenceFactorMax     float64 `mapstructure:"confidence_factor_max"`
	PositionCheckSeconds    int     `mapstructure:"position_check_interval_seconds"`
	SnapshotIntervalSeconds int     `mapstructure:"snapshot_interval_seconds"`
	MinHoldHours            int     `mapstructure:"min_hold_hours"`
	CloseBufferMinutes      int     `mapstructure:"close_buffer_minutes"`
}

// MarketDataConfig contains price provider settings
type MarketDataConfig struct {
	FinnhubAPIKey       string `mapstructure:"finnhub_api_key"`
	AlphaVantageAPIKey  string `mapstructure:"alpha_vantage_api_key"`
	FreshTTLSeconds     int    `mapstructure:"fresh_ttl_seconds"`
	StaleTTLSeconds     int    `mapstructure:"stale_ttl_seconds"`
	YahooMinGapSeconds  int    `mapstructure:"yahoo_min_gap_seconds"`
	YahooDisableMinutes int    `mapstructure:"yahoo_disable_minutes"`
	RequestTimeout      int    `mapstructure:"request_timeout_seconds"`
	HolidayCalendarPath string `mapstructure:"holiday_calendar_path"`
	ValidatorTTLSeconds int    `mapstructure:"validator_ttl_seconds"`
	BenchmarkTicker     string `mapstructure:"benchmark_ticker"`
}

// AlertsConfig contains the optional Telegram alerting hook
type AlertsConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// VaultConfig contains optional HashiCorp Vault settings for API keys
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	SecretPath string `mapstructure:"secret_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("WAVESENS")

	setDefaults(v)
	bindFlatEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindFlatEnv maps the flat environment names the deployment uses onto the
// structured keys. AutomaticEnv only covers the WAVESENS_-prefixed form.
func bindFlatEnv(v *viper.Viper) {
	bind := func(key string, envs ...string) {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	bind("database.url", "DATABASE_URL")
	bind("llm.api_key", "OPENROUTER_API_KEY")
	bind("llm.model", "LLM_MODEL")
	bind("llm.temperature", "LLM_TEMPERATURE")
	bind("llm.max_tokens", "LLM_MAX_TOKENS")
	bind("llm.timeout_seconds", "LLM_TIMEOUT_SECONDS")
	bind("news.finnhub_api_key", "FINNHUB_API_KEY")
	bind("news.significance_threshold", "SIGNIFICANCE_THRESHOLD")
	bind("news.check_interval_seconds", "CHECK_INTERVAL_SECONDS")
	bind("news.skip_older_hours", "SKIP_NEWS_OLDER_HOURS")
	bind("news.max_per_check", "MAX_NEWS_PER_CHECK")
	bind("signals.min_expected_move_percent", "MIN_EXPECTED_MOVE_PERCENT")
	bind("signals.min_confidence", "MIN_CONFIDENCE")
	bind("signals.max_signals_per_news", "MAX_SIGNALS_PER_NEWS")
	bind("portfolio.initial_capital", "INITIAL_CAPITAL")
	bind("portfolio.min_cash_reserve_percent", "MIN_CASH_RESERVE_PERCENT")
	bind("portfolio.max_position_percent", "MAX_POSITION_PERCENT")
	bind("portfolio.min_position_size", "MIN_POSITION_SIZE")
	bind("portfolio.max_concurrent_positions", "MAX_CONCURRENT_POSITIONS")
	bind("portfolio.daily_loss_limit_percent", "DAILY_LOSS_LIMIT_PERCENT")
	bind("portfolio.default_stop_loss_percent", "DEFAULT_STOP_LOSS_PERCENT")
	bind("portfolio.default_take_profit_percent", "DEFAULT_TAKE_PROFIT_PERCENT")
	bind("portfolio.trailing_stop_activation_percent", "TRAILING_STOP_ACTIVATION_PERCENT")
	bind("portfolio.trailing_stop_distance_percent", "TRAILING_STOP_DISTANCE_PERCENT")
	bind("portfolio.commission_fixed", "COMMISSION_FIXED")
	bind("portfolio.commission_percent", "COMMISSION_PERCENT")
	bind("portfolio.liquidity_threshold_volume", "LIQUIDITY_THRESHOLD_VOLUME")
	bind("market.finnhub_api_key", "FINNHUB_API_KEY")
	bind("market.alpha_vantage_api_key", "ALPHA_VANTAGE_API_KEY")
	bind("alerts.telegram_token", "TELEGRAM_BOT_TOKEN")
	bind("alerts.telegram_chat_id", "TELEGRAM_CHAT_ID")
	bind("vault.address", "VAULT_ADDR")
	bind("vault.token", "VAULT_TOKEN")
	bind("app.log_level", "LOG_LEVEL")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "wavesens")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Database defaults
	v.SetDefault("database.url", "postgres://localhost:5432/wavesens?sslmode=disable")
	v.SetDefault("database.pool_size", 10)

	// LLM defaults
	v.SetDefault("llm.endpoint", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("llm.model", "anthropic/claude-3-haiku")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout_seconds", 30)

	// News Analyzer defaults
	v.SetDefault("news.significance_threshold", 70)
	v.SetDefault("news.check_interval_seconds", 5)
	v.SetDefault("news.skip_older_hours", 24)
	v.SetDefault("news.max_per_check", 20)

	// Signal Extractor defaults
	v.SetDefault("signals.min_expected_move_percent", 1.0)
	v.SetDefault("signals.min_confidence", 40)
	v.SetDefault("signals.max_signals_per_news", 10)
	v.SetDefault("signals.default_stop_loss_percent", 2.0)
	v.SetDefault("signals.default_take_profit_percent", 3.0)
	v.SetDefault("signals.default_max_hold_hours", 6)
	v.SetDefault("signals.pending_sweep_limit", 10)

	// Portfolio defaults
	v.SetDefault("portfolio.initial_capital", 10000.0)
	v.SetDefault("portfolio.min_cash_reserve_percent", 10.0)
	v.SetDefault("portfolio.max_position_percent", 10.0)
	v.SetDefault("portfolio.min_position_size", 100.0)
	v.SetDefault("portfolio.max_concurrent_positions", 20)
	v.SetDefault("portfolio.daily_loss_limit_percent", 5.0)
	v.SetDefault("portfolio.default_stop_loss_percent", 3.0)
	v.SetDefault("portfolio.default_take_profit_percent", 5.0)
	v.SetDefault("portfolio.trailing_stop_activation_percent", 2.0)
	v.SetDefault("portfolio.trailing_stop_distance_percent", 1.5)
	v.SetDefault("portfolio.commission_fixed", 1.0)
	v.SetDefault("portfolio.commission_percent", 0.1)
	v.SetDefault("portfolio.slippage_liquid_percent", 0.05)
	v.SetDefault("portfolio.slippage_illiquid_percent", 0.2)
	v.SetDefault("portfolio.spread_percent", 0.1)
	v.SetDefault("portfolio.liquidity_threshold_volume", 1000000)
	v.SetDefault("portfolio.base_position_percent", 2.0)
	v.SetDefault("portfolio.confidence_factor_min", 0.5)
	v.SetDefault("portfolio.confidence_factor_max", 1.5)
	v.SetDefault("portfolio.position_check_interval_seconds", 30)
	v.SetDefault("portfolio.snapshot_interval_seconds", 300)
	v.SetDefault("portfolio.min_hold_hours", 2)
	v.SetDefault("portfolio.close_buffer_minutes", 15)

	// Market data defaults
	v.SetDefault("market.fresh_ttl_seconds", 300)
	v.SetDefault("market.stale_ttl_seconds", 3600)
	v.SetDefault("market.yahoo_min_gap_seconds", 3)
	v.SetDefault("market.yahoo_disable_minutes", 10)
	v.SetDefault("market.request_timeout_seconds", 10)
	v.SetDefault("market.validator_ttl_seconds", 3600)
	v.SetDefault("market.benchmark_ticker", "SPY")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9100)

	// Vault defaults
	v.SetDefault("vault.secret_path", "secret/data/wavesens")
}

// Timeout returns the LLM timeout as time.Duration
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CheckInterval returns the ingest cadence
func (c *NewsConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// PositionCheckInterval returns the monitor loop cadence
func (c *PortfolioConfig) PositionCheckInterval() time.Duration {
	return time.Duration(c.PositionCheckSeconds) * time.Second
}

// SnapshotInterval returns the snapshot loop cadence
func (c *PortfolioConfig) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalSeconds) * time.Second
}

// Commission returns the commission for a position of the given notional
// size: max(fixed, size * percent/100).
func (c *PortfolioConfig) Commission(size float64) float64 {
	pct := size * (c.CommissionPercent / 100)
	if pct > c.CommissionFixed {
		return pct
	}
	return c.CommissionFixed
}

// FreshTTL returns the fresh price cache TTL
func (c *MarketDataConfig) FreshTTL() time.Duration {
	return time.Duration(c.FreshTTLSeconds) * time.Second
}

// StaleTTL returns the stale price cache TTL
func (c *MarketDataConfig) StaleTTL() time.Duration {
	return time.Duration(c.StaleTTLSeconds) * time.Second
}

// RequestTimeoutDuration returns the per-provider HTTP timeout
func (c *MarketDataConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

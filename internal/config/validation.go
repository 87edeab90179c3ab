package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateNews()...)
	errors = append(errors, c.validateSignals()...)
	errors = append(errors, c.validatePortfolio()...)
	errors = append(errors, c.validateMarket()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	if c.App.Environment != "" {
		validEnvs := []string{"development", "staging", "production"}
		valid := false
		for _, env := range validEnvs {
			if c.App.Environment == env {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   "app.environment",
				Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
			})
		}
	}

	if c.App.LogFormat != "" && c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be 'json' or 'console'", c.App.LogFormat),
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Database.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "Database URL is required (set DATABASE_URL)",
		})
	} else if !strings.HasPrefix(c.Database.URL, "postgres://") &&
		!strings.HasPrefix(c.Database.URL, "postgresql://") {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "Database URL must be a postgres:// or postgresql:// URL",
		})
	}

	if c.Database.PoolSize < 1 || c.Database.PoolSize > 100 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: fmt.Sprintf("Pool size %d out of range. Must be between 1-100", c.Database.PoolSize),
		})
	}

	return errors
}

func (c *Config) validateLLM() ValidationErrors {
	var errors ValidationErrors

	if c.LLM.Endpoint == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.endpoint",
			Message: "LLM endpoint is required",
		})
	}

	if c.LLM.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Message: "LLM model is required",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("Temperature %.2f out of range. Must be between 0.0-2.0", c.LLM.Temperature),
		})
	}

	if c.LLM.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "Max tokens must be positive",
		})
	}

	if c.LLM.TimeoutSeconds < 1 || c.LLM.TimeoutSeconds > 300 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout_seconds",
			Message: fmt.Sprintf("Timeout %d out of range. Must be between 1-300 seconds", c.LLM.TimeoutSeconds),
		})
	}

	return errors
}

func (c *Config) validateNews() ValidationErrors {
	var errors ValidationErrors

	if c.News.SignificanceThreshold < 0 || c.News.SignificanceThreshold > 100 {
		errors = append(errors, ValidationError{
			Field:   "news.significance_threshold",
			Message: fmt.Sprintf("Significance threshold %d out of range. Must be between 0-100", c.News.SignificanceThreshold),
		})
	}

	if c.News.CheckIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "news.check_interval_seconds",
			Message: "Check interval must be at least 1 second",
		})
	}

	if c.News.SkipOlderHours < 1 {
		errors = append(errors, ValidationError{
			Field:   "news.skip_older_hours",
			Message: "Skip-older window must be at least 1 hour",
		})
	}

	if c.News.MaxPerCheck < 1 {
		errors = append(errors, ValidationError{
			Field:   "news.max_per_check",
			Message: "Max news per check must be positive",
		})
	}

	return errors
}

func (c *Config) validateSignals() ValidationErrors {
	var errors ValidationErrors

	if c.Signals.MinExpectedMovePercent < 0 {
		errors = append(errors, ValidationError{
			Field:   "signals.min_expected_move_percent",
			Message: "Minimum expected move cannot be negative",
		})
	}

	if c.Signals.MinConfidence < 0 || c.Signals.MinConfidence > 100 {
		errors = append(errors, ValidationError{
			Field:   "signals.min_confidence",
			Message: fmt.Sprintf("Minimum confidence %d out of range. Must be between 0-100", c.Signals.MinConfidence),
		})
	}

	if c.Signals.MaxSignalsPerNews < 1 {
		errors = append(errors, ValidationError{
			Field:   "signals.max_signals_per_news",
			Message: "Max signals per news item must be positive",
		})
	}

	return errors
}

func (c *Config) validatePortfolio() ValidationErrors {
	var errors ValidationErrors

	if c.Portfolio.InitialCapital <= 0 {
		errors = append(errors, ValidationError{
			Field:   "portfolio.initial_capital",
			Message: "Initial capital must be positive",
		})
	}

	if c.Portfolio.MinCashReservePercent < 0 || c.Portfolio.MinCashReservePercent > 100 {
		errors = append(errors, ValidationError{
			Field:   "portfolio.min_cash_reserve_percent",
			Message: fmt.Sprintf("Cash reserve %.1f%% out of range. Must be between 0-100", c.Portfolio.MinCashReservePercent),
		})
	}

	if c.Portfolio.MaxPositionPercent <= 0 || c.Portfolio.MaxPositionPercent > 100 {
		errors = append(errors, ValidationError{
			Field:   "portfolio.max_position_percent",
			Message: fmt.Sprintf("Max position %.1f%% out of range. Must be between 0-100", c.Portfolio.MaxPositionPercent),
		})
	}

	if c.Portfolio.MinPositionSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "portfolio.min_position_size",
			Message: "Minimum position size must be positive",
		})
	}

	if c.Portfolio.MinPositionSize > c.Portfolio.InitialCapital {
		errors = append(errors, ValidationError{
			Field:   "portfolio.min_position_size",
			Message: "Minimum position size cannot exceed initial capital",
		})
	}

	if c.Portfolio.MaxConcurrentPositions < 1 {
		errors = append(errors, ValidationError{
			Field:   "portfolio.max_concurrent_positions",
			Message: "Max concurrent positions must be at least 1",
		})
	}

	if c.Portfolio.DailyLossLimitPercent <= 0 || c.Portfolio.DailyLossLimitPercent > 100 {
		errors = append(errors, ValidationError{
			Field:   "portfolio.daily_loss_limit_percent",
			Message: fmt.Sprintf("Daily loss limit %.1f%% out of range. Must be between 0-100", c.Portfolio.DailyLossLimitPercent),
		})
	}

	if c.Portfolio.TrailingDistancePct <= 0 {
		errors = append(errors, ValidationError{
			Field:   "portfolio.trailing_stop_distance_percent",
			Message: "Trailing stop distance must be positive",
		})
	}

	if c.Portfolio.TrailingActivationPct < c.Portfolio.TrailingDistancePct {
		errors = append(errors, ValidationError{
			Field:   "portfolio.trailing_stop_activation_percent",
			Message: "Trailing activation must be at least the trailing distance",
		})
	}

	if c.Portfolio.ConfidenceFactorMin <= 0 || c.Portfolio.ConfidenceFactorMax < c.Portfolio.ConfidenceFactorMin {
		errors = append(errors, ValidationError{
			Field:   "portfolio.confidence_factor_min",
			Message: "Confidence factor bounds must be positive and min <= max",
		})
	}

	if c.Portfolio.PositionCheckSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "portfolio.position_check_interval_seconds",
			Message: "Position check interval must be at least 1 second",
		})
	}

	if c.Portfolio.SnapshotIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "portfolio.snapshot_interval_seconds",
			Message: "Snapshot interval must be at least 1 second",
		})
	}

	return errors
}

func (c *Config) validateMarket() ValidationErrors {
	var errors ValidationErrors

	if c.Market.FreshTTLSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "market.fresh_ttl_seconds",
			Message: "Fresh price TTL must be at least 1 second",
		})
	}

	if c.Market.StaleTTLSeconds < c.Market.FreshTTLSeconds {
		errors = append(errors, ValidationError{
			Field:   "market.stale_ttl_seconds",
			Message: "Stale price TTL must be at least the fresh TTL",
		})
	}

	if c.Market.BenchmarkTicker == "" {
		errors = append(errors, ValidationError{
			Field:   "market.benchmark_ticker",
			Message: "Benchmark ticker is required",
		})
	}

	return errors
}

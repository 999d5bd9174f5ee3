package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Validate performs comprehensive configuration validation.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateBroker()...)
	errors = append(errors, c.validateTrading()...)
	errors = append(errors, c.validateRisk()...)
	errors = append(errors, c.validatePosition()...)
	errors = append(errors, c.validateWait()...)
	errors = append(errors, c.validateAPI()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{"app.name", "application name is required"})
	}

	validEnvs := []string{"development", "staging", "production"}
	if !oneOf(c.App.Environment, validEnvs) {
		errors = append(errors, ValidationError{"app.environment", fmt.Sprintf("must be one of: %v", validEnvs)})
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{"app.log_level", "log level is required (debug, info, warn, error)"})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{"database.host", "database host is required"})
	}
	if !validPort(c.Database.Port) {
		errors = append(errors, ValidationError{"database.port", fmt.Sprintf("invalid port %d", c.Database.Port)})
	}
	if c.Database.User == "" {
		errors = append(errors, ValidationError{"database.user", "database user is required"})
	}
	if c.Database.Database == "" {
		errors = append(errors, ValidationError{"database.database", "database name is required"})
	}
	if c.Database.Password == "" && c.App.Environment != "development" {
		errors = append(errors, ValidationError{"database.password", "database password is required outside development"})
	}
	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{"database.pool_size", "pool size must be at least 1"})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{"redis.host", "redis host is required"})
	}
	if !validPort(c.Redis.Port) {
		errors = append(errors, ValidationError{"redis.port", fmt.Sprintf("invalid port %d", c.Redis.Port)})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if c.NATS.URL == "" {
		errors = append(errors, ValidationError{"nats.url", "nats url is required"})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") {
		errors = append(errors, ValidationError{"nats.url", "nats url must start with 'nats://'"})
	}
	if c.NATS.StructureTopic == "" {
		errors = append(errors, ValidationError{"nats.structure_topic", "structure topic is required"})
	}

	return errors
}

func (c *Config) validateBroker() ValidationErrors {
	var errors ValidationErrors

	if !oneOf(c.Broker.Kind, []string{"mt5", "paper"}) {
		errors = append(errors, ValidationError{"broker.kind", "must be one of: [mt5 paper]"})
	}
	if c.Broker.Kind == "mt5" {
		if c.Broker.Server == "" {
			errors = append(errors, ValidationError{"broker.server", "broker server is required for kind=mt5"})
		}
		if c.Broker.Login == "" {
			errors = append(errors, ValidationError{"broker.login", "broker login is required for kind=mt5"})
		}
	}
	if c.Broker.Symbol == "" {
		errors = append(errors, ValidationError{"broker.symbol", "broker symbol is required"})
	}

	return errors
}

func (c *Config) validateTrading() ValidationErrors {
	var errors ValidationErrors

	if !oneOf(c.Trading.Mode, []string{"paper", "live"}) {
		errors = append(errors, ValidationError{"trading.mode", "must be 'paper' or 'live'"})
	}
	if c.Trading.Symbol == "" {
		errors = append(errors, ValidationError{"trading.symbol", "symbol is required"})
	}
	if c.Trading.MaxPositions < 1 {
		errors = append(errors, ValidationError{"trading.max_positions", "must be at least 1"})
	}
	if c.Trading.RiskPercent <= 0 || c.Trading.RiskPercent > 100 {
		errors = append(errors, ValidationError{"trading.risk_percent", "must be in (0, 100]"})
	}
	if c.Trading.DebounceWindowMS <= 0 {
		errors = append(errors, ValidationError{"trading.debounce_window_ms", "must be positive"})
	}
	if c.Trading.MinConfidence < 0 || c.Trading.MinConfidence > 1 {
		errors = append(errors, ValidationError{"trading.min_confidence", "must be in [0, 1]"})
	}

	return errors
}

func (c *Config) validateRisk() ValidationErrors {
	var errors ValidationErrors

	if c.Risk.MinSLPips <= 0 || c.Risk.MaxSLPips <= c.Risk.MinSLPips {
		errors = append(errors, ValidationError{"risk.max_sl_pips", "max_sl_pips must exceed min_sl_pips > 0"})
	}
	if c.Risk.ATRVolatilityMin < 0 || c.Risk.ATRVolatilityMax <= c.Risk.ATRVolatilityMin {
		errors = append(errors, ValidationError{"risk.atr_volatility_max", "atr_volatility_max must exceed atr_volatility_min"})
	}
	if c.Risk.MaxDailyLossPercent >= 0 {
		errors = append(errors, ValidationError{"risk.max_daily_loss_percent", "must be negative (a loss cap)"})
	}
	if c.Risk.MaxConsecutiveLosses < 1 {
		errors = append(errors, ValidationError{"risk.max_consecutive_losses", "must be at least 1"})
	}

	return errors
}

func (c *Config) validatePosition() ValidationErrors {
	var errors ValidationErrors

	if c.Position.PartialCloseRatio <= 0 || c.Position.PartialCloseRatio >= 1 {
		errors = append(errors, ValidationError{"position.partial_close_ratio", "must be in (0, 1)"})
	}
	if c.Position.CheckIntervalSec < 1 {
		errors = append(errors, ValidationError{"position.check_interval_sec", "must be at least 1 second"})
	}

	return errors
}

func (c *Config) validateWait() ValidationErrors {
	var errors ValidationErrors

	if c.Wait.PollIntervalSec < 1 {
		errors = append(errors, ValidationError{"wait.poll_interval_sec", "must be at least 1 second"})
	}
	if c.Wait.MaxReevalCount < 1 {
		errors = append(errors, ValidationError{"wait.max_reeval_count", "must be at least 1"})
	}

	return errors
}

func (c *Config) validateAPI() ValidationErrors {
	var errors ValidationErrors

	if !validPort(c.API.Port) {
		errors = append(errors, ValidationError{"api.port", fmt.Sprintf("invalid port %d", c.API.Port)})
	}

	return errors
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

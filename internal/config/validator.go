package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ValidatorOptions contains options for configuration validation.
type ValidatorOptions struct {
	VerifyConnectivity bool // check database/Redis connectivity
	Timeout            time.Duration
}

// DefaultValidatorOptions returns default validator options for startup.
func DefaultValidatorOptions() ValidatorOptions {
	return ValidatorOptions{
		VerifyConnectivity: true,
		Timeout:            5 * time.Second,
	}
}

// Validator handles configuration validation at startup.
type Validator struct {
	config  *Config
	options ValidatorOptions
}

// NewValidator creates a new configuration validator.
func NewValidator(config *Config, options ValidatorOptions) *Validator {
	return &Validator{config: config, options: options}
}

// ValidateStartup performs comprehensive startup validation. Called before
// any worker starts.
func (v *Validator) ValidateStartup(ctx context.Context) error {
	log.Info().Msg("validating configuration")

	if err := v.validateBrokerCredentials(); err != nil {
		return fmt.Errorf("broker credential validation failed: %w", err)
	}

	if v.options.VerifyConnectivity {
		if err := v.checkDatabaseConnectivity(ctx); err != nil {
			return fmt.Errorf("database connectivity check failed: %w", err)
		}
		if err := v.checkRedisConnectivity(ctx); err != nil {
			return fmt.Errorf("redis connectivity check failed: %w", err)
		}
	}

	log.Info().Msg("configuration validation completed")
	return nil
}

// validateBrokerCredentials checks broker credentials are present and not
// placeholder values when trading live. Paper mode needs nothing.
func (v *Validator) validateBrokerCredentials() error {
	if v.config.Broker.Kind != "mt5" || strings.ToLower(v.config.Trading.Mode) != "live" {
		return nil
	}

	var errs []string
	if v.config.Broker.Login == "" {
		errs = append(errs, "broker.login is required for live mt5 trading")
	}
	if v.config.Broker.Password == "" {
		errs = append(errs, "broker.password is required for live mt5 trading")
	} else if isPlaceholderValue(v.config.Broker.Password) {
		errs = append(errs, "broker.password looks like a placeholder value")
	}
	if v.config.Broker.Server == "" {
		errs = append(errs, "broker.server is required for live mt5 trading")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// checkDatabaseConnectivity tests the database connection with a timeout.
func (v *Validator) checkDatabaseConnectivity(ctx context.Context) error {
	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	pool, err := pgxpool.New(connCtx, v.config.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to create database connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(connCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", v.config.Database.Host).Int("port", v.config.Database.Port).Msg("database connectivity check passed")
	return nil
}

// checkRedisConnectivity tests the Redis connection with a timeout.
func (v *Validator) checkRedisConnectivity(ctx context.Context) error {
	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     v.config.Redis.GetRedisAddr(),
		Password: v.config.Redis.Password,
		DB:       v.config.Redis.DB,
	})
	defer client.Close()

	if err := client.Ping(connCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().Str("addr", v.config.Redis.GetRedisAddr()).Msg("redis connectivity check passed")
	return nil
}

// isPlaceholderValue checks if a value is likely a placeholder.
func isPlaceholderValue(value string) bool {
	lower := strings.ToLower(value)
	for _, placeholder := range []string{"changeme", "placeholder", "example", "test", "sample", "demo", "your_password"} {
		if strings.Contains(lower, placeholder) {
			return true
		}
	}
	return false
}

package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getValidConfig returns a valid configuration for testing.
func getValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "gold-engine",
			Version:     "0.1.0",
			Environment: "development",
			LogLevel:    "info",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "secure_password",
			Database: "gold_engine",
			SSLMode:  "disable",
			PoolSize: 10,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			DB:   0,
		},
		NATS: NATSConfig{
			URL:             "nats://localhost:4222",
			StructureTopic:  "gold-engine.structure",
			ControlTopic:    "gold-engine.control",
			EnableJetStream: false,
		},
		Broker: BrokerConfig{
			Kind:           "paper",
			Symbol:         "GOLD",
			DeviationPoint: 20,
			MagicNumber:    20260223,
			OrderComment:   "gold-engine",
			RateLimitPerS:  5.0,
		},
		Trading: TradingConfig{
			Mode:             "paper",
			Symbol:           "GOLD",
			MaxPositions:     1,
			MinFreeMarginUSD: 500.0,
			RiskPercent:      2.0,
			PipPoints:        10,
			DebounceWindowMS: 500,
			SignalBufferCap:  50,
			MinConfidence:    0.70,
			MinEVScore:       0.20,
		},
		Risk: RiskConfig{
			ATRSLMultiplier:         2.0,
			ATRTPMultiplier:         3.0,
			MaxSLPips:               80.0,
			MinSLPips:               8.0,
			ATRVolatilityMax:        30.0,
			ATRVolatilityMin:        3.0,
			MaxDailyLossPercent:     -10.0,
			MaxConsecutiveLosses:    3,
			ConsecutiveResetHours:   24.0,
			ConsecutiveGroupWindowS: 10.0,
			GapBlockThresholdUSD:    15.0,
			ReversalCooldownSec:     300.0,
		},
		Position: PositionConfig{
			PartialCloseRatio:      0.5,
			PartialTPATRMult:       2.0,
			BETriggerATRMult:       1.0,
			BEBufferPips:           2.0,
			TrailingStepATRMult:    1.5,
			CheckIntervalSec:       10,
			HealthCheckIntervalSec: 60,
			LossAlertUSD:           -100.0,
		},
		Wait: WaitConfig{
			PollIntervalSec:       15,
			NextBarExpirySec:      360.0,
			StructureNeededExpiry: 900.0,
			CooldownExpirySec:     180.0,
			MaxReevalCount:        3,
		},
		News: NewsConfig{
			Enabled:          true,
			BlockBeforeMin:   30,
			BlockAfterMin:    30,
			TargetCurrencies: []string{"USD", "EUR"},
			MinImportance:    2,
		},
		Scheduler: SchedulerConfig{
			DailyBreakStart:    "23:45",
			DailyBreakEnd:      "01:00",
			LimitCancelStart:   "23:30",
			LimitCancelWarnMin: 15,
			EODCloseTime:       "23:30",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Monitoring: MonitoringConfig{
			PrometheusPort: 9100,
			EnableMetrics:  true,
		},
	}
}

func TestValidateValidConfig(t *testing.T) {
	cfg := getValidConfig()
	err := cfg.Validate()
	assert.NoError(t, err, "valid configuration should not produce errors")
}

func TestValidateApp(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{"missing app name", func(c *Config) { c.App.Name = "" }, "app.name"},
		{"missing environment", func(c *Config) { c.App.Environment = "" }, "app.environment"},
		{"invalid environment", func(c *Config) { c.App.Environment = "invalid_env" }, "app.environment"},
		{"missing log level", func(c *Config) { c.App.LogLevel = "" }, "app.log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateDatabase(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{"missing host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing port", func(c *Config) { c.Database.Port = 0 }, "database.port"},
		{"invalid port - too high", func(c *Config) { c.Database.Port = 70000 }, "database.port"},
		{"missing user", func(c *Config) { c.Database.User = "" }, "database.user"},
		{"missing database name", func(c *Config) { c.Database.Database = "" }, "database.database"},
		{"missing password outside development", func(c *Config) {
			c.App.Environment = "production"
			c.Database.Password = ""
		}, "database.password"},
		{"invalid pool size", func(c *Config) { c.Database.PoolSize = 0 }, "pool size must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateRedis(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{"missing host", func(c *Config) { c.Redis.Host = "" }, "redis.host"},
		{"invalid port", func(c *Config) { c.Redis.Port = 70000 }, "redis.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateNATS(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{"missing URL", func(c *Config) { c.NATS.URL = "" }, "nats.url"},
		{"invalid URL format", func(c *Config) { c.NATS.URL = "http://localhost:4222" }, "must start with 'nats://'"},
		{"missing structure topic", func(c *Config) { c.NATS.StructureTopic = "" }, "nats.structure_topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateBroker(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{"invalid kind", func(c *Config) { c.Broker.Kind = "binance" }, "broker.kind"},
		{"missing server for mt5", func(c *Config) {
			c.Broker.Kind = "mt5"
			c.Broker.Login = "12345"
		}, "broker.server"},
		{"missing login for mt5", func(c *Config) {
			c.Broker.Kind = "mt5"
			c.Broker.Server = "XMTrading-Real"
		}, "broker.login"},
		{"missing symbol", func(c *Config) { c.Broker.Symbol = "" }, "broker.symbol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateTrading(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{"invalid mode", func(c *Config) { c.Trading.Mode = "backtest" }, "trading.mode"},
		{"missing symbol", func(c *Config) { c.Trading.Symbol = "" }, "trading.symbol"},
		{"invalid max positions", func(c *Config) { c.Trading.MaxPositions = 0 }, "trading.max_positions"},
		{"invalid risk percent - zero", func(c *Config) { c.Trading.RiskPercent = 0 }, "trading.risk_percent"},
		{"invalid risk percent - too high", func(c *Config) { c.Trading.RiskPercent = 150 }, "trading.risk_percent"},
		{"invalid debounce window", func(c *Config) { c.Trading.DebounceWindowMS = 0 }, "trading.debounce_window_ms"},
		{"invalid min confidence", func(c *Config) { c.Trading.MinConfidence = 1.5 }, "trading.min_confidence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateRisk(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{"max_sl_pips below min_sl_pips", func(c *Config) { c.Risk.MaxSLPips = 5.0 }, "risk.max_sl_pips"},
		{"atr_volatility_max below min", func(c *Config) { c.Risk.ATRVolatilityMax = 1.0 }, "risk.atr_volatility_max"},
		{"daily loss percent not negative", func(c *Config) { c.Risk.MaxDailyLossPercent = 5.0 }, "risk.max_daily_loss_percent"},
		{"max consecutive losses zero", func(c *Config) { c.Risk.MaxConsecutiveLosses = 0 }, "risk.max_consecutive_losses"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidatePosition(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{"partial close ratio too low", func(c *Config) { c.Position.PartialCloseRatio = 0 }, "position.partial_close_ratio"},
		{"partial close ratio too high", func(c *Config) { c.Position.PartialCloseRatio = 1 }, "position.partial_close_ratio"},
		{"invalid check interval", func(c *Config) { c.Position.CheckIntervalSec = 0 }, "position.check_interval_sec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateWait(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{"invalid poll interval", func(c *Config) { c.Wait.PollIntervalSec = 0 }, "wait.poll_interval_sec"},
		{"invalid max reeval count", func(c *Config) { c.Wait.MaxReevalCount = 0 }, "wait.max_reeval_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateAPI(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{"missing port", func(c *Config) { c.API.Port = 0 }, "api.port"},
		{"invalid port - too high", func(c *Config) { c.API.Port = 70000 }, "api.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errors := ValidationErrors{
		{Field: "field1", Message: "error message 1"},
		{Field: "field2", Message: "error message 2"},
	}

	errMsg := errors.Error()
	assert.Contains(t, errMsg, "configuration validation failed with 2 error(s)")
	assert.Contains(t, errMsg, "1. field1: error message 1")
	assert.Contains(t, errMsg, "2. field2: error message 2")
}

func TestValidationErrors_Empty(t *testing.T) {
	errors := ValidationErrors{}
	assert.Equal(t, "", errors.Error())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	invalidConfig := `
app:
  name: ""
  environment: "development"
  log_level: "info"
trading:
  mode: "paper"
  symbol: "GOLD"
`
	_, err = tmpfile.WriteString(invalidConfig)
	require.NoError(t, err)
	_ = tmpfile.Close()

	_, err = Load(tmpfile.Name())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "app.name"))
}

func TestValidateCaseSensitiveTradingMode(t *testing.T) {
	tests := []struct {
		mode  string
		valid bool
	}{
		{"paper", true},
		{"live", true},
		{"Paper", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := getValidConfig()
			cfg.Trading.Mode = tt.mode
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

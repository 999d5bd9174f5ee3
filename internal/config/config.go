package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration for the gold trading engine.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Position   PositionConfig   `mapstructure:"position"`
	Wait       WaitConfig       `mapstructure:"wait"`
	News       NewsConfig       `mapstructure:"news"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings for the indicator cache.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS settings for structure-signal notification and
// the scheduler's pause/resume control topic.
type NATSConfig struct {
	URL             string `mapstructure:"url"`
	StructureTopic  string `mapstructure:"structure_topic"`
	ControlTopic    string `mapstructure:"control_topic"`
	EnableJetStream bool   `mapstructure:"enable_jetstream"`
}

// BrokerConfig contains broker/terminal connection settings.
type BrokerConfig struct {
	Kind           string  `mapstructure:"kind"` // "mt5" or "paper"
	Server         string  `mapstructure:"server"`
	Login          string  `mapstructure:"login"`
	Password       string  `mapstructure:"password"`
	Symbol         string  `mapstructure:"symbol"`
	DeviationPoint int     `mapstructure:"deviation_points"`
	MagicNumber    int64   `mapstructure:"magic_number"`
	OrderComment   string  `mapstructure:"order_comment"`
	RateLimitPerS  float64 `mapstructure:"rate_limit_per_second"`
}

// TradingConfig contains top-level trading parameters.
type TradingConfig struct {
	Mode             string  `mapstructure:"mode"` // "paper" or "live"
	Symbol           string  `mapstructure:"symbol"`
	MaxPositions     int     `mapstructure:"max_positions"`
	MinFreeMarginUSD float64 `mapstructure:"min_free_margin_usd"`
	RiskPercent      float64 `mapstructure:"risk_percent"`
	PipPoints        int     `mapstructure:"pip_points"`
	DebounceWindowMS int     `mapstructure:"debounce_window_ms"`
	SignalBufferCap  int     `mapstructure:"signal_buffer_cap"`
	MinConfidence    float64 `mapstructure:"min_confidence"`
	MinEVScore       float64 `mapstructure:"min_ev_score"`
}

// RiskConfig contains RiskGate (C5) thresholds.
type RiskConfig struct {
	ATRSLMultiplier          float64 `mapstructure:"atr_sl_multiplier"`
	ATRTPMultiplier          float64 `mapstructure:"atr_tp_multiplier"`
	MaxSLPips                float64 `mapstructure:"max_sl_pips"`
	MinSLPips                float64 `mapstructure:"min_sl_pips"`
	ATRVolatilityMax         float64 `mapstructure:"atr_volatility_max"`
	ATRVolatilityMin         float64 `mapstructure:"atr_volatility_min"`
	MaxDailyLossPercent      float64 `mapstructure:"max_daily_loss_percent"`
	MaxConsecutiveLosses     int     `mapstructure:"max_consecutive_losses"`
	ConsecutiveResetHours    float64 `mapstructure:"consecutive_loss_reset_hours"`
	ConsecutiveGroupWindowS  float64 `mapstructure:"consecutive_loss_group_window_sec"`
	GapBlockThresholdUSD     float64 `mapstructure:"gap_block_threshold_usd"`
	ReversalCooldownSec      float64 `mapstructure:"reversal_cooldown_sec"`
	MarginFloorUSD           float64 `mapstructure:"margin_floor_usd"`
	MaxOpenRiskUSD           float64 `mapstructure:"max_open_risk_usd"`
}

// PositionConfig contains PositionManager (C11) state-machine parameters.
type PositionConfig struct {
	PartialCloseRatio       float64 `mapstructure:"partial_close_ratio"`
	PartialTPATRMult        float64 `mapstructure:"partial_tp_atr_mult"`
	BETriggerATRMult        float64 `mapstructure:"be_trigger_atr_mult"`
	BEBufferPips            float64 `mapstructure:"be_buffer_pips"`
	TrailingStepATRMult     float64 `mapstructure:"trailing_step_atr_mult"`
	CheckIntervalSec        int     `mapstructure:"check_interval_sec"`
	HealthCheckIntervalSec  int     `mapstructure:"health_check_interval_sec"`
	LossAlertUSD            float64 `mapstructure:"loss_alert_usd"`
}

// WaitConfig contains WaitBuffer/Revaluator (C8/C9) expiry parameters.
type WaitConfig struct {
	PollIntervalSec        int     `mapstructure:"poll_interval_sec"`
	NextBarExpirySec       float64 `mapstructure:"next_bar_expiry_sec"`
	StructureNeededExpiry  float64 `mapstructure:"structure_needed_expiry_sec"`
	CooldownExpirySec      float64 `mapstructure:"cooldown_expiry_sec"`
	MaxReevalCount         int     `mapstructure:"max_reeval_count"`
}

// NewsConfig contains the supplemented news-filter guard.
type NewsConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	BlockBeforeMin    int      `mapstructure:"block_before_min"`
	BlockAfterMin     int      `mapstructure:"block_after_min"`
	TargetCurrencies  []string `mapstructure:"target_currencies"`
	MinImportance     int      `mapstructure:"min_importance"`
}

// SchedulerConfig contains Scheduler (C13) time-window parameters, expressed
// as "HH:MM" server-time strings.
type SchedulerConfig struct {
	DailyBreakStart   string `mapstructure:"daily_break_start"`
	DailyBreakEnd     string `mapstructure:"daily_break_end"`
	LimitCancelStart  string `mapstructure:"limit_cancel_start"`
	LimitCancelWarnMin int   `mapstructure:"limit_cancel_warn_min"`
	EODCloseTime      string `mapstructure:"eod_close_time"`
}

// APIConfig contains the webhook HTTP server settings.
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MonitoringConfig contains monitoring settings.
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables.
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

	v.AutomaticEnv()
	v.SetEnvPrefix("GOLDENGINE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
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

// setDefaults sets default configuration values, recovered from the
// original system's SYSTEM_CONFIG constants.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "gold-engine")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "gold_engine")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.structure_topic", "gold-engine.structure")
	v.SetDefault("nats.control_topic", "gold-engine.control")
	v.SetDefault("nats.enable_jetstream", false)

	v.SetDefault("broker.kind", "paper")
	v.SetDefault("broker.symbol", "GOLD")
	v.SetDefault("broker.deviation_points", 20)
	v.SetDefault("broker.magic_number", 20260223)
	v.SetDefault("broker.order_comment", "gold-engine")
	v.SetDefault("broker.rate_limit_per_second", 5.0)

	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.symbol", "GOLD")
	v.SetDefault("trading.max_positions", 1)
	v.SetDefault("trading.min_free_margin_usd", 500.0)
	v.SetDefault("trading.risk_percent", 2.0)
	v.SetDefault("trading.pip_points", 10)
	v.SetDefault("trading.debounce_window_ms", 500)
	v.SetDefault("trading.signal_buffer_cap", 50)
	v.SetDefault("trading.min_confidence", 0.70)
	v.SetDefault("trading.min_ev_score", 0.20)

	v.SetDefault("risk.atr_sl_multiplier", 2.0)
	v.SetDefault("risk.atr_tp_multiplier", 3.0)
	v.SetDefault("risk.max_sl_pips", 80.0)
	v.SetDefault("risk.min_sl_pips", 8.0)
	v.SetDefault("risk.atr_volatility_max", 30.0)
	v.SetDefault("risk.atr_volatility_min", 3.0)
	v.SetDefault("risk.max_daily_loss_percent", -10.0)
	v.SetDefault("risk.max_consecutive_losses", 3)
	v.SetDefault("risk.consecutive_loss_reset_hours", 24.0)
	v.SetDefault("risk.consecutive_loss_group_window_sec", 10.0)
	v.SetDefault("risk.gap_block_threshold_usd", 15.0)
	v.SetDefault("risk.reversal_cooldown_sec", 300.0)
	v.SetDefault("risk.margin_floor_usd", 500.0)
	v.SetDefault("risk.max_open_risk_usd", 2000.0)

	v.SetDefault("position.partial_close_ratio", 0.5)
	v.SetDefault("position.partial_tp_atr_mult", 2.0)
	v.SetDefault("position.be_trigger_atr_mult", 1.0)
	v.SetDefault("position.be_buffer_pips", 2.0)
	v.SetDefault("position.trailing_step_atr_mult", 1.5)
	v.SetDefault("position.check_interval_sec", 10)
	v.SetDefault("position.health_check_interval_sec", 60)
	v.SetDefault("position.loss_alert_usd", -100.0)

	v.SetDefault("wait.poll_interval_sec", 15)
	v.SetDefault("wait.next_bar_expiry_sec", 360.0)
	v.SetDefault("wait.structure_needed_expiry_sec", 900.0)
	v.SetDefault("wait.cooldown_expiry_sec", 180.0)
	v.SetDefault("wait.max_reeval_count", 3)

	v.SetDefault("news.enabled", true)
	v.SetDefault("news.block_before_min", 30)
	v.SetDefault("news.block_after_min", 30)
	v.SetDefault("news.target_currencies", []string{"USD", "EUR"})
	v.SetDefault("news.min_importance", 2)

	v.SetDefault("scheduler.daily_break_start", "23:45")
	v.SetDefault("scheduler.daily_break_end", "01:00")
	v.SetDefault("scheduler.limit_cancel_start", "23:30")
	v.SetDefault("scheduler.limit_cancel_warn_min", 15)
	v.SetDefault("scheduler.eod_close_time", "23:30")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address.
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the webhook server address.
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DebounceWindow returns the collector debounce window as a time.Duration.
func (c *TradingConfig) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceWindowMS) * time.Millisecond
}

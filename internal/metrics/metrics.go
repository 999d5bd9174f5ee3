package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels. Free-form reasons
// (a guard's block text, a circuit breaker's failure message) get folded
// into one of these before touching a label, so a label set can't grow
// without bound just because an error message changed wording.
const (
	ReasonDailyLoss       = "daily_loss"
	ReasonConsecutiveLoss = "consecutive_loss"
	ReasonWeekendGap      = "weekend_gap"
	ReasonMarketClosed    = "market_closed"
	ReasonPendingNews     = "pending_news"
	ReasonMarginFloor     = "margin_floor"
	ReasonPositionCount   = "position_count"
	ReasonOpenRiskCap     = "open_risk_cap"
	ReasonOther           = "other"

	BrokerErrorTimeout     = "timeout"
	BrokerErrorRateLimit   = "rate_limit"
	BrokerErrorAuth        = "authentication"
	BrokerErrorNetwork     = "network"
	BrokerErrorInvalidReq  = "invalid_request"
	BrokerErrorServerError = "server_error"
	BrokerErrorOther       = "other"
)

// NormalizeRiskGateReason maps a RiskGate guard's free-form block reason
// onto the bounded set above.
func NormalizeRiskGateReason(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "daily loss") || strings.Contains(lower, "daily_loss"):
		return ReasonDailyLoss
	case strings.Contains(lower, "consecutive"):
		return ReasonConsecutiveLoss
	case strings.Contains(lower, "weekend"):
		return ReasonWeekendGap
	case strings.Contains(lower, "market") || strings.Contains(lower, "session") || strings.Contains(lower, "daily break"):
		return ReasonMarketClosed
	case strings.Contains(lower, "news"):
		return ReasonPendingNews
	case strings.Contains(lower, "margin"):
		return ReasonMarginFloor
	case strings.Contains(lower, "position count") || strings.Contains(lower, "max positions"):
		return ReasonPositionCount
	case strings.Contains(lower, "open risk") || strings.Contains(lower, "risk cap"):
		return ReasonOpenRiskCap
	default:
		return ReasonOther
	}
}

// NormalizeBrokerError maps arbitrary broker client error messages to the
// bounded set above.
func NormalizeBrokerError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return BrokerErrorTimeout
	case strings.Contains(errStr, "rate") || strings.Contains(errStr, "429"):
		return BrokerErrorRateLimit
	case strings.Contains(errStr, "auth") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return BrokerErrorAuth
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return BrokerErrorNetwork
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "invalid"):
		return BrokerErrorInvalidReq
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return BrokerErrorServerError
	default:
		return BrokerErrorOther
	}
}

// Trading performance metrics, backfilled from trade_results by the
// Updater. This engine trades a single instrument, so these are scalars
// rather than the teacher's per-symbol vectors.
var (
	TotalPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_total_pnl_usd",
		Help: "Total realized profit and loss in USD",
	})

	WinRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_win_rate",
		Help: "Win rate as a ratio (0.0 to 1.0)",
	})

	PositionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_position_open",
		Help: "Whether the single tradable instrument currently has an open position (0 or 1)",
	})

	TotalTrades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_total_trades",
		Help: "Total number of closed trades",
	})

	CurrentDrawdown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_current_drawdown",
		Help: "Current drawdown as a ratio (0.0 to 1.0)",
	})

	RiskRewardRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_risk_reward_ratio",
		Help: "Average win size divided by average loss size",
	})

	WinningTradesValue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_winning_trades_value_usd",
		Help: "Total value of winning trades in USD",
	})

	LosingTradesValue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_losing_trades_value_usd",
		Help: "Total value (absolute) of losing trades in USD",
	})

	DailyReturn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_daily_return",
		Help: "Trailing-24h return as a ratio of account equity",
	})

	WeeklyReturn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_weekly_return",
		Help: "Trailing-7d return as a ratio of account equity",
	})

	MonthlyReturn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_monthly_return",
		Help: "Trailing-30d return as a ratio of account equity",
	})

	SharpeRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_sharpe_ratio",
		Help: "Annualized Sharpe ratio over the trailing 30 days",
	})
)

// Decision pipeline metrics: one gauge/counter per named component in
// the signal-to-order path.
var (
	SignalsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_signals_received_total",
		Help: "Total inbound signals accepted by the webhook, by signal kind",
	}, []string{"kind"})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_decisions_total",
		Help: "Total decision engine outcomes by decision (approve/wait/reject)",
	}, []string{"decision"})

	DecisionScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trading_decision_score",
		Help:    "Decision engine composite score at time of approve/reject",
		Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	DecisionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trading_decision_latency_ms",
		Help:    "End-to-end latency from signal receipt to decision, in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	WaitReevaluations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_wait_reevaluations_total",
		Help: "Total WaitBuffer re-evaluation cycles run",
	})

	RiskGateBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_risk_gate_blocks_total",
		Help: "Total RiskGate rejections by normalized guard reason",
	}, []string{"reason"})

	OrdersExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_orders_executed_total",
		Help: "Total order send attempts by outcome (filled/rejected)",
	}, []string{"outcome"})

	OrderExecutionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trading_order_execution_latency_ms",
		Help:    "Broker order-send round-trip latency in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
	})

	BrokerConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_broker_connected",
		Help: "Whether the HealthMonitor currently considers the broker connection healthy (0 or 1)",
	})
)

// System health metrics, shared across every component that touches
// HTTP, Postgres, Redis, or NATS.
var (
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_database_connections_idle",
		Help: "Number of idle database connections",
	})

	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trading_database_query_duration_ms",
		Help:    "Database query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"query_type"})

	RedisCacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_redis_cache_hit_rate",
		Help: "Indicator cache hit rate as a ratio (0.0 to 1.0)",
	})

	RedisOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_redis_operations_total",
		Help: "Total number of Redis operations by type",
	}, []string{"operation"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trading_api_request_duration_ms",
		Help:    "Webhook API request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method", "path", "status_code"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status_code"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_errors_total",
		Help: "Total number of errors by error kind and component",
	}, []string{"kind", "component"})

	NATSMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_nats_messages_published_total",
		Help: "Total number of NATS messages published, by subject",
	}, []string{"subject"})

	NATSMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_nats_messages_received_total",
		Help: "Total number of NATS messages received, by subject",
	}, []string{"subject"})

	VaultRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_vault_requests_total",
		Help: "Total Vault secret fetches by outcome (ok/error)",
	}, []string{"outcome"})

	VaultRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trading_vault_request_duration_ms",
		Help:    "Vault HTTP request duration in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	VaultCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_vault_cache_hits_total",
		Help: "Total Vault secret lookups served from the in-process cache",
	})

	VaultCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trading_vault_cache_misses_total",
		Help: "Total Vault secret lookups that missed the in-process cache",
	})

	VaultCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trading_vault_cache_size",
		Help: "Number of secrets currently held in the Vault client's cache",
	})
)

// Helper functions to update metrics from call sites that would
// otherwise need to import prometheus label-vector plumbing directly.

// UpdateDatabaseConnections updates database connection pool gauges.
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordAPIRequest records a webhook API request with its duration.
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// RecordError records an error by kind and originating component.
func RecordError(kind, component string) {
	Errors.WithLabelValues(kind, component).Inc()
}

// RecordDatabaseQuery records a database query's duration by query type.
func RecordDatabaseQuery(queryType string, durationMs float64) {
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(durationMs)
}

// RecordRedisOperation records a Redis operation by verb.
func RecordRedisOperation(operation string) {
	RedisOperations.WithLabelValues(operation).Inc()
}

// RecordSignalReceived records an inbound signal by kind.
func RecordSignalReceived(kind string) {
	SignalsReceived.WithLabelValues(kind).Inc()
}

// RecordDecision records a decision engine outcome and its score.
func RecordDecision(decision string, score float64, latencyMs float64) {
	DecisionsTotal.WithLabelValues(decision).Inc()
	DecisionScore.Observe(score)
	DecisionLatency.Observe(latencyMs)
}

// RecordWaitReevaluation records one WaitBuffer re-evaluation cycle.
func RecordWaitReevaluation() {
	WaitReevaluations.Inc()
}

// RecordRiskGateBlock records a RiskGate rejection with a normalized
// reason.
func RecordRiskGateBlock(reason string) {
	RiskGateBlocks.WithLabelValues(NormalizeRiskGateReason(reason)).Inc()
}

// RecordOrderExecution records an order send attempt's outcome and
// latency.
func RecordOrderExecution(outcome string, durationMs float64) {
	OrdersExecuted.WithLabelValues(outcome).Inc()
	OrderExecutionLatency.Observe(durationMs)
}

// SetBrokerConnected updates the broker connectivity gauge.
func SetBrokerConnected(connected bool) {
	if connected {
		BrokerConnected.Set(1)
		return
	}
	BrokerConnected.Set(0)
}

// RecordTrade records a completed trade's P&L.
func RecordTrade(profitLoss float64) {
	TotalTrades.Inc()
	if profitLoss > 0 {
		WinningTradesValue.Add(profitLoss)
	} else {
		LosingTradesValue.Add(-profitLoss)
	}
}

// SetPositionOpen updates the single-instrument open-position gauge.
func SetPositionOpen(open bool) {
	if open {
		PositionOpen.Set(1)
		return
	}
	PositionOpen.Set(0)
}

// RecordNATSPublish records a published NATS message by subject.
func RecordNATSPublish(subject string) {
	NATSMessagesPublished.WithLabelValues(subject).Inc()
}

// RecordNATSReceive records a received NATS message by subject.
func RecordNATSReceive(subject string) {
	NATSMessagesReceived.WithLabelValues(subject).Inc()
}

// RecordVaultRequest records a Vault HTTP round-trip's duration and
// outcome. A nil err records an "ok" outcome.
func RecordVaultRequest(durationMs float64, err error) {
	VaultRequestDuration.Observe(durationMs)
	if err != nil {
		VaultRequests.WithLabelValues("error").Inc()
		return
	}
	VaultRequests.WithLabelValues("ok").Inc()
}

// RecordVaultCacheHit records a Vault secret lookup served from cache.
func RecordVaultCacheHit() {
	VaultCacheHits.Inc()
}

// RecordVaultCacheMiss records a Vault secret lookup that missed the cache.
func RecordVaultCacheMiss() {
	VaultCacheMisses.Inc()
}

// UpdateVaultCacheSize sets the current Vault client cache size gauge.
func UpdateVaultCacheSize(n int) {
	VaultCacheSize.Set(float64(n))
}

package metrics

import (
	"context"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Updater periodically backfills the trading-performance gauges from
// trade_results, since those are aggregate facts no single component
// computes in the course of its own work.
type Updater struct {
	db       *pgxpool.Pool
	interval time.Duration
	stopCh   chan struct{}
}

// NewUpdater creates a new metrics updater.
func NewUpdater(db *pgxpool.Pool, interval time.Duration) *Updater {
	return &Updater{
		db:       db,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the metrics update loop. Blocks until Stop is called or
// ctx is cancelled.
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-u.stopCh:
			log.Info().Msg("metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater.
func (u *Updater) Stop() {
	close(u.stopCh)
}

func (u *Updater) update(ctx context.Context) {
	u.updateTradingMetrics(ctx)
	u.updatePositionMetrics(ctx)
	u.updateDatabaseMetrics()
}

func (u *Updater) updateTradingMetrics(ctx context.Context) {
	var totalPnL float64
	var totalTrades, winningTrades int64

	query := `
		SELECT
			COALESCE(SUM(pnl_usd), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE outcome = 'win')
		FROM trade_results
	`
	if err := u.db.QueryRow(ctx, query).Scan(&totalPnL, &totalTrades, &winningTrades); err != nil {
		log.Error().Err(err).Msg("failed to fetch trading metrics")
		return
	}

	TotalPnL.Set(totalPnL)
	if totalTrades > 0 {
		WinRate.Set(float64(winningTrades) / float64(totalTrades))
	} else {
		WinRate.Set(0)
	}

	var avgWin, avgLoss float64
	query = `
		SELECT
			COALESCE(AVG(pnl_usd) FILTER (WHERE pnl_usd > 0), 0),
			COALESCE(ABS(AVG(pnl_usd)) FILTER (WHERE pnl_usd < 0), 0)
		FROM trade_results
	`
	if err := u.db.QueryRow(ctx, query).Scan(&avgWin, &avgLoss); err == nil && avgLoss > 0 {
		RiskRewardRatio.Set(avgWin / avgLoss)
	}

	u.updateDrawdownMetrics(ctx)
	u.updateReturnMetrics(ctx)
	u.updateSharpeRatio(ctx)
}

func (u *Updater) updateDrawdownMetrics(ctx context.Context) {
	query := `
		WITH cumulative AS (
			SELECT closed_at, SUM(pnl_usd) OVER (ORDER BY closed_at) AS running_pnl
			FROM trade_results
		),
		peak AS (
			SELECT closed_at, running_pnl, MAX(running_pnl) OVER (ORDER BY closed_at) AS high_water
			FROM cumulative
		)
		SELECT COALESCE(
			CASE WHEN MAX(high_water) > 0 THEN (MAX(high_water) - MIN(running_pnl)) / MAX(high_water) ELSE 0 END,
			0
		)
		FROM peak
	`

	var drawdown float64
	if err := u.db.QueryRow(ctx, query).Scan(&drawdown); err == nil {
		CurrentDrawdown.Set(drawdown)
	}
}

func (u *Updater) updateReturnMetrics(ctx context.Context) {
	const initialCapital = 10000.0

	windows := []struct {
		gauge    prometheus.Gauge
		interval string
	}{
		{DailyReturn, "1 day"},
		{WeeklyReturn, "7 days"},
		{MonthlyReturn, "30 days"},
	}

	for _, w := range windows {
		query := `
			SELECT COALESCE(SUM(pnl_usd), 0)
			FROM trade_results
			WHERE closed_at >= now() - $1::interval
		`
		var pnl float64
		if err := u.db.QueryRow(ctx, query, w.interval).Scan(&pnl); err == nil {
			w.gauge.Set(pnl / initialCapital)
		}
	}
}

func (u *Updater) updateSharpeRatio(ctx context.Context) {
	const initialCapital = 10000.0

	query := `
		SELECT closed_at::date, SUM(pnl_usd)
		FROM trade_results
		WHERE closed_at >= now() - interval '30 days'
		GROUP BY closed_at::date
		ORDER BY closed_at::date
	`

	rows, err := u.db.Query(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("failed to calculate sharpe ratio")
		return
	}
	defer rows.Close()

	var returns []float64
	for rows.Next() {
		var date time.Time
		var pnl float64
		if err := rows.Scan(&date, &pnl); err != nil {
			continue
		}
		returns = append(returns, pnl/initialCapital)
	}

	if len(returns) <= 1 {
		return
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)

	if stdDev > 0 {
		SharpeRatio.Set(mean / stdDev * math.Sqrt(252))
	}
}

func (u *Updater) updatePositionMetrics(ctx context.Context) {
	var openCount int64
	query := `
		SELECT COUNT(*)
		FROM executions e
		WHERE e.success
		  AND NOT EXISTS (SELECT 1 FROM trade_results tr WHERE tr.execution_id = e.id)
	`
	if err := u.db.QueryRow(ctx, query).Scan(&openCount); err == nil {
		SetPositionOpen(openCount > 0)
	}
}

func (u *Updater) updateDatabaseMetrics() {
	stat := u.db.Stat()
	UpdateDatabaseConnections(stat.AcquiredConns(), stat.IdleConns())
}

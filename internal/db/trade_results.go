package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yusuke746/trading-system/internal/risk"
)

// RecordTradeResult inserts one trade_results row for a partial close or a
// full position close. Satisfies position.HistoryRecorder.
func (db *DB) RecordTradeResult(ctx context.Context, executionID string, ticket int64, outcome string, pnlUSD float64, duration time.Duration) error {
	query := `
		INSERT INTO trade_results (
			id, closed_at, execution_id, ticket, outcome, pnl_usd, pnl_pips,
			duration_min, partial_close_pnl
		) VALUES ($1, now(), $2, $3, $4, $5, $6, $7, $8)
	`
	partialPnL := 0.0
	if outcome == "partial_tp" {
		partialPnL = pnlUSD
	}
	_, err := db.pool.Exec(ctx, query,
		uuid.New(),
		nullableUUID(executionID),
		ticket,
		outcome,
		pnlUSD,
		pnlPips(pnlUSD),
		duration.Minutes(),
		partialPnL,
	)
	if err != nil {
		return fmt.Errorf("record trade result: %w", err)
	}
	return nil
}

// pnlPips is a rough GOLD pip conversion ($1/lot/pip at standard 0.01 lot
// contract sizing is not exact across lot sizes; this column is a display
// convenience only, never consulted by a risk check) used purely to
// populate the audit column — every risk decision is made off pnl_usd.
func pnlPips(pnlUSD float64) float64 {
	const usdPerPip = 1.0
	return pnlUSD / usdPerPip
}

// TradesClosedToday returns every trade_results row closed since the start
// of the current UTC day. Satisfies risk.Store for the daily-loss-limit
// guard.
func (db *DB) TradesClosedToday(ctx context.Context) ([]risk.TradeResult, error) {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	return db.tradeResultsSince(ctx, dayStart)
}

// RecentTrades returns up to limit of the most recent trade_results rows
// closed at or after since, most recent first. Satisfies risk.Store for
// the consecutive-losses guard.
func (db *DB) RecentTrades(ctx context.Context, limit int, since time.Time) ([]risk.TradeResult, error) {
	query := `
		SELECT closed_at, outcome, pnl_usd FROM trade_results
		WHERE closed_at >= $1
		ORDER BY closed_at DESC
		LIMIT $2
	`
	rows, err := db.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent trades: %w", err)
	}
	defer rows.Close()

	var out []risk.TradeResult
	for rows.Next() {
		var tr risk.TradeResult
		if err := rows.Scan(&tr.ClosedAt, &tr.Outcome, &tr.PnLUSD); err != nil {
			return nil, fmt.Errorf("scan trade result: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (db *DB) tradeResultsSince(ctx context.Context, since time.Time) ([]risk.TradeResult, error) {
	query := `
		SELECT closed_at, outcome, pnl_usd FROM trade_results
		WHERE closed_at >= $1
		ORDER BY closed_at ASC
	`
	rows, err := db.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("trades closed today: %w", err)
	}
	defer rows.Close()

	var out []risk.TradeResult
	for rows.Next() {
		var tr risk.TradeResult
		if err := rows.Scan(&tr.ClosedAt, &tr.Outcome, &tr.PnLUSD); err != nil {
			return nil, fmt.Errorf("scan trade result: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

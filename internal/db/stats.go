package db

import (
	"context"
	"fmt"
)

// WinRate satisfies context.StatsSource: the fraction of trade_results rows
// closed tp_hit/trailing_sl/partial_tp out of every closed trade for the
// symbol, over the lifetime of the table (the ScoringEngine only consumes
// this as one additive factor, so a long lookback is preferred over a
// narrow, noisy recent-window average).
func (db *DB) WinRate(ctx context.Context, symbol string) (float64, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE outcome IN ('tp_hit', 'trailing_sl', 'partial_tp'))::float8,
			COUNT(*)::float8
		FROM trade_results tr
		JOIN executions e ON e.id = tr.execution_id
		WHERE e.symbol = $1
	`
	var wins, total float64
	if err := db.pool.QueryRow(ctx, query, symbol).Scan(&wins, &total); err != nil {
		return 0, fmt.Errorf("win rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return wins / total, nil
}

// ConsecutiveLosses satisfies context.StatsSource: the number of sl_hit
// outcomes in a row, most-recent-first, before the streak is broken by any
// other outcome.
func (db *DB) ConsecutiveLosses(ctx context.Context, symbol string) (int, error) {
	const query = `
		SELECT tr.outcome
		FROM trade_results tr
		JOIN executions e ON e.id = tr.execution_id
		WHERE e.symbol = $1
		ORDER BY tr.closed_at DESC
		LIMIT 50
	`
	rows, err := db.pool.Query(ctx, query, symbol)
	if err != nil {
		return 0, fmt.Errorf("consecutive losses: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var outcome string
		if err := rows.Scan(&outcome); err != nil {
			return 0, fmt.Errorf("scan outcome: %w", err)
		}
		if outcome != "sl_hit" {
			break
		}
		count++
	}
	return count, rows.Err()
}

// ATRPercentile satisfies context.StatsSource: the percentile rank (0-100)
// of the most recent ATR-at-entry reading against the last 90 days of
// entries, used to flag an unusually volatile regime. Nil means too few
// samples to rank meaningfully. ai_decisions carries no symbol column of
// its own (this engine is single-instrument), so symbol is accepted only
// to satisfy context.StatsSource's shared signature and is not filtered
// on.
func (db *DB) ATRPercentile(ctx context.Context, symbol string) (*float64, error) {
	const query = `
		WITH recent AS (
			SELECT created_at, (structured_data->>'atr_at_entry')::float8 AS atr
			FROM ai_decisions
			WHERE structured_data ? 'atr_at_entry'
			  AND created_at >= now() - interval '90 days'
		), ranked AS (
			SELECT created_at, percent_rank() OVER (ORDER BY atr) * 100 AS pct
			FROM recent
		)
		SELECT ranked.pct, (SELECT COUNT(*) FROM recent)
		FROM ranked
		ORDER BY ranked.created_at DESC
		LIMIT 1
	`
	var pct float64
	var sampleCount int
	err := db.pool.QueryRow(ctx, query).Scan(&pct, &sampleCount)
	if err != nil {
		return nil, nil
	}
	if sampleCount < 10 {
		return nil, nil
	}
	return &pct, nil
}

package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// RunRetention applies the persistent-state retention policy: high-volume,
// low-value rows are pruned outright, while large JSON columns on
// ai_decisions/scoring_history are NULL-ified past their own (longer)
// retention window rather than deleting the row, since the scalar score
// columns stay useful for long-run win-rate analysis after the verbose
// breakdown/structured_data blobs are no longer worth the storage.
// Trade-related tables (executions, trade_results) are never pruned.
func (db *DB) RunRetention(ctx context.Context) error {
	steps := []struct {
		name string
		sql  string
	}{
		{"system_events 90d", `DELETE FROM system_events WHERE created_at < now() - interval '90 days'`},
		{"signals 180d", `DELETE FROM signals WHERE received_at < now() - interval '180 days'`},
		{"scoring_history 90d", `DELETE FROM scoring_history WHERE created_at < now() - interval '90 days'`},
		{"ai_decisions structured_data 90d", `UPDATE ai_decisions SET structured_data = NULL WHERE created_at < now() - interval '90 days' AND structured_data IS NOT NULL`},
		{"ai_decisions score_breakdown 180d", `UPDATE ai_decisions SET score_breakdown = NULL WHERE created_at < now() - interval '180 days' AND score_breakdown IS NOT NULL`},
	}

	for _, step := range steps {
		tag, err := db.pool.Exec(ctx, step.sql)
		if err != nil {
			return fmt.Errorf("retention step %q: %w", step.name, err)
		}
		log.Info().Str("step", step.name).Int64("rows_affected", tag.RowsAffected()).Msg("retention step applied")
	}
	return nil
}

// Vacuum runs VACUUM on the high-churn tables. Must be called over an
// autocommit connection — pgxpool connections already run outside an
// explicit transaction by default, which VACUUM requires (it refuses to
// run inside one).
func (db *DB) Vacuum(ctx context.Context) error {
	tables := []string{"signals", "ai_decisions", "executions", "trade_results", "wait_history", "scoring_history", "system_events"}
	for _, table := range tables {
		if _, err := db.pool.Exec(ctx, "VACUUM "+table); err != nil {
			return fmt.Errorf("vacuum %s: %w", table, err)
		}
	}
	return nil
}

package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yusuke746/trading-system/internal/model"
)

// InsertScoringHistory records one ScoringEngine (C4) run — direction,
// regime, total score, breakdown, and decision — independent of whether
// the decision ever resulted in a trade. Outcome/PnL are filled in later by
// UpdateScoringOutcome once a resulting position (if any) closes, so the
// scoring config's real-world hit rate can be audited per factor.
//
// This table has no live consumer interface of its own, and nothing in
// this repository calls InsertScoringHistory or UpdateScoringOutcome; the
// weekly maintenance job touches the table only through RunRetention,
// which deletes rows older than 90 days.
func (db *DB) InsertScoringHistory(ctx context.Context, direction model.Direction, regime string, result model.DecisionResult) (string, error) {
	id := uuid.New()
	query := `
		INSERT INTO scoring_history (
			id, created_at, signal_direction, regime, total_score, decision,
			breakdown, outcome, pnl_usd
		) VALUES ($1, now(), $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := db.pool.Exec(ctx, query,
		id,
		direction,
		regime,
		result.Score,
		result.Decision,
		result.Breakdown,
		"", // outcome is unknown until UpdateScoringOutcome closes the loop
		0.0,
	)
	if err != nil {
		return "", fmt.Errorf("insert scoring history: %w", err)
	}
	return id.String(), nil
}

// UpdateScoringOutcome back-fills the outcome/pnl_usd columns once the
// trade this scoring run led to (if any) has closed.
func (db *DB) UpdateScoringOutcome(ctx context.Context, scoringHistoryID string, outcome string, pnlUSD float64) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE scoring_history SET outcome = $1, pnl_usd = $2 WHERE id = $3`,
		outcome, pnlUSD, scoringHistoryID,
	)
	if err != nil {
		return fmt.Errorf("update scoring outcome: %w", err)
	}
	return nil
}

package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RecordWaitOutcome inserts one wait_history row once a WaitItem leaves the
// "waiting" status — approved, rejected, or timed out. Satisfies
// revaluator.HistoryRecorder.
func (db *DB) RecordWaitOutcome(ctx context.Context, waitID string, reevalCount int, status string) error {
	query := `
		INSERT INTO wait_history (
			id, created_at, ai_decision_id, wait_scope, wait_condition,
			reeval_count, final_status, resolved_at
		) VALUES ($1, now(), $2, $3, $4, $5, $6, now())
	`
	_, err := db.pool.Exec(ctx, query,
		uuid.New(),
		nullableUUID(waitID), // WaitItem.WaitID, the decision-side correlation ID the Revaluator tracks
		"",                   // scope/condition at resolution time; the live WaitBuffer already holds these
		"",                   // and this audit row only needs to record the terminal reeval_count/status
		reevalCount,
		status,
	)
	if err != nil {
		return fmt.Errorf("record wait outcome: %w", err)
	}
	return nil
}

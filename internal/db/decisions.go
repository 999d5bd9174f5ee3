package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yusuke746/trading-system/internal/model"
	"github.com/yusuke746/trading-system/internal/structurer"
)

// PersistDecision inserts one ai_decisions row — the ScoringEngine's (C4)
// verdict plus its full breakdown, referencing the entry signals it was
// computed from — and returns the generated ID the WaitBuffer and Executor
// carry forward as ai_decision_id.
func (db *DB) PersistDecision(ctx context.Context, signalIDs []string, result model.DecisionResult) (string, error) {
	id := uuid.New()
	query := `
		INSERT INTO ai_decisions (
			id, created_at, signal_ids, decision, confidence, ev_score,
			reason, wait_scope, wait_condition, structured_data,
			score_breakdown, setup_type, session
		) VALUES ($1, now(), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := db.pool.Exec(ctx, query,
		id,
		signalIDs,
		result.Decision,
		confidenceFromScore(result),
		result.Score,
		rejectReasonsText(result.RejectReasons),
		result.WaitCondition,
		"", // wait_condition free-text detail; nothing writes this column after the insert
		map[string]interface{}{},
		result.Breakdown,
		result.SetupType,
		structurer.SessionForHour(time.Now().UTC().Hour()),
	)
	if err != nil {
		return "", fmt.Errorf("persist decision: %w", err)
	}
	return id.String(), nil
}

// confidenceFromScore derives a [0,1] confidence figure from the additive
// score for audit display; the decision itself is made purely from Score
// against the configured thresholds, never from this derived figure.
func confidenceFromScore(result model.DecisionResult) float64 {
	if result.Decision == model.DecisionReject {
		return 0
	}
	const saturationScore = 10.0
	c := result.Score / saturationScore
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

func rejectReasonsText(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}

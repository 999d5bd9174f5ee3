package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yusuke746/trading-system/internal/executor"
	"github.com/yusuke746/trading-system/internal/model"
)

// RecordExecution inserts one executions row — the built order alongside
// the broker's fill result (or the rejection error), tying back to the
// ai_decision that authorized it. Satisfies executor.ExecutionRecorder.
func (db *DB) RecordExecution(ctx context.Context, order executor.OrderRequest, result executor.OrderResult, aiDecisionID string, setupType model.SetupType) (string, error) {
	id := uuid.New()
	query := `
		INSERT INTO executions (
			id, created_at, ai_decision_id, symbol, direction, order_type,
			lot_size, entry_price, sl, tp, ticket, success, error
		) VALUES ($1, now(), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	success := result.Ticket != 0
	var ticket *int64
	if success {
		ticket = &result.Ticket
	}
	_, err := db.pool.Exec(ctx, query,
		id,
		nullableUUID(aiDecisionID),
		order.Symbol,
		order.Direction,
		order.OrderType,
		order.LotSize,
		order.EntryPrice,
		order.SLPrice,
		order.TPPrice,
		ticket,
		success,
		executionErrorText(success),
	)
	if err != nil {
		return "", fmt.Errorf("record execution: %w", err)
	}
	return id.String(), nil
}

// nullableUUID parses a caller-supplied ID, returning nil rather than an
// error for an empty string — ai_decision_id is nullable for the rare
// execution that bypasses a recorded decision (none currently do, but the
// column stays nullable to match the persistent-state contract).
func nullableUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

// executionErrorText is empty on a successful fill. The Executor (C10)
// only calls RecordExecution after a successful Submit, so a zero ticket
// here means the broker accepted the call but reported no fill — recorded
// generically since OrderResult carries no rejection-reason field of its
// own.
func executionErrorText(success bool) string {
	if success {
		return ""
	}
	return "order accepted but broker reported no ticket"
}

package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yusuke746/trading-system/internal/db/testhelpers"
	"github.com/yusuke746/trading-system/internal/executor"
	"github.com/yusuke746/trading-system/internal/model"
)

func TestRecordExecutionSuccessfulFillHasNoErrorText(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	decisionID, err := tc.DB.PersistDecision(ctx, []string{}, model.DecisionResult{
		Decision: model.DecisionApprove, Score: 5, SetupType: model.SetupStandard,
	})
	require.NoError(t, err)

	order := executor.OrderRequest{
		Symbol: "XAUUSD", Direction: model.DirectionBuy, OrderType: "market",
		LotSize: 0.1, EntryPrice: 1950.5, SLPrice: 1945, TPPrice: 1960,
	}
	result := executor.OrderResult{Ticket: 123456}

	id, err := tc.DB.RecordExecution(ctx, order, result, decisionID, model.SetupStandard)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var ticket int64
	var success bool
	var errText string
	row := tc.DB.Pool().QueryRow(ctx, `SELECT ticket, success, error FROM executions WHERE id = $1`, id)
	require.NoError(t, row.Scan(&ticket, &success, &errText))

	assert.Equal(t, int64(123456), ticket)
	assert.True(t, success)
	assert.Empty(t, errText)
}

func TestRecordExecutionZeroTicketIsRecordedAsUnsuccessful(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	order := executor.OrderRequest{Symbol: "XAUUSD", Direction: model.DirectionSell, OrderType: "limit", LotSize: 0.05}

	id, err := tc.DB.RecordExecution(ctx, order, executor.OrderResult{Ticket: 0}, "", model.SetupStandard)
	require.NoError(t, err)

	var success bool
	var errText string
	row := tc.DB.Pool().QueryRow(ctx, `SELECT success, error FROM executions WHERE id = $1`, id)
	require.NoError(t, row.Scan(&success, &errText))

	assert.False(t, success)
	assert.Equal(t, "order accepted but broker reported no ticket", errText)
}

func TestRecordExecutionWithEmptyDecisionIDLeavesForeignKeyNull(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	order := executor.OrderRequest{Symbol: "XAUUSD", Direction: model.DirectionBuy, OrderType: "market", LotSize: 0.1}

	id, err := tc.DB.RecordExecution(ctx, order, executor.OrderResult{Ticket: 42}, "", model.SetupStandard)
	require.NoError(t, err)

	var decisionID *string
	row := tc.DB.Pool().QueryRow(ctx, `SELECT ai_decision_id::text FROM executions WHERE id = $1`, id)
	require.NoError(t, row.Scan(&decisionID))
	assert.Nil(t, decisionID)
}

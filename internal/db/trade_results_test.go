package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yusuke746/trading-system/internal/db/testhelpers"
	"github.com/yusuke746/trading-system/internal/executor"
	"github.com/yusuke746/trading-system/internal/model"
)

func insertExecution(t *testing.T, tc *testhelpers.PostgresContainer, ticket int64) string {
	t.Helper()
	ctx := context.Background()
	order := executor.OrderRequest{Symbol: "XAUUSD", Direction: model.DirectionBuy, OrderType: "market", LotSize: 0.1}
	id, err := tc.DB.RecordExecution(ctx, order, executor.OrderResult{Ticket: ticket}, "", model.SetupStandard)
	require.NoError(t, err)
	return id
}

func TestRecordTradeResultFullCloseLeavesPartialPnLZero(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	executionID := insertExecution(t, tc, 9001)

	require.NoError(t, tc.DB.RecordTradeResult(ctx, executionID, 9001, "tp_hit", 85.0, 45*time.Minute))

	var outcome string
	var pnl, partial float64
	row := tc.DB.Pool().QueryRow(ctx,
		`SELECT outcome, pnl_usd, partial_close_pnl FROM trade_results WHERE ticket = $1`, 9001)
	require.NoError(t, row.Scan(&outcome, &pnl, &partial))

	assert.Equal(t, "tp_hit", outcome)
	assert.Equal(t, 85.0, pnl)
	assert.Equal(t, 0.0, partial)
}

func TestRecordTradeResultPartialTPPopulatesPartialPnL(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	executionID := insertExecution(t, tc, 9002)

	require.NoError(t, tc.DB.RecordTradeResult(ctx, executionID, 9002, "partial_tp", 40.0, 20*time.Minute))

	var partial float64
	row := tc.DB.Pool().QueryRow(ctx, `SELECT partial_close_pnl FROM trade_results WHERE ticket = $1`, 9002)
	require.NoError(t, row.Scan(&partial))
	assert.Equal(t, 40.0, partial)
}

func TestTradesClosedTodayExcludesOlderTrades(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	executionID := insertExecution(t, tc, 9003)
	require.NoError(t, tc.DB.RecordTradeResult(ctx, executionID, 9003, "sl_hit", -30.0, 10*time.Minute))

	// backdate that row to well before today so it falls outside the window
	_, err := tc.DB.Pool().Exec(ctx,
		`UPDATE trade_results SET closed_at = now() - interval '5 days' WHERE ticket = $1`, 9003)
	require.NoError(t, err)

	results, err := tc.DB.TradesClosedToday(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRecentTradesReturnsMostRecentFirstUpToLimit(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	for i, ticket := range []int64{9101, 9102, 9103} {
		executionID := insertExecution(t, tc, ticket)
		require.NoError(t, tc.DB.RecordTradeResult(ctx, executionID, ticket, "sl_hit", float64(-10*(i+1)), time.Minute))
	}

	results, err := tc.DB.RecentTrades(ctx, 2, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

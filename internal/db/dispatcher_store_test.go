package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yusuke746/trading-system/internal/db"
	"github.com/yusuke746/trading-system/internal/db/testhelpers"
	"github.com/yusuke746/trading-system/internal/model"
)

func TestDispatcherStoreRecentStructureSignalBindsTheConfiguredSymbol(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	store := db.NewDispatcherStore(tc.DB, "XAUUSD")

	_, err := store.PersistSignal(ctx, model.Signal{
		Symbol: "XAUUSD", Price: 1950, Kind: model.KindStructure,
		Event: model.EventZoneRetraceTouch, ReceivedAt: time.Now(),
	})
	require.NoError(t, err)

	// a signal on a different symbol must never surface through a
	// symbol-bound DispatcherStore, even though the underlying table holds
	// rows for any symbol.
	_, err = tc.DB.PersistSignal(ctx, model.Signal{
		Symbol: "EURUSD", Price: 1.08, Kind: model.KindStructure,
		Event: model.EventZoneRetraceTouch, ReceivedAt: time.Now(),
	})
	require.NoError(t, err)

	found, err := store.RecentStructureSignal(ctx, model.EventZoneRetraceTouch, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "XAUUSD", found.Symbol)
}

func TestDispatcherStorePersistDecisionForwardsToDB(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	store := db.NewDispatcherStore(tc.DB, "XAUUSD")

	id, err := store.PersistDecision(ctx, []string{}, model.DecisionResult{
		Decision: model.DecisionApprove, Score: 3,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

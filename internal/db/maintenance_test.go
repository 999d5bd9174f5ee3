package db_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yusuke746/trading-system/internal/db/testhelpers"
)

func TestRunRetentionDeletesSystemEventsOlderThan90Days(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	require.NoError(t, tc.DB.InsertSystemEvent(ctx, "old_event", "", "info"))
	_, err := tc.DB.Pool().Exec(ctx,
		`UPDATE system_events SET created_at = now() - interval '120 days' WHERE event = 'old_event'`)
	require.NoError(t, err)

	require.NoError(t, tc.DB.InsertSystemEvent(ctx, "recent_event", "", "info"))

	require.NoError(t, tc.DB.RunRetention(ctx))

	var count int
	require.NoError(t, tc.DB.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM system_events`).Scan(&count))
	assert.Equal(t, 1, count)

	var remaining string
	require.NoError(t, tc.DB.Pool().QueryRow(ctx, `SELECT event FROM system_events LIMIT 1`).Scan(&remaining))
	assert.Equal(t, "recent_event", remaining)
}

func TestRunRetentionNullsOldStructuredDataButKeepsTheRow(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	_, err := tc.DB.Pool().Exec(ctx,
		`INSERT INTO ai_decisions (id, created_at, signal_ids, decision, confidence, ev_score, structured_data)
		 VALUES ($1, now() - interval '100 days', '{}', 'approve', 0.5, 2.0, $2)`,
		uuid.New(), map[string]interface{}{"atr_at_entry": 1.2})
	require.NoError(t, err)

	require.NoError(t, tc.DB.RunRetention(ctx))

	var count int
	var structuredDataIsNull bool
	row := tc.DB.Pool().QueryRow(ctx,
		`SELECT COUNT(*), bool_and(structured_data IS NULL) FROM ai_decisions`)
	require.NoError(t, row.Scan(&count, &structuredDataIsNull))

	assert.Equal(t, 1, count)
	assert.True(t, structuredDataIsNull)
}

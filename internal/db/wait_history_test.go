package db_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yusuke746/trading-system/internal/db/testhelpers"
)

func TestRecordWaitOutcomeStoresReevalCountAndFinalStatus(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	waitID := uuid.New().String()

	require.NoError(t, tc.DB.RecordWaitOutcome(ctx, waitID, 3, "approved"))

	var reevalCount int
	var status string
	var resolvedAtIsNull bool
	row := tc.DB.Pool().QueryRow(ctx,
		`SELECT reeval_count, final_status, resolved_at IS NULL FROM wait_history WHERE ai_decision_id = $1`, waitID)
	require.NoError(t, row.Scan(&reevalCount, &status, &resolvedAtIsNull))

	assert.Equal(t, 3, reevalCount)
	assert.Equal(t, "approved", status)
	assert.False(t, resolvedAtIsNull)
}

func TestRecordWaitOutcomeWithEmptyWaitIDLeavesForeignKeyNull(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	require.NoError(t, tc.DB.RecordWaitOutcome(ctx, "", 0, "timeout"))

	var decisionID *string
	row := tc.DB.Pool().QueryRow(ctx,
		`SELECT ai_decision_id::text FROM wait_history WHERE final_status = 'timeout'`)
	require.NoError(t, row.Scan(&decisionID))
	assert.Nil(t, decisionID)
}

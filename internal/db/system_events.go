package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// EventLevel classifies a system_events row for filtering/alerting.
type EventLevel string

const (
	EventLevelInfo  EventLevel = "info"
	EventLevelWarn  EventLevel = "warn"
	EventLevelError EventLevel = "error"
)

// InsertSystemEvent records one operational event — a HealthMonitor
// disconnect/reconnect, a Scheduler flat-close, a risk-gate block — for
// the operational audit trail independent of any one component's own
// structured log line. Like scoring_history, this table has no dedicated
// package-level interface, and cmd/engine/main.go wires no component to
// write here: InsertSystemEvent has no caller in this repository.
func (db *DB) InsertSystemEvent(ctx context.Context, event string, detail string, level EventLevel) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO system_events (id, created_at, event, detail, level) VALUES ($1, now(), $2, $3, $4)`,
		uuid.New(), event, detail, level,
	)
	if err != nil {
		return fmt.Errorf("insert system event: %w", err)
	}
	return nil
}

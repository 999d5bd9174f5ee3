package db

import (
	"context"
	"time"

	"github.com/yusuke746/trading-system/internal/model"
)

// DispatcherStore narrows *DB's symbol-aware RecentStructureSignal (which
// the ContextBuilder also depends on directly) into dispatcher.Store's
// single-symbol shape — this engine only ever trades one instrument, so
// the BatchDispatcher's own port never needed a symbol parameter.
type DispatcherStore struct {
	db     *DB
	symbol string
}

func NewDispatcherStore(db *DB, symbol string) *DispatcherStore {
	return &DispatcherStore{db: db, symbol: symbol}
}

func (s *DispatcherStore) PersistSignal(ctx context.Context, sig model.Signal) (string, error) {
	return s.db.PersistSignal(ctx, sig)
}

func (s *DispatcherStore) PersistDecision(ctx context.Context, signalIDs []string, result model.DecisionResult) (string, error) {
	return s.db.PersistDecision(ctx, signalIDs, result)
}

func (s *DispatcherStore) RecentStructureSignal(ctx context.Context, event model.Event, within time.Duration) (*model.Signal, error) {
	return s.db.RecentStructureSignal(ctx, s.symbol, event, within)
}

func (s *DispatcherStore) RecentSyntheticTrigger(ctx context.Context, direction model.Direction, within time.Duration) (bool, error) {
	return s.db.RecentSyntheticTrigger(ctx, direction, within)
}

func (s *DispatcherStore) RecordSyntheticTrigger(ctx context.Context, sig model.Signal) error {
	return s.db.RecordSyntheticTrigger(ctx, sig)
}

// Package waitbuffer implements the WaitBuffer (C8): an in-memory,
// mutex-protected index of decisions parked in the "wait" state pending a
// re-evaluation trigger from the Revaluator. Entries are garbage-collected
// once their status leaves waiting.
package waitbuffer

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yusuke746/trading-system/internal/model"
)

// Buffer is the WaitBuffer's single shared index, keyed by item ID.
type Buffer struct {
	mu    sync.Mutex
	items map[string]*model.WaitItem
}

// New creates an empty Buffer.
func New() *Buffer {
	return &Buffer{items: make(map[string]*model.WaitItem)}
}

// Add stores a newly-waiting decision and returns its generated ID.
func (b *Buffer) Add(entrySignals []model.Signal, aiResult model.DecisionResult, aiDecisionID string, scope model.WaitScope, condition string) string {
	id := uuid.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[id] = &model.WaitItem{
		ID:             id,
		EntrySignals:   entrySignals,
		AIResult:       &aiResult,
		AIDecisionID:   aiDecisionID,
		WaitID:         id,
		Scope:          scope,
		Condition:      condition,
		OriginalReason: condition,
		CreatedAt:      time.Now().UTC(),
		Status:         model.WaitStatusWaiting,
	}
	return id
}

// Get returns a copy of the item with the given ID, if still present.
func (b *Buffer) Get(id string) (model.WaitItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	item, ok := b.items[id]
	if !ok {
		return model.WaitItem{}, false
	}
	return *item, true
}

// IncrementReeval bumps the item's re-evaluation counter and returns the new
// count alongside whether the item was found.
func (b *Buffer) IncrementReeval(id string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	item, ok := b.items[id]
	if !ok {
		return 0, false
	}
	item.ReevalCount++
	return item.ReevalCount, true
}

// SetStatus transitions an item out of (or within) the waiting state. A
// non-waiting status makes the item eligible for the next CleanupDone pass.
func (b *Buffer) SetStatus(id string, status model.WaitStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if item, ok := b.items[id]; ok {
		item.Status = status
	}
}

// UpdateScope rewrites an item's scope and condition in place, used when a
// re-evaluation still results in wait but under a different condition (e.g.
// structure_needed resolves to next_bar).
func (b *Buffer) UpdateScope(id string, scope model.WaitScope, condition string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if item, ok := b.items[id]; ok {
		item.Scope = scope
		item.Condition = condition
	}
}

// Waiting returns a snapshot of every item currently in the waiting status,
// in no particular order.
func (b *Buffer) Waiting() []model.WaitItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.WaitItem, 0, len(b.items))
	for _, item := range b.items {
		if item.Status == model.WaitStatusWaiting {
			out = append(out, *item)
		}
	}
	return out
}

// WaitingByScope returns a snapshot of waiting items matching scope, the
// Revaluator's view for its event-triggered re-evaluation pass.
func (b *Buffer) WaitingByScope(scope model.WaitScope) []model.WaitItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.WaitItem, 0)
	for _, item := range b.items {
		if item.Status == model.WaitStatusWaiting && item.Scope == scope {
			out = append(out, *item)
		}
	}
	return out
}

// CleanupDone removes every item whose status has left waiting, reclaiming
// the map entry once the Revaluator (or a caller inspecting the terminal
// outcome) no longer needs it.
func (b *Buffer) CleanupDone() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for id, item := range b.items {
		if item.Status != model.WaitStatusWaiting {
			delete(b.items, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of items currently tracked, waiting or not.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

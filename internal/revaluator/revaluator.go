// Package revaluator implements the Revaluator (C9): the background worker
// that re-evaluates decisions parked in the WaitBuffer, either on a timer
// (next_bar, cooldown) or immediately when a new structure signal arrives
// (structure_needed). Every re-evaluation — whether timer- or
// event-triggered — is funneled through a single worker goroutine so two
// re-evaluations of the same item never race.
package revaluator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/yusuke746/trading-system/internal/model"
	"github.com/yusuke746/trading-system/internal/risk"
	"github.com/yusuke746/trading-system/internal/scoring"
	"github.com/yusuke746/trading-system/internal/structurer"
)

// ContextBuilder rebuilds the Context bundle for a re-evaluation.
type ContextBuilder interface {
	Build(ctx context.Context, entrySignals []model.Signal) (model.ContextBundle, error)
}

// ScoreConfigSource supplies the current hot-swappable score configuration.
type ScoreConfigSource interface {
	Get() *model.ScoreConfig
}

// PositionTracker reports the account's current open-position risk.
type PositionTracker interface {
	OpenRiskUSD(ctx context.Context) (float64, error)
}

// Executor places an order for a re-evaluated approve.
type Executor interface {
	Execute(ctx context.Context, trigger model.Signal, result model.DecisionResult, aiDecisionID string) error
}

// HistoryRecorder persists the outcome of a re-evaluation for audit; nil is
// a valid HistoryRecorder-less configuration (the outcome is still applied
// to the WaitBuffer either way).
type HistoryRecorder interface {
	RecordWaitOutcome(ctx context.Context, waitID string, reevalCount int, status string) error
}

// WaitStore is the subset of *waitbuffer.Buffer the Revaluator needs.
type WaitStore interface {
	Waiting() []model.WaitItem
	WaitingByScope(scope model.WaitScope) []model.WaitItem
	IncrementReeval(id string) (int, bool)
	SetStatus(id string, status model.WaitStatus)
	UpdateScope(id string, scope model.WaitScope, condition string)
	CleanupDone() int
}

// Config holds the poll interval, per-scope expiry windows, and the
// re-evaluation cap.
type Config struct {
	PollInterval          time.Duration
	NextBarExpiry         time.Duration
	StructureNeededExpiry time.Duration
	CooldownExpiry        time.Duration
	MaxReevalCount        int
}

// DefaultConfig matches the live system's tuned windows: a 15s poll, and
// next_bar/structure_needed/cooldown expiries of roughly one bar, one
// structure-confirmation window, and one cooldown period respectively.
func DefaultConfig() Config {
	return Config{
		PollInterval:          15 * time.Second,
		NextBarExpiry:         6 * time.Minute,
		StructureNeededExpiry: 15 * time.Minute,
		CooldownExpiry:        3 * time.Minute,
		MaxReevalCount:        5,
	}
}

// Revaluator is C9: it owns no state of its own beyond its work queue —
// every wait item's data lives in the WaitBuffer.
type Revaluator struct {
	waits       WaitStore
	ctxBuilder  ContextBuilder
	scoreConfig ScoreConfigSource
	riskGate    *risk.Gate
	positions   PositionTracker
	executor    Executor
	history     HistoryRecorder
	cfg         Config
	log         zerolog.Logger

	work chan model.WaitItem
}

func New(waits WaitStore, ctxBuilder ContextBuilder, scoreConfig ScoreConfigSource, riskGate *risk.Gate, positions PositionTracker, executor Executor, history HistoryRecorder, cfg Config, log zerolog.Logger) *Revaluator {
	if cfg.MaxReevalCount == 0 {
		cfg.MaxReevalCount = DefaultConfig().MaxReevalCount
	}
	return &Revaluator{
		waits:       waits,
		ctxBuilder:  ctxBuilder,
		scoreConfig: scoreConfig,
		riskGate:    riskGate,
		positions:   positions,
		executor:    executor,
		history:     history,
		cfg:         cfg,
		log:         log.With().Str("component", "revaluator").Logger(),
		work:        make(chan model.WaitItem, 256),
	}
}

// Run starts the poll loop and the serializing worker loop; it blocks until
// ctx is cancelled.
func (r *Revaluator) Run(ctx context.Context) {
	go r.worker(ctx)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// worker drains the work queue one item at a time, so a structure-triggered
// re-evaluation and a timer-triggered one for the same item can never
// overlap.
func (r *Revaluator) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-r.work:
			r.reevalItem(ctx, item)
		}
	}
}

// OnNewStructure implements dispatcher.StructureNotifier: every
// structure_needed item is enqueued for immediate re-evaluation. It takes
// no context since it is called from the BatchDispatcher's own request
// flow; re-evaluation runs on the worker under the context passed to Run.
func (r *Revaluator) OnNewStructure() {
	items := r.waits.WaitingByScope(model.ScopeStructureNeeded)
	if len(items) == 0 {
		return
	}
	r.log.Info().Int("count", len(items)).Msg("structure received, re-evaluating waiting items")
	for _, item := range items {
		r.enqueue(item)
	}
}

func (r *Revaluator) enqueue(item model.WaitItem) {
	select {
	case r.work <- item:
	default:
		r.log.Warn().Str("id", item.ID).Msg("revaluator work queue full, dropping re-eval; next_bar/cooldown items are re-enqueued on the next poll tick")
	}
}

// tick runs once per PollInterval: expire anything past its scope's
// window, re-evaluate next_bar/cooldown items on the clock, and reclaim
// resolved entries.
func (r *Revaluator) tick(ctx context.Context) {
	for _, item := range r.waits.Waiting() {
		if r.isExpired(item) {
			r.log.Info().Str("id", item.ID).Str("scope", string(item.Scope)).Msg("wait item timed out")
			r.waits.SetStatus(item.ID, model.WaitStatusTimeout)
			r.recordHistory(ctx, item, "timeout")
			continue
		}

		if item.Scope == model.ScopeNextBar || item.Scope == model.ScopeCooldown {
			r.enqueue(item)
		}
	}

	if removed := r.waits.CleanupDone(); removed > 0 {
		r.log.Debug().Int("removed", removed).Msg("cleaned up resolved wait items")
	}
}

func (r *Revaluator) isExpired(item model.WaitItem) bool {
	elapsed := time.Since(item.CreatedAt)
	switch item.Scope {
	case model.ScopeNextBar:
		return elapsed > r.cfg.NextBarExpiry
	case model.ScopeStructureNeeded:
		return elapsed > r.cfg.StructureNeededExpiry
	case model.ScopeCooldown:
		return elapsed > r.cfg.CooldownExpiry
	default:
		return false
	}
}

// reevalItem rebuilds context, restructures, rescores, and applies the
// approve/reject/still-wait branch for one item. Runs only on the worker
// goroutine.
func (r *Revaluator) reevalItem(ctx context.Context, item model.WaitItem) {
	if item.ReevalCount >= r.cfg.MaxReevalCount {
		r.log.Info().Str("id", item.ID).Int("count", item.ReevalCount).Msg("re-evaluation cap exceeded, rejecting")
		r.waits.SetStatus(item.ID, model.WaitStatusRejected)
		r.recordHistory(ctx, item, "rejected")
		return
	}

	count, ok := r.waits.IncrementReeval(item.ID)
	if !ok {
		return // resolved or removed concurrently
	}
	item.ReevalCount = count

	if len(item.EntrySignals) == 0 {
		r.log.Error().Str("id", item.ID).Msg("wait item has no entry signals, rejecting")
		r.waits.SetStatus(item.ID, model.WaitStatusRejected)
		r.recordHistory(ctx, item, "rejected")
		return
	}
	trigger := item.EntrySignals[0]
	direction := trigger.Direction

	bundle, err := r.ctxBuilder.Build(ctx, item.EntrySignals)
	if err != nil {
		r.log.Warn().Err(err).Str("id", item.ID).Msg("context rebuild failed, leaving item waiting")
		return
	}

	schema := structurer.Structure(bundle, direction)
	result := scoring.Score(schema, direction, bundle.QTrendContext != nil, r.scoreConfig.Get())

	r.log.Info().Str("id", item.ID).Int("reeval_count", item.ReevalCount).Str("decision", string(result.Decision)).Msg("re-evaluated")

	switch result.Decision {
	case model.DecisionApprove:
		r.approve(ctx, item, trigger, result)
	case model.DecisionReject:
		r.waits.SetStatus(item.ID, model.WaitStatusRejected)
		r.recordHistory(ctx, item, "rejected")
	default: // still wait: only the scope/condition moves
		r.waits.UpdateScope(item.ID, result.WaitCondition, string(result.WaitCondition))
	}
}

func (r *Revaluator) approve(ctx context.Context, item model.WaitItem, trigger model.Signal, result model.DecisionResult) {
	openRisk, err := r.positions.OpenRiskUSD(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("open risk lookup failed, assuming zero")
		openRisk = 0
	}

	if blocked := r.riskGate.Check(ctx, trigger.Symbol, trigger.Price, openRisk); blocked.IsBlocked() {
		r.log.Info().Str("id", item.ID).Str("reason", blocked.Reason).Msg("re-evaluated approve blocked by risk gate")
		r.waits.SetStatus(item.ID, model.WaitStatusRejected)
		r.recordHistory(ctx, item, "rejected")
		return
	}

	status := model.WaitStatusApproved
	outcome := "approved"
	if err := r.executor.Execute(ctx, trigger, result, item.AIDecisionID); err != nil {
		r.log.Error().Err(err).Str("id", item.ID).Msg("re-evaluated execution failed")
		status = model.WaitStatusRejected
		outcome = "rejected"
	}
	r.waits.SetStatus(item.ID, status)
	r.recordHistory(ctx, item, outcome)
}

func (r *Revaluator) recordHistory(ctx context.Context, item model.WaitItem, status string) {
	if r.history == nil {
		return
	}
	if err := r.history.RecordWaitOutcome(ctx, item.WaitID, item.ReevalCount, status); err != nil {
		r.log.Warn().Err(err).Str("id", item.ID).Msg("record wait history failed")
	}
}

// Package dispatcher implements the BatchDispatcher (C7): the pipeline that
// takes a closed Batch from the SignalCollector and classifies, persists,
// and routes it — structure signals recorded and the Revaluator notified,
// entry triggers split by direction and carried through context-building,
// structuring, scoring, risk-gating, and either execution or wait-parking.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yusuke746/trading-system/internal/model"
	"github.com/yusuke746/trading-system/internal/risk"
	"github.com/yusuke746/trading-system/internal/scoring"
	"github.com/yusuke746/trading-system/internal/structurer"
)

// Store is the persistence port the dispatcher needs: recording signals and
// decisions, and the two lookups the reversal detector runs when no live
// signal in the current batch satisfies a condition.
type Store interface {
	PersistSignal(ctx context.Context, sig model.Signal) (string, error)
	PersistDecision(ctx context.Context, signalIDs []string, result model.DecisionResult) (string, error)
	RecentStructureSignal(ctx context.Context, event model.Event, within time.Duration) (*model.Signal, error)
	RecentSyntheticTrigger(ctx context.Context, direction model.Direction, within time.Duration) (bool, error)
	RecordSyntheticTrigger(ctx context.Context, sig model.Signal) error
}

// ContextBuilder assembles the Context bundle the Structurer consumes.
type ContextBuilder interface {
	Build(ctx context.Context, entrySignals []model.Signal) (model.ContextBundle, error)
}

// ScoreConfigSource supplies the current hot-swappable score configuration.
type ScoreConfigSource interface {
	Get() *model.ScoreConfig
}

// PositionTracker reports the account's current open-position risk so the
// RiskGate's open-risk cap can be evaluated without the gate itself holding
// position state.
type PositionTracker interface {
	OpenRiskUSD(ctx context.Context) (float64, error)
}

// Executor places an approved trade.
type Executor interface {
	Execute(ctx context.Context, trigger model.Signal, result model.DecisionResult, aiDecisionID string) error
}

// WaitAdder parks a wait decision; satisfied by *waitbuffer.Buffer.
type WaitAdder interface {
	Add(entrySignals []model.Signal, aiResult model.DecisionResult, aiDecisionID string, scope model.WaitScope, condition string) string
}

// StructureNotifier is told whenever new structure signals have been
// persisted, so the Revaluator's event loop can re-evaluate anything
// waiting on them immediately rather than at its next poll.
type StructureNotifier interface {
	OnNewStructure()
}

// Config holds the reversal detector's lookback windows.
type Config struct {
	SweepLookback     time.Duration // S: liquidity_sweep within this window
	ZoneLookback      time.Duration // Z: zone_retrace_touch/fvg_touch within this window
	SyntheticCooldown time.Duration // suppress re-synthesizing the same-direction reversal trigger
}

// DefaultConfig matches the live system's tuned windows: sweep within 30
// minutes, zone confirmation within 15, synthetic-trigger cooldown of 5.
func DefaultConfig() Config {
	return Config{
		SweepLookback:     30 * time.Minute,
		ZoneLookback:      15 * time.Minute,
		SyntheticCooldown: 5 * time.Minute,
	}
}

// Dispatcher is the BatchDispatcher (C7).
type Dispatcher struct {
	store       Store
	ctxBuilder  ContextBuilder
	scoreConfig ScoreConfigSource
	riskGate    *risk.Gate
	positions   PositionTracker
	executor    Executor
	waits       WaitAdder
	notifier    StructureNotifier
	cfg         Config
	log         zerolog.Logger
}

func New(store Store, ctxBuilder ContextBuilder, scoreConfig ScoreConfigSource, riskGate *risk.Gate, positions PositionTracker, executor Executor, waits WaitAdder, notifier StructureNotifier, cfg Config, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:       store,
		ctxBuilder:  ctxBuilder,
		scoreConfig: scoreConfig,
		riskGate:    riskGate,
		positions:   positions,
		executor:    executor,
		waits:       waits,
		notifier:    notifier,
		cfg:         cfg,
		log:         log.With().Str("component", "batch_dispatcher").Logger(),
	}
}

// Process partitions a closed batch and drives it through persistence,
// reversal detection, and — for every real entry trigger — the decision
// pipeline. It never returns an error that would cause the caller to
// requeue the batch; every failure is logged and the batch is considered
// handled, since batches are not safely replayable once partially
// processed.
func (d *Dispatcher) Process(ctx context.Context, batch model.Batch) error {
	structures := batch.StructureSignals()
	entryTriggers := batch.EntryTriggers()

	for _, s := range structures {
		if _, err := d.store.PersistSignal(ctx, s); err != nil {
			d.log.Error().Err(err).Str("event", string(s.Event)).Msg("persist structure signal failed")
		}
	}

	if len(structures) > 0 && d.notifier != nil {
		d.notifier.OnNewStructure()
	}

	if len(entryTriggers) == 0 {
		if len(structures) > 0 {
			d.detectReversal(ctx, structures)
		}
		return nil
	}

	for _, group := range splitByDirection(entryTriggers) {
		if err := d.runPipeline(ctx, group); err != nil {
			d.log.Error().Err(err).Str("direction", string(group[0].Direction)).Msg("pipeline failed")
		}
	}
	return nil
}

// splitByDirection groups entry triggers by direction, preserving both
// arrival order within a group and first-seen order across groups.
func splitByDirection(triggers []model.Signal) [][]model.Signal {
	var order []model.Direction
	groups := make(map[model.Direction][]model.Signal)
	for _, t := range triggers {
		if _, ok := groups[t.Direction]; !ok {
			order = append(order, t.Direction)
		}
		groups[t.Direction] = append(groups[t.Direction], t)
	}

	out := make([][]model.Signal, 0, len(order))
	for _, d := range order {
		out = append(out, groups[d])
	}
	return out
}

// detectReversal runs only when a batch carries structure signals but no
// real entry trigger. S is a liquidity sweep seen in the batch or recorded
// within SweepLookback; Z is a zone retrace or FVG touch seen in the batch
// or recorded within ZoneLookback. When both hold and no synthetic trigger
// for the resulting direction was recently emitted, it synthesizes one and
// runs it through the same pipeline as a real trigger.
func (d *Dispatcher) detectReversal(ctx context.Context, structures []model.Signal) {
	sweep := firstByEvent(structures, model.EventLiquiditySweep)
	if sweep == nil {
		sig, err := d.store.RecentStructureSignal(ctx, model.EventLiquiditySweep, d.cfg.SweepLookback)
		if err != nil {
			d.log.Warn().Err(err).Msg("reversal detector: sweep lookback failed")
			return
		}
		sweep = sig
	}
	if sweep == nil {
		return
	}

	zoneTouch := firstByEvent(structures, model.EventZoneRetraceTouch) != nil || firstByEvent(structures, model.EventFVGTouch) != nil
	if !zoneTouch {
		zr, err := d.store.RecentStructureSignal(ctx, model.EventZoneRetraceTouch, d.cfg.ZoneLookback)
		if err != nil {
			d.log.Warn().Err(err).Msg("reversal detector: zone lookback failed")
			return
		}
		fvg, err := d.store.RecentStructureSignal(ctx, model.EventFVGTouch, d.cfg.ZoneLookback)
		if err != nil {
			d.log.Warn().Err(err).Msg("reversal detector: fvg lookback failed")
			return
		}
		zoneTouch = zr != nil || fvg != nil
	}
	if !zoneTouch {
		return
	}

	// sweep.Direction is already "opposite the sweep": a structure signal
	// carrying direction=buy reports a sell-side sweep, which implies the
	// reversal entry direction is buy. See translateSweepDirection.
	direction := sweep.Direction
	recent, err := d.store.RecentSyntheticTrigger(ctx, direction, d.cfg.SyntheticCooldown)
	if err != nil {
		d.log.Warn().Err(err).Msg("reversal detector: cooldown lookup failed")
		return
	}
	if recent {
		return
	}

	synthetic := model.Signal{
		Symbol:     sweep.Symbol,
		Price:      sweep.Price,
		Direction:  direction,
		Kind:       model.KindEntryTrigger,
		Event:      model.EventPredictionSignal,
		Source:     "reversal_detector",
		Confirmed:  model.ConfirmedBarClose,
		ReceivedAt: time.Now().UTC(),
	}

	if err := d.store.RecordSyntheticTrigger(ctx, synthetic); err != nil {
		d.log.Warn().Err(err).Msg("reversal detector: failed to record synthetic trigger, proceeding anyway")
	}
	d.log.Info().Str("direction", string(direction)).Str("symbol", synthetic.Symbol).Msg("synthesized reversal entry trigger")

	if err := d.runPipeline(ctx, []model.Signal{synthetic}); err != nil {
		d.log.Error().Err(err).Msg("reversal pipeline failed")
	}
}

func firstByEvent(signals []model.Signal, event model.Event) *model.Signal {
	for i := range signals {
		if signals[i].Event == event {
			return &signals[i]
		}
	}
	return nil
}

// runPipeline drives one direction-pure group of entry triggers through
// context-build, structuring, scoring, and the approve/wait/reject branch.
// The first trigger is canonical for execution and risk-gating, matching
// the live system's use of the batch's earliest signal as the order basis.
func (d *Dispatcher) runPipeline(ctx context.Context, triggers []model.Signal) error {
	direction := triggers[0].Direction

	sigIDs := make([]string, 0, len(triggers))
	for _, t := range triggers {
		id, err := d.store.PersistSignal(ctx, t)
		if err != nil {
			d.log.Error().Err(err).Msg("persist entry trigger failed")
			continue
		}
		sigIDs = append(sigIDs, id)
	}

	bundle, err := d.ctxBuilder.Build(ctx, triggers)
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}

	schema := structurer.Structure(bundle, direction)
	result := scoring.Score(schema, direction, bundle.QTrendContext != nil, d.scoreConfig.Get())

	decisionID, err := d.store.PersistDecision(ctx, sigIDs, result)
	if err != nil {
		d.log.Error().Err(err).Msg("persist decision failed")
	}

	switch result.Decision {
	case model.DecisionApprove:
		d.approve(ctx, triggers[0], result, decisionID)
	case model.DecisionWait:
		d.waits.Add(triggers, result, decisionID, result.WaitCondition, string(result.WaitCondition))
	default:
		d.log.Info().Strs("reject_reasons", result.RejectReasons).Msg("rejected")
	}
	return nil
}

func (d *Dispatcher) approve(ctx context.Context, trigger model.Signal, result model.DecisionResult, decisionID string) {
	openRisk, err := d.positions.OpenRiskUSD(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("open risk lookup failed, assuming zero")
		openRisk = 0
	}

	if blocked := d.riskGate.Check(ctx, trigger.Symbol, trigger.Price, openRisk); blocked.IsBlocked() {
		d.log.Info().Str("reason", blocked.Reason).Msg("approved decision blocked by risk gate")
		return
	}

	if err := d.executor.Execute(ctx, trigger, result, decisionID); err != nil {
		d.log.Error().Err(err).Msg("execution failed")
	}
}

package revaluator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yusuke746/trading-system/internal/model"
	"github.com/yusuke746/trading-system/internal/risk"
	"github.com/yusuke746/trading-system/internal/waitbuffer"
)

type fakeContextBuilder struct {
	bundle model.ContextBundle
	err    error
}

func (f *fakeContextBuilder) Build(ctx context.Context, entrySignals []model.Signal) (model.ContextBundle, error) {
	return f.bundle, f.err
}

type fakeScoreConfig struct{ cfg *model.ScoreConfig }

func (f *fakeScoreConfig) Get() *model.ScoreConfig { return f.cfg }

type fakePositions struct{ openRisk float64 }

func (f *fakePositions) OpenRiskUSD(ctx context.Context) (float64, error) { return f.openRisk, nil }

type fakeExecutor struct {
	mu       sync.Mutex
	executed []model.Signal
	err      error
}

func (f *fakeExecutor) Execute(ctx context.Context, trigger model.Signal, result model.DecisionResult, aiDecisionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, trigger)
	return f.err
}

type fakeHistory struct {
	mu      sync.Mutex
	records []string
}

func (f *fakeHistory) RecordWaitOutcome(ctx context.Context, waitID string, reevalCount int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, status)
	return nil
}

type fakeRiskStore struct{}

func (fakeRiskStore) TradesClosedToday(ctx context.Context) ([]risk.TradeResult, error) { return nil, nil }
func (fakeRiskStore) RecentTrades(ctx context.Context, limit int, since time.Time) ([]risk.TradeResult, error) {
	return nil, nil
}

type fakeRiskBroker struct{ tradable bool }

func (f fakeRiskBroker) AccountBalanceUSD(ctx context.Context) (float64, error) { return 10000, nil }
func (f fakeRiskBroker) FreeMarginUSD(ctx context.Context) (float64, error)     { return 5000, nil }
func (f fakeRiskBroker) SymbolTradable(ctx context.Context, symbol string) (bool, error) {
	return f.tradable, nil
}
func (f fakeRiskBroker) RecentDailyBars(ctx context.Context, symbol string, n int) ([]risk.DailyBar, error) {
	return nil, nil
}
func (f fakeRiskBroker) OpenPositionCount(ctx context.Context) (int, error) { return 0, nil }
func (f fakeRiskBroker) PendingNewsWindow(ctx context.Context, symbol string, at time.Time) (bool, error) {
	return false, nil
}

func passingGate() *risk.Gate {
	return risk.NewGate(fakeRiskStore{}, fakeRiskBroker{tradable: true}, risk.Config{
		MaxDailyLossPct: -100, MaxConsecutiveLosses: 100, ResetHours: 24,
		MarginFloorUSD: 0, MaxOpenPositions: 100, MaxOpenRiskUSD: 1e9,
	}, zerolog.Nop())
}

func blockedGate() *risk.Gate {
	return risk.NewGate(fakeRiskStore{}, fakeRiskBroker{tradable: false}, risk.Config{
		MaxConsecutiveLosses: 100, ResetHours: 24, MaxOpenPositions: 100, MaxOpenRiskUSD: 1e9,
	}, zerolog.Nop())
}

func completeBundle() model.ContextBundle {
	adx, rising, atr, expanding, squeeze, rsi, sma, price := 30.0, true, 5.0, true, false, 55.0, 2390.0, 2400.0
	return model.ContextBundle{
		LiveIndicators: map[string]model.LiveIndicatorSet{
			"5m": {ADX: &adx, ADXRising: &rising, ATR: &atr, ATRExpanding: &expanding, Squeeze: &squeeze, RSI: &rsi, SMA20: &sma, Price: &price},
		},
	}
}

func approveConfig() *model.ScoreConfig {
	return &model.ScoreConfig{ApproveThreshold: -1000, WaitThreshold: -2000}
}

func waitConfig() *model.ScoreConfig {
	return &model.ScoreConfig{ApproveThreshold: 1000, WaitThreshold: -1000}
}

func rejectConfig() *model.ScoreConfig {
	return &model.ScoreConfig{ApproveThreshold: 1000, WaitThreshold: 900}
}

func entrySignal() model.Signal {
	return model.Signal{Symbol: "GOLD", Price: 2400, Direction: model.DirectionBuy, Kind: model.KindEntryTrigger, Event: model.EventPredictionSignal, ReceivedAt: time.Now().UTC()}
}

func newTestRevaluator(t *testing.T, waits WaitStore, ctxBuilder *fakeContextBuilder, cfg *model.ScoreConfig, gate *risk.Gate, exec *fakeExecutor, hist *fakeHistory) *Revaluator {
	t.Helper()
	return New(waits, ctxBuilder, &fakeScoreConfig{cfg: cfg}, gate, &fakePositions{}, exec, hist, DefaultConfig(), zerolog.Nop())
}

func TestOnNewStructureEnqueuesOnlyStructureNeededItems(t *testing.T) {
	buf := waitbuffer.New()
	id := buf.Add([]model.Signal{entrySignal()}, model.DecisionResult{}, "d1", model.ScopeStructureNeeded, "zone pending")
	buf.Add([]model.Signal{entrySignal()}, model.DecisionResult{}, "d2", model.ScopeCooldown, "")

	r := newTestRevaluator(t, buf, &fakeContextBuilder{}, rejectConfig(), passingGate(), &fakeExecutor{}, nil)
	r.OnNewStructure()

	select {
	case item := <-r.work:
		assert.Equal(t, id, item.ID)
	case <-time.After(time.Second):
		t.Fatal("expected structure_needed item to be enqueued")
	}

	select {
	case item := <-r.work:
		t.Fatalf("unexpected second item enqueued: %+v", item)
	default:
	}
}

func TestTickTimesOutExpiredItem(t *testing.T) {
	buf := waitbuffer.New()
	id := buf.Add([]model.Signal{entrySignal()}, model.DecisionResult{}, "d1", model.ScopeNextBar, "")

	r := newTestRevaluator(t, buf, &fakeContextBuilder{}, rejectConfig(), passingGate(), &fakeExecutor{}, nil)
	r.cfg.NextBarExpiry = -time.Second // force immediate expiry

	r.tick(context.Background())

	item, ok := buf.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.WaitStatusTimeout, item.Status)
}

func TestTickEnqueuesTimerScopesButNotStructureNeeded(t *testing.T) {
	buf := waitbuffer.New()
	nextBar := buf.Add([]model.Signal{entrySignal()}, model.DecisionResult{}, "d1", model.ScopeNextBar, "")
	cooldown := buf.Add([]model.Signal{entrySignal()}, model.DecisionResult{}, "d2", model.ScopeCooldown, "")
	buf.Add([]model.Signal{entrySignal()}, model.DecisionResult{}, "d3", model.ScopeStructureNeeded, "")

	r := newTestRevaluator(t, buf, &fakeContextBuilder{}, rejectConfig(), passingGate(), &fakeExecutor{}, nil)
	r.tick(context.Background())

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case item := <-r.work:
			seen[item.ID] = true
		case <-time.After(time.Second):
			t.Fatal("expected two items enqueued")
		}
	}
	assert.True(t, seen[nextBar])
	assert.True(t, seen[cooldown])

	select {
	case item := <-r.work:
		t.Fatalf("structure_needed item must not be timer-enqueued: %+v", item)
	default:
	}
}

func TestReevalItemApprovesAndExecutes(t *testing.T) {
	buf := waitbuffer.New()
	id := buf.Add([]model.Signal{entrySignal()}, model.DecisionResult{}, "d1", model.ScopeNextBar, "")
	item, _ := buf.Get(id)

	exec := &fakeExecutor{}
	hist := &fakeHistory{}
	r := newTestRevaluator(t, buf, &fakeContextBuilder{bundle: completeBundle()}, approveConfig(), passingGate(), exec, hist)

	r.reevalItem(context.Background(), item)

	require.Len(t, exec.executed, 1)
	resolved, ok := buf.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.WaitStatusApproved, resolved.Status)
	assert.Equal(t, []string{"approved"}, hist.records)
}

func TestReevalItemApproveBlockedByRiskGateRejects(t *testing.T) {
	buf := waitbuffer.New()
	id := buf.Add([]model.Signal{entrySignal()}, model.DecisionResult{}, "d1", model.ScopeNextBar, "")
	item, _ := buf.Get(id)

	exec := &fakeExecutor{}
	r := newTestRevaluator(t, buf, &fakeContextBuilder{bundle: completeBundle()}, approveConfig(), blockedGate(), exec, nil)

	r.reevalItem(context.Background(), item)

	assert.Empty(t, exec.executed)
	resolved, ok := buf.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.WaitStatusRejected, resolved.Status)
}

func TestReevalItemStillWaitUpdatesScopeInPlace(t *testing.T) {
	buf := waitbuffer.New()
	id := buf.Add([]model.Signal{entrySignal()}, model.DecisionResult{}, "d1", model.ScopeStructureNeeded, "zone pending")
	item, _ := buf.Get(id)

	r := newTestRevaluator(t, buf, &fakeContextBuilder{bundle: completeBundle()}, waitConfig(), passingGate(), &fakeExecutor{}, nil)
	r.reevalItem(context.Background(), item)

	resolved, ok := buf.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.WaitStatusWaiting, resolved.Status)
}

func TestReevalItemRejectDecisionResolvesRejected(t *testing.T) {
	buf := waitbuffer.New()
	id := buf.Add([]model.Signal{entrySignal()}, model.DecisionResult{}, "d1", model.ScopeCooldown, "")
	item, _ := buf.Get(id)

	r := newTestRevaluator(t, buf, &fakeContextBuilder{bundle: completeBundle()}, rejectConfig(), passingGate(), &fakeExecutor{}, nil)
	r.reevalItem(context.Background(), item)

	resolved, ok := buf.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.WaitStatusRejected, resolved.Status)
}

func TestReevalItemCapExceededRejectsWithoutContextRebuild(t *testing.T) {
	buf := waitbuffer.New()
	id := buf.Add([]model.Signal{entrySignal()}, model.DecisionResult{}, "d1", model.ScopeNextBar, "")
	item, _ := buf.Get(id)
	item.ReevalCount = DefaultConfig().MaxReevalCount

	ctxBuilder := &fakeContextBuilder{err: errors.New("should not be called")}
	r := newTestRevaluator(t, buf, ctxBuilder, rejectConfig(), passingGate(), &fakeExecutor{}, nil)
	r.reevalItem(context.Background(), item)

	resolved, ok := buf.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.WaitStatusRejected, resolved.Status)
}

func TestReevalItemMissingEntrySignalsRejects(t *testing.T) {
	buf := waitbuffer.New()
	id := buf.Add(nil, model.DecisionResult{}, "d1", model.ScopeNextBar, "")
	item, _ := buf.Get(id)

	r := newTestRevaluator(t, buf, &fakeContextBuilder{}, rejectConfig(), passingGate(), &fakeExecutor{}, nil)
	r.reevalItem(context.Background(), item)

	resolved, ok := buf.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.WaitStatusRejected, resolved.Status)
}

func TestReevalItemContextBuildFailureLeavesWaiting(t *testing.T) {
	buf := waitbuffer.New()
	id := buf.Add([]model.Signal{entrySignal()}, model.DecisionResult{}, "d1", model.ScopeNextBar, "")
	item, _ := buf.Get(id)

	r := newTestRevaluator(t, buf, &fakeContextBuilder{err: errors.New("redis down")}, rejectConfig(), passingGate(), &fakeExecutor{}, nil)
	r.reevalItem(context.Background(), item)

	resolved, ok := buf.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.WaitStatusWaiting, resolved.Status)
}

func TestIsExpiredPerScopeWindows(t *testing.T) {
	r := newTestRevaluator(t, waitbuffer.New(), &fakeContextBuilder{}, rejectConfig(), passingGate(), &fakeExecutor{}, nil)

	fresh := model.WaitItem{Scope: model.ScopeNextBar, CreatedAt: time.Now().UTC()}
	assert.False(t, r.isExpired(fresh))

	stale := model.WaitItem{Scope: model.ScopeCooldown, CreatedAt: time.Now().UTC().Add(-time.Hour)}
	assert.True(t, r.isExpired(stale))
}

package contextbuilder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yusuke746/trading-system/internal/model"
)

type fakeBars struct {
	bars map[string][]Bar
	err  error
}

func (f *fakeBars) RecentBars(ctx context.Context, symbol, timeframe string, count int) ([]Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bars[timeframe], nil
}

type fakeStructures struct {
	byEvent map[model.Event]*model.Signal
	err     error
}

func (f *fakeStructures) RecentStructureSignal(ctx context.Context, symbol string, event model.Event, lookback time.Duration) (*model.Signal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byEvent[event], nil
}

type fakeStats struct {
	winRate       float64
	consecLosses  int
	atrPercentile *float64
	err           error
}

func (f *fakeStats) WinRate(ctx context.Context, symbol string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.winRate, nil
}

func (f *fakeStats) ConsecutiveLosses(ctx context.Context, symbol string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.consecLosses, nil
}

func (f *fakeStats) ATRPercentile(ctx context.Context, symbol string) (*float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.atrPercentile, nil
}

type fakeQTrend struct {
	ctx *model.QTrendContext
	err error
}

func (f *fakeQTrend) QTrend(ctx context.Context, symbol string) (*model.QTrendContext, error) {
	return f.ctx, f.err
}

func syntheticBarSet(count int) []Bar {
	bars := make([]Bar, count)
	for i := 0; i < count; i++ {
		base := 2390.0 + float64(i)*0.4
		bars[i] = Bar{High: base + 1, Low: base - 1, Close: base}
	}
	return bars
}

func entrySignal() model.Signal {
	return model.Signal{
		Symbol:    "XAUUSD",
		Price:     2400,
		Direction: model.DirectionBuy,
		Event:     model.EventPredictionSignal,
		ReceivedAt: time.Now().UTC(),
	}
}

func newTestBuilder(bars IndicatorSource, structures StructureStore, stats StatsSource, qtrend QTrendSource) *Builder {
	return New(bars, structures, stats, qtrend, nil, DefaultConfig(), zerolog.Nop())
}

func TestBuildRejectsEmptyEntrySignals(t *testing.T) {
	b := newTestBuilder(&fakeBars{}, &fakeStructures{}, &fakeStats{}, nil)
	if _, err := b.Build(context.Background(), nil); err == nil {
		t.Error("expected error for empty entry signals")
	}
}

func TestBuildAssemblesFullBundle(t *testing.T) {
	barsByTF := map[string][]Bar{
		"5m":  syntheticBarSet(60),
		"15m": syntheticBarSet(60),
		"1h":  syntheticBarSet(60),
	}
	zoneSignal := &model.Signal{Symbol: "XAUUSD", Event: model.EventNewZoneConfirmed, Direction: model.DirectionBuy}
	b := newTestBuilder(
		&fakeBars{bars: barsByTF},
		&fakeStructures{byEvent: map[model.Event]*model.Signal{model.EventNewZoneConfirmed: zoneSignal}},
		&fakeStats{winRate: 0.62, consecLosses: 1},
		&fakeQTrend{ctx: &model.QTrendContext{Direction: model.DirectionBuy}},
	)

	bundle, err := b.Build(context.Background(), []model.Signal{entrySignal()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(bundle.LiveIndicators) != 3 {
		t.Errorf("expected 3 timeframes, got %d", len(bundle.LiveIndicators))
	}
	for _, tf := range []string{"5m", "15m", "1h"} {
		if _, ok := bundle.LiveIndicators[tf]; !ok {
			t.Errorf("expected timeframe %q present", tf)
		}
	}
	if bundle.RecentStructure.MacroZone != zoneSignal {
		t.Error("expected macro zone signal to be carried through")
	}
	if bundle.RecentStructure.ZoneRetrace != nil {
		t.Error("expected zone retrace to be nil when not in the fake")
	}
	if bundle.QTrendContext == nil || bundle.QTrendContext.Direction != model.DirectionBuy {
		t.Error("expected q-trend context to be carried through")
	}
	if bundle.Stats.WinRate != 0.62 || bundle.Stats.ConsecLosses != 1 {
		t.Errorf("expected stats to be carried through, got %+v", bundle.Stats)
	}
	if bundle.BuiltAt.IsZero() {
		t.Error("expected BuiltAt to be stamped")
	}
}

func TestBuildOmitsTimeframeOnIndicatorFetchFailure(t *testing.T) {
	b := newTestBuilder(
		&fakeBars{err: errors.New("broker unavailable")},
		&fakeStructures{},
		&fakeStats{},
		nil,
	)

	bundle, err := b.Build(context.Background(), []model.Signal{entrySignal()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bundle.LiveIndicators) != 0 {
		t.Errorf("expected no timeframes on fetch failure, got %d", len(bundle.LiveIndicators))
	}
}

func TestBuildFallsBackToDefaultStatsOnError(t *testing.T) {
	b := newTestBuilder(&fakeBars{}, &fakeStructures{}, &fakeStats{err: errors.New("db down")}, nil)

	bundle, err := b.Build(context.Background(), []model.Signal{entrySignal()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Stats.WinRate != DefaultConfig().DefaultWinRate {
		t.Errorf("expected default win rate, got %v", bundle.Stats.WinRate)
	}
	if bundle.Stats.ATRPercentile == nil || *bundle.Stats.ATRPercentile != DefaultConfig().DefaultATRPercentile {
		t.Errorf("expected default ATR percentile, got %v", bundle.Stats.ATRPercentile)
	}
}

func TestBuildOmitsQTrendWhenSourceErrors(t *testing.T) {
	b := newTestBuilder(&fakeBars{}, &fakeStructures{}, &fakeStats{}, &fakeQTrend{err: errors.New("unavailable")})

	bundle, err := b.Build(context.Background(), []model.Signal{entrySignal()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.QTrendContext != nil {
		t.Error("expected nil q-trend context on source error")
	}
}

func TestBuildOmitsStructureSignalsOnLookupError(t *testing.T) {
	b := newTestBuilder(&fakeBars{}, &fakeStructures{err: errors.New("db down")}, &fakeStats{}, nil)

	bundle, err := b.Build(context.Background(), []model.Signal{entrySignal()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.RecentStructure.MacroZone != nil || bundle.RecentStructure.ZoneRetrace != nil ||
		bundle.RecentStructure.FVGTouch != nil || bundle.RecentStructure.LiquiditySweep != nil {
		t.Error("expected all recent structure fields nil on lookup error")
	}
}

func TestBuildWithNilQTrendSourceLeavesContextNil(t *testing.T) {
	b := newTestBuilder(&fakeBars{}, &fakeStructures{}, &fakeStats{}, nil)

	bundle, err := b.Build(context.Background(), []model.Signal{entrySignal()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.QTrendContext != nil {
		t.Error("expected nil q-trend context when source is not wired")
	}
}

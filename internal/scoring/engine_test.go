package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yusuke746/trading-system/internal/model"
)

func ptr(f float64) *float64 { return &f }

func baseSchema() model.NormalizedSchema {
	return model.NormalizedSchema{
		Regime: model.RegimeInfo{Classification: model.RegimeTrend},
		ZoneInteraction: model.ZoneInteraction{
			ZoneTouch:     true,
			ZoneDirection: model.ZoneDemand,
		},
		Momentum: model.Momentum{
			RSI:          ptr(28),
			RSIZone:      model.RSIOversold,
			TrendAligned: true,
		},
		SignalQuality: model.SignalQuality{
			BarCloseConfirmed: true,
			Session:           model.SessionLondonNY,
		},
		DataCompleteness: model.DataCompleteness{Connected: true},
	}
}

func TestInstantRejectMissingFields(t *testing.T) {
	schema := baseSchema()
	schema.DataCompleteness.FieldsMissing = []string{"a", "b", "c"}

	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.Equal(t, model.DecisionReject, result.Decision)
	assert.Equal(t, model.RejectSentinel, result.Score)
	assert.NotEmpty(t, result.RejectReasons)
}

func TestInstantRejectCriticalFieldMissing(t *testing.T) {
	schema := baseSchema()
	schema.DataCompleteness.FieldsMissing = []string{"adx"}

	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.Equal(t, model.DecisionReject, result.Decision)
	assert.Equal(t, model.RejectSentinel, result.Score)
}

func TestInstantRejectRangeMidpointChase(t *testing.T) {
	schema := baseSchema()
	schema.Regime.Classification = model.RegimeRange
	schema.PriceStructure.SMA20DistancePct = ptr(0.1)
	schema.ZoneInteraction = model.ZoneInteraction{}

	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.Equal(t, model.DecisionReject, result.Decision)
	assert.Equal(t, model.RejectSentinel, result.Score)
}

func TestRangeMidpointChaseNotTriggeredWithZoneTouch(t *testing.T) {
	schema := baseSchema()
	schema.Regime.Classification = model.RegimeRange
	schema.PriceStructure.SMA20DistancePct = ptr(0.1)
	// ZoneTouch true from baseSchema, so the instant reject should not fire.

	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.NotEqual(t, model.RejectSentinel, result.Score)
}

func TestGate2RejectsWhenMisalignedAndNotBarClose(t *testing.T) {
	schema := baseSchema()
	schema.Momentum.TrendAligned = false
	schema.SignalQuality.BarCloseConfirmed = false

	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.Equal(t, model.DecisionReject, result.Decision)
	assert.Equal(t, model.RejectSentinel, result.Score)
}

func TestGate2SkippedWhenQTrendUnavailable(t *testing.T) {
	schema := baseSchema()
	schema.Momentum.TrendAligned = false
	schema.SignalQuality.BarCloseConfirmed = false

	result := Score(schema, model.DirectionBuy, false, DefaultConfig())
	assert.NotEqual(t, model.RejectSentinel, result.Score)
}

func TestGate2SatisfiedByBarCloseAlone(t *testing.T) {
	schema := baseSchema()
	schema.Momentum.TrendAligned = false
	schema.SignalQuality.BarCloseConfirmed = true

	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.NotEqual(t, model.RejectSentinel, result.Score)
}

func TestZoneTouchAlignedWithTrendVsCounterTrend(t *testing.T) {
	cfg := DefaultConfig()

	aligned := baseSchema() // TrendAligned true, ZoneTouch true, ZoneDemand + buy
	r1 := Score(aligned, model.DirectionBuy, true, cfg)
	assert.Contains(t, r1.Breakdown, "zone_touch_aligned_with_trend")

	counter := baseSchema()
	counter.Momentum.TrendAligned = false
	counter.SignalQuality.BarCloseConfirmed = true // keep gate 2 satisfied
	r2 := Score(counter, model.DirectionBuy, true, cfg)
	assert.Contains(t, r2.Breakdown, "zone_touch_counter_trend")
	assert.NotContains(t, r2.Breakdown, "zone_touch_aligned_with_trend")
}

func TestSweepPlusZoneCombo(t *testing.T) {
	schema := baseSchema()
	schema.ZoneInteraction.LiquiditySweep = true
	schema.ZoneInteraction.SweepDirection = model.SweepSellSide // aligned with buy

	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.Contains(t, result.Breakdown, "liquidity_sweep")
	assert.Contains(t, result.Breakdown, "sweep_plus_zone")
}

func TestSweepAlignmentDirectionality(t *testing.T) {
	schema := baseSchema()
	schema.ZoneInteraction = model.ZoneInteraction{
		LiquiditySweep: true,
		SweepDirection: model.SweepBuySide, // aligned with sell, not buy
	}

	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.NotContains(t, result.Breakdown, "liquidity_sweep")
}

func TestRSIConfirmationVsDivergence(t *testing.T) {
	cfg := DefaultConfig()

	confirm := baseSchema() // RSI oversold + buy => confirmation
	r1 := Score(confirm, model.DirectionBuy, true, cfg)
	assert.Contains(t, r1.Breakdown, "rsi_confirmation")

	diverge := baseSchema()
	diverge.Momentum.RSIZone = model.RSIOverbought
	r2 := Score(diverge, model.DirectionBuy, true, cfg)
	assert.Contains(t, r2.Breakdown, "rsi_divergence")
}

func TestCounterTrendNoSweepPenalty(t *testing.T) {
	schema := baseSchema()
	schema.Momentum.TrendAligned = false
	schema.SignalQuality.BarCloseConfirmed = true // satisfy gate 2
	schema.ZoneInteraction.LiquiditySweep = false

	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.Contains(t, result.Breakdown, "counter_trend_no_sweep")
}

func TestCounterTrendNoSweepSuppressedBySweep(t *testing.T) {
	schema := baseSchema()
	schema.Momentum.TrendAligned = false
	schema.SignalQuality.BarCloseConfirmed = true
	schema.ZoneInteraction.LiquiditySweep = true
	schema.ZoneInteraction.SweepDirection = model.SweepSellSide

	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.NotContains(t, result.Breakdown, "counter_trend_no_sweep")
}

func TestSessionTokyoNeutralByDefault(t *testing.T) {
	schema := baseSchema()
	schema.SignalQuality.Session = model.SessionTokyo

	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.NotContains(t, result.Breakdown, "session_tokyo")
}

func TestPatternSimilarityNeutralBand(t *testing.T) {
	schema := baseSchema()
	schema.SignalQuality.PatternSimilarity = ptr(0.5)

	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.NotContains(t, result.Breakdown, "pattern_similarity_high")
	assert.NotContains(t, result.Breakdown, "pattern_similarity_low")
}

func TestPatternSimilarityHighLow(t *testing.T) {
	cfg := DefaultConfig()

	high := baseSchema()
	high.SignalQuality.PatternSimilarity = ptr(0.9)
	r1 := Score(high, model.DirectionBuy, true, cfg)
	assert.Contains(t, r1.Breakdown, "pattern_similarity_high")

	low := baseSchema()
	low.SignalQuality.PatternSimilarity = ptr(0.1)
	r2 := Score(low, model.DirectionBuy, true, cfg)
	assert.Contains(t, r2.Breakdown, "pattern_similarity_low")
}

func TestDecisionApprove(t *testing.T) {
	schema := baseSchema()
	schema.ZoneInteraction.LiquiditySweep = true
	schema.ZoneInteraction.SweepDirection = model.SweepSellSide
	schema.SignalQuality.TVConfidence = ptr(0.9)

	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.Equal(t, model.DecisionApprove, result.Decision)
	assert.Equal(t, model.SetupSweepReversal, result.SetupType)
}

func TestDecisionWaitConditionPriority(t *testing.T) {
	cfg := DefaultConfig()

	// No zone/FVG touch at all => structure_needed, regardless of bar close.
	structureNeeded := model.NormalizedSchema{
		Regime:        model.RegimeInfo{Classification: model.RegimeTrend},
		Momentum:      model.Momentum{TrendAligned: true},
		SignalQuality: model.SignalQuality{BarCloseConfirmed: true, Session: model.SessionLondonNY},
	}
	r1 := Score(structureNeeded, model.DirectionBuy, true, cfg)
	if r1.Decision == model.DecisionWait {
		assert.Equal(t, model.ScopeStructureNeeded, r1.WaitCondition)
	}

	// Zone touch present but no bar close => next_bar.
	nextBar := baseSchema()
	nextBar.SignalQuality.BarCloseConfirmed = false
	nextBar.Momentum.TrendAligned = true // keep gate 2 satisfied via trend alignment
	r2 := Score(nextBar, model.DirectionBuy, true, cfg)
	if r2.Decision == model.DecisionWait {
		assert.Equal(t, model.ScopeNextBar, r2.WaitCondition)
	}
}

func TestDecisionRejectBelowWaitThreshold(t *testing.T) {
	schema := model.NormalizedSchema{
		Regime:        model.RegimeInfo{Classification: model.RegimeRange},
		Momentum:      model.Momentum{TrendAligned: true},
		SignalQuality: model.SignalQuality{Session: model.SessionOffHours},
	}
	result := Score(schema, model.DirectionBuy, true, DefaultConfig())
	assert.Equal(t, model.DecisionReject, result.Decision)
	assert.NotEmpty(t, result.RejectReasons)
}

func TestScorePurity(t *testing.T) {
	schema := baseSchema()
	cfg := DefaultConfig()

	r1 := Score(schema, model.DirectionBuy, true, cfg)
	r2 := Score(schema, model.DirectionBuy, true, cfg)
	assert.Equal(t, r1.Score, r2.Score)
	assert.Equal(t, r1.Decision, r2.Decision)
}

func TestIsZoneDirectionAlignedEmptyDirection(t *testing.T) {
	assert.False(t, isZoneDirectionAligned("", model.DirectionBuy))
}

func TestIsSweepAlignedEmptySide(t *testing.T) {
	assert.False(t, isSweepAligned("", model.DirectionBuy))
}

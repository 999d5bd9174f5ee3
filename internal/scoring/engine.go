package scoring

import (
	"fmt"
	"math"

	"github.com/yusuke746/trading-system/internal/model"
)

// criticalFields are the data-completeness slots whose absence alone
// triggers an instant reject (Phase A, rule 1), regardless of the total
// missing-field count.
var criticalFields = map[string]bool{
	"rsi":           true,
	"adx":           true,
	"atr_expanding": true,
}

// Score is the ScoringEngine (C4): a pure, deterministic function from a
// normalized schema and entry direction to a decision. It performs no I/O
// and reads no state besides cfg, so identical inputs always produce an
// identical DecisionResult.
func Score(schema model.NormalizedSchema, direction model.Direction, qTrendAvailable bool, cfg *model.ScoreConfig) model.DecisionResult {
	if reasons := checkInstantReject(schema, qTrendAvailable); len(reasons) > 0 {
		return model.DecisionResult{
			Decision:      model.DecisionReject,
			Score:         model.RejectSentinel,
			Breakdown:     map[string]float64{"instant_reject": model.RejectSentinel},
			RejectReasons: reasons,
		}
	}

	breakdown := map[string]float64{}
	total := 0.0

	regimeScore, regimeTag := regimeScore(schema.Regime, cfg)
	total += regimeScore
	if regimeTag != "" {
		breakdown[regimeTag] = regimeScore
	}

	trendAligned := schema.Momentum.TrendAligned
	structureScore := structureScore(schema.ZoneInteraction, direction, trendAligned, cfg, breakdown)
	total += structureScore

	hasSweep := schema.ZoneInteraction.LiquiditySweep
	total += momentumScore(schema.Momentum, direction, hasSweep, cfg, breakdown)

	total += qualityScore(schema.SignalQuality, cfg, breakdown)

	total = round4(total)

	result := model.DecisionResult{Score: total, Breakdown: breakdown}
	result.SetupType = deriveSetupType(breakdown)

	switch {
	case total >= cfg.ApproveThreshold:
		result.Decision = model.DecisionApprove
	case total >= cfg.WaitThreshold:
		result.Decision = model.DecisionWait
		result.WaitCondition = determineWaitCondition(schema)
	default:
		result.Decision = model.DecisionReject
		result.RejectReasons = buildRejectReasons(breakdown)
	}

	return result
}

// checkInstantReject implements Phase A: any hit yields decision=reject
// with score -inf (RejectSentinel), regardless of Phase B factors.
func checkInstantReject(schema model.NormalizedSchema, qTrendAvailable bool) []string {
	var reasons []string

	missing := schema.DataCompleteness.FieldsMissing
	missingCritical := false
	for _, f := range missing {
		if criticalFields[f] {
			missingCritical = true
			break
		}
	}
	if len(missing) >= 3 || missingCritical {
		reasons = append(reasons, fmt.Sprintf("critical data missing: %v", missing))
	}

	if schema.Regime.Classification == model.RegimeRange && schema.PriceStructure.SMA20DistancePct != nil {
		if math.Abs(*schema.PriceStructure.SMA20DistancePct) <= 0.3 {
			if !schema.ZoneInteraction.ZoneTouch && !schema.ZoneInteraction.FVGTouch {
				reasons = append(reasons, "range-midpoint chase: within ±0.3% of SMA20 with no zone/FVG touch")
			}
		}
	}

	if qTrendAvailable {
		if !schema.Momentum.TrendAligned && !schema.SignalQuality.BarCloseConfirmed {
			reasons = append(reasons, "gate 2: Q-trend misaligned and bar-close unconfirmed")
		}
	}

	return reasons
}

func regimeScore(regime model.RegimeInfo, cfg *model.ScoreConfig) (float64, string) {
	switch regime.Classification {
	case model.RegimeTrend:
		return cfg.Weight("regime_trend_base"), "regime_trend_base"
	case model.RegimeBreakout:
		return cfg.Weight("regime_breakout_base"), "regime_breakout_base"
	case model.RegimeRange:
		return cfg.Weight("regime_range_base"), "regime_range_base"
	default:
		return 0, ""
	}
}

func structureScore(zi model.ZoneInteraction, direction model.Direction, trendAligned bool, cfg *model.ScoreConfig, breakdown map[string]float64) float64 {
	total := 0.0

	if zi.ZoneTouch && isZoneDirectionAligned(zi.ZoneDirection, direction) {
		tag := "zone_touch_counter_trend"
		if trendAligned {
			tag = "zone_touch_aligned_with_trend"
		}
		val := cfg.Weight(tag)
		breakdown[tag] = val
		total += val
	}

	if zi.FVGTouch && isFVGDirectionAligned(zi.FVGDirection, direction) {
		tag := "fvg_touch_counter_trend"
		if trendAligned {
			tag = "fvg_touch_aligned_with_trend"
		}
		val := cfg.Weight(tag)
		breakdown[tag] = val
		total += val
	}

	if zi.LiquiditySweep && isSweepAligned(zi.SweepDirection, direction) {
		val := cfg.Weight("liquidity_sweep")
		breakdown["liquidity_sweep"] = val
		total += val

		if zi.ZoneTouch && isZoneDirectionAligned(zi.ZoneDirection, direction) {
			val := cfg.Weight("sweep_plus_zone")
			breakdown["sweep_plus_zone"] = val
			total += val
		}
	}

	return total
}

func momentumScore(m model.Momentum, direction model.Direction, hasSweep bool, cfg *model.ScoreConfig, breakdown map[string]float64) float64 {
	total := 0.0

	if m.TrendAligned {
		val := cfg.Weight("trend_aligned")
		breakdown["trend_aligned"] = val
		total += val
	}

	if m.RSI != nil {
		switch {
		case direction == model.DirectionBuy && m.RSIZone == model.RSIOversold,
			direction == model.DirectionSell && m.RSIZone == model.RSIOverbought:
			val := cfg.Weight("rsi_confirmation")
			breakdown["rsi_confirmation"] = val
			total += val
		case direction == model.DirectionBuy && m.RSIZone == model.RSIOverbought,
			direction == model.DirectionSell && m.RSIZone == model.RSIOversold:
			val := cfg.Weight("rsi_divergence")
			breakdown["rsi_divergence"] = val
			total += val
		}
	}

	if !m.TrendAligned && !hasSweep {
		val := cfg.Weight("counter_trend_no_sweep")
		breakdown["counter_trend_no_sweep"] = val
		total += val
	}

	return total
}

func qualityScore(q model.SignalQuality, cfg *model.ScoreConfig, breakdown map[string]float64) float64 {
	total := 0.0

	if q.BarCloseConfirmed {
		val := cfg.Weight("bar_close_confirmed")
		breakdown["bar_close_confirmed"] = val
		total += val
	}

	switch q.Session {
	case model.SessionLondonNY:
		val := cfg.Weight("session_london_ny")
		breakdown["session_london_ny"] = val
		total += val
	case model.SessionTokyo:
		if val := cfg.Weight("session_tokyo"); val != 0 {
			breakdown["session_tokyo"] = val
			total += val
		}
	case model.SessionOffHours:
		val := cfg.Weight("session_off_hours")
		breakdown["session_off_hours"] = val
		total += val
	}

	if q.TVConfidence != nil {
		switch {
		case *q.TVConfidence > 0.7:
			val := cfg.Weight("tv_confidence_high")
			breakdown["tv_confidence_high"] = val
			total += val
		case *q.TVConfidence < 0.3:
			val := cfg.Weight("tv_confidence_low")
			breakdown["tv_confidence_low"] = val
			total += val
		}
	}

	// pattern_similarity in [0.3, 0.7] or absent is neutral: no score.
	// tv_win_rate is not scored (see DESIGN.md Open Question decisions).
	if q.PatternSimilarity != nil {
		switch {
		case *q.PatternSimilarity > 0.70:
			val := cfg.Weight("pattern_similarity_high")
			breakdown["pattern_similarity_high"] = val
			total += val
		case *q.PatternSimilarity < 0.30:
			val := cfg.Weight("pattern_similarity_low")
			breakdown["pattern_similarity_low"] = val
			total += val
		}
	}

	return total
}

func isZoneDirectionAligned(zd model.ZoneDirection, direction model.Direction) bool {
	if zd == "" {
		return false
	}
	return (zd == model.ZoneDemand && direction == model.DirectionBuy) ||
		(zd == model.ZoneSupply && direction == model.DirectionSell)
}

func isFVGDirectionAligned(fd model.FVGDirection, direction model.Direction) bool {
	if fd == "" {
		return false
	}
	return (fd == model.FVGBullish && direction == model.DirectionBuy) ||
		(fd == model.FVGBearish && direction == model.DirectionSell)
}

// isSweepAligned reports whether a liquidity sweep implies the given entry
// direction as the correct reversal: a sell-side sweep (stops below were
// hunted) clears sell pressure, implying buy is the correct reversal, and
// symmetrically for a buy-side sweep.
func isSweepAligned(sd model.SweepSide, direction model.Direction) bool {
	if sd == "" {
		return false
	}
	return (sd == model.SweepSellSide && direction == model.DirectionBuy) ||
		(sd == model.SweepBuySide && direction == model.DirectionSell)
}

func determineWaitCondition(schema model.NormalizedSchema) model.WaitScope {
	if !schema.ZoneInteraction.ZoneTouch && !schema.ZoneInteraction.FVGTouch {
		return model.ScopeStructureNeeded
	}
	if !schema.SignalQuality.BarCloseConfirmed {
		return model.ScopeNextBar
	}
	return model.ScopeCooldown
}

func buildRejectReasons(breakdown map[string]float64) []string {
	var reasons []string
	for tag, val := range breakdown {
		if val < 0 {
			reasons = append(reasons, fmt.Sprintf("%s: %+.2f", tag, val))
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "score below threshold")
	}
	return reasons
}

// deriveSetupType classifies the approved/waiting setup from its breakdown,
// used downstream by the Executor to pick SL/TP multipliers.
func deriveSetupType(breakdown map[string]float64) model.SetupType {
	if _, ok := breakdown["liquidity_sweep"]; ok {
		return model.SetupSweepReversal
	}
	if _, ok := breakdown["trend_aligned"]; ok {
		return model.SetupTrendContinuation
	}
	return model.SetupStandard
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Package structurer implements the Structurer (C3): a deterministic,
// non-probabilistic mapping from a Context bundle to the Normalized schema
// the ScoringEngine consumes. Any field whose source indicator is absent
// is left null. Only rsi, adx and atr_expanding are recorded in
// data_completeness.fields_missing; other absent inputs (adx_rising,
// squeeze, the SMA20 distance) stay null without being listed there.
package structurer

import (
	"math"

	"github.com/yusuke746/trading-system/internal/model"
)

// defaultTimeframeLabel selects which live-indicator timeframe backs the
// schema: always the 5m set. The entry signal's own timeframe is not
// consulted, and the 15m/1h sets are not read here.
const defaultTimeframeLabel = "5m"

// Structure builds a NormalizedSchema for the given entry direction from a
// ContextBundle. direction selects which structure-signal direction and
// Q-trend comparison are relevant; it is the direction of the
// entry_trigger the batch dispatcher is currently scoring.
func Structure(ctx model.ContextBundle, direction model.Direction) model.NormalizedSchema {
	ind := liveIndicators(ctx)

	var missing []string
	if ind.RSI == nil {
		missing = append(missing, "rsi")
	}
	if ind.ADX == nil {
		missing = append(missing, "adx")
	}
	if ind.ATRExpanding == nil {
		missing = append(missing, "atr_expanding")
	}

	return model.NormalizedSchema{
		Regime:           regimeInfo(ind),
		PriceStructure:   priceStructure(ind),
		ZoneInteraction:  zoneInteraction(ctx.RecentStructure),
		Momentum:         momentum(ind, ctx.QTrendContext, direction),
		SignalQuality:    signalQuality(ctx),
		DataCompleteness: model.DataCompleteness{Connected: ind != nil, FieldsMissing: missing},
	}
}

func liveIndicators(ctx model.ContextBundle) *model.LiveIndicatorSet {
	set, ok := ctx.LiveIndicators[defaultTimeframeLabel]
	if !ok {
		return nil
	}
	return &set
}

// regimeInfo classifies the market: breakout iff adx>25 and rising and ATR
// expanding; else trend iff adx>20; else range.
func regimeInfo(ind *model.LiveIndicatorSet) model.RegimeInfo {
	if ind == nil {
		return model.RegimeInfo{Classification: model.RegimeRange}
	}

	info := model.RegimeInfo{ADX: ind.ADX, ADXRising: ind.ADXRising, ATRExpanding: ind.ATRExpanding, Squeeze: ind.Squeeze}

	switch {
	case ind.ADX != nil && *ind.ADX > 25 && boolVal(ind.ADXRising) && boolVal(ind.ATRExpanding):
		info.Classification = model.RegimeBreakout
	case ind.ADX != nil && *ind.ADX > 20:
		info.Classification = model.RegimeTrend
	default:
		info.Classification = model.RegimeRange
	}
	return info
}

func priceStructure(ind *model.LiveIndicatorSet) model.PriceStructure {
	if ind == nil || ind.SMA20 == nil || ind.Price == nil || *ind.SMA20 == 0 {
		return model.PriceStructure{}
	}
	pct := (*ind.Price - *ind.SMA20) / *ind.SMA20 * 100
	pct = math.Round(pct*1000) / 1000
	return model.PriceStructure{SMA20DistancePct: &pct}
}

// zoneInteraction is populated from the most-recent matching structure
// signal per kind within the context window.
func zoneInteraction(rs model.RecentStructure) model.ZoneInteraction {
	var zi model.ZoneInteraction

	if rs.ZoneRetrace != nil {
		zi.ZoneTouch = true
		zi.ZoneDirection = translateZoneDirection(rs.ZoneRetrace.Direction)
	}
	if rs.FVGTouch != nil {
		zi.FVGTouch = true
		zi.FVGDirection = translateFVGDirection(rs.FVGTouch.Direction)
	}
	if rs.LiquiditySweep != nil {
		zi.LiquiditySweep = true
		zi.SweepDirection = translateSweepDirection(rs.LiquiditySweep.Direction)
	}
	return zi
}

// translateZoneDirection maps the entry-direction carried by a structure
// signal onto the zone it touched: a buy at a demand zone, a sell at a
// supply zone.
func translateZoneDirection(d model.Direction) model.ZoneDirection {
	switch d {
	case model.DirectionBuy:
		return model.ZoneDemand
	case model.DirectionSell:
		return model.ZoneSupply
	default:
		return ""
	}
}

func translateFVGDirection(d model.Direction) model.FVGDirection {
	switch d {
	case model.DirectionBuy:
		return model.FVGBullish
	case model.DirectionSell:
		return model.FVGBearish
	default:
		return ""
	}
}

// translateSweepDirection: sell_side means sell-side liquidity (stops
// below) was swept, implying a subsequent buy setup, so a structure signal
// carrying direction=buy is the one that reports a sell_side sweep.
func translateSweepDirection(d model.Direction) model.SweepSide {
	switch d {
	case model.DirectionBuy:
		return model.SweepSellSide
	case model.DirectionSell:
		return model.SweepBuySide
	default:
		return ""
	}
}

func momentum(ind *model.LiveIndicatorSet, qtrend *model.QTrendContext, direction model.Direction) model.Momentum {
	m := model.Momentum{RSIZone: model.RSINeutral}
	if ind != nil {
		m.RSI = ind.RSI
		if ind.RSI != nil {
			switch {
			case *ind.RSI < 30:
				m.RSIZone = model.RSIOversold
			case *ind.RSI > 70:
				m.RSIZone = model.RSIOverbought
			}
		}
	}
	m.TrendAligned = qtrend != nil && qtrend.Direction == direction
	return m
}

func signalQuality(ctx model.ContextBundle) model.SignalQuality {
	q := model.SignalQuality{Session: ctx.Stats.Session}
	if len(ctx.EntrySignals) > 0 {
		entry := ctx.EntrySignals[0]
		q.Source = entry.Source
		q.BarCloseConfirmed = entry.Confirmed == model.ConfirmedBarClose
		q.TVConfidence = entry.TVConfidence
		q.PatternSimilarity = entry.PatternSimilarity
	}
	return q
}

func boolVal(b *bool) bool {
	return b != nil && *b
}

// SessionForHour maps a UTC hour to the canonical trading-session label.
func SessionForHour(hourUTC int) model.Session {
	switch {
	case hourUTC >= 0 && hourUTC < 7:
		return model.SessionTokyo
	case hourUTC >= 7 && hourUTC < 12:
		return model.SessionLondon
	case hourUTC >= 12 && hourUTC < 15:
		return model.SessionLondonNY
	case hourUTC >= 15 && hourUTC < 22:
		return model.SessionNY
	default:
		return model.SessionOffHours
	}
}

package model

import "time"

// Regime is the market classification produced by the Structurer.
type Regime string

const (
	RegimeRange    Regime = "range"
	RegimeTrend    Regime = "trend"
	RegimeBreakout Regime = "breakout"
)

// ZoneDirection and FVGDirection describe which side of the market a zone
// or fair-value gap serves.
type ZoneDirection string
type FVGDirection string

const (
	ZoneDemand ZoneDirection = "demand"
	ZoneSupply ZoneDirection = "supply"

	FVGBullish FVGDirection = "bullish"
	FVGBearish FVGDirection = "bearish"
)

// SweepSide identifies which side's liquidity was swept.
type SweepSide string

const (
	SweepSellSide SweepSide = "sell_side"
	SweepBuySide  SweepSide = "buy_side"
)

// RSIZone buckets the RSI reading.
type RSIZone string

const (
	RSIOversold  RSIZone = "oversold"
	RSINeutral   RSIZone = "neutral"
	RSIOverbought RSIZone = "overbought"
)

// Session is the canonical trading-session label derived from UTC hour.
type Session string

const (
	SessionTokyo     Session = "Tokyo"
	SessionLondon    Session = "London"
	SessionLondonNY  Session = "London_NY"
	SessionNY        Session = "NY"
	SessionOffHours  Session = "off_hours"
)

// RegimeInfo is the regime sub-record of the normalized schema.
type RegimeInfo struct {
	Classification Regime
	ADX            *float64
	ADXRising      *bool
	ATRExpanding   *bool
	Squeeze        *bool
}

// PriceStructure carries the raw price-action reference points used by the
// range-midpoint-chase instant-reject rule.
type PriceStructure struct {
	SMA20DistancePct *float64
}

// ZoneInteraction is the zone/FVG/sweep sub-record.
type ZoneInteraction struct {
	ZoneTouch       bool
	ZoneDirection   ZoneDirection
	FVGTouch        bool
	FVGDirection    FVGDirection
	LiquiditySweep  bool
	SweepDirection  SweepSide
}

// Momentum is the RSI/trend-alignment sub-record.
type Momentum struct {
	RSI          *float64
	RSIZone      RSIZone
	TrendAligned bool
}

// SignalQuality is the source/confirmation/session sub-record.
type SignalQuality struct {
	Source            string
	BarCloseConfirmed bool
	Session           Session
	TVConfidence      *float64
	PatternSimilarity *float64
}

// DataCompleteness records which semantic slots could not be populated.
type DataCompleteness struct {
	Connected     bool
	FieldsMissing []string
}

// NormalizedSchema is the Structurer's (C3) output and the ScoringEngine's
// (C4) input: six sub-records, every numeric field nullable.
type NormalizedSchema struct {
	Regime           RegimeInfo
	PriceStructure   PriceStructure
	ZoneInteraction  ZoneInteraction
	Momentum         Momentum
	SignalQuality    SignalQuality
	DataCompleteness DataCompleteness
}

// LiveIndicatorSet is one timeframe's worth of live indicators.
type LiveIndicatorSet struct {
	ADX          *float64
	ADXRising    *bool
	ATR          *float64
	ATRExpanding *bool
	Squeeze      *bool
	RSI          *float64
	SMA20        *float64
	Price        *float64
}

// RecentStructure is the most recent matching structure signal per kind,
// within the lookback windows the BatchDispatcher and ContextBuilder apply.
type RecentStructure struct {
	MacroZone       *Signal
	ZoneRetrace     *Signal
	FVGTouch        *Signal
	LiquiditySweep  *Signal
}

// QTrendContext is the optional higher-timeframe directional filter.
type QTrendContext struct {
	Direction Direction
}

// Stats carries the win-rate/session/ATR-percentile feed the ContextBuilder
// assembles from persistence.
type Stats struct {
	WinRate        float64
	ConsecLosses   int
	Session        Session
	ATRPercentile  *float64
}

// ContextBundle is passed to the Structurer (C3); it is built per decision
// and not persisted in its raw form.
type ContextBundle struct {
	EntrySignals     []Signal
	LiveIndicators   map[string]LiveIndicatorSet // keyed by timeframe label: "5m", "15m", "1h"
	RecentStructure  RecentStructure
	QTrendContext    *QTrendContext
	Stats            Stats
	BuiltAt          time.Time
}

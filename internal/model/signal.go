// Package model defines the domain types shared across the decision
// pipeline: the inbound Signal, the Batch a debounce window collects, the
// Context bundle and Normalized schema that flow through the structuring
// and scoring stages, and the DecisionResult, WaitItem, ManagedPosition and
// score-configuration types each downstream component owns.
package model

import "time"

// Direction is the trade direction, or empty for signals that carry none.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Opposite returns the other trade direction (buy <-> sell; anything else
// yields ""). broker.Paper.ClosePosition uses it to price the closing side of a
// position; reversal-trigger synthesis keeps the sweep signal's direction
// as-is and does not call it.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBuy:
		return DirectionSell
	case DirectionSell:
		return DirectionBuy
	default:
		return ""
	}
}

// SignalKind distinguishes an actionable entry trigger from a structural
// observation that only feeds context.
type SignalKind string

const (
	KindEntryTrigger SignalKind = "entry_trigger"
	KindStructure    SignalKind = "structure"
)

// Event is the closed set of signal event types.
type Event string

const (
	EventPredictionSignal   Event = "prediction_signal"
	EventZoneRetraceTouch   Event = "zone_retrace_touch"
	EventNewZoneConfirmed   Event = "new_zone_confirmed"
	EventFVGTouch           Event = "fvg_touch"
	EventLiquiditySweep     Event = "liquidity_sweep"
)

// Confirmation describes when within the bar the signal was emitted.
type Confirmation string

const (
	ConfirmedBarClose Confirmation = "bar_close"
	ConfirmedIntrabar Confirmation = "intrabar"
)

// Signal is immutable once accepted by the Validator (C1).
type Signal struct {
	Symbol            string
	Price             float64
	Timeframe         *int
	Direction         Direction
	Kind              SignalKind
	Event             Event
	Source            string
	Strength          float64
	Confirmed         Confirmation
	TVConfidence      *float64
	PatternSimilarity *float64
	ReceivedAt        time.Time
}

// Valid reports whether the signal satisfies the kind/event invariant from
// the data model: entry_trigger signals carry prediction_signal (or are a
// synthetic reversal trigger, which the caller marks by leaving Event at
// EventPredictionSignal too); structure signals carry one of the four
// structural events.
func (s Signal) Valid() bool {
	switch s.Kind {
	case KindEntryTrigger:
		return s.Event == EventPredictionSignal && s.Direction != ""
	case KindStructure:
		switch s.Event {
		case EventNewZoneConfirmed, EventZoneRetraceTouch, EventFVGTouch, EventLiquiditySweep:
			return true
		default:
			return false
		}
	default:
		return false
	}
}

// Batch is an ordered sequence of signals collected within one debounce
// window, closed by timer expiry. Arrival order is preserved.
type Batch struct {
	Signals  []Signal
	ClosedAt time.Time
}

// EntryTriggers returns the subset of Signals that are entry triggers, in
// arrival order.
func (b Batch) EntryTriggers() []Signal {
	out := make([]Signal, 0, len(b.Signals))
	for _, s := range b.Signals {
		if s.Kind == KindEntryTrigger {
			out = append(out, s)
		}
	}
	return out
}

// StructureSignals returns the subset of Signals that are structural
// observations, in arrival order.
func (b Batch) StructureSignals() []Signal {
	out := make([]Signal, 0, len(b.Signals))
	for _, s := range b.Signals {
		if s.Kind == KindStructure {
			out = append(out, s)
		}
	}
	return out
}

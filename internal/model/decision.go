package model

import "time"

// Decision is the ScoringEngine's (C4) verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionWait    Decision = "wait"
	DecisionReject  Decision = "reject"
)

// WaitScope classifies why a decision is waiting, which in turn selects its
// expiry window and its re-evaluation trigger.
type WaitScope string

const (
	ScopeNextBar         WaitScope = "next_bar"
	ScopeStructureNeeded WaitScope = "structure_needed"
	ScopeCooldown        WaitScope = "cooldown"
)

// RejectSentinel is the score assigned to an instant-reject (Phase A)
// outcome; additive Phase B scoring never reaches this low.
const RejectSentinel = -1e9

// DecisionResult is the ScoringEngine's (C4) output: additive score over a
// breakdown of named factors, plus reject reasons or a wait condition.
type DecisionResult struct {
	Decision      Decision
	Score         float64
	Breakdown     map[string]float64
	RejectReasons []string
	WaitCondition WaitScope
	SetupType     SetupType
}

// SetupType is derived from the scoring breakdown and used downstream by
// the Executor to select SL/TP multipliers.
type SetupType string

const (
	SetupSweepReversal     SetupType = "sweep_reversal"
	SetupTrendContinuation SetupType = "trend_continuation"
	SetupStandard          SetupType = "standard"
)

// WaitStatus is the WaitItem's (C8) lifecycle status.
type WaitStatus string

const (
	WaitStatusWaiting  WaitStatus = "waiting"
	WaitStatusApproved WaitStatus = "approved"
	WaitStatusRejected WaitStatus = "rejected"
	WaitStatusTimeout  WaitStatus = "timeout"
)

// WaitItem is owned exclusively by the WaitBuffer (C8); its lifetime ends
// when Status != waiting, after which it is garbage-collected.
type WaitItem struct {
	ID             string
	EntrySignals   []Signal
	AIResult       *DecisionResult
	AIDecisionID   string
	WaitID         string
	Scope          WaitScope
	Condition      string
	OriginalReason string
	CreatedAt      time.Time
	ReevalCount    int
	Status         WaitStatus
}

// ManagedPosition is PositionManager's (C11) per-ticket state.
//
// Invariants: RemainingLots <= LotSize; BEApplied => SL is at or past
// EntryPrice (direction-correct); TrailingActive => PartialClosed.
type ManagedPosition struct {
	Ticket          int64
	Direction       Direction
	EntryPrice      float64
	LotSize         float64
	SL              float64
	TP              float64
	ATRAtEntry      float64
	MaxAdversePrice float64
	MaxFavorablePrice float64
	BEApplied       bool
	PartialClosed   bool
	TrailingActive  bool
	RemainingLots   float64
	PartialPnL      float64
	ExecutionID     string
	EnteredAt       time.Time
}

// Invariant reports whether the position satisfies the documented
// invariants; called after every mutating tick.
func (p *ManagedPosition) Invariant() bool {
	if p.RemainingLots > p.LotSize+1e-9 {
		return false
	}
	if p.TrailingActive && !p.PartialClosed {
		return false
	}
	if p.BEApplied {
		switch p.Direction {
		case DirectionBuy:
			if p.SL < p.EntryPrice-1e-9 {
				return false
			}
		case DirectionSell:
			if p.SL > p.EntryPrice+1e-9 {
				return false
			}
		}
	}
	return true
}

// ScoreConfig is a mapping from named scoring factors to signed weights,
// plus the approve/wait thresholds. Loaded once at startup; may be
// hot-swapped wholesale by an external tuner via an atomic file replace.
type ScoreConfig struct {
	Weights          map[string]float64 `yaml:"weights"`
	ApproveThreshold float64            `yaml:"approve_threshold"`
	WaitThreshold    float64            `yaml:"wait_threshold"`
}

// Weight returns the configured weight for factor, or 0 if unset so that an
// absent factor never contributes to the additive score.
func (c *ScoreConfig) Weight(factor string) float64 {
	if c == nil || c.Weights == nil {
		return 0
	}
	return c.Weights[factor]
}

// Package position implements the PositionManager (C11): a per-ticket
// state machine ticking on a fixed interval through break-even, partial
// take-profit, and trailing-stop stages, mutating each
// model.ManagedPosition in place and pushing broker-side SL updates.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yusuke746/trading-system/internal/model"
)

// PriceSource returns the current direction-correct exit price for an open
// position: bid for a long, ask for a short (the opposite convention from
// entry, which buys at ask and sells at bid).
type PriceSource interface {
	CurrentExitPrice(ctx context.Context, symbol string, direction model.Direction) (float64, error)
}

// BrokerPositions reports whether the broker still carries an open ticket;
// false means it was closed externally (SL/TP fill or manual close).
type BrokerPositions interface {
	PositionOpen(ctx context.Context, ticket int64) (bool, error)
}

// PartialCloser executes the STEP2 50% market close.
type PartialCloser interface {
	ClosePartial(ctx context.Context, ticket int64, symbol string, direction model.Direction, volume float64) (fillPrice float64, err error)
}

// SLUpdater pushes a new SL to the broker; tp must always be resent
// alongside sl or the broker resets the take-profit.
type SLUpdater interface {
	UpdateSL(ctx context.Context, ticket int64, sl, tp float64) error
}

// HistoryRecorder persists the realized PnL of a partial close or a full
// close for audit; nil is valid (history is best-effort).
type HistoryRecorder interface {
	RecordTradeResult(ctx context.Context, executionID string, ticket int64, outcome string, pnlUSD float64, duration time.Duration) error
}

// Config holds the ATR multipliers governing each transition, sourced from
// the live system's tuned SYSTEM_CONFIG.
type Config struct {
	BETriggerATRMult    float64
	BEBufferDollar      float64
	PartialTPATRMult    float64
	PartialCloseRatio   float64
	TrailingStepATRMult float64
	MinLotSize          float64
	CheckInterval       time.Duration
	Symbol              string
	ContractSize        float64 // units per lot, e.g. 100 troy ounces for XAUUSD; used by OpenRiskUSD
}

// DefaultConfig matches the live system's tuned defaults.
func DefaultConfig() Config {
	return Config{
		BETriggerATRMult:    1.0,
		BEBufferDollar:      0.2, // 2 pips at 10 points/pip for GOLD
		PartialTPATRMult:    2.0,
		PartialCloseRatio:   0.5,
		TrailingStepATRMult: 1.5,
		MinLotSize:          0.01,
		CheckInterval:       10 * time.Second,
		ContractSize:        100,
	}
}

// Manager is C11. Safe for concurrent use; Register/Tick may be called
// from different goroutines.
type Manager struct {
	mu        sync.Mutex
	positions map[int64]*model.ManagedPosition

	prices  PriceSource
	broker  BrokerPositions
	closer  PartialCloser
	sl      SLUpdater
	history HistoryRecorder
	cfg     Config
	log     zerolog.Logger
}

func New(prices PriceSource, broker BrokerPositions, closer PartialCloser, sl SLUpdater, history HistoryRecorder, cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		positions: make(map[int64]*model.ManagedPosition),
		prices:    prices,
		broker:    broker,
		closer:    closer,
		sl:        sl,
		history:   history,
		cfg:       cfg,
		log:       log.With().Str("component", "position_manager").Logger(),
	}
}

// Register implements executor.PositionRegistrar.
func (m *Manager) Register(ctx context.Context, pos model.ManagedPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := pos
	m.positions[pos.Ticket] = &stored
	m.log.Info().Int64("ticket", pos.Ticket).Str("direction", string(pos.Direction)).
		Float64("lot", pos.LotSize).Float64("entry", pos.EntryPrice).Msg("position registered")
	return nil
}

// OpenPositionCount reports how many tickets are currently under
// management. HealthMonitor (C12) reads this to size the urgency of a
// reconnect; it never writes to the position map.
func (m *Manager) OpenPositionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// OpenRiskUSD implements dispatcher.PositionTracker/revaluator.PositionTracker:
// the account-total dollar distance from entry to stop across every
// registered ticket's remaining size, the same sum RiskGate's open-risk
// cap compares against.
func (m *Manager) OpenRiskUSD(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, pos := range m.positions {
		dist := pos.EntryPrice - pos.SL
		if dist < 0 {
			dist = -dist
		}
		total += dist * pos.RemainingLots * m.cfg.ContractSize
	}
	return total, nil
}

// Run ticks every CheckInterval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick manages every open position once. Positions the broker reports as
// closed are dropped after the pass completes (collected first, removed
// after, matching the teacher's manage-then-remove ordering to avoid
// mutating the map mid-iteration).
func (m *Manager) Tick(ctx context.Context) {
	m.mu.Lock()
	snapshot := make([]*model.ManagedPosition, 0, len(m.positions))
	for _, pos := range m.positions {
		snapshot = append(snapshot, pos)
	}
	m.mu.Unlock()

	var closed []int64
	for _, pos := range snapshot {
		if m.manage(ctx, pos) {
			closed = append(closed, pos.Ticket)
		}
	}

	if len(closed) == 0 {
		return
	}
	m.mu.Lock()
	for _, ticket := range closed {
		delete(m.positions, ticket)
	}
	m.mu.Unlock()
}

// manage runs one position through its pending transitions. Returns true
// if the broker reports the ticket closed.
func (m *Manager) manage(ctx context.Context, pos *model.ManagedPosition) bool {
	open, err := m.broker.PositionOpen(ctx, pos.Ticket)
	if err != nil {
		m.log.Warn().Err(err).Int64("ticket", pos.Ticket).Msg("position liveness check failed, skipping this tick")
		return false
	}
	if !open {
		m.log.Info().Int64("ticket", pos.Ticket).Msg("position closed externally")
		return true
	}

	price, err := m.prices.CurrentExitPrice(ctx, m.cfg.Symbol, pos.Direction)
	if err != nil {
		m.log.Warn().Err(err).Int64("ticket", pos.Ticket).Msg("current price fetch failed, skipping this tick")
		return false
	}

	var unrealized float64
	if pos.Direction == model.DirectionBuy {
		unrealized = price - pos.EntryPrice
		if price > pos.MaxFavorablePrice {
			pos.MaxFavorablePrice = price
		}
		if price < pos.MaxAdversePrice {
			pos.MaxAdversePrice = price
		}
	} else {
		unrealized = pos.EntryPrice - price
		if price < pos.MaxFavorablePrice {
			pos.MaxFavorablePrice = price
		}
		if price > pos.MaxAdversePrice {
			pos.MaxAdversePrice = price
		}
	}

	atr := pos.ATRAtEntry

	if !pos.BEApplied && unrealized >= atr*m.cfg.BETriggerATRMult {
		m.applyBreakeven(ctx, pos)
	}

	if !pos.PartialClosed && unrealized >= atr*m.cfg.PartialTPATRMult {
		m.partialClose(ctx, pos, price)
	}

	if pos.PartialClosed {
		m.updateTrailing(ctx, pos)
	}

	return false
}

func (m *Manager) applyBreakeven(ctx context.Context, pos *model.ManagedPosition) {
	var newSL float64
	if pos.Direction == model.DirectionBuy {
		newSL = pos.EntryPrice + m.cfg.BEBufferDollar
	} else {
		newSL = pos.EntryPrice - m.cfg.BEBufferDollar
	}

	if err := m.sl.UpdateSL(ctx, pos.Ticket, newSL, pos.TP); err != nil {
		m.log.Warn().Err(err).Int64("ticket", pos.Ticket).Msg("breakeven SL update failed")
		return
	}
	pos.SL = newSL
	pos.BEApplied = true
	m.log.Info().Int64("ticket", pos.Ticket).Float64("sl", newSL).Msg("breakeven applied")
}

func (m *Manager) partialClose(ctx context.Context, pos *model.ManagedPosition, currentPrice float64) {
	closeVolume := round2(pos.LotSize * m.cfg.PartialCloseRatio)
	if closeVolume < m.cfg.MinLotSize {
		m.log.Warn().Int64("ticket", pos.Ticket).Float64("close_volume", closeVolume).
			Msg("partial close volume below broker minimum, skipping close but proceeding to trailing")
		pos.PartialClosed = true
		pos.TrailingActive = true
		return
	}

	fillPrice, err := m.closer.ClosePartial(ctx, pos.Ticket, m.cfg.Symbol, pos.Direction, closeVolume)
	if err != nil {
		m.log.Error().Err(err).Int64("ticket", pos.Ticket).Msg("partial close failed")
		return
	}

	var pnl float64
	if pos.Direction == model.DirectionBuy {
		pnl = (fillPrice - pos.EntryPrice) * closeVolume * 100
	} else {
		pnl = (pos.EntryPrice - fillPrice) * closeVolume * 100
	}

	pos.PartialPnL = pnl
	pos.PartialClosed = true
	pos.TrailingActive = true
	pos.RemainingLots = round2(pos.LotSize - closeVolume)

	m.log.Info().Int64("ticket", pos.Ticket).Float64("volume", closeVolume).
		Float64("fill_price", fillPrice).Float64("signal_price", currentPrice).Float64("pnl", pnl).
		Msg("partial close executed")

	if m.history != nil {
		if err := m.history.RecordTradeResult(ctx, pos.ExecutionID, pos.Ticket, "partial_tp", pnl, time.Since(pos.EnteredAt)); err != nil {
			m.log.Warn().Err(err).Int64("ticket", pos.Ticket).Msg("record partial-close trade result failed")
		}
	}
}

func (m *Manager) updateTrailing(ctx context.Context, pos *model.ManagedPosition) {
	trailDist := pos.ATRAtEntry * m.cfg.TrailingStepATRMult

	var candidateSL float64
	if pos.Direction == model.DirectionBuy {
		candidateSL = pos.MaxFavorablePrice - trailDist
		if candidateSL <= pos.SL {
			return
		}
	} else {
		candidateSL = pos.MaxFavorablePrice + trailDist
		if candidateSL >= pos.SL {
			return
		}
	}

	if err := m.sl.UpdateSL(ctx, pos.Ticket, candidateSL, pos.TP); err != nil {
		m.log.Warn().Err(err).Int64("ticket", pos.Ticket).Msg("trailing SL update failed")
		return
	}
	pos.SL = candidateSL
	m.log.Debug().Int64("ticket", pos.Ticket).Float64("sl", candidateSL).Msg("trailing stop updated")
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

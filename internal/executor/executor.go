// Package executor implements the Executor (C10): given an approved
// decision and its trigger, it refreshes the market price, sizes SL/TP
// off the current ATR, sizes the lot to the configured risk percentage,
// submits the order, persists the execution, and registers the resulting
// position with the PositionManager (C11).
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yusuke746/trading-system/internal/indicators"
	"github.com/yusuke746/trading-system/internal/model"
)

// Bar is one OHLC bar, oldest-first.
type Bar = indicators.Bar

// PriceSource refreshes the current tradable price immediately before
// submission, direction-correctly (ask for buys, bid for sells) — the
// stale-trigger-price guard for re-evaluated waits.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string, direction model.Direction) (float64, error)
}

// BarSource supplies the OHLC history used to compute the ATR that sizes
// SL/TP distance.
type BarSource interface {
	RecentBars(ctx context.Context, symbol string, timeframe string, count int) ([]Bar, error)
}

// AccountSource supplies the account balance already converted to USD —
// implementations apply the account-currency conversion (with a
// conservative fallback when the conversion rate is unavailable) before
// returning.
type AccountSource interface {
	BalanceUSD(ctx context.Context) (float64, error)
}

// OrderRequest is the fully-sized order ready for submission.
type OrderRequest struct {
	Symbol     string
	Direction  model.Direction
	OrderType  string // "market" or "limit"
	LotSize    float64
	EntryPrice float64
	SLPrice    float64
	TPPrice    float64
}

// OrderResult is what the broker reports back after submission.
type OrderResult struct {
	Ticket int64
}

// OrderSubmitter sends the built order to the broker.
type OrderSubmitter interface {
	Submit(ctx context.Context, order OrderRequest) (OrderResult, error)
}

// ExecutionRecorder persists the execution row for audit/replay.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, order OrderRequest, result OrderResult, aiDecisionID string, setupType model.SetupType) (string, error)
}

// PositionRegistrar hands the newly-opened position to the
// PositionManager (C11).
type PositionRegistrar interface {
	Register(ctx context.Context, position model.ManagedPosition) error
}

// Config holds the ATR multipliers, SL distance bounds, the volatility
// filter band, and the risk-sizing percentage — defaults recovered from
// the live system's tuned SYSTEM_CONFIG.
type Config struct {
	RiskPercent   float64
	ATRSLMult     float64
	ATRTPMult     float64
	MinSLDollar   float64
	MaxSLDollar   float64
	ATRVolMin     float64
	ATRVolMax     float64
	ATRTimeframe  string
	ATRBarsNeeded int

	// Setup-type multiplier adjustments (§4.6(c)).
	SweepSLFactor float64 // tighter SL for sweep-reversal setups
	SweepTPFactor float64 // wider TP for sweep-reversal setups
	TrendTPFactor float64 // wider TP for trend-continuation setups

	FallbackBalanceUSD float64

	LotPerDollarOfRisk float64 // $ P&L per 1.00 price move per 1 lot (GOLD: 100)
	MinLotSize         float64
}

// DefaultConfig matches the live system's tuned defaults.
func DefaultConfig() Config {
	return Config{
		RiskPercent:        2.0,
		ATRSLMult:          2.0,
		ATRTPMult:          3.0,
		MinSLDollar:        8.0,
		MaxSLDollar:        80.0,
		ATRVolMin:          3.0,
		ATRVolMax:          30.0,
		ATRTimeframe:       "15m",
		ATRBarsNeeded:      50,
		SweepSLFactor:      0.8,
		SweepTPFactor:      1.3,
		TrendTPFactor:      1.2,
		FallbackBalanceUSD: 10000.0,
		LotPerDollarOfRisk: 100.0,
		MinLotSize:         0.01,
	}
}

// Executor is C10.
type Executor struct {
	prices     PriceSource
	bars       BarSource
	account    AccountSource
	orders     OrderSubmitter
	executions ExecutionRecorder
	positions  PositionRegistrar
	cfg        Config
	log        zerolog.Logger
}

func New(prices PriceSource, bars BarSource, account AccountSource, orders OrderSubmitter, executions ExecutionRecorder, positions PositionRegistrar, cfg Config, log zerolog.Logger) *Executor {
	return &Executor{
		prices:     prices,
		bars:       bars,
		account:    account,
		orders:     orders,
		executions: executions,
		positions:  positions,
		cfg:        cfg,
		log:        log.With().Str("component", "executor").Logger(),
	}
}

// Execute implements the dispatcher.Executor / revaluator.Executor port.
func (e *Executor) Execute(ctx context.Context, trigger model.Signal, result model.DecisionResult, aiDecisionID string) error {
	order, atrDollar, err := e.buildOrder(ctx, trigger, result)
	if err != nil {
		return err
	}
	if order == nil {
		e.log.Info().Str("symbol", trigger.Symbol).Float64("atr", atrDollar).Msg("volatility out of band, execution aborted after approval")
		return fmt.Errorf("executor: volatility out of band (atr=%.2f)", atrDollar)
	}

	orderResult, err := e.orders.Submit(ctx, *order)
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}

	executionID, err := e.executions.RecordExecution(ctx, *order, orderResult, aiDecisionID, result.SetupType)
	if err != nil {
		e.log.Error().Err(err).Int64("ticket", orderResult.Ticket).Msg("failed to persist execution record")
	}

	position := model.ManagedPosition{
		Ticket:            orderResult.Ticket,
		Direction:         order.Direction,
		EntryPrice:        order.EntryPrice,
		LotSize:           order.LotSize,
		SL:                order.SLPrice,
		TP:                order.TPPrice,
		ATRAtEntry:        atrDollar,
		MaxAdversePrice:   order.EntryPrice,
		MaxFavorablePrice: order.EntryPrice,
		RemainingLots:     order.LotSize,
		ExecutionID:       executionID,
		EnteredAt:         time.Now().UTC(),
	}
	if err := e.positions.Register(ctx, position); err != nil {
		return fmt.Errorf("register position: %w", err)
	}

	e.log.Info().Str("symbol", order.Symbol).Str("direction", string(order.Direction)).
		Int64("ticket", orderResult.Ticket).Float64("lot", order.LotSize).
		Float64("entry", order.EntryPrice).Float64("sl", order.SLPrice).Float64("tp", order.TPPrice).
		Msg("order executed")
	return nil
}

// buildOrder computes SL/TP and lot size per spec §4.6. A nil *OrderRequest
// with a nil error means the ATR-volatility filter aborted the trade.
func (e *Executor) buildOrder(ctx context.Context, trigger model.Signal, result model.DecisionResult) (*OrderRequest, float64, error) {
	symbol := trigger.Symbol
	direction := trigger.Direction
	price := trigger.Price

	orderType := "market"
	if fresh, err := e.prices.CurrentPrice(ctx, symbol, direction); err == nil && fresh > 0 {
		price = fresh
	} else if err != nil {
		e.log.Warn().Err(err).Str("symbol", symbol).Msg("current price refresh failed, using trigger price")
	}

	bars, err := e.bars.RecentBars(ctx, symbol, e.cfg.ATRTimeframe, e.cfg.ATRBarsNeeded)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch ATR bars: %w", err)
	}
	set, err := indicators.Compute(bars)
	if err != nil || set.ATR == nil {
		return nil, 0, fmt.Errorf("compute ATR: %w", err)
	}
	atrDollar := *set.ATR

	if atrDollar > e.cfg.ATRVolMax || atrDollar < e.cfg.ATRVolMin {
		return nil, atrDollar, nil
	}

	slMult, tpMult := e.cfg.ATRSLMult, e.cfg.ATRTPMult
	switch result.SetupType {
	case model.SetupSweepReversal:
		if candidate := slMult * e.cfg.SweepSLFactor; candidate > 0 {
			slMult = candidate
		}
		tpMult *= e.cfg.SweepTPFactor
	case model.SetupTrendContinuation:
		tpMult *= e.cfg.TrendTPFactor
	}

	slDollar := atrDollar * slMult
	if slDollar < e.cfg.MinSLDollar {
		slDollar = e.cfg.MinSLDollar
	}
	if slDollar > e.cfg.MaxSLDollar {
		slDollar = e.cfg.MaxSLDollar
	}

	balanceUSD, err := e.account.BalanceUSD(ctx)
	if err != nil || balanceUSD <= 0 {
		e.log.Warn().Err(err).Msg("account balance lookup failed, using fallback balance")
		balanceUSD = e.cfg.FallbackBalanceUSD
	}

	riskAmount := balanceUSD * (e.cfg.RiskPercent / 100.0)
	lotSize := riskAmount / (slDollar * e.cfg.LotPerDollarOfRisk)
	if lotSize < e.cfg.MinLotSize {
		lotSize = e.cfg.MinLotSize
	}

	var slPrice, tpPrice float64
	if direction == model.DirectionBuy {
		slPrice = price - slDollar
		tpPrice = price + atrDollar*tpMult
	} else {
		slPrice = price + slDollar
		tpPrice = price - atrDollar*tpMult
	}

	return &OrderRequest{
		Symbol:     symbol,
		Direction:  direction,
		OrderType:  orderType,
		LotSize:    lotSize,
		EntryPrice: price,
		SLPrice:    slPrice,
		TPPrice:    tpPrice,
	}, atrDollar, nil
}

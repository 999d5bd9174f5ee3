package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/yusuke746/trading-system/internal/executor"
	"github.com/yusuke746/trading-system/internal/model"
	"github.com/yusuke746/trading-system/internal/risk"
)

// NewsConfig controls how Adapter turns the broker's raw calendar feed
// into the yes/no PendingNewsWindow answer risk.Broker needs.
type NewsConfig struct {
	Currencies    []string // XAUUSD trades off both dollar and euro releases
	MinImportance int      // events below this importance are ignored
	Before        time.Duration
	After         time.Duration
}

// DefaultNewsConfig matches the live system's tuned defaults
// (news_target_currencies=[USD,EUR], news_min_importance=2,
// news_block_before_min=30, news_block_after_min=30).
func DefaultNewsConfig() NewsConfig {
	return NewsConfig{
		Currencies:    []string{"USD", "EUR"},
		MinImportance: 2,
		Before:        30 * time.Minute,
		After:         30 * time.Minute,
	}
}

func (n NewsConfig) tracksCurrency(currency string) bool {
	for _, c := range n.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}

// Adapter wraps a Client and exposes the narrow, single-purpose ports that
// executor, context, position, health, scheduler and risk each declare for
// themselves. It is bound to one symbol, matching this engine's
// single-instrument scope.
type Adapter struct {
	client         Client
	symbol         string
	news           NewsConfig
	log            zerolog.Logger
	circuitBreaker *risk.CircuitBreakerManager
}

func NewAdapter(client Client, symbol string, news NewsConfig, log zerolog.Logger) *Adapter {
	return &Adapter{
		client: client,
		symbol: symbol,
		news:   news,
		log:    log.With().Str("component", "broker_adapter").Logger(),
	}
}

// SetCircuitBreaker wires in the shared circuit breaker manager (see
// internal/db.DB.GetCircuitBreaker) so order submission trips the same
// "broker" breaker the rest of the engine reports on.
func (a *Adapter) SetCircuitBreaker(cb *risk.CircuitBreakerManager) {
	a.circuitBreaker = cb
}

// --- executor.PriceSource ---

// CurrentPrice quotes the side an entry fills at: a buy lifts the ask, a
// sell hits the bid.
func (a *Adapter) CurrentPrice(ctx context.Context, symbol string, direction model.Direction) (float64, error) {
	tick, err := a.client.Tick(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if direction == model.DirectionBuy {
		return tick.Ask, nil
	}
	return tick.Bid, nil
}

// --- executor.BarSource / context.IndicatorSource ---

func (a *Adapter) RecentBars(ctx context.Context, symbol, timeframe string, count int) ([]Bar, error) {
	return a.client.Bars(ctx, symbol, timeframe, count)
}

// --- executor.AccountSource ---

func (a *Adapter) BalanceUSD(ctx context.Context) (float64, error) {
	info, err := a.client.Account(ctx)
	if err != nil {
		return 0, err
	}
	return info.BalanceUSD, nil
}

// --- executor.OrderSubmitter ---

func (a *Adapter) Submit(ctx context.Context, order executor.OrderRequest) (executor.OrderResult, error) {
	send := func() (interface{}, error) {
		if order.OrderType == "limit" {
			return a.client.SendLimitOrder(ctx, order)
		}
		return a.client.SendMarketOrder(ctx, order)
	}

	if a.circuitBreaker == nil {
		result, err := send()
		if err != nil {
			return executor.OrderResult{}, err
		}
		return result.(executor.OrderResult), nil
	}

	result, err := a.circuitBreaker.Broker().Execute(send)
	if err != nil {
		a.circuitBreaker.Metrics().RecordRequest("broker", false)
		if err == gobreaker.ErrOpenState {
			return executor.OrderResult{}, fmt.Errorf("broker circuit breaker is open, order not submitted")
		}
		return executor.OrderResult{}, err
	}
	a.circuitBreaker.Metrics().RecordRequest("broker", true)
	return result.(executor.OrderResult), nil
}

// --- position.PriceSource ---

// CurrentExitPrice quotes the side a close fills at: closing a long sells
// at the bid, closing a short buys at the ask — the mirror of CurrentPrice.
func (a *Adapter) CurrentExitPrice(ctx context.Context, symbol string, direction model.Direction) (float64, error) {
	tick, err := a.client.Tick(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if direction == model.DirectionBuy {
		return tick.Bid, nil
	}
	return tick.Ask, nil
}

// --- position.BrokerPositions ---

func (a *Adapter) PositionOpen(ctx context.Context, ticket int64) (bool, error) {
	positions, err := a.client.Positions(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range positions {
		if p.Ticket == ticket {
			return true, nil
		}
	}
	return false, nil
}

// --- position.PartialCloser ---

func (a *Adapter) ClosePartial(ctx context.Context, ticket int64, symbol string, direction model.Direction, volume float64) (float64, error) {
	return a.client.ClosePosition(ctx, ticket, volume)
}

// --- position.SLUpdater ---

func (a *Adapter) UpdateSL(ctx context.Context, ticket int64, sl, tp float64) error {
	return a.client.ModifyPosition(ctx, ticket, sl, tp)
}

// --- health.ConnectionChecker / health.Reconnector ---

func (a *Adapter) IsConnected(ctx context.Context) (bool, error) {
	return a.client.IsConnected(ctx)
}

func (a *Adapter) Reconnect(ctx context.Context) error {
	return a.client.Reconnect(ctx)
}

// --- scheduler.Broker ---

func (a *Adapter) CancelPendingOrders(ctx context.Context) (int, error) {
	pending, err := a.client.PendingOrders(ctx)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, o := range pending {
		if err := a.client.CancelOrder(ctx, o.Ticket); err != nil {
			a.log.Warn().Err(err).Int64("ticket", o.Ticket).Msg("order cancellation failed, leaving it resting")
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

func (a *Adapter) CloseAllPositions(ctx context.Context) (int, error) {
	positions, err := a.client.Positions(ctx)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, p := range positions {
		if _, err := a.client.ClosePosition(ctx, p.Ticket, p.Volume); err != nil {
			a.log.Warn().Err(err).Int64("ticket", p.Ticket).Msg("flat-close failed, position left open")
			continue
		}
		closed++
	}
	return closed, nil
}

// --- risk.Broker ---

func (a *Adapter) AccountBalanceUSD(ctx context.Context) (float64, error) {
	info, err := a.client.Account(ctx)
	if err != nil {
		return 0, err
	}
	return info.BalanceUSD, nil
}

func (a *Adapter) FreeMarginUSD(ctx context.Context) (float64, error) {
	info, err := a.client.Account(ctx)
	if err != nil {
		return 0, err
	}
	return info.FreeMarginUSD, nil
}

func (a *Adapter) SymbolTradable(ctx context.Context, symbol string) (bool, error) {
	info, err := a.client.SymbolInfo(ctx, symbol)
	if err != nil {
		return false, err
	}
	return info.Tradable, nil
}

func (a *Adapter) RecentDailyBars(ctx context.Context, symbol string, n int) ([]risk.DailyBar, error) {
	return a.client.DailyBars(ctx, symbol, n)
}

func (a *Adapter) OpenPositionCount(ctx context.Context) (int, error) {
	positions, err := a.client.Positions(ctx)
	if err != nil {
		return 0, err
	}
	return len(positions), nil
}

// PendingNewsWindow reports whether at falls within the configured
// before/after buffer of a release at or above the configured minimum
// importance on any of the configured news currencies. A calendar-feed error fails open (no block) rather than
// silently halting every entry on a feed outage.
func (a *Adapter) PendingNewsWindow(ctx context.Context, symbol string, at time.Time) (bool, error) {
	events, err := a.client.CalendarEvents(ctx, a.news.Before+a.news.After+24*time.Hour)
	if err != nil {
		a.log.Warn().Err(err).Msg("calendar feed unavailable, treating as no pending news")
		return false, nil
	}
	for _, ev := range events {
		if !a.news.tracksCurrency(ev.Currency) || ev.Importance < a.news.MinImportance {
			continue
		}
		blockStart := ev.Time.Add(-a.news.Before)
		blockEnd := ev.Time.Add(a.news.After)
		if !at.Before(blockStart) && at.Before(blockEnd) {
			return true, nil
		}
	}
	return false, nil
}

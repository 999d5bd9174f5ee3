package risk

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/yusuke746/trading-system/internal/errs"
)

// TradeResult is one closed trade as the RiskGate needs to see it; a
// read-only projection of the trade_results table.
type TradeResult struct {
	ClosedAt time.Time
	Outcome  string // "sl_hit", "tp_hit", "manual_close", ...
	PnLUSD   float64
}

// DailyBar is one daily OHLC bar, used only for the weekend-gap check.
type DailyBar struct {
	Open  float64
	Close float64
}

// Store is the read-only persistence port the RiskGate queries. Every
// method may fail; a failure must never block trading (see Gate's
// comment on fail-open semantics), so callers treat errors as "unknown,
// assume ok".
type Store interface {
	TradesClosedToday(ctx context.Context) ([]TradeResult, error)
	RecentTrades(ctx context.Context, limit int, since time.Time) ([]TradeResult, error)
}

// Broker is the subset of broker operations the RiskGate's standard guards
// need: account state, symbol tradability, and recent daily bars.
type Broker interface {
	AccountBalanceUSD(ctx context.Context) (float64, error)
	FreeMarginUSD(ctx context.Context) (float64, error)
	SymbolTradable(ctx context.Context, symbol string) (bool, error)
	RecentDailyBars(ctx context.Context, symbol string, n int) ([]DailyBar, error)
	OpenPositionCount(ctx context.Context) (int, error)
	PendingNewsWindow(ctx context.Context, symbol string, at time.Time) (bool, error)
}

// Config holds the RiskGate's tunable thresholds.
type Config struct {
	MaxDailyLossPct      float64       // negative, e.g. -5.0
	MaxConsecutiveLosses int           // e.g. 3
	ResetHours           int           // ignore trades older than this when grouping consecutive losses
	GroupingWindow       time.Duration // trades within this of each other count as one event; default 10s
	GapThresholdUSD      float64
	MarginFloorUSD       float64
	MaxOpenPositions     int
	MaxOpenRiskUSD       float64 // account-total cap on sum(|entry-sl|*lots*contract_mult)
}

// Gate is the RiskGate (C5): a sequence of read-only checks, any of which
// can short-circuit with a human-readable reason. Every check is
// fail-open: a Store or Broker error is logged and treated as passing,
// since a sick dependency must never be the reason the system can neither
// trade nor recover.
type Gate struct {
	store  Store
	broker Broker
	cfg    Config
	log    zerolog.Logger
}

func NewGate(store Store, broker Broker, cfg Config, log zerolog.Logger) *Gate {
	if cfg.GroupingWindow == 0 {
		cfg.GroupingWindow = 10 * time.Second
	}
	return &Gate{store: store, broker: broker, cfg: cfg, log: log.With().Str("component", "risk_gate").Logger()}
}

// Check runs every guard in order and returns the first block encountered,
// or a zero-value Blocked if every check passes. openRiskUSD is the
// account's current sum of open-position risk, supplied by the caller
// (the PositionManager tracks it) so the gate itself stays read-only.
func (g *Gate) Check(ctx context.Context, symbol string, entryPrice float64, openRiskUSD float64) errs.Blocked {
	if b := g.checkDailyLoss(ctx); b.IsBlocked() {
		return b
	}
	if b := g.checkConsecutiveLosses(ctx); b.IsBlocked() {
		return b
	}
	if b := g.checkWeekendGap(ctx, symbol, entryPrice); b.IsBlocked() {
		return b
	}
	if b := g.checkMarketOpen(ctx, symbol); b.IsBlocked() {
		return b
	}
	if b := g.checkPendingNews(ctx, symbol); b.IsBlocked() {
		return b
	}
	if b := g.checkMarginFloor(ctx); b.IsBlocked() {
		return b
	}
	if b := g.checkPositionCount(ctx); b.IsBlocked() {
		return b
	}
	if b := g.checkOpenRiskCap(openRiskUSD); b.IsBlocked() {
		return b
	}
	return errs.Blocked{}
}

func (g *Gate) checkDailyLoss(ctx context.Context) errs.Blocked {
	trades, err := g.store.TradesClosedToday(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("daily loss check: store unavailable, failing open")
		return errs.Blocked{}
	}

	var total float64
	for _, t := range trades {
		total += t.PnLUSD
	}

	balance, err := g.broker.AccountBalanceUSD(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("daily loss check: broker unavailable, failing open")
		return errs.Blocked{}
	}

	limit := balance * (g.cfg.MaxDailyLossPct / 100.0)
	if total < limit {
		return errs.Block("daily loss %.1f USD exceeds limit %.1f USD (balance %.0f x %.1f%%)", total, limit, balance, g.cfg.MaxDailyLossPct)
	}
	return errs.Blocked{}
}

// checkConsecutiveLosses groups closed trades whose close-times lie
// within GroupingWindow of the previous one and share outcome=sl_hit into
// a single event, so simultaneously-closed multi-lot fills count once.
// Trades older than ResetHours are ignored. If the most recent N
// group-events are all sl_hit, block.
func (g *Gate) checkConsecutiveLosses(ctx context.Context) errs.Blocked {
	since := time.Now().UTC().Add(-time.Duration(g.cfg.ResetHours) * time.Hour)
	trades, err := g.store.RecentTrades(ctx, g.cfg.MaxConsecutiveLosses*4, since)
	if err != nil {
		g.log.Warn().Err(err).Msg("consecutive loss check: store unavailable, failing open")
		return errs.Blocked{}
	}

	events := groupIntoEvents(trades, g.cfg.GroupingWindow)
	if len(events) < g.cfg.MaxConsecutiveLosses {
		return errs.Blocked{}
	}

	recent := events[:g.cfg.MaxConsecutiveLosses]
	for _, ev := range recent {
		if ev.outcome != "sl_hit" {
			return errs.Blocked{}
		}
	}
	return errs.Block("last %d trade events are all sl_hit", g.cfg.MaxConsecutiveLosses)
}

type tradeEvent struct {
	outcome  string
	closedAt time.Time
}

// groupIntoEvents assumes trades is ordered newest-first (as RecentTrades
// returns it) and folds consecutive trades within window of each other
// and sharing the same outcome into one event.
func groupIntoEvents(trades []TradeResult, window time.Duration) []tradeEvent {
	var events []tradeEvent
	for _, t := range trades {
		if len(events) > 0 {
			last := events[len(events)-1]
			if last.outcome == t.Outcome && last.closedAt.Sub(t.ClosedAt) <= window {
				events[len(events)-1].closedAt = t.ClosedAt
				continue // folds into the existing event
			}
		}
		events = append(events, tradeEvent{outcome: t.Outcome, closedAt: t.ClosedAt})
	}
	return events
}

// checkWeekendGap only evaluates during the Monday 01:00-03:00 UTC window;
// outside it, this check always passes.
func (g *Gate) checkWeekendGap(ctx context.Context, symbol string, entryPrice float64) errs.Blocked {
	now := time.Now().UTC()
	if now.Weekday() != time.Monday || now.Hour() < 1 || now.Hour() >= 3 {
		return errs.Blocked{}
	}

	bars, err := g.broker.RecentDailyBars(ctx, symbol, 2)
	if err != nil || len(bars) < 2 {
		g.log.Warn().Err(err).Msg("gap check: daily bars unavailable, failing open")
		return errs.Blocked{}
	}

	fridayClose := bars[1].Close
	gap := entryPrice - fridayClose
	if gap < 0 {
		gap = -gap
	}
	if gap >= g.cfg.GapThresholdUSD {
		return errs.Block("weekend gap %.1f USD >= threshold %.1f USD", gap, g.cfg.GapThresholdUSD)
	}
	return errs.Blocked{}
}

func (g *Gate) checkMarketOpen(ctx context.Context, symbol string) errs.Blocked {
	tradable, err := g.broker.SymbolTradable(ctx, symbol)
	if err != nil {
		g.log.Warn().Err(err).Msg("market-open check: broker unavailable, failing open")
		return errs.Blocked{}
	}
	if !tradable {
		return errs.Block("market closed for %s", symbol)
	}
	return errs.Blocked{}
}

func (g *Gate) checkPendingNews(ctx context.Context, symbol string) errs.Blocked {
	blocked, err := g.broker.PendingNewsWindow(ctx, symbol, time.Now().UTC())
	if err != nil {
		g.log.Warn().Err(err).Msg("news-window check: calendar unavailable, failing open")
		return errs.Blocked{}
	}
	if blocked {
		return errs.Block("inside pending news window for %s", symbol)
	}
	return errs.Blocked{}
}

func (g *Gate) checkMarginFloor(ctx context.Context) errs.Blocked {
	free, err := g.broker.FreeMarginUSD(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("margin floor check: broker unavailable, failing open")
		return errs.Blocked{}
	}
	if free < g.cfg.MarginFloorUSD {
		return errs.Block("free margin %.2f USD below floor %.2f USD", free, g.cfg.MarginFloorUSD)
	}
	return errs.Blocked{}
}

func (g *Gate) checkPositionCount(ctx context.Context) errs.Blocked {
	n, err := g.broker.OpenPositionCount(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("position count check: broker unavailable, failing open")
		return errs.Blocked{}
	}
	if n >= g.cfg.MaxOpenPositions {
		return errs.Block("open position count %d at cap %d", n, g.cfg.MaxOpenPositions)
	}
	return errs.Blocked{}
}

func (g *Gate) checkOpenRiskCap(openRiskUSD float64) errs.Blocked {
	if openRiskUSD >= g.cfg.MaxOpenRiskUSD {
		return errs.Block("open risk %.2f USD at cap %.2f USD", openRiskUSD, g.cfg.MaxOpenRiskUSD)
	}
	return errs.Blocked{}
}

// Package broker defines the abstract CFD broker port (spec §6's External
// Interfaces) and an Adapter that narrows it into the single-method ports
// each worker package (executor, context, position, health, scheduler,
// risk) already declares for itself. A concrete Client only has to be
// written once; every worker keeps depending on its own small interface,
// never on this package's types directly.
package broker

import (
	"context"
	"time"

	"github.com/yusuke746/trading-system/internal/executor"
	"github.com/yusuke746/trading-system/internal/indicators"
	"github.com/yusuke746/trading-system/internal/model"
	"github.com/yusuke746/trading-system/internal/risk"
)

// Bar is the OHLC candle shape every indicator/context consumer already
// depends on.
type Bar = indicators.Bar

// OrderRequest/OrderResult are re-exported rather than duplicated so a
// Client implementation and the executor that calls it agree on one type.
type OrderRequest = executor.OrderRequest
type OrderResult = executor.OrderResult

// SymbolInfo is the broker's static contract metadata for one symbol.
type SymbolInfo struct {
	Symbol       string
	Digits       int
	Point        float64
	ContractSize float64
	MinLot       float64
	MaxLot       float64
	LotStep      float64
	Tradable     bool
}

// Tick is the current two-sided quote.
type Tick struct {
	Bid  float64
	Ask  float64
	Time time.Time
}

// AccountInfo is the broker account snapshot, already converted to the
// account's deposit currency where the field name says USD.
type AccountInfo struct {
	BalanceUSD    float64
	EquityUSD     float64
	FreeMarginUSD float64
	Currency      string
}

// Position is one broker-side open ticket.
type Position struct {
	Ticket    int64
	Symbol    string
	Direction model.Direction
	Volume    float64
	OpenPrice float64
	SL        float64
	TP        float64
	OpenedAt  time.Time
}

// PendingOrder is one broker-side resting (not yet filled) limit order.
type PendingOrder struct {
	Ticket int64
	Symbol string
}

// CalendarEvent is one upcoming economic-calendar release that
// Adapter.PendingNewsWindow checks against the configured news currencies.
type CalendarEvent struct {
	Currency   string
	Importance int // 1 low, 2 medium, 3 high
	Time       time.Time
	Title      string
}

// Client is the full broker contract a concrete implementation (a real
// MT5/XM bridge, or the in-process Paper client below) must satisfy.
// Nothing in the rest of the engine depends on this interface directly —
// only on the narrower ports Adapter forwards to.
type Client interface {
	SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	Tick(ctx context.Context, symbol string) (Tick, error)
	Bars(ctx context.Context, symbol, timeframe string, count int) ([]Bar, error)
	DailyBars(ctx context.Context, symbol string, n int) ([]risk.DailyBar, error)
	Account(ctx context.Context) (AccountInfo, error)
	Positions(ctx context.Context) ([]Position, error)
	PendingOrders(ctx context.Context) ([]PendingOrder, error)
	SendMarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	SendLimitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ModifyPosition(ctx context.Context, ticket int64, sl, tp float64) error
	ClosePosition(ctx context.Context, ticket int64, volume float64) (fillPrice float64, err error)
	CancelOrder(ctx context.Context, ticket int64) error
	CalendarEvents(ctx context.Context, window time.Duration) ([]CalendarEvent, error)
	IsConnected(ctx context.Context) (bool, error)
	Reconnect(ctx context.Context) error
}

package broker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yusuke746/trading-system/internal/model"
	"github.com/yusuke746/trading-system/internal/risk"
)

// PaperConfig tunes the Paper client's fill simulation.
type PaperConfig struct {
	SpreadPoints float64 // full bid/ask spread, in points (bid and ask sit half of it either side of mid)
	Point        float64 // price per point, e.g. 0.01 for XAUUSD
	BaseSlippage float64 // fraction of price, applied to every market fill
	MarketImpact float64 // extra fraction of price per lot of size
	MaxSlippage  float64 // cap on the combined slippage fraction
}

// DefaultPaperConfig matches a typical XAUUSD ECN quote: a 20-point spread
// and a light slippage model, enough to make fills directionally honest
// without the model dominating a test's assertions.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		SpreadPoints: 20,
		Point:        0.01,
		BaseSlippage: 0.00005,
		MarketImpact: 0.00002,
		MaxSlippage:  0.0005,
	}
}

// Paper is an in-memory broker simulator for tests and dry-run operation.
// It carries no persistence of its own; a caller wanting trade history
// records that separately through executor.ExecutionRecorder /
// position.HistoryRecorder, the same as against a real broker.
type Paper struct {
	mu  sync.Mutex
	cfg PaperConfig
	log zerolog.Logger

	connected bool
	midPrice  float64
	symbol    string

	nextTicket    int64
	positions     map[int64]*Position
	pendingOrders map[int64]*PendingOrder

	bars      map[string][]Bar
	dailyBars []risk.DailyBar
	calendar  []CalendarEvent
	account   AccountInfo
}

func NewPaper(symbol string, startPrice float64, cfg PaperConfig, log zerolog.Logger) *Paper {
	return &Paper{
		cfg:           cfg,
		log:           log.With().Str("component", "broker_paper").Logger(),
		connected:     true,
		midPrice:      startPrice,
		symbol:        symbol,
		positions:     make(map[int64]*Position),
		pendingOrders: make(map[int64]*PendingOrder),
		bars:          make(map[string][]Bar),
		account: AccountInfo{
			BalanceUSD:    10000,
			EquityUSD:     10000,
			FreeMarginUSD: 10000,
			Currency:      "USD",
		},
	}
}

// SetMarketPrice moves the simulated mid price a test drives scenarios
// against.
func (p *Paper) SetMarketPrice(price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.midPrice = price
}

// SetBars seeds the OHLC history RecentBars/Bars returns for a timeframe.
func (p *Paper) SetBars(timeframe string, bars []Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[timeframe] = bars
}

// SetDailyBars seeds the daily open/close series RecentDailyBars returns.
func (p *Paper) SetDailyBars(bars []risk.DailyBar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dailyBars = bars
}

// SetCalendarEvents seeds the upcoming economic-calendar feed.
func (p *Paper) SetCalendarEvents(events []CalendarEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calendar = events
}

// SetAccount overrides the account snapshot (balance/equity/free margin).
func (p *Paper) SetAccount(info AccountInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.account = info
}

// SetConnected forces the liveness state a test drives HealthMonitor
// against.
func (p *Paper) SetConnected(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = connected
}

func (p *Paper) spread() float64 {
	return p.cfg.SpreadPoints * p.cfg.Point
}

func (p *Paper) SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	return SymbolInfo{
		Symbol:       symbol,
		Digits:       2,
		Point:        p.cfg.Point,
		ContractSize: 100,
		MinLot:       0.01,
		MaxLot:       50,
		LotStep:      0.01,
		Tradable:     true,
	}, nil
}

func (p *Paper) Tick(ctx context.Context, symbol string) (Tick, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	half := p.spread() / 2
	return Tick{Bid: p.midPrice - half, Ask: p.midPrice + half, Time: time.Now()}, nil
}

func (p *Paper) Bars(ctx context.Context, symbol, timeframe string, count int) ([]Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bars := p.bars[timeframe]
	if len(bars) > count {
		return append([]Bar(nil), bars[len(bars)-count:]...), nil
	}
	return append([]Bar(nil), bars...), nil
}

func (p *Paper) DailyBars(ctx context.Context, symbol string, n int) ([]risk.DailyBar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.dailyBars) > n {
		return append([]risk.DailyBar(nil), p.dailyBars[len(p.dailyBars)-n:]...), nil
	}
	return append([]risk.DailyBar(nil), p.dailyBars...), nil
}

func (p *Paper) Account(ctx context.Context) (AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.account, nil
}

func (p *Paper) Positions(ctx context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (p *Paper) PendingOrders(ctx context.Context) ([]PendingOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PendingOrder, 0, len(p.pendingOrders))
	for _, o := range p.pendingOrders {
		out = append(out, *o)
	}
	return out, nil
}

// calculateSlippage mirrors the teacher exchange's base-plus-impact model,
// capped at MaxSlippage, scaled by the order's lot size.
func (p *Paper) calculateSlippage(lotSize float64) float64 {
	slip := p.cfg.BaseSlippage + p.cfg.MarketImpact*lotSize
	if slip > p.cfg.MaxSlippage {
		slip = p.cfg.MaxSlippage
	}
	return slip
}

// fillPrice applies the spread side and then slippage adverse to the
// trader, same direction conventions as Adapter's CurrentPrice/
// CurrentExitPrice.
func (p *Paper) fillPrice(direction model.Direction, lotSize float64) float64 {
	half := p.spread() / 2
	base := p.midPrice + half
	if direction == model.DirectionSell {
		base = p.midPrice - half
	}
	slip := base * p.calculateSlippage(lotSize)
	if direction == model.DirectionBuy {
		return base + slip
	}
	return base - slip
}

func (p *Paper) SendMarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fill := p.fillPrice(req.Direction, req.LotSize)
	p.nextTicket++
	ticket := p.nextTicket
	p.positions[ticket] = &Position{
		Ticket:    ticket,
		Symbol:    req.Symbol,
		Direction: req.Direction,
		Volume:    req.LotSize,
		OpenPrice: fill,
		SL:        req.SLPrice,
		TP:        req.TPPrice,
		OpenedAt:  time.Now(),
	}
	p.log.Debug().Int64("ticket", ticket).Float64("fill", fill).Msg("paper market order filled")
	return OrderResult{Ticket: ticket}, nil
}

func (p *Paper) SendLimitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextTicket++
	ticket := p.nextTicket
	p.pendingOrders[ticket] = &PendingOrder{Ticket: ticket, Symbol: req.Symbol}
	return OrderResult{Ticket: ticket}, nil
}

func (p *Paper) ModifyPosition(ctx context.Context, ticket int64, sl, tp float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[ticket]
	if !ok {
		return fmt.Errorf("paper broker: ticket %d not found", ticket)
	}
	pos.SL = sl
	pos.TP = tp
	return nil
}

func (p *Paper) ClosePosition(ctx context.Context, ticket int64, volume float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[ticket]
	if !ok {
		return 0, fmt.Errorf("paper broker: ticket %d not found", ticket)
	}
	fill := p.fillPrice(pos.Direction.Opposite(), 0)
	remaining := math.Round((pos.Volume-volume)*100) / 100
	if remaining <= 0 {
		delete(p.positions, ticket)
	} else {
		pos.Volume = remaining
	}
	return fill, nil
}

func (p *Paper) CancelOrder(ctx context.Context, ticket int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pendingOrders[ticket]; !ok {
		return fmt.Errorf("paper broker: pending ticket %d not found", ticket)
	}
	delete(p.pendingOrders, ticket)
	return nil
}

func (p *Paper) CalendarEvents(ctx context.Context, window time.Duration) ([]CalendarEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CalendarEvent(nil), p.calendar...), nil
}

func (p *Paper) IsConnected(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected, nil
}

func (p *Paper) Reconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

// Package scheduler implements the Scheduler (C13): the pending-order
// cancellation window ahead of the daily server-time break, and the
// end-of-day flat-close of every open position. Weekend and
// daily-break detection are exported so internal/notify's HaltWatcher
// can classify the same windows without duplicating the clock math.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ClockTime is a time-of-day, server-time, ignoring date.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) duration() time.Duration {
	return time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute
}

// minus returns the clock time n minutes earlier, wrapping across
// midnight.
func (c ClockTime) minus(minutes int) ClockTime {
	total := ((c.Hour*60+c.Minute-minutes)%1440 + 1440) % 1440
	return ClockTime{Hour: total / 60, Minute: total % 60}
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
}

// inWindow reports whether t's time-of-day falls in [start, end),
// wrapping past midnight when end <= start.
func inWindow(t time.Time, start, end ClockTime) bool {
	now := timeOfDay(t)
	s, e := start.duration(), end.duration()
	if s <= e {
		return now >= s && now < e
	}
	return now >= s || now < e
}

// IsWeekend reports the XAUUSD weekend close: all of Saturday, all of
// Sunday, and Monday 00:00-00:59 UTC (the XM gold market's observed
// reopen lag).
func IsWeekend(now time.Time) bool {
	switch now.UTC().Weekday() {
	case time.Saturday, time.Sunday:
		return true
	case time.Monday:
		return now.UTC().Hour() < 1
	default:
		return false
	}
}

// IsDailyBreak reports whether now falls in the daily server-time
// maintenance window.
func IsDailyBreak(now time.Time, start, end ClockTime) bool {
	return inWindow(now.UTC(), start, end)
}

// Broker is the subset of broker operations the Scheduler drives.
type Broker interface {
	CancelPendingOrders(ctx context.Context) (int, error)
	CloseAllPositions(ctx context.Context) (int, error)
}

// Notifier pushes the pre-cancellation warning. Nil is valid.
type Notifier interface {
	NotifyLimitCancelWarning(ctx context.Context) error
}

// Config holds the server-time window boundaries.
type Config struct {
	DailyBreakStart    ClockTime
	DailyBreakEnd      ClockTime
	LimitCancelStart   ClockTime
	LimitCancelWarnMin int
	EODCloseTime       ClockTime
	CheckInterval      time.Duration
}

// DefaultConfig matches the live system's tuned defaults.
func DefaultConfig() Config {
	return Config{
		DailyBreakStart:    ClockTime{23, 45},
		DailyBreakEnd:      ClockTime{1, 0},
		LimitCancelStart:   ClockTime{23, 30},
		LimitCancelWarnMin: 15,
		EODCloseTime:       ClockTime{23, 30},
		CheckInterval:      30 * time.Second,
	}
}

// Scheduler is C13. Safe for concurrent use.
type Scheduler struct {
	mu sync.Mutex

	broker   Broker
	notifier Notifier
	cfg      Config
	log      zerolog.Logger

	warnedToday    bool
	cancelledToday bool
	closedToday    bool
}

func New(broker Broker, notifier Notifier, cfg Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		broker:   broker,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Run ticks every CheckInterval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one pass of the warn/cancel/flatten state machine. Each
// action fires at most once per entry into its window; the flags
// reset once the clock moves back outside every window so the next
// night's cycle fires again.
func (s *Scheduler) Tick(ctx context.Context) {
	s.tickAt(ctx, time.Now().UTC())
}

func (s *Scheduler) tickAt(ctx context.Context, now time.Time) {
	warnStart := s.cfg.LimitCancelStart.minus(s.cfg.LimitCancelWarnMin)
	inWarnWindow := inWindow(now, warnStart, s.cfg.LimitCancelStart)
	inCancelZone := inWindow(now, s.cfg.LimitCancelStart, s.cfg.DailyBreakEnd)
	inEODWindow := inWindow(now, s.cfg.EODCloseTime, s.cfg.DailyBreakEnd)
	inBreak := IsDailyBreak(now, s.cfg.DailyBreakStart, s.cfg.DailyBreakEnd)

	s.mu.Lock()
	shouldWarn := inWarnWindow && !s.warnedToday
	if shouldWarn {
		s.warnedToday = true
	}
	shouldCancel := inCancelZone && !s.cancelledToday
	if shouldCancel {
		s.cancelledToday = true
	}
	shouldClose := inEODWindow && !s.closedToday
	if shouldClose {
		s.closedToday = true
	}
	if !inWarnWindow && !inCancelZone && !inEODWindow && !inBreak {
		s.warnedToday = false
		s.cancelledToday = false
		s.closedToday = false
	}
	s.mu.Unlock()

	if shouldWarn && s.notifier != nil {
		if err := s.notifier.NotifyLimitCancelWarning(ctx); err != nil {
			s.log.Warn().Err(err).Msg("limit-cancel warning notification failed")
		}
	}

	if shouldCancel {
		count, err := s.broker.CancelPendingOrders(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("pending order cancellation failed")
		} else {
			s.log.Info().Int("cancelled", count).Msg("pending orders cancelled ahead of daily break")
		}
	}

	if shouldClose {
		count, err := s.broker.CloseAllPositions(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("end-of-day flat-close failed")
		} else {
			s.log.Info().Int("closed", count).Msg("end-of-day flat-close executed")
		}
	}
}

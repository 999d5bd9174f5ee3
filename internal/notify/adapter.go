package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/yusuke746/trading-system/internal/scheduler"
)

// goldSymbol is the engine's single traded instrument; see validator's
// normalizeSymbol for the same default.
const goldSymbol = "GOLD"

// StructureSignalNotifier implements dispatcher.StructureNotifier by
// publishing on the bus, fire-and-forget, so an out-of-process
// Revaluator instance reacts as fast as an in-process one.
type StructureSignalNotifier struct {
	bus *Bus
	log zerolog.Logger
}

// NewStructureSignalNotifier builds the dispatcher-facing adapter.
func NewStructureSignalNotifier(bus *Bus, log zerolog.Logger) *StructureSignalNotifier {
	return &StructureSignalNotifier{
		bus: bus,
		log: log.With().Str("component", "notify_structure_notifier").Logger(),
	}
}

// OnNewStructure satisfies dispatcher.StructureNotifier.
func (n *StructureSignalNotifier) OnNewStructure() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := n.bus.PublishStructureSignal(ctx, goldSymbol); err != nil {
			n.log.Warn().Err(err).Msg("structure signal publish failed")
		}
	}()
}

// HaltPublisher is the narrow port HaltWatcher drives; satisfied by *Bus.
type HaltPublisher interface {
	PublishHalt(ctx context.Context, halted bool) error
}

// HaltConfig holds the same window boundaries the Scheduler (C13) uses,
// so the two stay in lockstep without the Scheduler itself depending on
// NATS.
type HaltConfig struct {
	DailyBreakStart scheduler.ClockTime
	DailyBreakEnd   scheduler.ClockTime
}

// HaltWatcher tracks the weekend-close and daily-break windows and
// publishes a control message on each transition, for any out-of-process
// component (a remote Revaluator, an ops dashboard) to pause or resume
// on the Scheduler's trading-halt window without polling the clock
// itself. It holds no broker or position state — the Scheduler remains
// the sole authority for order cancellation and flat-close.
type HaltWatcher struct {
	bus HaltPublisher
	cfg HaltConfig
	log zerolog.Logger

	halted bool
}

// NewHaltWatcher builds a watcher starting in the not-halted state; the
// first Tick call after a real halt window establishes the true state.
func NewHaltWatcher(bus HaltPublisher, cfg HaltConfig, log zerolog.Logger) *HaltWatcher {
	return &HaltWatcher{
		bus: bus,
		cfg: cfg,
		log: log.With().Str("component", "notify_halt_watcher").Logger(),
	}
}

// Tick evaluates now against the halt windows and publishes only when
// the halted state changes since the last call.
func (w *HaltWatcher) Tick(ctx context.Context, now time.Time) {
	halted := scheduler.IsWeekend(now) || scheduler.IsDailyBreak(now, w.cfg.DailyBreakStart, w.cfg.DailyBreakEnd)
	if halted == w.halted {
		return
	}
	w.halted = halted

	if err := w.bus.PublishHalt(ctx, halted); err != nil {
		w.log.Warn().Err(err).Bool("halted", halted).Msg("halt control publish failed")
		return
	}
	w.log.Info().Bool("halted", halted).Msg("trading-halt window transition published")
}

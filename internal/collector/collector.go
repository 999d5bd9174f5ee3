// Package collector implements the SignalCollector (C2): a single logical
// buffer with a reset-on-arrival debounce timer. Signals that land within
// the same debounce window are coalesced into one Batch and handed to the
// BatchDispatcher together.
package collector

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yusuke746/trading-system/internal/model"
)

// DefaultWindow is the debounce window: same-bar signals typically arrive
// within a few hundred milliseconds of each other.
const DefaultWindow = 500 * time.Millisecond

// overflowMultiple bounds the buffer at this multiple of Window to prevent
// unbounded growth if the dispatch callback fails repeatedly.
const overflowMultiple = 4

// Dispatch is invoked with a closed batch when the debounce timer fires.
// A non-nil return requeues the batch at the head of the buffer instead of
// discarding it.
type Dispatch func(model.Batch) error

// Collector buffers inbound signals behind a reset-on-arrival timer.
// Receive is safe to call concurrently with itself and with the internal
// timer firing.
type Collector struct {
	mu       sync.Mutex
	buffer   []model.Signal
	timer    *time.Timer
	window   time.Duration
	dispatch Dispatch
	log      zerolog.Logger
}

// New creates a Collector with the given debounce window. dispatch is
// called from the collector's own timer goroutine, never concurrently with
// itself.
func New(window time.Duration, dispatch Dispatch, log zerolog.Logger) *Collector {
	return &Collector{
		window:   window,
		dispatch: dispatch,
		log:      log.With().Str("component", "signal_collector").Logger(),
	}
}

// Receive appends signal to the buffer and (re)arms the debounce timer,
// cancelling any timer already pending. Arrival order within a batch is
// preserved.
func (c *Collector) Receive(sig model.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffer = append(c.buffer, sig)
	c.log.Debug().Str("source", sig.Source).Str("event", string(sig.Event)).Msg("signal buffered")

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.window, c.flush)
}

// flush runs on the timer goroutine: snapshot-and-clear the buffer, then
// invoke dispatch outside the lock so Receive is never blocked by a slow
// callback.
func (c *Collector) flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = nil
	c.timer = nil
	c.mu.Unlock()

	c.log.Info().Int("count", len(batch)).Msg("batch closed")

	if err := c.dispatch(model.Batch{Signals: batch, ClosedAt: time.Now().UTC()}); err != nil {
		c.log.Error().Err(err).Int("count", len(batch)).Msg("dispatch failed, requeuing at buffer head")
		c.requeue(batch)
	}
}

// requeue puts a failed batch back at the head of the buffer, ahead of
// anything that arrived during the callback. The combined buffer is capped
// at overflowMultiple*Window signals; the oldest signals overflow and are
// dropped with an ERROR log rather than growing without bound.
func (c *Collector) requeue(batch []model.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := append(append([]model.Signal{}, batch...), c.buffer...)
	limit := c.capacity()
	if len(merged) > limit {
		dropped := len(merged) - limit
		merged = merged[dropped:]
		c.log.Error().Int("dropped", dropped).Int("cap", limit).Msg("buffer overflow, oldest signals discarded")
	}
	c.buffer = merged

	if c.timer == nil {
		c.timer = time.AfterFunc(c.window, c.flush)
	}
}

func (c *Collector) capacity() int {
	// 4x the window's worth of signals at the collection rate is a
	// reasonable bound on sustained callback failure; expressed as a
	// signal count rather than a duration since the buffer holds signals,
	// not time. A window of 500ms implies a nominal capacity of
	// overflowMultiple * 50, matching the live system's tuned default.
	const nominalPerWindow = 50
	return overflowMultiple * nominalPerWindow
}

// FlushNow forces an immediate flush, bypassing the timer. Used by tests
// and graceful-shutdown paths that must not leave a partial batch behind.
func (c *Collector) FlushNow() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	c.flush()
}

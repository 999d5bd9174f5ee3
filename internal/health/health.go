// Package health implements the HealthMonitor (C12): a 60-second
// liveness poll of the broker connection with a fixed-interval
// auto-reconnect and coalesced outage notification (only the first
// disconnect of an outage notifies; recovery notifies once and clears
// the coalescing latch).
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConnectionChecker reports whether the broker connection is currently
// alive.
type ConnectionChecker interface {
	IsConnected(ctx context.Context) (bool, error)
}

// Reconnector re-establishes the broker connection.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// Notifier pushes operator-facing outage/recovery alerts. Nil is valid
// (notification is best-effort).
type Notifier interface {
	NotifyDisconnected(ctx context.Context, openPositions int) error
	NotifyReconnected(ctx context.Context) error
}

// PositionSnapshot is the read-only handle into PositionManager (C11)
// HealthMonitor uses to size the urgency of an outage notice.
type PositionSnapshot interface {
	OpenPositionCount() int
}

// Config governs the poll interval and reconnect behavior.
type Config struct {
	CheckInterval     time.Duration
	ReconnectRetries  int
	ReconnectInterval time.Duration
}

// DefaultConfig matches the live system's tuned defaults: 60s polling,
// 3 reconnect attempts 10s apart.
func DefaultConfig() Config {
	return Config{
		CheckInterval:     60 * time.Second,
		ReconnectRetries:  3,
		ReconnectInterval: 10 * time.Second,
	}
}

// Monitor is C12. Safe for concurrent use.
type Monitor struct {
	mu           sync.Mutex
	connected    bool
	notifiedDown bool

	checker     ConnectionChecker
	reconnector Reconnector
	notifier    Notifier
	positions   PositionSnapshot
	cfg         Config
	log         zerolog.Logger
}

// New builds a Monitor. notifier and positions may both be nil.
func New(checker ConnectionChecker, reconnector Reconnector, notifier Notifier, positions PositionSnapshot, cfg Config, log zerolog.Logger) *Monitor {
	return &Monitor{
		connected:   true,
		checker:     checker,
		reconnector: reconnector,
		notifier:    notifier,
		positions:   positions,
		cfg:         cfg,
		log:         log.With().Str("component", "health_monitor").Logger(),
	}
}

// Run polls every CheckInterval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Connected reports the last-observed connection state.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Check runs one liveness check, notifying and attempting reconnect on
// a detected outage.
func (m *Monitor) Check(ctx context.Context) {
	connected, err := m.checker.IsConnected(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("connection check failed, treating as disconnected")
		connected = false
	}

	m.mu.Lock()
	wasConnected := m.connected
	m.mu.Unlock()

	if !connected {
		if wasConnected {
			m.log.Error().Msg("broker connection lost")
			m.notifyDisconnected(ctx)
		}
		m.mu.Lock()
		m.connected = false
		m.mu.Unlock()
		m.reconnect(ctx)
		return
	}

	if !wasConnected {
		m.log.Info().Msg("broker connection recovered")
		m.notifyReconnected(ctx)
	}
	m.mu.Lock()
	m.connected = true
	m.notifiedDown = false
	m.mu.Unlock()
}

// notifyDisconnected sends at most one outage notice per outage
// (coalescing repeat disconnect detections until recovery).
func (m *Monitor) notifyDisconnected(ctx context.Context) {
	m.mu.Lock()
	alreadyNotified := m.notifiedDown
	m.notifiedDown = true
	m.mu.Unlock()
	if alreadyNotified || m.notifier == nil {
		return
	}

	openPositions := 0
	if m.positions != nil {
		openPositions = m.positions.OpenPositionCount()
	}
	if err := m.notifier.NotifyDisconnected(ctx, openPositions); err != nil {
		m.log.Warn().Err(err).Msg("outage notification failed")
	}
}

func (m *Monitor) notifyReconnected(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyReconnected(ctx); err != nil {
		m.log.Warn().Err(err).Msg("recovery notification failed")
	}
}

// reconnect retries Reconnect up to ReconnectRetries times,
// ReconnectInterval apart, stopping early on success or ctx
// cancellation.
func (m *Monitor) reconnect(ctx context.Context) {
	for attempt := 1; attempt <= m.cfg.ReconnectRetries; attempt++ {
		if err := m.reconnector.Reconnect(ctx); err == nil {
			m.log.Info().Int("attempt", attempt).Msg("broker reconnect succeeded")
			m.mu.Lock()
			m.connected = true
			m.notifiedDown = false
			m.mu.Unlock()
			m.notifyReconnected(ctx)
			return
		} else {
			m.log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", m.cfg.ReconnectRetries).Msg("broker reconnect attempt failed")
		}

		if attempt < m.cfg.ReconnectRetries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.ReconnectInterval):
			}
		}
	}
	m.log.Error().Int("attempts", m.cfg.ReconnectRetries).Msg("broker reconnect exhausted all retries")
}

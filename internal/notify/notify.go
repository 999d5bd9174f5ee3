// Package notify wraps NATS for the two cross-process signals the engine
// needs beyond its own in-memory channels: telling a Revaluator (C9)
// instance that new structure signals were just persisted by the
// BatchDispatcher (C7), and broadcasting the Scheduler's (C13)
// trading-halt window so any out-of-process component can pause intake
// rather than poll the clock itself.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/yusuke746/trading-system/internal/metrics"
)

// Config configures the NATS connection and the two subjects the bus
// drives, matching internal/config's NATSConfig fields.
type Config struct {
	URL             string
	StructureTopic  string // base subject for structure-signal notices; the per-symbol subject is StructureTopic + "." + symbol
	ControlTopic    string // subject for halt/resume control messages
	EnableJetStream bool   // reserved: both subjects are fire-and-forget notices, not a record a subscriber must never miss — the Revaluator's own 15s poll is the backup, so core NATS pub/sub is sufficient and JetStream's persistence isn't wired
}

// DefaultConfig matches internal/config's NATSConfig defaults.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		StructureTopic: "gold-engine.structure",
		ControlTopic:   "gold-engine.control",
	}
}

// structureSignalMsg is the payload published on a new structure signal.
type structureSignalMsg struct {
	Symbol string    `json:"symbol"`
	At     time.Time `json:"at"`
}

// haltMsg is the payload published on a trading-halt window transition.
type haltMsg struct {
	Halted bool      `json:"halted"`
	At     time.Time `json:"at"`
}

// Bus is a thin NATS wrapper scoped to the engine's two control subjects.
// Safe for concurrent use; every method is a direct passthrough to the
// underlying connection.
type Bus struct {
	nc             *nats.Conn
	structureTopic string
	controlTopic   string
	log            zerolog.Logger
}

// NewBus connects to NATS with indefinite reconnect, matching the
// engine's other long-lived outbound connections.
func NewBus(cfg Config, log zerolog.Logger) (*Bus, error) {
	log = log.With().Str("component", "notify_bus").Logger()

	structureTopic := cfg.StructureTopic
	if structureTopic == "" {
		structureTopic = DefaultConfig().StructureTopic
	}
	controlTopic := cfg.ControlTopic
	if controlTopic == "" {
		controlTopic = DefaultConfig().ControlTopic
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(
		url,
		nats.Name("trading-engine"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: connect to NATS: %w", err)
	}

	log.Info().Str("url", url).Str("structure_topic", structureTopic).Str("control_topic", controlTopic).Msg("notify bus connected")

	return &Bus{nc: nc, structureTopic: structureTopic, controlTopic: controlTopic, log: log}, nil
}

func (b *Bus) structureSubject(symbol string) string {
	return b.structureTopic + "." + symbol
}

func (b *Bus) haltSubject() string {
	return b.controlTopic
}

// PublishStructureSignal announces that a new structure signal for symbol
// was just persisted.
func (b *Bus) PublishStructureSignal(ctx context.Context, symbol string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	subject := b.structureSubject(symbol)
	data, err := json.Marshal(structureSignalMsg{Symbol: symbol, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("notify: marshal structure signal: %w", err)
	}
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("notify: publish structure signal: %w", err)
	}
	metrics.RecordNATSPublish(subject)
	return nil
}

// SubscribeStructureSignals calls handler with the symbol every time a
// structure-signal notice arrives for any symbol.
func (b *Bus) SubscribeStructureSignals(handler func(symbol string)) (*Subscription, error) {
	subject := b.structureSubject("*")
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var parsed structureSignalMsg
		if err := json.Unmarshal(msg.Data, &parsed); err != nil {
			b.log.Warn().Err(err).Msg("failed to unmarshal structure signal message")
			return
		}
		metrics.RecordNATSReceive(msg.Subject)
		handler(parsed.Symbol)
	})
	if err != nil {
		return nil, fmt.Errorf("notify: subscribe structure signals: %w", err)
	}
	return &Subscription{sub: sub, subject: subject, log: b.log}, nil
}

// PublishHalt broadcasts a trading-halt window transition.
func (b *Bus) PublishHalt(ctx context.Context, halted bool) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	subject := b.haltSubject()
	data, err := json.Marshal(haltMsg{Halted: halted, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("notify: marshal halt message: %w", err)
	}
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("notify: publish halt message: %w", err)
	}
	metrics.RecordNATSPublish(subject)
	return nil
}

// SubscribeHalt calls handler with the new halted state on every
// transition of the trading-halt window.
func (b *Bus) SubscribeHalt(handler func(halted bool)) (*Subscription, error) {
	subject := b.haltSubject()
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var parsed haltMsg
		if err := json.Unmarshal(msg.Data, &parsed); err != nil {
			b.log.Warn().Err(err).Msg("failed to unmarshal halt message")
			return
		}
		metrics.RecordNATSReceive(msg.Subject)
		handler(parsed.Halted)
	})
	if err != nil {
		return nil, fmt.Errorf("notify: subscribe halt: %w", err)
	}
	return &Subscription{sub: sub, subject: subject, log: b.log}, nil
}

// Close closes the underlying NATS connection without draining it.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
		b.log.Info().Msg("notify bus closed")
	}
}

// Subscription is an active subscription on one of the bus's subjects.
type Subscription struct {
	sub     *nats.Subscription
	subject string
	log     zerolog.Logger
}

// Unsubscribe cancels the subscription.
func (s *Subscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("notify: unsubscribe %s: %w", s.subject, err)
	}
	s.log.Info().Str("subject", s.subject).Msg("unsubscribed")
	return nil
}

package notifications

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// LogBackend is the only Backend in this repository (cmd/engine/main.go
// always wires it): it logs the alert at Warn level instead of sending a
// push notification, so outage/halt events still surface somewhere.
type LogBackend struct {
	log zerolog.Logger
}

func NewLogBackend(log zerolog.Logger) *LogBackend {
	return &LogBackend{log: log.With().Str("component", "notifications_log_backend").Logger()}
}

func (b *LogBackend) Send(_ context.Context, deviceToken string, notification Notification) error {
	b.log.Warn().
		Str("type", string(notification.Type)).
		Str("title", notification.Title).
		Str("body", notification.Body).
		Str("priority", notification.Priority).
		Msg("operator alert")
	return nil
}

func (b *LogBackend) Name() string { return "log" }

func (b *LogBackend) Close() error { return nil }

// OperatorID is the single registered device-owner this single-instrument
// engine pages for outage/halt alerts; there is no multi-user roster here,
// unlike the teacher's per-trader device registry.
const OperatorID = "operator"

// OperatorNotifier adapts Service to the narrow single-method alert ports
// internal/health and internal/scheduler each declare for themselves, so
// the same push-notification/device-registry machinery backs both a
// broker disconnect and a pre-close-window warning.
type OperatorNotifier struct {
	service Service
}

func NewOperatorNotifier(service Service) *OperatorNotifier {
	return &OperatorNotifier{service: service}
}

// NotifyDisconnected implements health.Notifier.
func (n *OperatorNotifier) NotifyDisconnected(ctx context.Context, openPositions int) error {
	return n.service.SendToUser(ctx, OperatorID, Notification{
		Type:     NotificationTypeCircuitBreaker,
		Title:    "Broker disconnected",
		Body:     fmt.Sprintf("Broker connection lost with %d open position(s)", openPositions),
		Priority: "high",
	})
}

// NotifyReconnected implements health.Notifier.
func (n *OperatorNotifier) NotifyReconnected(ctx context.Context) error {
	return n.service.SendToUser(ctx, OperatorID, Notification{
		Type:     NotificationTypeCircuitBreaker,
		Title:    "Broker reconnected",
		Body:     "Broker connection restored",
		Priority: "normal",
	})
}

// NotifyLimitCancelWarning implements scheduler.Notifier.
func (n *OperatorNotifier) NotifyLimitCancelWarning(ctx context.Context) error {
	return n.service.SendToUser(ctx, OperatorID, Notification{
		Type:     NotificationTypeCircuitBreaker,
		Title:    "Pending orders about to be cancelled",
		Body:     "The daily break window is about to cancel resting limit orders",
		Priority: "normal",
	})
}

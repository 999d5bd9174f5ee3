package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}

	ns, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	return ns
}

func setupTestBus(t *testing.T) (*Bus, *natsserver.Server) {
	t.Helper()
	ns := startTestNATSServer(t)

	bus, err := NewBus(Config{URL: ns.ClientURL(), StructureTopic: "test.structure", ControlTopic: "test.control"}, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, bus)

	return bus, ns
}

func TestNewBusDefaultsTopicsAndURL(t *testing.T) {
	ns := startTestNATSServer(t)
	defer ns.Shutdown()

	bus, err := NewBus(Config{URL: ns.ClientURL()}, zerolog.Nop())
	require.NoError(t, err)
	defer bus.Close()

	assert.Equal(t, "gold-engine.structure", bus.structureTopic)
	assert.Equal(t, "gold-engine.control", bus.controlTopic)
}

func TestPublishStructureSignalDeliversToSubscriber(t *testing.T) {
	bus, ns := setupTestBus(t)
	defer ns.Shutdown()
	defer bus.Close()

	var mu sync.Mutex
	var received string
	done := make(chan struct{}, 1)

	sub, err := bus.SubscribeStructureSignals(func(symbol string) {
		mu.Lock()
		received = symbol
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, bus.PublishStructureSignal(context.Background(), "GOLD"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for structure signal")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "GOLD", received)
}

func TestPublishHaltDeliversToSubscriber(t *testing.T) {
	bus, ns := setupTestBus(t)
	defer ns.Shutdown()
	defer bus.Close()

	var mu sync.Mutex
	var received bool
	done := make(chan struct{}, 1)

	sub, err := bus.SubscribeHalt(func(halted bool) {
		mu.Lock()
		received = halted
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, bus.PublishHalt(context.Background(), true))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for halt message")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, received)
}

func TestPublishStructureSignalRespectsCancelledContext(t *testing.T) {
	bus, ns := setupTestBus(t)
	defer ns.Shutdown()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bus.PublishStructureSignal(ctx, "GOLD")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscriptionUnsubscribeStopsDelivery(t *testing.T) {
	bus, ns := setupTestBus(t)
	defer ns.Shutdown()
	defer bus.Close()

	calls := 0
	sub, err := bus.SubscribeStructureSignals(func(string) { calls++ })
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.sub.IsValid())
}

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yusuke746/trading-system/internal/model"
)

type fakeReceiver struct {
	received []model.Signal
}

func (f *fakeReceiver) Receive(sig model.Signal) {
	f.received = append(f.received, sig)
}

type fakeHealth struct {
	connected bool
}

func (f *fakeHealth) Connected() bool { return f.connected }

func newTestServer(receiver SignalReceiver, health HealthChecker) *Server {
	return NewServer(Config{Host: "127.0.0.1", Port: 0, Receiver: receiver, Health: health}, zerolog.Nop())
}

func TestHandleWebhookAcceptsAValidEntryTriggerPayload(t *testing.T) {
	receiver := &fakeReceiver{}
	s := newTestServer(receiver, &fakeHealth{connected: true})

	body := `{"signal_type":"entry_trigger","event":"prediction_signal","direction":"buy","price":1950.5,"symbol":"XAUUSD"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, receiver.received, 1)
	assert.Equal(t, model.DirectionBuy, receiver.received[0].Direction)
	assert.Equal(t, "GOLD", receiver.received[0].Symbol)
}

func TestHandleWebhookRejectsMissingRequiredField(t *testing.T) {
	receiver := &fakeReceiver{}
	s := newTestServer(receiver, &fakeHealth{connected: true})

	body := `{"event":"prediction_signal","price":1950.5}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, receiver.received)
}

func TestHandleWebhookRejectsMalformedJSON(t *testing.T) {
	receiver := &fakeReceiver{}
	s := newTestServer(receiver, &fakeHealth{connected: true})

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{not json`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWebhookAcceptsAStructureSignalWithNoDirection(t *testing.T) {
	receiver := &fakeReceiver{}
	s := newTestServer(receiver, &fakeHealth{connected: true})

	body := `{"signal_type":"structure","event":"fvg_touch","price":1950.5,"symbol":"XAUUSD"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, receiver.received, 1)
	assert.Equal(t, model.KindStructure, receiver.received[0].Kind)
}

func TestHandleHealthReports200WhenBrokerConnected(t *testing.T) {
	s := newTestServer(&fakeReceiver{}, &fakeHealth{connected: true})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealthReports503WhenBrokerDisconnected(t *testing.T) {
	s := newTestServer(&fakeReceiver{}, &fakeHealth{connected: false})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

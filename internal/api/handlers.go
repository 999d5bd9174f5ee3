package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yusuke746/trading-system/internal/errs"
	"github.com/yusuke746/trading-system/internal/metrics"
	"github.com/yusuke746/trading-system/internal/validator"
)

// handleRoot reports basic service identity.
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "trading-engine",
		"status":  "running",
		"uptime":  time.Since(startTime).Seconds(),
		"time":    time.Now().UTC(),
	})
}

// handleWebhook decodes an inbound chart-service payload, hands it
// through the Validator (C1), and on success forwards it to the
// SignalCollector (C2). Responses per spec §6: 200 on acceptance, 400 on
// a malformed/invalid payload (any JSON decode error included), 500 only
// when the Validator fails with an error that is not a validation error.
func (s *Server) handleWebhook(c *gin.Context) {
	var raw validator.Raw
	if err := json.NewDecoder(c.Request.Body).Decode(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "malformed JSON body"})
		return
	}

	sig, err := validator.Validate(raw)
	if err != nil {
		if errs.Is(err, errs.KindValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
			return
		}
		s.log.Error().Err(err).Msg("unexpected validator failure")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "internal error"})
		return
	}

	metrics.RecordSignalReceived(string(sig.Kind))
	s.receiver.Receive(sig)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleHealth reports 200 while the broker connection is up, 503 once
// the HealthMonitor has detected a disconnect.
func (s *Server) handleHealth(c *gin.Context) {
	connected := s.health == nil || s.health.Connected()
	metrics.SetBrokerConnected(connected)
	if connected {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "broker disconnected"})
}

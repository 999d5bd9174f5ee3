package api

// setupRoutes configures the webhook entry point and the two external
// interfaces spec §6 names — everything else (positions, orders, trade
// control) lives inside the engine's own workers, not behind HTTP.
func (s *Server) setupRoutes() {
	s.router.POST("/webhook", s.handleWebhook)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/", s.handleRoot)
}

// Package server wires HTTP handlers into a ServeMux via routing helpers.
package server

import (
	"net/http"

	"github.com/Tyrowin/orgchat/internal/telemetry"
)

// Routes returns a ServeMux with the status page, health check, WebSocket
// endpoint and, when enabled, the metrics endpoint.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", StatusHandler)
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	if s.cfg.Metrics.Enabled {
		mux.Handle(s.cfg.Metrics.Path, telemetry.Handler())
	}
	return mux
}

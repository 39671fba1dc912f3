// Package server exposes HTTP handlers, including WebSocket upgrades and
// health checks.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

func newConnID() string {
	return uuid.NewString()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.origins.allows(r) {
		return true
	}

	s.log.Warn().Str("origin", r.Header.Get("Origin")).Msg("blocked websocket connection from disallowed origin")
	return false
}

// WebSocketHandler upgrades GET requests on /ws, registers the connection
// with the coordinator and starts its pumps. A connection the coordinator
// refuses is closed straight away; no other connection is affected.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := newClient(s.ctx, s.newID(), conn, r.RemoteAddr, s.cfg, s.coord, s.log)

	if err := s.coord.Register(s.ctx, client.id, client); err != nil {
		s.log.Warn().Err(err).Str("conn", client.id).Str("addr", r.RemoteAddr).Msg("connection registration refused")
		client.close()
		return
	}

	client.log.Debug().Msg("client registered")
	s.start(client)
}

// StatusHandler responds with a plain text liveness message.
func StatusHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "orgchat server is running!")
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// HealthHandler reports liveness and the number of connected clients as JSON.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", Connections: s.ClientCount()}); err != nil {
		s.log.Warn().Err(err).Msg("error writing health response")
	}
}

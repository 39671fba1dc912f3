// Package server owns the set of live WebSocket clients and coordinates
// their shutdown.
package server

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/orgchat/internal/config"
	"github.com/Tyrowin/orgchat/internal/logging"
	"github.com/Tyrowin/orgchat/internal/session"
)

// Coordinator is the part of session.Coordinator the transport depends on.
type Coordinator interface {
	Register(ctx context.Context, connID string, sink session.Sink) error
	Submit(ctx context.Context, cmd session.Command) error
}

// Server accepts WebSocket connections and bridges them to a Coordinator.
type Server struct {
	cfg      config.Config
	coord    Coordinator
	upgrader websocket.Upgrader
	origins  originPolicy
	newID    func() string
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

type Option func(*Server)

// WithIDGenerator overrides how connection identifiers are assigned.
func WithIDGenerator(gen func() string) Option {
	return func(s *Server) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func New(cfg config.Config, coord Coordinator, opts ...Option) *Server {
	log := logging.Component("server")
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:     cfg,
		coord:   coord,
		origins: newOriginPolicy(cfg.WebSocket.AllowedOrigins, log),
		newID:   newConnID,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*Client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClientCount returns the number of connections with running pumps.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) track(c *Client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// start launches the pumps for a registered client.
func (s *Server) start(c *Client) {
	s.track(c)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		defer s.untrack(c)
		c.readPump()
	}()
}

// Shutdown closes every client connection and waits for their pumps to
// finish or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	s.log.Info().Int("clients", len(clients)).Msg("closing client connections")
	for _, c := range clients {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("all client pumps stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn().Msg("shutdown deadline reached with client pumps still running")
		return ctx.Err()
	}
}

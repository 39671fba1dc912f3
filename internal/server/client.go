// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/orgchat/internal/config"
	"github.com/Tyrowin/orgchat/internal/protocol"
	"github.com/Tyrowin/orgchat/internal/session"
)

// Client is one WebSocket connection. It implements session.Sink: events are
// encoded and queued on send, and the write pump drains the queue.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	addr    string
	ws      config.WebSocketConfig
	limiter *rate.Limiter
	coord   Coordinator
	ctx     context.Context
	log     zerolog.Logger

	closeOnce sync.Once
}

var _ session.Sink = (*Client)(nil)

func newClient(ctx context.Context, id string, conn *websocket.Conn, addr string, cfg config.Config, coord Coordinator, log zerolog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.WebSocket.MaxMessageSize)
	}

	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, cfg.WebSocket.SendBuffer),
		done:    make(chan struct{}),
		addr:    addr,
		ws:      cfg.WebSocket,
		limiter: newRateLimiter(cfg.RateLimit),
		coord:   coord,
		ctx:     ctx,
		log:     log.With().Str("conn", id).Str("addr", addr).Logger(),
	}
}

func (c *Client) ID() string { return c.id }

// Deliver encodes ev and queues it without blocking.
func (c *Client) Deliver(ev session.Event) error {
	frame, err := protocol.EncodeEvent(ev)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// close stops the write pump and releases the socket. Safe to call repeatedly.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				c.log.Warn().Err(err).Msg("error closing connection")
			}
		}
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.ws.PongWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.ws.PongWait))
	})
}

// logReadError records why the read loop ended.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.ws.MaxMessageSize).Msg("message exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err) ||
		websocket.IsCloseError(err, websocket.CloseAbnormalClosure):
		c.log.Debug().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("unexpected websocket read error")
	}
}

// processFrame decodes a raw frame and submits the resulting command. Frames
// that do not decode are dropped; the client is never told.
func (c *Client) processFrame(raw []byte) {
	if !c.limiter.Allow() {
		c.log.Warn().Msg("rate limit exceeded; discarding frame")
		return
	}

	cmd, err := protocol.DecodeCommand(c.id, raw)
	if err != nil {
		c.log.Debug().Err(err).Msg("dropping undecodable frame")
		return
	}

	if err := c.coord.Submit(c.ctx, cmd); err != nil {
		c.log.Debug().Err(err).Str("command", cmd.Kind.String()).Msg("command not submitted")
	}
}

func (c *Client) readPump() {
	defer func() {
		c.disconnect()
		c.close()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.processFrame(raw)
	}
}

// disconnect tells the coordinator this connection is gone. It does not use
// the server context so the notice still goes out while connections drain.
func (c *Client) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.ws.WriteWait)
	defer cancel()

	if err := c.coord.Submit(ctx, session.Disconnect(c.id)); err != nil && !errors.Is(err, session.ErrStopped) {
		c.log.Warn().Err(err).Msg("disconnect not submitted")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.ws.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		case <-c.done:
			c.writeClose()
			return
		}
	}
}

func (c *Client) writeFrame(frame []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.ws.WriteWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline")
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing frame")
		}
		return false
	}
	return true
}

// writePing sends a ping message to keep the connection alive
func (c *Client) writePing() bool {
	deadline := time.Now().Add(c.ws.WriteWait)
	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing ping")
		}
		return false
	}
	return true
}

func (c *Client) writeClose() {
	deadline := time.Now().Add(c.ws.WriteWait)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !isExpectedCloseError(err) {
		c.log.Debug().Err(err).Msg("error writing close message")
	}
}

// Package session implements the coordinator that owns per-connection state
// and decides which events each command produces.
//
// All state-changing commands are funnelled through a single goroutine
// (Run), so the identity and organization invariants hold without callers
// taking any lock. Delivery is delegated to a Router once an event has been
// decided.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/orgchat/internal/identity"
	"github.com/Tyrowin/orgchat/internal/logging"
	"github.com/Tyrowin/orgchat/internal/organization"
	"github.com/Tyrowin/orgchat/internal/telemetry"
)

const defaultQueueSize = 256

var (
	ErrStopped        = errors.New("session: coordinator stopped")
	ErrUnknownCommand = errors.New("session: unknown command")
)

type Option func(*Coordinator)

// WithQueueSize sets the capacity of the inbound command queue.
func WithQueueSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

// Coordinator validates commands against connection state, mutates the
// registries and hands resulting events to the router.
type Coordinator struct {
	identities *identity.Registry
	orgs       *organization.Registry
	router     Router
	log        zerolog.Logger

	queueSize int
	cmds      chan Command
	stopped   chan struct{}
}

func New(identities *identity.Registry, orgs *organization.Registry, router Router, opts ...Option) *Coordinator {
	c := &Coordinator{
		identities: identities,
		orgs:       orgs,
		router:     router,
		log:        logging.Component("session"),
		queueSize:  defaultQueueSize,
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cmds = make(chan Command, c.queueSize)
	return c
}

// Run processes queued commands one at a time until ctx is cancelled. It must
// be called exactly once.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)

	c.log.Info().Int("queue_size", c.queueSize).Msg("coordinator started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Int("pending", len(c.cmds)).Msg("coordinator stopped")
			return nil
		case cmd := <-c.cmds:
			out := c.Handle(cmd)
			if cmd.result != nil {
				cmd.result <- out
			}
		}
	}
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.stopped
}

// Submit queues cmd for the coordinator without waiting for it to be handled.
func (c *Coordinator) Submit(ctx context.Context, cmd Command) error {
	select {
	case <-c.stopped:
		return ErrStopped
	default:
	}

	select {
	case c.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
}

// Register connects connID with sink and waits until the coordinator has
// accepted or refused it. A refusal only concerns this connection.
func (c *Coordinator) Register(ctx context.Context, connID string, sink Sink) error {
	cmd := Connect(connID, sink)
	cmd.result = make(chan Outcome, 1)

	if err := c.Submit(ctx, cmd); err != nil {
		return err
	}

	select {
	case out := <-cmd.result:
		if out.Status == StatusFailed {
			return out.Err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
}

// Handle applies one command synchronously. Run is its only concurrent
// caller; tests may call it directly as long as Run is not active.
func (c *Coordinator) Handle(cmd Command) Outcome {
	var out Outcome
	switch cmd.Kind {
	case CommandConnect:
		out = c.connect(cmd)
	case CommandDisconnect:
		out = c.disconnect(cmd)
	case CommandLogin:
		out = c.login(cmd)
	case CommandNewOrg:
		out = c.newOrg(cmd)
	case CommandNewMessage:
		out = c.newMessage(cmd)
	default:
		out = failed("unknown_command", fmt.Errorf("%w: %d", ErrUnknownCommand, cmd.Kind))
	}

	c.observe(cmd, out)
	return out
}

func (c *Coordinator) connect(cmd Command) Outcome {
	if _, err := c.identities.OnConnect(cmd.ConnID); err != nil {
		return failed("duplicate_connection", err)
	}
	if cmd.Sink != nil {
		if err := c.router.Attach(cmd.ConnID, cmd.Sink); err != nil {
			c.identities.OnDisconnect(cmd.ConnID)
			return failed("duplicate_sink", err)
		}
	}

	c.router.Broadcast(Event{Kind: EventLoginMessage, Content: JoinNotice})
	return applied()
}

func (c *Coordinator) disconnect(cmd Command) Outcome {
	c.router.Detach(cmd.ConnID)
	if _, ok := c.identities.OnDisconnect(cmd.ConnID); !ok {
		return rejected("unknown_connection")
	}

	c.router.Broadcast(Event{Kind: EventDisconnectMessage, Content: LeaveNotice})
	return applied()
}

func (c *Coordinator) login(cmd Command) Outcome {
	conn, err := c.identities.Login(cmd.ConnID, cmd.Username)
	switch {
	case errors.Is(err, identity.ErrAlreadyLoggedIn):
		return rejected("already_logged_in")
	case errors.Is(err, identity.ErrNotFound):
		return rejected("unknown_connection")
	case err != nil:
		return failed("login", err)
	}

	c.log.Info().Str("conn", conn.ID).Str("username", conn.Username).Msg("connection logged in")
	c.router.Unicast(cmd.ConnID, Event{Kind: EventLoggedIn, UserID: cmd.ConnID})
	return applied()
}

func (c *Coordinator) newOrg(cmd Command) Outcome {
	conn, err := c.identities.Get(cmd.ConnID)
	if err != nil {
		return rejected("unknown_connection")
	}
	if !conn.LoggedIn {
		return rejected("not_logged_in")
	}

	org, created := c.orgs.FindOrCreate(cmd.OrgName)
	if created {
		c.log.Info().Str("org_id", org.ID).Str("org", org.Name).Str("conn", conn.ID).Msg("organization created")
	}

	c.router.Unicast(cmd.ConnID, Event{
		Kind:         EventOrgFound,
		UserID:       cmd.ConnID,
		Organization: org,
	})
	return applied()
}

// newMessage is deliberately not gated on login; any registered connection
// may broadcast.
func (c *Coordinator) newMessage(cmd Command) Outcome {
	if _, err := c.identities.Get(cmd.ConnID); err != nil {
		return rejected("unknown_connection")
	}

	c.router.Broadcast(Event{Kind: EventBroadcastMessage, Content: cmd.Content})
	return applied()
}

func (c *Coordinator) observe(cmd Command, out Outcome) {
	telemetry.CommandsTotal.WithLabelValues(cmd.Kind.String(), out.Status.String()).Inc()
	telemetry.Connections.Set(float64(c.identities.Len()))
	telemetry.Organizations.Set(float64(c.orgs.Len()))

	switch out.Status {
	case StatusRejected:
		lvl := zerolog.DebugLevel
		if cmd.Kind == CommandDisconnect {
			lvl = zerolog.WarnLevel
		}
		c.log.WithLevel(lvl).
			Str("conn", cmd.ConnID).
			Str("command", cmd.Kind.String()).
			Str("reason", out.Reason).
			Msg("command dropped")
	case StatusFailed:
		c.log.Warn().
			Err(out.Err).
			Str("conn", cmd.ConnID).
			Str("command", cmd.Kind.String()).
			Str("reason", out.Reason).
			Msg("command failed")
	}
}

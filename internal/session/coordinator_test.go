package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/orgchat/internal/identity"
	"github.com/Tyrowin/orgchat/internal/logging"
	"github.com/Tyrowin/orgchat/internal/organization"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Deliver(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) take() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// mapRouter is a minimal in-memory Router used to observe coordinator output.
type mapRouter struct {
	mu    sync.Mutex
	sinks map[string]Sink
}

func newMapRouter() *mapRouter {
	return &mapRouter{sinks: make(map[string]Sink)}
}

func (m *mapRouter) Attach(connID string, sink Sink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sinks[connID]; ok {
		return errors.New("duplicate sink")
	}
	m.sinks[connID] = sink
	return nil
}

func (m *mapRouter) Detach(connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sinks[connID]
	delete(m.sinks, connID)
	return ok
}

func (m *mapRouter) Unicast(connID string, ev Event) {
	m.mu.Lock()
	sink, ok := m.sinks[connID]
	m.mu.Unlock()
	if ok {
		_ = sink.Deliver(ev)
	}
}

func (m *mapRouter) Broadcast(ev Event) {
	m.mu.Lock()
	sinks := make([]Sink, 0, len(m.sinks))
	for _, s := range m.sinks {
		sinks = append(sinks, s)
	}
	m.mu.Unlock()
	for _, s := range sinks {
		_ = s.Deliver(ev)
	}
}

type fixture struct {
	ids    *identity.Registry
	orgs   *organization.Registry
	router *mapRouter
	coord  *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logging.ConfigureTests()
	f := &fixture{
		ids:    identity.NewRegistry(),
		orgs:   organization.NewRegistry(),
		router: newMapRouter(),
	}
	f.coord = New(f.ids, f.orgs, f.router)
	return f
}

func (f *fixture) connect(t *testing.T, id string) *recorder {
	t.Helper()
	rec := &recorder{}
	out := f.coord.Handle(Connect(id, rec))
	require.Equal(t, StatusApplied, out.Status)
	return rec
}

func TestConnectAnnouncesJoinToEveryone(t *testing.T) {
	f := newFixture(t)

	a := f.connect(t, "A")
	assert.Equal(t, []Event{{Kind: EventLoginMessage, Content: JoinNotice}}, a.take())

	b := f.connect(t, "B")
	assert.Equal(t, 1, a.count(EventLoginMessage))
	assert.Equal(t, 1, b.count(EventLoginMessage))

	conn, err := f.ids.Get("B")
	require.NoError(t, err)
	assert.True(t, conn.Connected)
	assert.False(t, conn.LoggedIn)
}

func TestConnectDuplicateFailsOnlyThatRegistration(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "A")
	a.take()

	intruder := &recorder{}
	out := f.coord.Handle(Connect("A", intruder))
	assert.Equal(t, StatusFailed, out.Status)
	require.ErrorIs(t, out.Err, identity.ErrAlreadyConnected)

	assert.Empty(t, intruder.take())
	assert.Empty(t, a.take())

	// The original connection keeps working.
	f.coord.Handle(Login("A", "alice"))
	assert.Equal(t, []Event{{Kind: EventLoggedIn, UserID: "A"}}, a.take())
}

func TestLoginIsAOneWayGate(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "A")
	a.take()

	out := f.coord.Handle(Login("A", "alice"))
	require.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, []Event{{Kind: EventLoggedIn, UserID: "A"}}, a.take())

	out = f.coord.Handle(Login("A", "bob"))
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, "already_logged_in", out.Reason)
	assert.Empty(t, a.take(), "second login emits nothing")

	conn, err := f.ids.Get("A")
	require.NoError(t, err)
	assert.Equal(t, "alice", conn.Username)
}

func TestLoginUnknownConnectionIsDropped(t *testing.T) {
	f := newFixture(t)
	out := f.coord.Handle(Login("nobody", "x"))
	assert.Equal(t, StatusRejected, out.Status)
}

func TestNewOrgRequiresLogin(t *testing.T) {
	f := newFixture(t)
	b := f.connect(t, "B")
	b.take()

	out := f.coord.Handle(NewOrg("B", "acme"))
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, "not_logged_in", out.Reason)
	assert.Empty(t, b.take())
	assert.Zero(t, f.orgs.Len(), "no organization is created")

	out = f.coord.Handle(NewOrg("ghost", "acme"))
	assert.Equal(t, StatusRejected, out.Status)
	assert.Zero(t, f.orgs.Len())
}

func TestNewOrgFindOrCreate(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "A")
	f.coord.Handle(Login("A", "alice"))
	a.take()

	f.coord.Handle(NewOrg("A", "acme"))
	events := a.take()
	require.Len(t, events, 1)
	first := events[0]
	assert.Equal(t, EventOrgFound, first.Kind)
	assert.Equal(t, "A", first.UserID)
	assert.Equal(t, "acme", first.Organization.Name)
	assert.Empty(t, first.Organization.Namespace)
	assert.Empty(t, first.Organization.Rooms)

	f.coord.Handle(NewOrg("A", "acme"))
	events = a.take()
	require.Len(t, events, 1)
	assert.Equal(t, first.Organization.ID, events[0].Organization.ID)
	assert.Equal(t, 1, f.orgs.Len())
}

func TestNewMessageBroadcastsToAllIncludingSender(t *testing.T) {
	f := newFixture(t)
	recs := map[string]*recorder{}
	for _, id := range []string{"A", "B", "C"} {
		recs[id] = f.connect(t, id)
	}
	for _, r := range recs {
		r.take()
	}

	// Anonymous senders are allowed.
	out := f.coord.Handle(NewMessage("A", "hi"))
	require.Equal(t, StatusApplied, out.Status)

	for id, r := range recs {
		assert.Equal(t, []Event{{Kind: EventBroadcastMessage, Content: "hi"}}, r.take(), "recipient %s", id)
	}
}

func TestNewMessageFromUnknownConnectionIsDropped(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "A")
	a.take()

	out := f.coord.Handle(NewMessage("gone", "hi"))
	assert.Equal(t, StatusRejected, out.Status)
	assert.Empty(t, a.take())
}

func TestDisconnectCleansUpAndNotifiesOthers(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "A")
	b := f.connect(t, "B")
	c := f.connect(t, "C")
	f.coord.Handle(Login("A", "alice"))
	a.take()
	b.take()
	c.take()

	out := f.coord.Handle(Disconnect("A"))
	require.Equal(t, StatusApplied, out.Status)

	_, err := f.ids.Get("A")
	require.ErrorIs(t, err, identity.ErrNotFound)
	assert.Empty(t, a.take(), "disconnected connection receives nothing")
	assert.Equal(t, []Event{{Kind: EventDisconnectMessage, Content: LeaveNotice}}, b.take())
	assert.Equal(t, []Event{{Kind: EventDisconnectMessage, Content: LeaveNotice}}, c.take())

	out = f.coord.Handle(Disconnect("A"))
	assert.Equal(t, StatusRejected, out.Status)
	assert.Empty(t, b.take(), "repeated disconnect is not announced")
}

func TestUnknownCommandFails(t *testing.T) {
	f := newFixture(t)
	out := f.coord.Handle(Command{Kind: CommandKind(99), ConnID: "A"})
	assert.Equal(t, StatusFailed, out.Status)
	require.ErrorIs(t, out.Err, ErrUnknownCommand)
}

// TestAcmeScenario walks through two participants sharing one organization.
func TestAcmeScenario(t *testing.T) {
	f := newFixture(t)

	a := f.connect(t, "A")
	f.coord.Handle(Login("A", "alice"))
	assert.Contains(t, a.take(), Event{Kind: EventLoggedIn, UserID: "A"})

	b := f.connect(t, "B")
	b.take()
	a.take()

	f.coord.Handle(NewOrg("B", "acme"))
	assert.Empty(t, b.take())

	f.coord.Handle(NewOrg("A", "acme"))
	aEvents := a.take()
	require.Len(t, aEvents, 1)
	assert.Equal(t, EventOrgFound, aEvents[0].Kind)
	assert.Equal(t, "A", aEvents[0].UserID)
	assert.Equal(t, "acme", aEvents[0].Organization.Name)

	f.coord.Handle(Login("B", "bob"))
	f.coord.Handle(NewOrg("B", "acme"))
	bEvents := b.take()
	require.Len(t, bEvents, 2)
	assert.Equal(t, Event{Kind: EventLoggedIn, UserID: "B"}, bEvents[0])
	assert.Equal(t, EventOrgFound, bEvents[1].Kind)
	assert.Equal(t, "B", bEvents[1].UserID)
	assert.Equal(t, aEvents[0].Organization.ID, bEvents[1].Organization.ID)
}

func TestRunSerializesConcurrentSubmitters(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- f.coord.Run(ctx) }()

	const clients = 20
	recs := make([]*recorder, clients)
	for i := range clients {
		recs[i] = &recorder{}
		require.NoError(t, f.coord.Register(ctx, fmt.Sprintf("c%d", i), recs[i]))
	}

	var wg sync.WaitGroup
	wg.Add(clients)
	for i := range clients {
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			assert.NoError(t, f.coord.Submit(ctx, Login(id, id)))
			assert.NoError(t, f.coord.Submit(ctx, NewOrg(id, "shared")))
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		for _, r := range recs {
			if r.count(EventOrgFound) != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	ids := map[string]struct{}{}
	for _, r := range recs {
		for _, ev := range r.take() {
			if ev.Kind == EventOrgFound {
				ids[ev.Organization.ID] = struct{}{}
			}
		}
	}
	assert.Len(t, ids, 1)
	assert.Equal(t, 1, f.orgs.Len())

	cancel()
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRegisterReportsDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.coord.Run(ctx) }()

	require.NoError(t, f.coord.Register(ctx, "A", &recorder{}))
	err := f.coord.Register(ctx, "A", &recorder{})
	require.ErrorIs(t, err, identity.ErrAlreadyConnected)
	assert.Equal(t, 1, f.ids.Len())
}

func TestSubmitAfterStop(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = f.coord.Run(ctx) }()
	cancel()

	select {
	case <-f.coord.Done():
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop")
	}

	err := f.coord.Submit(context.Background(), NewMessage("A", "late"))
	require.ErrorIs(t, err, ErrStopped)
	err = f.coord.Register(context.Background(), "A", &recorder{})
	require.ErrorIs(t, err, ErrStopped)
}

func TestSubmitHonoursContext(t *testing.T) {
	f := newFixture(t)
	f.coord = New(f.ids, f.orgs, f.router, WithQueueSize(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Nothing drains the queue: the first command fills it, the second waits.
	require.NoError(t, f.coord.Submit(ctx, NewMessage("A", "one")))
	err := f.coord.Submit(ctx, NewMessage("A", "two"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

package session

import "github.com/Tyrowin/orgchat/internal/organization"

// Fixed notice strings carried by lifecycle broadcasts.
const (
	JoinNotice  = "user joined"
	LeaveNotice = "user left"
)

type EventKind int

const (
	EventLoggedIn EventKind = iota + 1
	EventOrgFound
	EventBroadcastMessage
	EventLoginMessage
	EventDisconnectMessage
)

// String returns the wire name of the event.
func (k EventKind) String() string {
	switch k {
	case EventLoggedIn:
		return "logged-in"
	case EventOrgFound:
		return "org-found"
	case EventBroadcastMessage:
		return "broadcast-message"
	case EventLoginMessage:
		return "login-message"
	case EventDisconnectMessage:
		return "disconnect-message"
	default:
		return "unknown"
	}
}

// Scope is the set of connections an event is delivered to.
type Scope int

const (
	ScopeOrigin Scope = iota
	ScopeAll
)

func (k EventKind) Scope() Scope {
	switch k {
	case EventLoggedIn, EventOrgFound:
		return ScopeOrigin
	default:
		return ScopeAll
	}
}

// Event is an outbound notification decided by the coordinator.
type Event struct {
	Kind EventKind

	UserID       string                    // logged-in, org-found
	Organization organization.Organization // org-found
	Content      string                    // broadcast-message and notices
}

// Sink receives events for one connection. Deliver must not block.
type Sink interface {
	Deliver(Event) error
}

// Router owns the connection-to-sink table and performs delivery.
// Unicast and Broadcast never report failures; a recipient that cannot be
// reached is skipped.
type Router interface {
	Attach(connID string, sink Sink) error
	Detach(connID string) bool
	Unicast(connID string, ev Event)
	Broadcast(ev Event)
}

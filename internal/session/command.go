package session

// CommandKind enumerates everything a connection can ask of the coordinator.
type CommandKind int

const (
	CommandConnect CommandKind = iota + 1
	CommandDisconnect
	CommandLogin
	CommandNewOrg
	CommandNewMessage
)

func (k CommandKind) String() string {
	switch k {
	case CommandConnect:
		return "connect"
	case CommandDisconnect:
		return "disconnect"
	case CommandLogin:
		return "login"
	case CommandNewOrg:
		return "new-org"
	case CommandNewMessage:
		return "new-message"
	default:
		return "unknown"
	}
}

// Command is one request bound to the connection that issued it. Only the
// fields relevant to Kind are read.
type Command struct {
	Kind   CommandKind
	ConnID string

	Username string // login
	OrgName  string // new-org
	Content  string // new-message
	Sink     Sink   // connect

	result chan Outcome
}

func Connect(connID string, sink Sink) Command {
	return Command{Kind: CommandConnect, ConnID: connID, Sink: sink}
}

func Disconnect(connID string) Command {
	return Command{Kind: CommandDisconnect, ConnID: connID}
}

func Login(connID, username string) Command {
	return Command{Kind: CommandLogin, ConnID: connID, Username: username}
}

func NewOrg(connID, name string) Command {
	return Command{Kind: CommandNewOrg, ConnID: connID, OrgName: name}
}

func NewMessage(connID, content string) Command {
	return Command{Kind: CommandNewMessage, ConnID: connID, Content: content}
}

// Status classifies how the coordinator disposed of a command.
type Status int

const (
	// StatusApplied means state changed or an event was emitted.
	StatusApplied Status = iota
	// StatusRejected means a precondition was not met and the command was
	// dropped without any event.
	StatusRejected
	// StatusFailed means an invariant was violated; only the issuing
	// connection is affected.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusRejected:
		return "rejected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is reported for logging, metrics and tests. It never reaches the wire.
type Outcome struct {
	Status Status
	Reason string
	Err    error
}

func applied() Outcome { return Outcome{Status: StatusApplied} }

func rejected(reason string) Outcome {
	return Outcome{Status: StatusRejected, Reason: reason}
}

func failed(reason string, err error) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason, Err: err}
}

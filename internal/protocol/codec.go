// Package protocol defines the JSON frames exchanged with clients and maps
// them onto coordinator commands and events.
//
// Every frame is an envelope {"type": <name>, "data": <payload>}.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tyrowin/orgchat/internal/organization"
	"github.com/Tyrowin/orgchat/internal/session"
)

// Inbound frame types.
const (
	TypeLogin      = "login"
	TypeNewOrg     = "new-org"
	TypeNewMessage = "new-message"
)

var (
	ErrMalformed   = errors.New("protocol: malformed frame")
	ErrUnknownType = errors.New("protocol: unknown frame type")
)

// Envelope is the outer shape of every frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// LoginPayload is the data of a login frame.
type LoginPayload struct {
	Username string `json:"username"`
}

// OrgFoundPayload is the data of an org-found frame.
type OrgFoundPayload struct {
	UserID string                    `json:"userId"`
	Org    organization.Organization `json:"org"`
}

// DecodeCommand parses one inbound frame from connID.
func DecodeCommand(connID string, raw []byte) (session.Command, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return session.Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeLogin:
		var p LoginPayload
		if err := decodeData(env, &p); err != nil {
			return session.Command{}, err
		}
		return session.Login(connID, p.Username), nil
	case TypeNewOrg:
		var name string
		if err := decodeData(env, &name); err != nil {
			return session.Command{}, err
		}
		return session.NewOrg(connID, name), nil
	case TypeNewMessage:
		var msg string
		if err := decodeData(env, &msg); err != nil {
			return session.Command{}, err
		}
		return session.NewMessage(connID, msg), nil
	case "":
		return session.Command{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return session.Command{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeData(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s frame without data", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformed, env.Type, err)
	}
	return nil
}

// EncodeEvent renders ev as an outbound frame.
func EncodeEvent(ev session.Event) ([]byte, error) {
	var data any
	switch ev.Kind {
	case session.EventLoggedIn:
		data = ev.UserID
	case session.EventOrgFound:
		data = OrgFoundPayload{UserID: ev.UserID, Org: ev.Organization}
	case session.EventBroadcastMessage, session.EventLoginMessage, session.EventDisconnectMessage:
		data = ev.Content
	default:
		return nil, fmt.Errorf("%w: event kind %d", ErrUnknownType, ev.Kind)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", ev.Kind, err)
	}
	return json.Marshal(Envelope{Type: ev.Kind.String(), Data: payload})
}
